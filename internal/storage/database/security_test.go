package database

import (
	"strings"
	"testing"

	"chat-relay/internal/apperr"

	"github.com/stretchr/testify/require"
)

func TestValidateHandle(t *testing.T) {
	tests := []struct {
		name    string
		handle  string
		wantErr bool
	}{
		{"plain", "alice", false},
		{"unicode", "愛麗絲", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"too long", strings.Repeat("a", 101), true},
		{"mongo operator", "$where", true},
		{"braces", "a{b}", true},
		{"brackets", "a[0]", true},
		{"null byte", "a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHandle("username", tt.handle)
			if tt.wantErr {
				require.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateMessageBody(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateMessageBody("", 10))
	req.NoError(ValidateMessageBody("0123456789", 10))
	req.ErrorIs(ValidateMessageBody("0123456789a", 10), apperr.ErrValidation)
	req.ErrorIs(ValidateMessageBody("a\x00", 10), apperr.ErrValidation)
	req.NoError(ValidateMessageBody(strings.Repeat("x", 10000), 0))
}
