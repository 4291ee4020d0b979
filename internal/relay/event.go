package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"chat-relay/internal/apperr"
	"chat-relay/internal/constants"
	"chat-relay/internal/storage/database"

	"github.com/go-playground/validator/v10"
)

// 連線送入的事件名稱.
const (
	InboundJoin              = "join"
	InboundPrivateMessage    = "privateMessage"
	InboundDeleteForEveryone = "deleteForEveryone"
	InboundClearChat         = "clearChat"
	InboundGameMove          = "gameMove"
	InboundGameReset         = "gameReset"
	InboundCallUser          = "callUser"
	InboundAnswerCall        = "answerCall"
)

// Frame 連線上的原始事件框.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound 已驗證的入站事件.
type Inbound interface {
	EventName() string
}

// JoinEvent 以 handle 加入頻道.
type JoinEvent struct {
	Handle string `json:"handle" validate:"required,handle"`
}

// SendEvent 發送私訊.
type SendEvent struct {
	Sender        string `json:"sender" validate:"required,handle"`
	Receiver      string `json:"receiver" validate:"required,handle"`
	Body          string `json:"body" validate:"required_without=AttachmentRef"`
	AttachmentRef string `json:"attachmentRef" validate:"max=2048"`
	Kind          string `json:"kind" validate:"omitempty,oneof=text image file audio video"`
	TTL           string `json:"ttl"`
}

// DeleteEvent 收回單則訊息.
type DeleteEvent struct {
	MessageID string `json:"messageId" validate:"required"`
	Sender    string `json:"sender" validate:"required,handle"`
	Receiver  string `json:"receiver" validate:"required,handle"`
}

// ClearEvent 清除兩人之間的對話.
type ClearEvent struct {
	Sender   string `json:"sender" validate:"required,handle"`
	Receiver string `json:"receiver" validate:"required,handle"`
}

// RelayEvent 不落地的信令事件，只轉送給目標 handle.
type RelayEvent struct {
	Name    string
	Kind    string
	Target  string
	Payload json.RawMessage
}

func (JoinEvent) EventName() string   { return InboundJoin }
func (SendEvent) EventName() string   { return InboundPrivateMessage }
func (DeleteEvent) EventName() string { return InboundDeleteForEveryone }
func (ClearEvent) EventName() string  { return InboundClearChat }
func (e RelayEvent) EventName() string {
	return e.Name
}

// 各信令事件的目標欄位.
type gameTarget struct {
	Receiver string `json:"receiver" validate:"required,handle"`
}

type callUserData struct {
	UserToCall string          `json:"userToCall" validate:"required,handle"`
	SignalData json.RawMessage `json:"signalData"`
	From       string          `json:"from" validate:"required,handle"`
}

type answerCallData struct {
	To     string          `json:"to" validate:"required,handle"`
	Signal json.RawMessage `json:"signal"`
}

// Decoder 解析並驗證入站事件.
type Decoder struct {
	validate      *validator.Validate
	maxBodyLength int
}

// NewDecoder 創建事件解析器，maxBodyLength <= 0 時使用預設上限.
func NewDecoder(maxBodyLength int) *Decoder {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// 不會失敗：tag 名稱固定
	_ = v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
		return database.ValidateHandle(fl.FieldName(), fl.Field().String()) == nil
	})

	if maxBodyLength <= 0 {
		maxBodyLength = constants.DefaultMaxMessageLength
	}
	return &Decoder{validate: v, maxBodyLength: maxBodyLength}
}

// Decode 解析一個事件框，回傳事件名稱供錯誤回報使用.
func (d *Decoder) Decode(raw []byte) (string, Inbound, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", nil, apperr.Validation("frame", "malformed JSON")
	}
	if frame.Event == "" {
		return "", nil, apperr.Validation("event", "is required")
	}

	ev, err := d.decodeData(frame.Event, frame.Data)
	return frame.Event, ev, err
}

func (d *Decoder) decodeData(name string, data json.RawMessage) (Inbound, error) {
	switch name {
	case InboundJoin:
		var ev JoinEvent
		// join 允許直接送字串 handle
		if s := bytes.TrimSpace(data); len(s) > 0 && s[0] == '"' {
			if err := json.Unmarshal(s, &ev.Handle); err != nil {
				return nil, apperr.Validation("data", "malformed payload")
			}
		} else if err := d.unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, d.check(ev)

	case InboundPrivateMessage:
		var ev SendEvent
		if err := d.unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if err := d.check(ev); err != nil {
			return nil, err
		}
		return ev, database.ValidateMessageBody(ev.Body, d.maxBodyLength)

	case InboundDeleteForEveryone:
		var ev DeleteEvent
		if err := d.unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, d.check(ev)

	case InboundClearChat:
		var ev ClearEvent
		if err := d.unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, d.check(ev)

	case InboundGameMove, InboundGameReset:
		var target gameTarget
		if err := d.unmarshal(data, &target); err != nil {
			return nil, err
		}
		if err := d.check(target); err != nil {
			return nil, err
		}
		return RelayEvent{Name: name, Kind: name, Target: target.Receiver, Payload: data}, nil

	case InboundCallUser:
		var call callUserData
		if err := d.unmarshal(data, &call); err != nil {
			return nil, err
		}
		if err := d.check(call); err != nil {
			return nil, err
		}
		payload, err := json.Marshal(CallPayload{Signal: nullIfEmpty(call.SignalData), From: call.From})
		if err != nil {
			return nil, apperr.Validation("signalData", "malformed payload")
		}
		return RelayEvent{Name: name, Kind: InboundCallUser, Target: call.UserToCall, Payload: payload}, nil

	case InboundAnswerCall:
		var answer answerCallData
		if err := d.unmarshal(data, &answer); err != nil {
			return nil, err
		}
		if err := d.check(answer); err != nil {
			return nil, err
		}
		return RelayEvent{Name: name, Kind: EventCallAccepted, Target: answer.To, Payload: nullIfEmpty(answer.Signal)}, nil
	}

	return nil, apperr.Validation("event", fmt.Sprintf("unknown event %q", name))
}

func (d *Decoder) unmarshal(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return apperr.Validation("data", "is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Validation("data", "malformed payload")
	}
	return nil
}

func (d *Decoder) check(v any) error {
	err := d.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Validation(fe.Field(), describe(fe))
	}
	return apperr.Validation("data", err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "body or attachmentRef is required"
	case "handle":
		return "must be a valid handle"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
