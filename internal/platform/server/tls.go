package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"chat-relay/internal/platform/config"

	"google.golang.org/grpc/credentials"
)

// LoadTLSConfig 載入伺服器端 TLS 設定，HTTP 與 gRPC 共用；未啟用時回傳 nil
func LoadTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	pair, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("載入伺服器憑證失敗: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{pair},
		ClientAuth:   tls.NoClientCert,
		MinVersion:   tls.VersionTLS12,
	}
	if cfg.CAFile == "" {
		return tlsConfig, nil
	}

	// 指定 CA 時要求客戶端憑證
	pool, err := readCertPool(cfg.CAFile)
	if err != nil {
		return nil, err
	}
	tlsConfig.ClientCAs = pool
	tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	return tlsConfig, nil
}

// LoadTLSCredentials 載入 gRPC TLS 憑證，未啟用時回傳 nil
func LoadTLSCredentials(cfg config.TLSConfig) (credentials.TransportCredentials, error) {
	tlsConfig, err := LoadTLSConfig(cfg)
	if err != nil || tlsConfig == nil {
		return nil, err
	}
	return credentials.NewTLS(tlsConfig), nil
}

func readCertPool(path string) (*x509.CertPool, error) {
	// #nosec G304 -- 路徑來自設定檔
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("讀取 CA 憑證失敗: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("CA 憑證 %s 不含有效 PEM", path)
	}
	return pool, nil
}
