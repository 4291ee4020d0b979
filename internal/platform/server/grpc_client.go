package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// ProbeConfig 健康探針的連線設定
type ProbeConfig struct {
	Address    string
	TLSEnabled bool
	CAFile     string
	ServerName string
	RequestID  string
}

// HealthProbe 查詢 gRPC 健康檢查服務的客戶端
type HealthProbe struct {
	conn      *grpc.ClientConn
	client    healthpb.HealthClient
	requestID string
}

// NewHealthProbe 建立探針連線，extra 供測試注入 dialer
func NewHealthProbe(cfg ProbeConfig, extra ...grpc.DialOption) (*HealthProbe, error) {
	creds := insecure.NewCredentials()
	if cfg.TLSEnabled {
		tlsConfig, err := loadClientTLSConfig(cfg.CAFile, cfg.ServerName)
		if err != nil {
			return nil, fmt.Errorf("加載 TLS 配置失敗: %w", err)
		}
		creds = credentials.NewTLS(tlsConfig)
	}

	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, extra...)
	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("連接 gRPC 服務失敗: %w", err)
	}

	return &HealthProbe{
		conn:      conn,
		client:    healthpb.NewHealthClient(conn),
		requestID: cfg.RequestID,
	}, nil
}

// Check 查詢單一服務狀態，service 為空字串時查詢整體狀態
func (p *HealthProbe) Check(ctx context.Context, service string) (*healthpb.HealthCheckResponse, error) {
	if p.requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", p.requestID)
	}
	return p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
}

// Close 關閉連線
func (p *HealthProbe) Close() error {
	return p.conn.Close()
}

// loadClientTLSConfig 以 CA 憑證建立客戶端 TLS 配置，未指定 CA 時使用系統憑證
func loadClientTLSConfig(caFile, serverName string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}
	if caFile == "" {
		return cfg, nil
	}

	caFile, err := filepath.Abs(filepath.Clean(caFile))
	if err != nil {
		return nil, fmt.Errorf("無法解析證書文件路徑: %w", err)
	}
	pool, err := readCertPool(caFile)
	if err != nil {
		return nil, err
	}
	cfg.RootCAs = pool
	return cfg, nil
}
