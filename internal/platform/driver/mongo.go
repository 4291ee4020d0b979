// Package driver 建立與關閉 MongoDB 連線.
package driver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"chat-relay/internal/platform/config"
	"chat-relay/internal/platform/logger"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultConnectTimeout   = 10 * time.Second
	defaultServerSelectWait = 5 * time.Second
	disconnectTimeout       = 5 * time.Second

	envMongoUsername = "MONGO_USERNAME"
	envMongoPassword = "MONGO_PASSWORD"
)

// ErrNotConnected 連線已關閉或尚未建立.
var ErrNotConnected = errors.New("database connection not available")

// Mongo 一條已驗證可用的 MongoDB 連線.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect 依配置連線並 ping 一次，失敗時不留下半開的 client.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Mongo, error) {
	timeout := seconds(cfg.ConnectTimeout, defaultConnectTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URL).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(time.Duration(cfg.MaxConnIdleTime) * time.Second).
		SetServerSelectionTimeout(seconds(cfg.ServerSelectionTimeout, defaultServerSelectWait))

	if username, password := credentials(cfg); username != "" && password != "" {
		opts.SetAuth(options.Credential{Username: username, Password: password})
		logger.Info(ctx, "MongoDB 使用認證連接")
	} else {
		logger.Info(ctx, "MongoDB 使用無認證連接（開發環境）")
	}

	if cfg.TLSEnabled {
		tlsConfig, err := loadTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load MongoDB TLS config: %w", err)
		}
		if tlsConfig.InsecureSkipVerify {
			logger.Warning(ctx, "MongoDB TLS 證書驗證已跳過（僅開發環境）")
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info(ctx, "MongoDB connected successfully",
		logger.WithDetails(map[string]interface{}{"database": cfg.Database, "tls": cfg.TLSEnabled}))

	return &Mongo{client: client, db: client.Database(cfg.Database)}, nil
}

// Database 配置中的資料庫.
func (m *Mongo) Database() *mongo.Database {
	return m.db
}

// Ping 檢查連線，健康檢查使用.
func (m *Mongo) Ping(ctx context.Context) error {
	if m == nil || m.client == nil {
		return ErrNotConnected
	}
	return m.client.Ping(ctx, nil)
}

// Close 斷開連線，可重複呼叫.
func (m *Mongo) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	err := m.client.Disconnect(ctx)
	m.client, m.db = nil, nil
	return err
}

// credentials 配置檔優先，其次環境變數
func credentials(cfg config.MongoConfig) (string, string) {
	username, password := cfg.Username, cfg.Password
	if username == "" {
		username = os.Getenv(envMongoUsername)
	}
	if password == "" {
		password = os.Getenv(envMongoPassword)
	}
	return username, password
}

func loadTLSConfig(cfg config.MongoConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.TLSInsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- 只在配置明確要求時
		return tlsConfig, nil
	}

	if cfg.TLSCAFile != "" {
		caCert, err := os.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certs")
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		clientCert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	return tlsConfig, nil
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
