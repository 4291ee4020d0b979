package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	grpcserver "chat-relay/internal/grpc"
	"chat-relay/internal/platform/config"
	"chat-relay/internal/platform/driver"
	"chat-relay/internal/platform/health"
	"chat-relay/internal/platform/logger"
	"chat-relay/internal/platform/server"
	"chat-relay/internal/reaper"
	"chat-relay/internal/relay"
	"chat-relay/internal/security/audit"
	"chat-relay/internal/storage/blob"
	"chat-relay/internal/storage/database"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"google.golang.org/grpc"
)

func main() {
	if err := mainNoExit(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// mainNoExit 分離主要邏輯以避免 exitAfterDefer 問題，確保 defer 函數正常執行.
func mainNoExit() error {
	// 載入配置，日誌輪轉設定來自配置.
	if err := config.Load(); err != nil {
		return err
	}

	// 初始化日誌.
	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Get()
	clock := clockwork.NewRealClock()

	// 連接資料庫，memory 驅動不需要.
	var (
		ping health.PingFunc
		db   *mongo.Database
	)
	if cfg.Database.Driver == config.DriverMongo {
		conn, err := driver.Connect(ctx, cfg.Database.Mongo)
		if err != nil {
			return err
		}
		defer func() {
			if err := conn.Close(); err != nil {
				logger.Errorf(ctx, "關閉 MongoDB 連接失敗: %v", err)
			}
		}()
		ping = conn.Ping
		db = conn.Database()
	}

	// 初始化 Repository.
	repos, err := database.NewRepositories(ctx, cfg, db, clock)
	if err != nil {
		return err
	}

	auditSvc := audit.NewAuditService(cfg.Security.Audit.Enabled)

	blobs, err := blob.NewLocalStore(blob.LocalConfig{
		BasePath:  cfg.Upload.Dir,
		URLPrefix: cfg.Upload.URLPrefix,
		MaxSize:   int64(cfg.Upload.MaxSizeMB) << 20,
		Clock:     clock,
	})
	if err != nil {
		return err
	}

	registry := relay.NewRegistry()
	router := relay.NewRouter(repos.Messages, registry,
		relay.WithClock(clock),
		relay.WithAudit(auditSvc),
		relay.WithStoreTimeout(config.Duration(cfg.Realtime.StoreTimeoutSeconds)),
		relay.WithMaxBodyLength(cfg.Limits.Message.MaxLength),
	)

	// 啟動過期訊息清理
	messageReaper := reaper.New(repos.Messages,
		reaper.WithClock(clock),
		reaper.WithInterval(config.Duration(cfg.Reaper.IntervalSeconds)),
		reaper.WithTimeout(config.Duration(cfg.Reaper.TimeoutSeconds)),
	)
	messageReaper.Start(ctx)

	healthHandler := health.NewHealthHandler(
		health.WithDatabase(repos.Driver, cfg.Database.Mongo.Database, ping),
		health.WithRegistry(registry),
		health.WithReaper(messageReaper),
		health.WithClock(clock),
	)

	// 啟動 gRPC 健康檢查服務器
	var grpcServer *grpcserver.Server
	if cfg.GRPC.Enabled {
		opts := []grpcserver.Option{grpcserver.WithClock(clock)}
		creds, err := server.LoadTLSCredentials(cfg.Security.TLS)
		if err != nil {
			logger.Error(ctx, "載入 gRPC TLS 憑證失敗", logger.WithError(err))
			return fmt.Errorf("server initialization failed")
		}
		if creds != nil {
			opts = append(opts, grpcserver.WithServerOptions(grpc.Creds(creds)))
		}

		grpcServer = grpcserver.NewServer(healthHandler.CheckDatabase, opts...)
		go grpcServer.Watch(ctx)
		go func() {
			if err := grpcServer.Start(config.GetGRPCAddr()); err != nil {
				logger.Errorf(ctx, "gRPC 服務器啟動失敗: %v", err)
			}
		}()
	}

	// 啟動 HTTP 服務器
	engine := server.Router(ctx, server.Deps{
		Config: cfg,
		Repos:  repos,
		Blobs:  blobs,
		Relay:  router,
		Audit:  auditSvc,
		Health: healthHandler,
		Clock:  clock,
	})
	httpServer, err := server.New(cfg, engine)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info(ctx, "[System] 服務器啟動完成", logger.WithDetails(map[string]interface{}{
		"driver": repos.Driver,
		"addr":   config.GetServerAddr(),
	}))

	// 等待中斷信號或 HTTP 服務器異常退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case runErr = <-errCh:
		if runErr != nil {
			logger.Errorf(ctx, "HTTP 服務器啟動失敗: %v", runErr)
		}
	}

	logger.Info(ctx, "正在關閉服務器...", logger.WithAction("shutdown"))
	if err := httpServer.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	messageReaper.Stop()
	if grpcServer != nil {
		grpcServer.Stop()
	}
	cancel()

	return runErr
}
