// healthprobe 查詢 gRPC 健康檢查服務，非 SERVING 時以非零狀態退出，可用於容器探針.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	grpcserver "chat-relay/internal/grpc"
	"chat-relay/internal/platform/server"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "localhost:8081", "gRPC 健康檢查地址")
	service := flag.String("service", grpcserver.ServiceName, "服務名稱，空字串表示整體狀態")
	useTLS := flag.Bool("tls", false, "使用 TLS 連接")
	cert := flag.String("cert", "", "CA 憑證路徑")
	serverName := flag.String("server-name", "", "TLS 驗證使用的主機名稱")
	timeout := flag.Duration("timeout", 5*time.Second, "查詢逾時")
	flag.Parse()

	probe, err := server.NewHealthProbe(server.ProbeConfig{
		Address:    *addr,
		TLSEnabled: *useTLS,
		CAFile:     *cert,
		ServerName: *serverName,
		RequestID:  "healthprobe",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "連接失敗: %v\n", err)
		return 2
	}
	defer probe.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := probe.Check(ctx, *service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "健康檢查失敗: %v\n", err)
		return 2
	}

	out, err := protojson.MarshalOptions{EmitUnpopulated: true}.Marshal(resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "輸出失敗: %v\n", err)
		return 2
	}
	fmt.Println(string(out))

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return 1
	}
	return 0
}
