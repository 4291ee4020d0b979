// Package testutil 提供整合測試用的 MongoDB 容器.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/multierr"
)

// Cleanup 釋放測試資源.
type Cleanup func() error

const mongoExpireSeconds = 120

// MongoContainer 測試用 MongoDB 容器.
type MongoContainer struct {
	URI string
	DB  *mongo.Database
}

// StartMongo 以 dockertest 啟動 MongoDB 容器並回傳連線資訊.
func StartMongo(dbName string) (_ *MongoContainer, _ Cleanup, err error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, nil, fmt.Errorf("could not construct pool: %w", err)
	}
	if err = pool.Client.Ping(); err != nil {
		return nil, nil, fmt.Errorf("could not connect to Docker: %w", err)
	}
	pool.MaxWait = time.Minute

	resource, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: "mongo",
			Tag:        "7.0",
		},
		func(config *docker.HostConfig) {
			// 容器結束後自動刪除
			config.AutoRemove = true
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to run mongo container: %w", err)
	}

	var client *mongo.Client
	cleanup := func() error {
		var errs error
		if client != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs = multierr.Append(errs, client.Disconnect(ctx))
		}
		if purgeErr := pool.Purge(resource); purgeErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to purge mongo container: %w", purgeErr))
		}
		return errs
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, cleanup())
		}
	}()

	if err = resource.Expire(mongoExpireSeconds); err != nil {
		return nil, nil, fmt.Errorf("failed to set expire time: %w", err)
	}

	uri := fmt.Sprintf("mongodb://%s", resource.GetHostPort("27017/tcp"))
	err = pool.Retry(func() error {
		c, retryErr := mongo.Connect(options.Client().ApplyURI(uri))
		if retryErr != nil {
			return retryErr
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if retryErr = c.Ping(ctx, nil); retryErr != nil {
			_ = c.Disconnect(context.Background())
			return retryErr
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	return &MongoContainer{URI: uri, DB: client.Database(dbName)}, cleanup, nil
}

// MongoForTest 啟動 MongoDB 並回傳測試資料庫，無法使用 Docker 時略過測試.
func MongoForTest(t *testing.T) *mongo.Database {
	t.Helper()
	return MongoContainerForTest(t).DB
}

// MongoContainerForTest 同 MongoForTest，另外提供連線字串.
func MongoContainerForTest(t *testing.T) *MongoContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("跳過整合測試：-short")
	}

	container, cleanup, err := StartMongo("chat_relay_test")
	if err != nil {
		t.Skipf("跳過測試：無法啟動 MongoDB 容器: %v", err)
	}
	t.Cleanup(func() {
		if err := cleanup(); err != nil {
			t.Logf("cleanup mongo: %v", err)
		}
	})
	return container
}
