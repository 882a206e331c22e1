package initial

import (
	"context"
	"fmt"
	"strings"

	"DocTalk/internal/config"
	"DocTalk/pkg/zlog"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
)

var MilvusClient mclient.Client

func init() {
	conf := config.GetConfig()
	addr := strings.TrimSpace(conf.MilvusConfig.Address)
	if addr == "" {
		zlog.Info("Milvus 未配置，跳过初始化")
		return
	}

	ctx := context.Background()
	cli, err := newMilvusClient(ctx, conf)
	if err != nil {
		zlog.Fatal(fmt.Sprintf("milvus init failed: %v", err))
		return
	}
	MilvusClient = cli
}

// newMilvusClient 建立连接并保证目标数据库存在。
// 集合与索引的创建延迟到向量仓库首次写入时进行。
func newMilvusClient(ctx context.Context, conf *config.Config) (mclient.Client, error) {
	addr := strings.TrimSpace(conf.MilvusConfig.Address)
	dbName := strings.TrimSpace(conf.MilvusConfig.DBName)
	if dbName == "" {
		dbName = "default"
	}

	defaultCli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.MilvusConfig.Username),
		Password: strings.TrimSpace(conf.MilvusConfig.Password),
		DBName:   "default",
	})
	if err != nil {
		return nil, err
	}

	if dbName != "default" {
		dbs, err := defaultCli.ListDatabases(ctx)
		if err != nil {
			_ = defaultCli.Close()
			return nil, err
		}
		exists := false
		for _, db := range dbs {
			if db.Name == dbName {
				exists = true
				break
			}
		}
		if !exists {
			if err := defaultCli.CreateDatabase(ctx, dbName); err != nil {
				_ = defaultCli.Close()
				return nil, err
			}
		}
	}

	cli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.MilvusConfig.Username),
		Password: strings.TrimSpace(conf.MilvusConfig.Password),
		DBName:   dbName,
	})
	if err != nil {
		_ = defaultCli.Close()
		return nil, err
	}

	_ = defaultCli.Close()
	return cli, nil
}
