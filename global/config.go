package global

import (
	"context"

	"GProject/data/database/mgo/mongoutil"
	ka "GProject/service/kafka"
	mgoSrv "GProject/service/mgo"
	redis "GProject/service/storage/redis"
	ids "GProject/tools/ids"
)

// ConfigAll 按依赖顺序初始化基础设施；Mongo 在后台重连，
// 调用方需要时用 mgoSrv.WaitReady 等首连。
func ConfigAll(ctx context.Context, cfg *AppConfig) error {
	ConfigIds(cfg)
	if err := ConfigRedis(cfg); err != nil {
		return err
	}
	ConfigMgo(ctx, cfg)
	return ConfigKafka(cfg)
}

func ConfigIds(cfg *AppConfig) {
	ids.SetNodeID(cfg.IDNodeID)
}

func ConfigRedis(cfg *AppConfig) error {
	return redis.InitRedis(redis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func ConfigMgo(ctx context.Context, cfg *AppConfig) {
	mgoSrv.StartAsync(ctx, &mongoutil.Config{
		Uri:         cfg.MongoURI,
		Database:    cfg.MongoDatabase,
		MaxPoolSize: 20,
	})
}

// ConfigKafka 初始化 Client 和同步 Producer；消费组由调用方自行拉起
func ConfigKafka(cfg *AppConfig) error {
	if err := ka.InitKafkaClient(cfg.KafkaBrokers); err != nil {
		return err
	}
	return ka.InitSyncProducerFromClient()
}
