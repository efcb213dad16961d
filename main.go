package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"GProject/global"
	"GProject/logger"
	auditstore "GProject/module/audit/store"
	"GProject/module/governance/engine"
	"GProject/module/governance/executor"
	govstore "GProject/module/governance/store"
	groupmodel "GProject/module/group/model"
	groupservice "GProject/module/group/service"
	groupstore "GProject/module/group/store"
	ka "GProject/service/kafka"
	mgoSrv "GProject/service/mgo"
	"GProject/service/natsx"
	redisSrv "GProject/service/storage/redis"
	"GProject/tools/safe"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := global.LoadAppConfig()
	if err := global.ConfigAll(ctx, cfg); err != nil {
		logger.Errorf("bootstrap failed: %v", err)
		os.Exit(1)
	}

	if err := mgoSrv.WaitReady(ctx); err != nil {
		logger.Errorf("mongo not ready: %v", err)
		os.Exit(1)
	}
	cli := mgoSrv.GetClient()
	if err := govstore.EnsureIndexes(ctx, cli); err != nil {
		logger.Errorf("ensure indexes failed: %v", err)
		os.Exit(1)
	}

	// NATS 只承载审计广播，连不上降级为仅落库
	nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{
		Servers: cfg.NatsServers,
		Name:    "governance-engine",
	})
	if err != nil {
		logger.Warnf("nats unavailable, audit fan-out disabled: %v", err)
		nc = nil
	}

	groupRepo := groupstore.NewRepo(cli)
	auditRepo := auditstore.NewRepo(cli, nc, cfg.AuditSubjectPrefix)
	members := groupservice.NewMembership(groupRepo)
	exec := executor.New(groupRepo, auditRepo, ka.SendSync, cfg.GroupEventTopic)

	eng := engine.New(
		govstore.NewMongoDB(cli),
		members,
		exec,
		auditRepo,
		engine.NewRedisLocker(redisSrv.GetRedis()),
		engine.Options{PendingTTL: cfg.PendingTTL},
	)

	// 群事件闭环：管理员被移除/降级 → 撤票并重算该群全部待审批单
	ka.RegisterHandler(cfg.GroupEventTopic, func(topic string, key, value []byte) error {
		var ev groupmodel.GroupEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			logger.Warnf("bad group event on %s: %v", topic, err)
			return nil // 脏消息不重投
		}
		if ev.Type != groupmodel.GroupEventAdminRemoved {
			return nil
		}
		return eng.OnAdminRemoved(ctx, ev.TenantID, ev.GroupID, ev.UserID)
	})
	safe.SafeGo(func() {
		err := ka.StartConsumerGroup(ctx, cfg.KafkaBrokers, cfg.KafkaGroupID, []string{cfg.GroupEventTopic})
		if err != nil && ctx.Err() == nil {
			logger.Errorf("consumer group exited: %v", err)
		}
	})

	logger.Infof("governance engine up: tenant=%s topic=%s", cfg.TenantID, cfg.GroupEventTopic)
	<-ctx.Done()

	if nc != nil {
		_ = nc.Close()
	}
	_ = redisSrv.CloseRedis()
	logger.Sync()
}
