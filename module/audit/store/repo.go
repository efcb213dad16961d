package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mgo "GProject/data/database/mgo/mongoutil"
	"GProject/logger"
	"GProject/module/audit/model"
	"GProject/service/natsx"
	"GProject/tools/errs"
	"GProject/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collAudit = "governance_audit"

// Repo 审计存储：写 Mongo，同时向 NATS 广播（订阅方：导出、通知）。
// NATS 发布失败只告警，Mongo 才是事实记录。
type Repo struct {
	cli  *mgo.Client
	nats *natsx.NatsxClient // 可为 nil（纯存储模式）

	subjectPrefix string // 如 "governance.audit"
}

func NewRepo(cli *mgo.Client, nc *natsx.NatsxClient, subjectPrefix string) *Repo {
	if subjectPrefix == "" {
		subjectPrefix = "governance.audit"
	}
	return &Repo{cli: cli, nats: nc, subjectPrefix: subjectPrefix}
}

func (r *Repo) Record(ctx context.Context, entry *model.AuditEntry) error {
	if entry.AuditID == "" {
		entry.AuditID = ids.GenerateString()
	}
	if entry.CreateTime.IsZero() {
		entry.CreateTime = time.Now()
	}

	if _, err := r.cli.GetDB().Collection(collAudit).InsertOne(ctx, entry); err != nil {
		return errs.WrapMsg(err, "insert audit", "auditID", entry.AuditID)
	}

	if r.nats != nil {
		body, err := json.Marshal(entry)
		if err == nil {
			subj := fmt.Sprintf("%s.%s", r.subjectPrefix, entry.TenantID)
			err = r.nats.Publish(subj, body, map[string]string{"group_id": entry.GroupID})
		}
		if err != nil {
			logger.Warnf("audit publish failed: %v", err)
		}
	}
	return nil
}

// ListByGroup 按群倒序分页读取审计（导出/展示用）
func (r *Repo) ListByGroup(ctx context.Context, tenantID, groupID string, limit int64) ([]*model.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	cur, err := r.cli.GetDB().Collection(collAudit).Find(ctx,
		bson.M{"tenant_id": tenantID, "group_id": groupID},
		options.Find().SetSort(bson.D{{Key: "create_time", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "list audit", "groupID", groupID)
	}
	var out []*model.AuditEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode audit")
	}
	return out, nil
}
