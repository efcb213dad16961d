package store

import (
	"context"
	"time"

	mgo "GProject/data/database/mgo/mongoutil"
	"GProject/module/group/model"
	"GProject/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	collGroup  = "group"
	collMember = "group_member"
)

type Repo struct {
	cli *mgo.Client
}

func NewRepo(cli *mgo.Client) *Repo {
	return &Repo{cli: cli}
}

func (r *Repo) db() *mongo.Database { return r.cli.GetDB() }

func (r *Repo) GetGroup(ctx context.Context, tenantID, groupID string) (*model.Group, error) {
	var out model.Group
	err := r.db().Collection(collGroup).
		FindOne(ctx, bson.M{"tenant_id": tenantID, "group_id": groupID}).
		Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("group not found", "groupID", groupID)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "get group", "groupID", groupID)
	}
	return &out, nil
}

// ListAdminIDs 实时管理员集合（计票基准，不缓存）
func (r *Repo) ListAdminIDs(ctx context.Context, tenantID, groupID string) ([]string, error) {
	cur, err := r.db().Collection(collMember).Find(ctx, bson.M{
		"tenant_id": tenantID,
		"group_id":  groupID,
		"is_admin":  true,
		"status":    model.MemberStatusNormal,
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "list admins", "groupID", groupID)
	}
	var rows []*model.GroupMember
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errs.WrapMsg(err, "decode admins")
	}
	out := make([]string, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.UserID)
	}
	return out, nil
}

func (r *Repo) GetMember(ctx context.Context, tenantID, groupID, userID string) (*model.GroupMember, error) {
	var out model.GroupMember
	err := r.db().Collection(collMember).FindOne(ctx, bson.M{
		"tenant_id": tenantID,
		"group_id":  groupID,
		"user_id":   userID,
		"status":    model.MemberStatusNormal,
	}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "get member", "groupID", groupID, "userID", userID)
	}
	return &out, nil
}

// AddMember upsert 成员行 + member_count++，同一事务
func (r *Repo) AddMember(ctx context.Context, m *model.GroupMember) error {
	_, err := r.cli.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		now := time.Now()
		if m.JoinTime.IsZero() {
			m.JoinTime = now
		}
		m.UpdateTime = now
		if _, err := r.db().Collection(collMember).InsertOne(sc, m); err != nil {
			return nil, err
		}
		_, err := r.db().Collection(collGroup).UpdateOne(sc,
			bson.M{"tenant_id": m.TenantID, "group_id": m.GroupID},
			bson.M{
				"$inc": bson.M{"member_count": 1},
				"$set": bson.M{"update_time": now},
			},
		)
		return nil, err
	})
	return errs.WrapMsg(err, "add member", "groupID", m.GroupID, "userID", m.UserID)
}

// RemoveMember 软删成员 + 计数回退；是管理员则 admin_count 一并回退
func (r *Repo) RemoveMember(ctx context.Context, tenantID, groupID, userID, operatorID string, kicked bool) error {
	_, err := r.cli.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		now := time.Now()
		status := model.MemberStatusQuit
		if kicked {
			status = model.MemberStatusKicked
		}

		var m model.GroupMember
		err := r.db().Collection(collMember).FindOneAndUpdate(sc,
			bson.M{"tenant_id": tenantID, "group_id": groupID, "user_id": userID, "status": model.MemberStatusNormal},
			bson.M{"$set": bson.M{
				"status":           status,
				"quit_time":        now,
				"operator_user_id": operatorID,
				"update_time":      now,
			}},
		).Decode(&m)
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrNotAMember.WrapMsg("member not found", "userID", userID)
		}
		if err != nil {
			return nil, err
		}

		inc := bson.M{"member_count": -1}
		if m.IsAdmin {
			inc["admin_count"] = -1
		}
		_, err = r.db().Collection(collGroup).UpdateOne(sc,
			bson.M{"tenant_id": tenantID, "group_id": groupID},
			bson.M{"$inc": inc, "$set": bson.M{"update_time": now}},
		)
		return nil, err
	})
	return errs.Wrap(err)
}

// SetRoleLevel 升/降管理员 + admin_count 维护，同一事务
func (r *Repo) SetRoleLevel(ctx context.Context, tenantID, groupID, userID, operatorID string, roleLevel int32) error {
	_, err := r.cli.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		now := time.Now()
		isAdmin := roleLevel >= model.RoleLevelAdmin

		var before model.GroupMember
		err := r.db().Collection(collMember).FindOneAndUpdate(sc,
			bson.M{"tenant_id": tenantID, "group_id": groupID, "user_id": userID, "status": model.MemberStatusNormal},
			bson.M{"$set": bson.M{
				"role_level":       roleLevel,
				"is_admin":         isAdmin,
				"is_owner":         roleLevel == model.RoleLevelOwner,
				"operator_user_id": operatorID,
				"update_time":      now,
			}},
		).Decode(&before)
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrNotAMember.WrapMsg("member not found", "userID", userID)
		}
		if err != nil {
			return nil, err
		}

		delta := 0
		if isAdmin && !before.IsAdmin {
			delta = 1
		} else if !isAdmin && before.IsAdmin {
			delta = -1
		}
		if delta == 0 {
			return nil, nil
		}
		_, err = r.db().Collection(collGroup).UpdateOne(sc,
			bson.M{"tenant_id": tenantID, "group_id": groupID},
			bson.M{"$inc": bson.M{"admin_count": delta}, "$set": bson.M{"update_time": now}},
		)
		return nil, err
	})
	return errs.Wrap(err)
}

// SetRecordingPolicy 变更通话录制策略
func (r *Repo) SetRecordingPolicy(ctx context.Context, tenantID, groupID string, policy int32) error {
	res, err := r.db().Collection(collGroup).UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "group_id": groupID},
		bson.M{"$set": bson.M{"recording_policy": policy, "update_time": time.Now()}},
	)
	if err != nil {
		return errs.WrapMsg(err, "set recording policy", "groupID", groupID)
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("group not found", "groupID", groupID)
	}
	return nil
}

// DismissGroup 解散群（逻辑删除，Status=2）
func (r *Repo) DismissGroup(ctx context.Context, tenantID, groupID string) error {
	now := time.Now()
	res, err := r.db().Collection(collGroup).UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "group_id": groupID, "status": bson.M{"$ne": model.GroupStatusDismiss}},
		bson.M{"$set": bson.M{
			"status":      model.GroupStatusDismiss,
			"deleted_at":  now,
			"update_time": now,
		}},
	)
	if err != nil {
		return errs.WrapMsg(err, "dismiss group", "groupID", groupID)
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("group not found or already dismissed", "groupID", groupID)
	}
	return nil
}
