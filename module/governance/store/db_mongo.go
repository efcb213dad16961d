package store

import (
	"context"
	"time"

	mgo "GProject/data/database/mgo/mongoutil"
	"GProject/module/governance/model"
	"GProject/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collApproval = "governance_approval"
	collVote     = "governance_vote"
	collGrant    = "governance_grant"
)

type mongoDB struct {
	cli *mgo.Client
}

func NewMongoDB(cli *mgo.Client) DB {
	return &mongoDB{cli: cli}
}

// EnsureIndexes 建唯一索引：投票去重、审批主键、授权有序对。
// 服务启动时调用一次。
func EnsureIndexes(ctx context.Context, cli *mgo.Client) error {
	db := cli.GetDB()

	_, err := db.Collection(collVote).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "approval_id", Value: 1}, {Key: "admin_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errs.WrapMsg(err, "create vote index")
	}

	_, err = db.Collection(collApproval).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "approval_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errs.WrapMsg(err, "create approval index")
	}

	_, err = db.Collection(collGrant).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "tenant_id", Value: 1}, {Key: "group_id", Value: 1},
			{Key: "grantor_id", Value: 1}, {Key: "grantee_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return errs.WrapMsg(err, "create grant index")
}

func (s *mongoDB) CreateWithInitialVotes(ctx context.Context, req *model.ApprovalRequest, votes []*model.Vote) error {
	_, err := s.cli.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		db := s.cli.GetDB()
		if _, err := db.Collection(collApproval).InsertOne(sc, req); err != nil {
			return nil, err
		}
		if len(votes) > 0 {
			docs := make([]any, 0, len(votes))
			for _, v := range votes {
				docs = append(docs, v)
			}
			if _, err := db.Collection(collVote).InsertMany(sc, docs); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		if mgo.IsDuplicateKeyErr(err) {
			return errs.ErrDuplicateKey.WrapMsg("approval already exists", "approvalID", req.ApprovalID)
		}
		return errs.WrapMsg(err, "create approval", "approvalID", req.ApprovalID)
	}
	return nil
}

func (s *mongoDB) GetApproval(ctx context.Context, tenantID, approvalID string) (*model.ApprovalRequest, error) {
	var out model.ApprovalRequest
	err := s.cli.GetDB().Collection(collApproval).
		FindOne(ctx, bson.M{"tenant_id": tenantID, "approval_id": approvalID}).
		Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrUnknownApproval.WrapMsg("approval not found", "approvalID", approvalID)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "get approval", "approvalID", approvalID)
	}
	return &out, nil
}

func (s *mongoDB) ListPending(ctx context.Context, tenantID, groupID string) ([]*model.ApprovalRequest, error) {
	cur, err := s.cli.GetDB().Collection(collApproval).Find(ctx,
		bson.M{"tenant_id": tenantID, "group_id": groupID, "status": model.ApprovalStatusPending},
		options.Find().SetSort(bson.D{{Key: "create_time", Value: 1}}),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "list pending approvals", "groupID", groupID)
	}
	var out []*model.ApprovalRequest
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode pending approvals")
	}
	return out, nil
}

func (s *mongoDB) InsertVoteAndTally(ctx context.Context, vote *model.Vote) (model.Tally, error) {
	var tally model.Tally
	_, err := s.cli.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		db := s.cli.GetDB()
		if _, err := db.Collection(collVote).InsertOne(sc, vote); err != nil {
			return nil, err
		}
		t, err := s.tally(sc, vote.TenantID, vote.ApprovalID)
		if err != nil {
			return nil, err
		}
		tally = t
		return nil, nil
	})
	if err != nil {
		if mgo.IsDuplicateKeyErr(err) {
			return model.Tally{}, errs.ErrDuplicateVote.WrapMsg("already voted",
				"approvalID", vote.ApprovalID, "adminID", vote.AdminID)
		}
		return model.Tally{}, errs.WrapMsg(err, "insert vote", "approvalID", vote.ApprovalID)
	}
	return tally, nil
}

func (s *mongoDB) tally(ctx context.Context, tenantID, approvalID string) (model.Tally, error) {
	var tally model.Tally
	cur, err := s.cli.GetDB().Collection(collVote).Find(ctx,
		bson.M{"tenant_id": tenantID, "approval_id": approvalID})
	if err != nil {
		return tally, err
	}
	var votes []*model.Vote
	if err := cur.All(ctx, &votes); err != nil {
		return tally, err
	}
	for _, v := range votes {
		switch v.Choice {
		case model.VoteChoiceApprove:
			tally.Approve++
		case model.VoteChoiceReject:
			tally.Reject++
		}
	}
	return tally, nil
}

func (s *mongoDB) ListVotes(ctx context.Context, tenantID, approvalID string) ([]*model.Vote, error) {
	cur, err := s.cli.GetDB().Collection(collVote).Find(ctx,
		bson.M{"tenant_id": tenantID, "approval_id": approvalID},
		options.Find().SetSort(bson.D{{Key: "cast_time", Value: 1}}),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "list votes", "approvalID", approvalID)
	}
	var out []*model.Vote
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode votes")
	}
	return out, nil
}

func (s *mongoDB) TallyFor(ctx context.Context, tenantID, approvalID string) (model.Tally, error) {
	t, err := s.tally(ctx, tenantID, approvalID)
	if err != nil {
		return t, errs.WrapMsg(err, "tally", "approvalID", approvalID)
	}
	return t, nil
}

func (s *mongoDB) MarkResolved(ctx context.Context, tenantID, approvalID string, toStatus int32, completedAt time.Time) (bool, error) {
	// filter 带 status=Pending，终态不可被二次翻转
	res, err := s.cli.GetDB().Collection(collApproval).UpdateOne(ctx,
		bson.M{
			"tenant_id":   tenantID,
			"approval_id": approvalID,
			"status":      model.ApprovalStatusPending,
		},
		bson.M{"$set": bson.M{"status": toStatus, "complete_time": completedAt}},
	)
	if err != nil {
		return false, errs.WrapMsg(err, "mark resolved", "approvalID", approvalID)
	}
	return res.ModifiedCount == 1, nil
}

func (s *mongoDB) DeleteVote(ctx context.Context, tenantID, approvalID, adminID string) (bool, error) {
	res, err := s.cli.GetDB().Collection(collVote).DeleteOne(ctx, bson.M{
		"tenant_id":   tenantID,
		"approval_id": approvalID,
		"admin_id":    adminID,
	})
	if err != nil {
		return false, errs.WrapMsg(err, "delete vote", "approvalID", approvalID, "adminID", adminID)
	}
	return res.DeletedCount == 1, nil
}

func (s *mongoDB) UpsertGrant(ctx context.Context, grant *model.AutoApproveGrant) error {
	_, err := s.cli.GetDB().Collection(collGrant).UpdateOne(ctx,
		bson.M{
			"tenant_id":  grant.TenantID,
			"group_id":   grant.GroupID,
			"grantor_id": grant.GrantorID,
			"grantee_id": grant.GranteeID,
		},
		bson.M{"$set": bson.M{
			"categories":  grant.Categories,
			"update_time": grant.UpdateTime,
		}},
		options.Update().SetUpsert(true),
	)
	return errs.WrapMsg(err, "upsert grant", "grantor", grant.GrantorID, "grantee", grant.GranteeID)
}

func (s *mongoDB) GetGrant(ctx context.Context, tenantID, groupID, grantorID, granteeID string) (*model.AutoApproveGrant, error) {
	var out model.AutoApproveGrant
	err := s.cli.GetDB().Collection(collGrant).FindOne(ctx, bson.M{
		"tenant_id":  tenantID,
		"group_id":   groupID,
		"grantor_id": grantorID,
		"grantee_id": granteeID,
	}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "get grant", "grantor", grantorID, "grantee", granteeID)
	}
	return &out, nil
}

func (s *mongoDB) ListGrantsTo(ctx context.Context, tenantID, groupID, granteeID string) ([]*model.AutoApproveGrant, error) {
	cur, err := s.cli.GetDB().Collection(collGrant).Find(ctx, bson.M{
		"tenant_id":  tenantID,
		"group_id":   groupID,
		"grantee_id": granteeID,
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "list grants", "grantee", granteeID)
	}
	var out []*model.AutoApproveGrant
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode grants")
	}
	return out, nil
}
