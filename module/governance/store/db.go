package store

import (
	"context"
	"time"

	"GProject/module/governance/model"
)

// DB 抽象：生产实现 Mongo（db_mongo.go）；测试用内存实现（db_mem.go）。
//
// 两个复合操作是正确性的关键：
//   - CreateWithInitialVotes: 建单与初始票要么全写要么全不写，
//     不允许出现“有审批无票”的记录（计票会产生歧义）。
//   - InsertVoteAndTally: 插票（重复即拒）+ 读计票在同一事务内完成，
//     配合引擎的单审批互斥，保证并发投票读到的计票不落后。
type DB interface {
	CreateWithInitialVotes(ctx context.Context, req *model.ApprovalRequest, votes []*model.Vote) error
	GetApproval(ctx context.Context, tenantID, approvalID string) (*model.ApprovalRequest, error)
	ListPending(ctx context.Context, tenantID, groupID string) ([]*model.ApprovalRequest, error)

	// InsertVoteAndTally 原子插票并返回含新票的计票。
	// 同一 (approval_id, admin_id) 已存在时返回 errs.ErrDuplicateVote。
	InsertVoteAndTally(ctx context.Context, vote *model.Vote) (model.Tally, error)
	ListVotes(ctx context.Context, tenantID, approvalID string) ([]*model.Vote, error)
	TallyFor(ctx context.Context, tenantID, approvalID string) (model.Tally, error)

	// MarkResolved 按 CAS 语义把 Pending 翻转为终态。
	// 只有翻转成功的调用方可以触发动作执行（至多一次执行的闸门）。
	// 返回 false 表示已被并发方终结。
	MarkResolved(ctx context.Context, tenantID, approvalID string, toStatus int32, completedAt time.Time) (bool, error)

	// DeleteVote 撤走某管理员在单个审批上的票（离群清票）。
	// 按审批逐个执行，调用方在该审批的互斥范围内使用；
	// 票不存在时返回 false，可安全重放。
	DeleteVote(ctx context.Context, tenantID, approvalID, adminID string) (bool, error)

	// —— 授权台账 ——
	UpsertGrant(ctx context.Context, grant *model.AutoApproveGrant) error
	GetGrant(ctx context.Context, tenantID, groupID, grantorID, granteeID string) (*model.AutoApproveGrant, error)
	ListGrantsTo(ctx context.Context, tenantID, groupID, granteeID string) ([]*model.AutoApproveGrant, error)
}
