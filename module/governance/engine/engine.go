package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"GProject/logger"
	auditpkg "GProject/module/audit"
	auditmodel "GProject/module/audit/model"
	"GProject/module/governance/model"
	"GProject/module/governance/policy"
	"GProject/module/governance/store"
	"GProject/tools/errs"
	"GProject/tools/ids"
)

// Membership 群成员视图（module/group/service 提供生产实现）。
// CurrentAdmins 每次计票都实时读取，调用方保证成员表先于通知更新。
type Membership interface {
	CurrentAdmins(ctx context.Context, tenantID, groupID string) ([]string, error)
	IsMember(ctx context.Context, tenantID, groupID, userID string) (bool, error)
	IsAdmin(ctx context.Context, tenantID, groupID, userID string) (bool, error)
	ThresholdOverrides(ctx context.Context, tenantID, groupID string) (map[string]model.ThresholdRule, error)
}

// Executor 审批通过后的动作执行方。引擎保证对同一审批至多调用一次；
// 执行失败不回滚审批终态，作为独立事实上报。
type Executor interface {
	Execute(ctx context.Context, approval *model.ApprovalRequest) error
}

// Options 引擎可调项
type Options struct {
	// PendingTTL > 0 时，ExpireStale 会把超龄的 Pending 审批按否决终结。
	// 0 表示永不过期（默认）。
	PendingTTL time.Duration
}

// Engine 治理引擎：唯一有副作用的编排层。
// 建单、fast path、投票、离群重算都从这里走。
type Engine struct {
	db      store.DB
	members Membership
	exec    Executor
	sink    auditpkg.Sink
	locks   Locker
	opts    Options
}

func New(db store.DB, members Membership, exec Executor, sink auditpkg.Sink, locks Locker, opts Options) *Engine {
	return &Engine{
		db:      db,
		members: members,
		exec:    exec,
		sink:    sink,
		locks:   locks,
		opts:    opts,
	}
}

// SubmitResult 发起审批的结果
type SubmitResult struct {
	Approval *model.ApprovalRequest

	// true 表示进入等待期，需要其他管理员投票
	RequiresApproval bool

	// 审批已通过但动作执行失败时带回（审批终态不回滚）
	ExecErr error
}

// PendingApproval 待审批单及其当前计票（展示用）
type PendingApproval struct {
	Approval *model.ApprovalRequest
	Tally    model.Tally
}

func lockKey(approvalID string) string {
	return "governance:approval:" + approvalID
}

// Submit 发起一次治理审批。
//
// 三种出路：
//  1. 唯一管理员：直接通过并执行（sole-admin fast path）；
//  2. 授权台账已满足阈值：直接通过，合成授权人票，执行（auto-approve fast path）；
//  3. 进入 Pending，只带发起人自己的一票。
//
// 任何一条路都是“建单+初始票”一次原子写。
func (e *Engine) Submit(ctx context.Context, tenantID, groupID, requester, actionType string, payload map[string]any) (*SubmitResult, error) {
	if !model.KnownAction(actionType) {
		return nil, errs.ErrArgs.WrapMsg("unknown action type", "actionType", actionType)
	}

	// 写之前完成全部校验
	isMember, err := e.members.IsMember(ctx, tenantID, groupID, requester)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, errs.ErrNotAMember.WrapMsg("requester not in group", "userID", requester)
	}
	isAdmin, err := e.members.IsAdmin(ctx, tenantID, groupID, requester)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, errs.ErrNotAnAdmin.WrapMsg("requester not an admin", "userID", requester)
	}

	overrides, err := e.members.ThresholdOverrides(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	rule, err := model.RuleFor(actionType, overrides)
	if err != nil {
		return nil, err
	}

	admins, err := e.members.CurrentAdmins(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	total := len(admins)

	now := time.Now()
	snapshot := append([]string(nil), admins...)
	sort.Strings(snapshot)

	approval := &model.ApprovalRequest{
		TenantID:       tenantID,
		ApprovalID:     ids.GenerateString(),
		GroupID:        groupID,
		RequestedBy:    requester,
		ActionType:     actionType,
		Threshold:      rule.Threshold,
		EligibleVoters: snapshot,
		Payload:        payload,
		Status:         model.ApprovalStatusPending,
		CreateTime:     now,
	}

	requesterVote := &model.Vote{
		TenantID:   tenantID,
		ApprovalID: approval.ApprovalID,
		GroupID:    groupID,
		AdminID:    requester,
		Choice:     model.VoteChoiceApprove,
		CastTime:   now,
	}

	// sole-admin fast path
	if total <= 1 {
		return e.resolveAtCreate(ctx, approval, []*model.Vote{requesterVote}, "sole admin")
	}

	// auto-approve fast path：授权台账里已替发起人背书的管理员
	approvers, err := e.approverSet(ctx, tenantID, groupID, requester, rule.Category, admins)
	if err != nil {
		return nil, err
	}
	if policy.Evaluate(rule.Threshold, len(approvers), 0, total) == policy.OutcomeApproved {
		votes := []*model.Vote{requesterVote}
		for _, adminID := range approvers {
			if adminID == requester {
				continue
			}
			votes = append(votes, &model.Vote{
				TenantID:      tenantID,
				ApprovalID:    approval.ApprovalID,
				GroupID:       groupID,
				AdminID:       adminID,
				Choice:        model.VoteChoiceApprove,
				IsAutoApplied: true,
				CastTime:      now,
			})
		}
		return e.resolveAtCreate(ctx, approval, votes, "auto-approve grants")
	}

	// 等待其他管理员投票
	if err := e.db.CreateWithInitialVotes(ctx, approval, []*model.Vote{requesterVote}); err != nil {
		return nil, err
	}
	e.audit(ctx, approval, requester, auditmodel.ActionSubmit, "action="+actionType)
	return &SubmitResult{Approval: approval, RequiresApproval: true}, nil
}

// resolveAtCreate 建单即通过：写 Approved 终态 + 全部初始票，然后执行动作。
func (e *Engine) resolveAtCreate(ctx context.Context, approval *model.ApprovalRequest, votes []*model.Vote, reason string) (*SubmitResult, error) {
	now := time.Now()
	approval.Status = model.ApprovalStatusApproved
	approval.CompleteTime = &now

	if err := e.db.CreateWithInitialVotes(ctx, approval, votes); err != nil {
		return nil, err
	}
	e.audit(ctx, approval, approval.RequestedBy, auditmodel.ActionAutoResolved, reason)

	res := &SubmitResult{Approval: approval}
	if err := e.invokeExecutor(ctx, approval); err != nil {
		res.ExecErr = err
	}
	return res, nil
}

// approverSet 发起人 + 已对其授权该类别、且仍是管理员的授权人
func (e *Engine) approverSet(ctx context.Context, tenantID, groupID, requester, category string, admins []string) ([]string, error) {
	adminSet := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		adminSet[a] = struct{}{}
	}

	out := []string{requester}
	grants, err := e.db.ListGrantsTo(ctx, tenantID, groupID, requester)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		if g.GrantorID == requester || !g.Categories.Allows(category) {
			continue
		}
		if _, ok := adminSet[g.GrantorID]; !ok {
			continue // 授权人已不是管理员，授权失效
		}
		out = append(out, g.GrantorID)
	}
	return out, nil
}

// CastVote 管理员对 Pending 审批投票。
// 终态拒投（AlreadyResolved）、重复拒投（DuplicateVote）。
// 通过/否决的翻转和动作执行都发生在本审批的互斥范围内。
func (e *Engine) CastVote(ctx context.Context, tenantID, approvalID, adminID string, choice int32) (*model.ApprovalRequest, error) {
	if choice != model.VoteChoiceApprove && choice != model.VoteChoiceReject {
		return nil, errs.ErrArgs.WrapMsg("invalid vote choice", "choice", choice)
	}

	var out *model.ApprovalRequest
	err := e.locks.WithLock(ctx, lockKey(approvalID), func(ctx context.Context) error {
		approval, err := e.db.GetApproval(ctx, tenantID, approvalID)
		if err != nil {
			return err
		}
		if approval.Resolved() {
			return errs.ErrAlreadyResolved.WrapMsg("approval resolved", "approvalID", approvalID)
		}

		isAdmin, err := e.members.IsAdmin(ctx, tenantID, approval.GroupID, adminID)
		if err != nil {
			return err
		}
		if !isAdmin {
			return errs.ErrNotAnAdmin.WrapMsg("voter not an admin", "userID", adminID)
		}

		tally, err := e.db.InsertVoteAndTally(ctx, &model.Vote{
			TenantID:   tenantID,
			ApprovalID: approvalID,
			GroupID:    approval.GroupID,
			AdminID:    adminID,
			Choice:     choice,
			CastTime:   time.Now(),
		})
		if err != nil {
			return err
		}
		e.audit(ctx, approval, adminID, auditmodel.ActionVote, fmt.Sprintf("choice=%d", choice))

		out = approval
		return e.applyTally(ctx, approval, adminID, tally)
	})
	return out, err
}

// applyTally 按实时管理员集合求值并落实状态转移。调用方必须已持有该审批的锁。
func (e *Engine) applyTally(ctx context.Context, approval *model.ApprovalRequest, actor string, tally model.Tally) error {
	admins, err := e.members.CurrentAdmins(ctx, approval.TenantID, approval.GroupID)
	if err != nil {
		return err
	}

	outcome := policy.Evaluate(approval.Threshold, tally.Approve, tally.Reject, len(admins))
	switch outcome {
	case policy.OutcomePending:
		return nil
	case policy.OutcomeApproved, policy.OutcomeRejected:
		now := time.Now()
		flipped, err := e.db.MarkResolved(ctx, approval.TenantID, approval.ApprovalID, outcome.Status(), now)
		if err != nil {
			return err
		}
		if !flipped {
			// 并发方已终结，自己退化为 no-op
			return nil
		}
		approval.Status = outcome.Status()
		approval.CompleteTime = &now

		if outcome == policy.OutcomeRejected {
			e.audit(ctx, approval, actor, auditmodel.ActionRejected,
				fmt.Sprintf("approve=%d reject=%d eligible=%d", tally.Approve, tally.Reject, len(admins)))
			return nil
		}

		e.audit(ctx, approval, actor, auditmodel.ActionApproved,
			fmt.Sprintf("approve=%d reject=%d eligible=%d", tally.Approve, tally.Reject, len(admins)))
		return e.invokeExecutor(ctx, approval)
	}
	return nil
}

// invokeExecutor 只被成功翻转状态的调用方触达（至多一次）。
// 失败记审计并返回 ExecutionFailed，审批的 Approved 终态保持不变。
func (e *Engine) invokeExecutor(ctx context.Context, approval *model.ApprovalRequest) error {
	if err := e.exec.Execute(ctx, approval); err != nil {
		e.audit(ctx, approval, "system", auditmodel.ActionExecutionFailed, err.Error())
		return errs.ErrExecutionFailed.WrapMsg("action execution failed",
			"approvalID", approval.ApprovalID, "actionType", approval.ActionType, "cause", err.Error())
	}
	return nil
}

// OnAdminRemoved 管理员离开后的重算。调用次序约定：先改成员表，再调这里。
//
// 对每个 Pending 审批独立地：撤走离群者的票 → 重新计票 → 按新管理员总数求值。
// 每单各自原子，单与单之间允许部分完成；重放对已终结的单是 no-op。
func (e *Engine) OnAdminRemoved(ctx context.Context, tenantID, groupID, removedAdminID string) error {
	pending, err := e.db.ListPending(ctx, tenantID, groupID)
	if err != nil {
		return err
	}

	var firstErr error
	for _, p := range pending {
		approvalID := p.ApprovalID
		err := e.locks.WithLock(ctx, lockKey(approvalID), func(ctx context.Context) error {
			approval, err := e.db.GetApproval(ctx, tenantID, approvalID)
			if err != nil {
				return err
			}
			if approval.Resolved() {
				return nil // 锁外已终结
			}

			removed, err := e.db.DeleteVote(ctx, tenantID, approvalID, removedAdminID)
			if err != nil {
				return err
			}
			if removed {
				e.audit(ctx, approval, removedAdminID, auditmodel.ActionRecompute, "vote withdrawn on admin removal")
			}

			tally, err := e.db.TallyFor(ctx, tenantID, approvalID)
			if err != nil {
				return err
			}
			// 缩小后的法定人数可能让已有多数直接达标，也可能让否决封死
			return e.applyTally(ctx, approval, removedAdminID, tally)
		})
		if err != nil {
			logger.Errorf("recompute approval %s failed: %v", approvalID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// GrantAutoApprove 新建/更新定向授权：grantor 对 grantee 的 category 动作自动投同意。
func (e *Engine) GrantAutoApprove(ctx context.Context, tenantID, groupID, grantorID, granteeID, category string) error {
	return e.setGrant(ctx, tenantID, groupID, grantorID, granteeID, category, true)
}

// RevokeAutoApprove 撤销定向授权（幂等）。
func (e *Engine) RevokeAutoApprove(ctx context.Context, tenantID, groupID, grantorID, granteeID, category string) error {
	return e.setGrant(ctx, tenantID, groupID, grantorID, granteeID, category, false)
}

func (e *Engine) setGrant(ctx context.Context, tenantID, groupID, grantorID, granteeID, category string, on bool) error {
	if grantorID == granteeID {
		return errs.ErrArgs.WrapMsg("cannot grant to self", "userID", grantorID)
	}
	if !model.KnownCategory(category) {
		return errs.ErrArgs.WrapMsg("unknown grant category", "category", category)
	}
	for _, id := range []string{grantorID, granteeID} {
		isAdmin, err := e.members.IsAdmin(ctx, tenantID, groupID, id)
		if err != nil {
			return err
		}
		if !isAdmin {
			return errs.ErrNotAnAdmin.WrapMsg("grant parties must be admins", "userID", id)
		}
	}

	existing, err := e.db.GetGrant(ctx, tenantID, groupID, grantorID, granteeID)
	if err != nil {
		return err
	}
	var flags model.CategoryFlags
	if existing != nil {
		flags = existing.Categories
	}

	grant := &model.AutoApproveGrant{
		TenantID:   tenantID,
		GroupID:    groupID,
		GrantorID:  grantorID,
		GranteeID:  granteeID,
		Categories: flags.WithCategory(category, on),
		UpdateTime: time.Now(),
	}
	if err := e.db.UpsertGrant(ctx, grant); err != nil {
		return err
	}

	action := auditmodel.ActionGrant
	if !on {
		action = auditmodel.ActionRevoke
	}
	e.auditRaw(ctx, tenantID, groupID, grantorID, action, "", "grantee="+granteeID+" category="+category)
	return nil
}

// GetPending 某群所有待审批单及其当前计票
func (e *Engine) GetPending(ctx context.Context, tenantID, groupID string) ([]*PendingApproval, error) {
	pending, err := e.db.ListPending(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]*PendingApproval, 0, len(pending))
	for _, p := range pending {
		tally, err := e.db.TallyFor(ctx, tenantID, p.ApprovalID)
		if err != nil {
			return nil, err
		}
		out = append(out, &PendingApproval{Approval: p, Tally: tally})
	}
	return out, nil
}

// ExpireStale 把超过 PendingTTL 的 Pending 审批按否决终结。
// 不挂调度器，由外层按需触发；PendingTTL=0 时什么也不做。
func (e *Engine) ExpireStale(ctx context.Context, tenantID, groupID string) (int, error) {
	if e.opts.PendingTTL <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-e.opts.PendingTTL)

	pending, err := e.db.ListPending(ctx, tenantID, groupID)
	if err != nil {
		return 0, err
	}

	expired := 0
	var firstErr error
	for _, p := range pending {
		if !p.CreateTime.Before(cutoff) {
			continue
		}
		approvalID := p.ApprovalID
		err := e.locks.WithLock(ctx, lockKey(approvalID), func(ctx context.Context) error {
			now := time.Now()
			flipped, err := e.db.MarkResolved(ctx, tenantID, approvalID, model.ApprovalStatusRejected, now)
			if err != nil {
				return err
			}
			if flipped {
				expired++
				e.auditRaw(ctx, tenantID, p.GroupID, "system", auditmodel.ActionRejected, approvalID, "expired")
			}
			return nil
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return expired, firstErr
}

func (e *Engine) audit(ctx context.Context, approval *model.ApprovalRequest, actor, action, detail string) {
	e.auditRaw(ctx, approval.TenantID, approval.GroupID, actor, action, approval.ApprovalID, detail)
}

// 审计失败只告警，不阻断治理决策
func (e *Engine) auditRaw(ctx context.Context, tenantID, groupID, actor, action, approvalID, detail string) {
	err := e.sink.Record(ctx, &auditmodel.AuditEntry{
		TenantID:   tenantID,
		GroupID:    groupID,
		ActorID:    actor,
		Action:     action,
		ApprovalID: approvalID,
		Detail:     detail,
		CreateTime: time.Now(),
	})
	if err != nil {
		logger.Warnf("audit record failed: action=%s approval=%s err=%v", action, approvalID, err)
	}
}
