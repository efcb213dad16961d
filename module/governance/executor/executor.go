package executor

import (
	"context"
	"encoding/json"
	"time"

	auditpkg "GProject/module/audit"
	auditmodel "GProject/module/audit/model"
	gov "GProject/module/governance/model"
	"GProject/module/group/model"
	"GProject/tools/decode"
	"GProject/tools/errs"

	"GProject/logger"
)

// GroupStore 执行方对群存储的依赖（module/group/store.Repo 是生产实现）
type GroupStore interface {
	GetMember(ctx context.Context, tenantID, groupID, userID string) (*model.GroupMember, error)
	AddMember(ctx context.Context, m *model.GroupMember) error
	RemoveMember(ctx context.Context, tenantID, groupID, userID, operatorID string, kicked bool) error
	SetRoleLevel(ctx context.Context, tenantID, groupID, userID, operatorID string, roleLevel int32) error
	SetRecordingPolicy(ctx context.Context, tenantID, groupID string, policy int32) error
	DismissGroup(ctx context.Context, tenantID, groupID string) error
}

// Publisher 群事件发送（kafka SendSync 的形状）；nil 时跳过广播
type Publisher func(topic, key string, value []byte) error

// —— 审批负载 ——

type AddMemberPayload struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
}

type RemoveMemberPayload struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

type RolePayload struct {
	UserID string `json:"user_id"`
}

type RecordingPolicyPayload struct {
	Policy int32 `json:"policy"`
}

// Executor 把已通过的审批落成真实变更：改成员表/群设置，
// 记审计，再把群事件广播出去。引擎保证至多调用一次。
type Executor struct {
	groups GroupStore
	sink   auditpkg.Sink

	publish Publisher
	topic   string // 群事件主题
}

func New(groups GroupStore, sink auditpkg.Sink, publish Publisher, topic string) *Executor {
	return &Executor{groups: groups, sink: sink, publish: publish, topic: topic}
}

func (x *Executor) Execute(ctx context.Context, approval *gov.ApprovalRequest) error {
	var (
		events []*model.GroupEvent
		err    error
	)

	switch approval.ActionType {
	case gov.ActionAddMember:
		events, err = x.addMember(ctx, approval)
	case gov.ActionRemoveMember:
		events, err = x.removeMember(ctx, approval)
	case gov.ActionPromoteToAdmin:
		events, err = x.setRole(ctx, approval, model.RoleLevelAdmin)
	case gov.ActionDemoteFromAdmin:
		events, err = x.setRole(ctx, approval, model.RoleLevelMember)
	case gov.ActionDeleteGroup:
		events, err = x.deleteGroup(ctx, approval)
	case gov.ActionChangeRecordingPolicy:
		events, err = x.changeRecordingPolicy(ctx, approval)
	default:
		return errs.ErrArgs.WrapMsg("unknown action type", "actionType", approval.ActionType)
	}
	if err != nil {
		return err
	}

	x.auditExecuted(ctx, approval)
	x.broadcast(approval.GroupID, events)
	return nil
}

func (x *Executor) addMember(ctx context.Context, approval *gov.ApprovalRequest) ([]*model.GroupEvent, error) {
	p, err := decode.DecodeMap[AddMemberPayload](approval.Payload)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("bad add_member payload", "cause", err.Error())
	}
	m := &model.GroupMember{
		TenantID:       approval.TenantID,
		GroupID:        approval.GroupID,
		UserID:         p.UserID,
		Nickname:       p.Nickname,
		RoleLevel:      model.RoleLevelMember,
		InviterUserID:  approval.RequestedBy,
		OperatorUserID: approval.RequestedBy,
		JoinTime:       time.Now(),
	}
	if err := x.groups.AddMember(ctx, m); err != nil {
		return nil, err
	}
	return []*model.GroupEvent{x.event(approval, model.GroupEventMemberAdded, p.UserID)}, nil
}

func (x *Executor) removeMember(ctx context.Context, approval *gov.ApprovalRequest) ([]*model.GroupEvent, error) {
	p, err := decode.DecodeMap[RemoveMemberPayload](approval.Payload)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("bad remove_member payload", "cause", err.Error())
	}

	// 先看目标是否管理员：是的话移除后还要广播 admin_removed 触发重算
	target, err := x.groups.GetMember(ctx, approval.TenantID, approval.GroupID, p.UserID)
	if err != nil {
		return nil, err
	}
	wasAdmin := target != nil && target.IsAdmin

	if err := x.groups.RemoveMember(ctx, approval.TenantID, approval.GroupID, p.UserID, approval.RequestedBy, true); err != nil {
		return nil, err
	}

	events := []*model.GroupEvent{x.event(approval, model.GroupEventMemberRemoved, p.UserID)}
	if wasAdmin {
		events = append(events, x.event(approval, model.GroupEventAdminRemoved, p.UserID))
	}
	return events, nil
}

func (x *Executor) setRole(ctx context.Context, approval *gov.ApprovalRequest, roleLevel int32) ([]*model.GroupEvent, error) {
	p, err := decode.DecodeMap[RolePayload](approval.Payload)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("bad role payload", "cause", err.Error())
	}
	if err := x.groups.SetRoleLevel(ctx, approval.TenantID, approval.GroupID, p.UserID, approval.RequestedBy, roleLevel); err != nil {
		return nil, err
	}

	evType := model.GroupEventAdminAdded
	if roleLevel < model.RoleLevelAdmin {
		// 降级 = 离开管理员集合，待审批单要按新法定人数重算
		evType = model.GroupEventAdminRemoved
	}
	return []*model.GroupEvent{x.event(approval, evType, p.UserID)}, nil
}

func (x *Executor) deleteGroup(ctx context.Context, approval *gov.ApprovalRequest) ([]*model.GroupEvent, error) {
	if err := x.groups.DismissGroup(ctx, approval.TenantID, approval.GroupID); err != nil {
		return nil, err
	}
	return []*model.GroupEvent{x.event(approval, model.GroupEventDismissed, "")}, nil
}

func (x *Executor) changeRecordingPolicy(ctx context.Context, approval *gov.ApprovalRequest) ([]*model.GroupEvent, error) {
	p, err := decode.DecodeMap[RecordingPolicyPayload](approval.Payload)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("bad recording policy payload", "cause", err.Error())
	}
	if p.Policy < model.RecordingPolicyOff || p.Policy > model.RecordingPolicyOn {
		return nil, errs.ErrArgs.WrapMsg("recording policy out of range", "policy", p.Policy)
	}
	if err := x.groups.SetRecordingPolicy(ctx, approval.TenantID, approval.GroupID, p.Policy); err != nil {
		return nil, err
	}
	return []*model.GroupEvent{x.event(approval, model.GroupEventPolicyChanged, "")}, nil
}

func (x *Executor) event(approval *gov.ApprovalRequest, evType, userID string) *model.GroupEvent {
	return &model.GroupEvent{
		TenantID:   approval.TenantID,
		GroupID:    approval.GroupID,
		Type:       evType,
		UserID:     userID,
		ActorID:    approval.RequestedBy,
		ApprovalID: approval.ApprovalID,
		OccurredAt: time.Now(),
	}
}

func (x *Executor) auditExecuted(ctx context.Context, approval *gov.ApprovalRequest) {
	err := x.sink.Record(ctx, &auditmodel.AuditEntry{
		TenantID:   approval.TenantID,
		GroupID:    approval.GroupID,
		ActorID:    approval.RequestedBy,
		Action:     auditmodel.ActionExecuted,
		ApprovalID: approval.ApprovalID,
		Detail:     "action=" + approval.ActionType,
		CreateTime: time.Now(),
	})
	if err != nil {
		logger.Warnf("audit executed failed: approval=%s err=%v", approval.ApprovalID, err)
	}
}

// 广播失败只告警：变更已落库，事件可由对账补发
func (x *Executor) broadcast(groupID string, events []*model.GroupEvent) {
	if x.publish == nil {
		return
	}
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err == nil {
			err = x.publish(x.topic, groupID, body)
		}
		if err != nil {
			logger.Warnf("group event publish failed: type=%s group=%s err=%v", ev.Type, groupID, err)
		}
	}
}
