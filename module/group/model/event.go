package model

import "time"

// 群事件类型（kafka 群事件主题上的消息）
const (
	GroupEventMemberAdded   = "member_added"
	GroupEventMemberRemoved = "member_removed"
	GroupEventAdminAdded    = "admin_added"
	GroupEventAdminRemoved  = "admin_removed" // 治理引擎订阅：触发待审批单重算
	GroupEventPolicyChanged = "policy_changed"
	GroupEventDismissed     = "dismissed"
)

// GroupEvent 成员/设置变更的对外广播。
// key = groupID，同群事件落同分区保序。
type GroupEvent struct {
	TenantID   string    `json:"tenant_id"`
	GroupID    string    `json:"group_id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id,omitempty"` // 事件主体（被加/被踢/被升降的人）
	ActorID    string    `json:"actor_id,omitempty"`
	ApprovalID string    `json:"approval_id,omitempty"` // 由审批驱动时带上
	OccurredAt time.Time `json:"occurred_at"`
}
