package model

import "time"

// 审计动作
const (
	ActionSubmit          = "governance_submit"           // 发起审批
	ActionVote            = "governance_vote"             // 投票
	ActionApproved        = "governance_approved"         // 审批通过
	ActionRejected        = "governance_rejected"         // 审批否决
	ActionAutoResolved    = "governance_auto_resolved"    // fast path 直接通过
	ActionRecompute       = "governance_recompute"        // 管理员离群触发重算
	ActionExecuted        = "governance_executed"         // 动作已执行
	ActionExecutionFailed = "governance_execution_failed" // 审批通过但执行失败
	ActionGrant           = "governance_grant"            // 新建/更新自动批准授权
	ActionRevoke          = "governance_revoke"           // 撤销自动批准授权
)

// AuditEntry 治理审计记录。只追加，永不修改或删除。
type AuditEntry struct {
	TenantID string `bson:"tenant_id"`
	AuditID  string `bson:"audit_id"` // 雪花ID
	GroupID  string `bson:"group_id"`

	ActorID    string `bson:"actor_id"`              // 触发人；系统触发时为 "system"
	Action     string `bson:"action"`                // 见上方常量
	ApprovalID string `bson:"approval_id,omitempty"` // 关联审批（有则带上）
	Detail     string `bson:"detail,omitempty"`      // 附加说明（动作类型、票型、错误等）

	CreateTime time.Time `bson:"create_time"`
}
