package model

import "time"

// 审批状态
const (
	ApprovalStatusPending  int32 = 0 // 等待投票
	ApprovalStatusApproved int32 = 1 // 已通过（终态）
	ApprovalStatusRejected int32 = 2 // 已否决（终态）
)

// 投票选择
const (
	VoteChoiceApprove int32 = 1
	VoteChoiceReject  int32 = 2
)

// ApprovalRequest 表示一次群治理审批。
// 一条记录对应一个敏感动作的多管理员签批流程。
// 终态后永不物理删除（审计留痕，软终结）。
type ApprovalRequest struct {
	TenantID   string `bson:"tenant_id"`   // PK
	ApprovalID string `bson:"approval_id"` // 审批ID（全局唯一，雪花ID）
	GroupID    string `bson:"group_id"`    // 群ID

	RequestedBy string `bson:"requested_by"` // 发起人（必须是管理员）
	ActionType  string `bson:"action_type"`  // 动作类型: add_member / remove_member / ...

	Threshold ThresholdRule `bson:"threshold"` // 创建时生效的阈值规则

	// 创建时的可投票管理员快照。仅用于展示/审计；
	// 计票一律读实时管理员集合（成员变动触发的重算依赖实时集合）。
	EligibleVoters []string `bson:"eligible_voters"`

	Payload map[string]any `bson:"payload"` // 待执行动作的参数（目标成员、目标角色、新策略值等）

	Status       int32      `bson:"status"`                  // 0=待投票,1=已通过,2=已否决；终态单调不可逆
	CreateTime   time.Time  `bson:"create_time"`             // 创建时间
	CompleteTime *time.Time `bson:"complete_time,omitempty"` // 终结时间（Pending 时为空）
}

// Resolved 是否已终结
func (a *ApprovalRequest) Resolved() bool {
	return a.Status != ApprovalStatusPending
}

// Vote 表示一张管理员投票。
// 唯一键: (approval_id, admin_id)，同一管理员对同一审批至多一票。
type Vote struct {
	TenantID   string `bson:"tenant_id"`
	ApprovalID string `bson:"approval_id"`
	GroupID    string `bson:"group_id"` // 冗余，便于按群批量清票
	AdminID    string `bson:"admin_id"`

	Choice int32 `bson:"choice"` // 1=同意,2=否决

	// true 表示由授权合成（fast path），而非本人手动投出
	IsAutoApplied bool `bson:"is_auto_applied"`

	CastTime time.Time `bson:"cast_time"`
}

// Tally 某一审批的当前计票
type Tally struct {
	Approve int
	Reject  int
}
