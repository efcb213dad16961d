package model

import (
	"time"

	gov "GProject/module/governance/model"
)

// Status
const (
	GroupStatusNormal   int32 = 0
	GroupStatusBanned   int32 = 1
	GroupStatusDismiss  int32 = 2
	GroupStatusReadOnly int32 = 3
)

// 通话录制策略
const (
	RecordingPolicyOff       int32 = 0 // 禁止录制
	RecordingPolicyConsent   int32 = 1 // 全员同意后可录制
	RecordingPolicyAdminOnly int32 = 2 // 仅管理员可录制
	RecordingPolicyOn        int32 = 3 // 任何成员可录制
)

// Group 表示协作群的元数据。
// 仅存“群本身”的配置与状态；与消息、成员、审批分离。
type Group struct {
	TenantID  string `bson:"tenant_id"`  // PK
	GroupID   string `bson:"group_id"`   // 群ID（全局唯一）
	GroupName string `bson:"group_name"` // 群名称

	// 基本元信息
	CreatorUserID string    `bson:"creator_user_id"` // 创建者
	CreateTime    time.Time `bson:"create_time"`     // 创建时间
	UpdateTime    time.Time `bson:"update_time"`     // 最后一次任何字段的更新时间（写路径统一维护）
	Status        int32     `bson:"status"`          // 群状态：0=正常, 1=封禁, 2=解散(逻辑删除), 3=冻结只读

	// 通话录制策略（变更需走治理审批）
	RecordingPolicy int32 `bson:"recording_policy"`

	// 治理设置：按动作覆盖默认审批阈值（key = action_type）
	ThresholdOverrides map[string]gov.ThresholdRule `bson:"threshold_overrides,omitempty"`

	// 统计/只读缓存（写路径维护，供展示与排序）
	MemberCount int32 `bson:"member_count"` // 当前成员数
	AdminCount  int32 `bson:"admin_count"`  // 管理员数量

	Ex string `bson:"ex"` // 预留JSON扩展

	DeletedAt *time.Time `bson:"deleted_at,omitempty"` // 逻辑删除/解散时间（Status=2 时有效）
}
