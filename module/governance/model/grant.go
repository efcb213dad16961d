package model

import "time"

// 自动批准授权类别（能力位）
const (
	CategoryAddMember       = "add_member"
	CategoryRemoveMember    = "remove_member"
	CategoryPromoteAdmin    = "promote_admin"
	CategoryDemoteAdmin     = "demote_admin"
	CategoryDeleteGroup     = "delete_group"
	CategoryChangeRecording = "change_recording"
)

// KnownCategory 是否为已定义的授权类别
func KnownCategory(category string) bool {
	switch category {
	case CategoryAddMember, CategoryRemoveMember, CategoryPromoteAdmin,
		CategoryDemoteAdmin, CategoryDeleteGroup, CategoryChangeRecording:
		return true
	default:
		return false
	}
}

// CategoryFlags 每个类别一个布尔开关
type CategoryFlags struct {
	AddMember       bool `bson:"add_member"`
	RemoveMember    bool `bson:"remove_member"`
	PromoteAdmin    bool `bson:"promote_admin"`
	DemoteAdmin     bool `bson:"demote_admin"`
	DeleteGroup     bool `bson:"delete_group"`
	ChangeRecording bool `bson:"change_recording"`
}

// Allows 指定类别是否已放行
func (f CategoryFlags) Allows(category string) bool {
	switch category {
	case CategoryAddMember:
		return f.AddMember
	case CategoryRemoveMember:
		return f.RemoveMember
	case CategoryPromoteAdmin:
		return f.PromoteAdmin
	case CategoryDemoteAdmin:
		return f.DemoteAdmin
	case CategoryDeleteGroup:
		return f.DeleteGroup
	case CategoryChangeRecording:
		return f.ChangeRecording
	default:
		return false
	}
}

// WithCategory 返回打开/关闭指定类别后的副本
func (f CategoryFlags) WithCategory(category string, on bool) CategoryFlags {
	switch category {
	case CategoryAddMember:
		f.AddMember = on
	case CategoryRemoveMember:
		f.RemoveMember = on
	case CategoryPromoteAdmin:
		f.PromoteAdmin = on
	case CategoryDemoteAdmin:
		f.DemoteAdmin = on
	case CategoryDeleteGroup:
		f.DeleteGroup = on
	case CategoryChangeRecording:
		f.ChangeRecording = on
	}
	return f
}

// AutoApproveGrant 表示“管理员 A 对管理员 B 发起的 C 类动作自动投同意票”。
// 有方向、按类别；每个有序对 (grantor, grantee) 每群至多一行（upsert 语义）。
type AutoApproveGrant struct {
	TenantID  string `bson:"tenant_id"`
	GroupID   string `bson:"group_id"`
	GrantorID string `bson:"grantor_id"` // 授权人（其票被合成）
	GranteeID string `bson:"grantee_id"` // 受益人（发起请求的人）

	Categories CategoryFlags `bson:"categories"`

	UpdateTime time.Time `bson:"update_time"` // 最后一次 grant/revoke 时间
}
