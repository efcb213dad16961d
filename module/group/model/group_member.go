package model

import "time"

// 角色等级
const (
	RoleLevelMember int32 = 0
	RoleLevelAdmin  int32 = 1
	RoleLevelOwner  int32 = 2
)

// 成员状态
const (
	MemberStatusNormal int32 = 0
	MemberStatusQuit   int32 = 1
	MemberStatusKicked int32 = 2
)

// GroupMember 表示群内的单个成员记录。
// 一条记录对应一个群 + 一个用户（唯一键: group_id+user_id）。
type GroupMember struct {
	TenantID string `bson:"tenant_id"` // PK
	GroupID  string `bson:"group_id"`  // 群ID
	UserID   string `bson:"user_id"`   // 成员用户ID

	Nickname string `bson:"nickname"` // 群内昵称

	// —— 权限/角色 ——
	RoleLevel int32 `bson:"role_level"` // 0=普通成员,1=管理员,2=群主
	IsOwner   bool  `bson:"is_owner"`   // 冗余 RoleLevel=2
	IsAdmin   bool  `bson:"is_admin"`   // 冗余 RoleLevel>=1；计票读它

	// —— 加入/离开 ——
	JoinTime      time.Time `bson:"join_time"`       // 入群时间
	InviterUserID string    `bson:"inviter_user_id"` // 邀请人ID（如果是被拉入）
	Status        int32     `bson:"status"`          // 0=正常,1=已退出,2=被踢
	QuitTime      time.Time `bson:"quit_time"`       // 离开时间（退群/被踢）

	// —— 操作人/审计 ——
	OperatorUserID string `bson:"operator_user_id"` // 最后操作该成员数据的人（踢人/设管理员）

	UpdateTime time.Time `bson:"update_time"` // 最后更新时间
	Ex         string    `bson:"ex"`          // 扩展字段(JSON)
}
