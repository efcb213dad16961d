package errs

// 通用错误码
const (
	ServerInternalError = 500  // 服务器内部错误
	ArgsError           = 1001 // 参数错误
	RecordNotFoundError = 1002 // 记录不存在
	DuplicateKeyError   = 1003 // 唯一键冲突
)

// 群治理错误码（1300 段）
const (
	NotAMemberError       = 1301 // 不是群成员
	NotAnAdminError       = 1302 // 不是群管理员
	AlreadyResolvedError  = 1303 // 审批已终结，不可再投票
	DuplicateVoteError    = 1304 // 同一管理员重复投票
	UnknownApprovalError  = 1305 // 审批记录不存在
	InvalidThresholdError = 1306 // 阈值配置非法（百分比需在 (0,100]）
	ExecutionFailedError  = 1307 // 审批已通过但动作执行失败
)
