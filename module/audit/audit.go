package audit

import (
	"context"

	"GProject/module/audit/model"
)

// Sink 审计落点。引擎在每次状态转移后调用（包括失败路径）。
// Record 失败不应阻断治理决策本身，调用方只记日志。
type Sink interface {
	Record(ctx context.Context, entry *model.AuditEntry) error
}
