package model

import (
	"GProject/tools/errs"
)

// 受治理的敏感动作（闭合枚举）
const (
	ActionAddMember             = "add_member"
	ActionRemoveMember          = "remove_member"
	ActionPromoteToAdmin        = "promote_to_admin"
	ActionDemoteFromAdmin       = "demote_from_admin"
	ActionDeleteGroup           = "delete_group"
	ActionChangeRecordingPolicy = "change_recording_policy"
)

// ActionRule 每种动作的审批配置：默认阈值 + 自动批准授权类别。
// 六个动作共用一个求值器 + 这张表，而不是每个调用点各写一遍算术。
type ActionRule struct {
	Threshold ThresholdRule
	Category  string // 对应 AutoApproveGrant 的能力位
}

var actionRules = map[string]ActionRule{
	ActionAddMember:             {Threshold: Percentage(50), Category: CategoryAddMember},
	ActionRemoveMember:          {Threshold: Percentage(50), Category: CategoryRemoveMember},
	ActionPromoteToAdmin:        {Threshold: Percentage(50), Category: CategoryPromoteAdmin},
	ActionDemoteFromAdmin:       {Threshold: Unanimous(), Category: CategoryDemoteAdmin},
	ActionDeleteGroup:           {Threshold: Unanimous(), Category: CategoryDeleteGroup},
	ActionChangeRecordingPolicy: {Threshold: Percentage(50), Category: CategoryChangeRecording},
}

// RuleFor 返回动作的审批配置；overrides 来自群设置，可按动作覆盖默认阈值。
func RuleFor(actionType string, overrides map[string]ThresholdRule) (ActionRule, error) {
	rule, ok := actionRules[actionType]
	if !ok {
		return ActionRule{}, errs.ErrArgs.WrapMsg("unknown action type", "actionType", actionType)
	}
	if ov, ok := overrides[actionType]; ok {
		if err := ov.Validate(); err != nil {
			return ActionRule{}, err
		}
		rule.Threshold = ov
	}
	return rule, nil
}

// KnownAction 是否为受治理动作
func KnownAction(actionType string) bool {
	_, ok := actionRules[actionType]
	return ok
}
