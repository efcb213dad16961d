package policy

import (
	"GProject/module/governance/model"
)

// Outcome 求值结果
type Outcome int32

const (
	OutcomePending  Outcome = 0
	OutcomeApproved Outcome = 1
	OutcomeRejected Outcome = 2
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Status Outcome 对应的审批状态
func (o Outcome) Status() int32 {
	switch o {
	case OutcomeApproved:
		return model.ApprovalStatusApproved
	case OutcomeRejected:
		return model.ApprovalStatusRejected
	default:
		return model.ApprovalStatusPending
	}
}

// Evaluate 纯函数：给定计票与当前管理员总数，判定审批走向。
//
// unanimous: 全部同意才通过；出现任何一张否决票立即否决。
// percentage(p): 同意占比 >= p 通过；否决占比 > (100-p) 时，
// 即使剩余弃权者全部转同意也到不了 p，数学上已不可能通过，直接否决。
//
// totalEligible == 0 视为立即通过：唯一/最后一名管理员场景下无人可投，
// 业务规则是自动放行。
func Evaluate(rule model.ThresholdRule, approveCount, rejectCount, totalEligible int) Outcome {
	if totalEligible <= 0 {
		return OutcomeApproved
	}

	switch rule.Mode {
	case model.ThresholdUnanimous:
		if rejectCount > 0 {
			return OutcomeRejected
		}
		if approveCount == totalEligible {
			return OutcomeApproved
		}
		return OutcomePending
	case model.ThresholdPercentage:
		// 交叉相乘比较，避免浮点在边界（approve*100 == p*total）上出错：
		// approve/total >= p/100  <=>  approve*100 >= p*total
		p := int(rule.Percent)
		if approveCount*100 >= p*totalEligible {
			return OutcomeApproved
		}
		// reject/total > (100-p)/100 严格大于才封死
		if rejectCount*100 > (100-p)*totalEligible {
			return OutcomeRejected
		}
		return OutcomePending
	default:
		// 未知模式按未通过处理，建单时已被 Validate 拦截
		return OutcomePending
	}
}
