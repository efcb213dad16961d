package model

import (
	"GProject/tools/errs"
)

// 阈值模式
const (
	ThresholdUnanimous  = "unanimous"  // 全体同意
	ThresholdPercentage = "percentage" // 达到百分比即通过
)

// ThresholdRule 审批阈值规则。
// Mode=unanimous 时 Percent 无意义；Mode=percentage 时 Percent ∈ (0,100]。
type ThresholdRule struct {
	Mode    string `bson:"mode" json:"mode"`
	Percent int32  `bson:"percent" json:"percent"`
}

func Unanimous() ThresholdRule {
	return ThresholdRule{Mode: ThresholdUnanimous}
}

func Percentage(p int32) ThresholdRule {
	return ThresholdRule{Mode: ThresholdPercentage, Percent: p}
}

func (r ThresholdRule) Validate() error {
	switch r.Mode {
	case ThresholdUnanimous:
		return nil
	case ThresholdPercentage:
		if r.Percent <= 0 || r.Percent > 100 {
			return errs.ErrInvalidThreshold.WrapMsg("percent out of range", "percent", r.Percent)
		}
		return nil
	default:
		return errs.ErrInvalidThreshold.WrapMsg("unknown mode", "mode", r.Mode)
	}
}
