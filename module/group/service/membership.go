package service

import (
	"context"

	gov "GProject/module/governance/model"
	"GProject/module/group/store"
)

// Membership 群成员视图，治理引擎的协作方。
// CurrentAdmins 必须在成员行写入之后才可见（调用次序：先改成员表，再通知引擎）。
type Membership struct {
	repo *store.Repo
}

func NewMembership(repo *store.Repo) *Membership {
	return &Membership{repo: repo}
}

// CurrentAdmins 实时读库，不走缓存：每次计票都要重读，避免过期法定人数。
func (m *Membership) CurrentAdmins(ctx context.Context, tenantID, groupID string) ([]string, error) {
	return m.repo.ListAdminIDs(ctx, tenantID, groupID)
}

func (m *Membership) IsMember(ctx context.Context, tenantID, groupID, userID string) (bool, error) {
	row, err := m.repo.GetMember(ctx, tenantID, groupID, userID)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func (m *Membership) IsAdmin(ctx context.Context, tenantID, groupID, userID string) (bool, error) {
	row, err := m.repo.GetMember(ctx, tenantID, groupID, userID)
	if err != nil {
		return false, err
	}
	return row != nil && row.IsAdmin, nil
}

// ThresholdOverrides 群设置里按动作覆盖的审批阈值
func (m *Membership) ThresholdOverrides(ctx context.Context, tenantID, groupID string) (map[string]gov.ThresholdRule, error) {
	g, err := m.repo.GetGroup(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	return g.ThresholdOverrides, nil
}
