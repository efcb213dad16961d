package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"GProject/module/governance/model"
	"GProject/tools/errs"
)

type memDB struct {
	mu        sync.RWMutex
	approvals map[string]*model.ApprovalRequest  // tenant|approval_id -> approval
	votes     map[string]map[string]*model.Vote  // tenant|approval_id -> admin_id -> vote
	grants    map[string]*model.AutoApproveGrant // tenant|group|grantor|grantee -> grant
}

func NewMemDB() DB {
	return &memDB{
		approvals: make(map[string]*model.ApprovalRequest),
		votes:     make(map[string]map[string]*model.Vote),
		grants:    make(map[string]*model.AutoApproveGrant),
	}
}

func keyApproval(tenant, approvalID string) string { return tenant + "|" + approvalID }
func keyGrant(tenant, group, grantor, grantee string) string {
	return tenant + "|" + group + "|" + grantor + "|" + grantee
}

func (db *memDB) CreateWithInitialVotes(ctx context.Context, req *model.ApprovalRequest, votes []*model.Vote) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	k := keyApproval(req.TenantID, req.ApprovalID)
	if _, ok := db.approvals[k]; ok {
		return errs.ErrDuplicateKey.WrapMsg("approval already exists", "approvalID", req.ApprovalID)
	}
	// 先校验再写，保持“全有或全无”
	seen := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		if _, dup := seen[v.AdminID]; dup {
			return errs.ErrDuplicateVote.WrapMsg("duplicate initial vote", "adminID", v.AdminID)
		}
		seen[v.AdminID] = struct{}{}
	}

	cp := *req
	db.approvals[k] = &cp
	db.votes[k] = make(map[string]*model.Vote, len(votes))
	for _, v := range votes {
		vc := *v
		db.votes[k][v.AdminID] = &vc
	}
	return nil
}

func (db *memDB) GetApproval(ctx context.Context, tenantID, approvalID string) (*model.ApprovalRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	a, ok := db.approvals[keyApproval(tenantID, approvalID)]
	if !ok {
		return nil, errs.ErrUnknownApproval.WrapMsg("approval not found", "approvalID", approvalID)
	}
	cp := *a
	return &cp, nil
}

func (db *memDB) ListPending(ctx context.Context, tenantID, groupID string) ([]*model.ApprovalRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*model.ApprovalRequest
	for _, a := range db.approvals {
		if a.TenantID == tenantID && a.GroupID == groupID && a.Status == model.ApprovalStatusPending {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateTime.Before(out[j].CreateTime) })
	return out, nil
}

func (db *memDB) InsertVoteAndTally(ctx context.Context, vote *model.Vote) (model.Tally, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	k := keyApproval(vote.TenantID, vote.ApprovalID)
	if _, ok := db.approvals[k]; !ok {
		return model.Tally{}, errs.ErrUnknownApproval.WrapMsg("approval not found", "approvalID", vote.ApprovalID)
	}
	// UNIQUE(approval_id, admin_id)
	if _, ok := db.votes[k][vote.AdminID]; ok {
		return model.Tally{}, errs.ErrDuplicateVote.WrapMsg("already voted",
			"approvalID", vote.ApprovalID, "adminID", vote.AdminID)
	}
	if db.votes[k] == nil {
		db.votes[k] = make(map[string]*model.Vote)
	}
	cp := *vote
	db.votes[k][vote.AdminID] = &cp
	return db.tallyLocked(k), nil
}

func (db *memDB) tallyLocked(k string) model.Tally {
	var t model.Tally
	for _, v := range db.votes[k] {
		switch v.Choice {
		case model.VoteChoiceApprove:
			t.Approve++
		case model.VoteChoiceReject:
			t.Reject++
		}
	}
	return t
}

func (db *memDB) ListVotes(ctx context.Context, tenantID, approvalID string) ([]*model.Vote, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	k := keyApproval(tenantID, approvalID)
	out := make([]*model.Vote, 0, len(db.votes[k]))
	for _, v := range db.votes[k] {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CastTime.Before(out[j].CastTime) })
	return out, nil
}

func (db *memDB) TallyFor(ctx context.Context, tenantID, approvalID string) (model.Tally, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tallyLocked(keyApproval(tenantID, approvalID)), nil
}

func (db *memDB) MarkResolved(ctx context.Context, tenantID, approvalID string, toStatus int32, completedAt time.Time) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	a, ok := db.approvals[keyApproval(tenantID, approvalID)]
	if !ok {
		return false, errs.ErrUnknownApproval.WrapMsg("approval not found", "approvalID", approvalID)
	}
	if a.Status != model.ApprovalStatusPending {
		return false, nil
	}
	a.Status = toStatus
	t := completedAt
	a.CompleteTime = &t
	return true, nil
}

func (db *memDB) DeleteVote(ctx context.Context, tenantID, approvalID, adminID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	k := keyApproval(tenantID, approvalID)
	if _, ok := db.votes[k][adminID]; !ok {
		return false, nil
	}
	delete(db.votes[k], adminID)
	return true, nil
}

func (db *memDB) UpsertGrant(ctx context.Context, grant *model.AutoApproveGrant) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := *grant
	db.grants[keyGrant(grant.TenantID, grant.GroupID, grant.GrantorID, grant.GranteeID)] = &cp
	return nil
}

func (db *memDB) GetGrant(ctx context.Context, tenantID, groupID, grantorID, granteeID string) (*model.AutoApproveGrant, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	g, ok := db.grants[keyGrant(tenantID, groupID, grantorID, granteeID)]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (db *memDB) ListGrantsTo(ctx context.Context, tenantID, groupID, granteeID string) ([]*model.AutoApproveGrant, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*model.AutoApproveGrant
	for _, g := range db.grants {
		if g.TenantID == tenantID && g.GroupID == groupID && g.GranteeID == granteeID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantorID < out[j].GrantorID })
	return out, nil
}
