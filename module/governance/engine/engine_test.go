package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	auditmodel "GProject/module/audit/model"
	"GProject/module/governance/model"
	"GProject/module/governance/store"
	"GProject/tools/errs"
)

// —— 测试替身 ——

type fakeMembers struct {
	mu        sync.RWMutex
	members   map[string]bool
	admins    map[string]bool
	overrides map[string]model.ThresholdRule
}

func newFakeMembers(admins ...string) *fakeMembers {
	f := &fakeMembers{members: map[string]bool{}, admins: map[string]bool{}}
	for _, a := range admins {
		f.members[a] = true
		f.admins[a] = true
	}
	return f
}

func (f *fakeMembers) addMember(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[id] = true
}

func (f *fakeMembers) removeAdmin(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.admins, id)
	delete(f.members, id)
}

func (f *fakeMembers) CurrentAdmins(_ context.Context, _, _ string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.admins))
	for id := range f.admins {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeMembers) IsMember(_ context.Context, _, _, userID string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.members[userID], nil
}

func (f *fakeMembers) IsAdmin(_ context.Context, _, _, userID string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.admins[userID], nil
}

func (f *fakeMembers) ThresholdOverrides(_ context.Context, _, _ string) (map[string]model.ThresholdRule, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.overrides, nil
}

type countExec struct {
	calls atomic.Int64
	fail  bool
}

func (x *countExec) Execute(_ context.Context, _ *model.ApprovalRequest) error {
	x.calls.Add(1)
	if x.fail {
		return errors.New("downstream unavailable")
	}
	return nil
}

type memSink struct {
	mu      sync.Mutex
	entries []*auditmodel.AuditEntry
}

func (s *memSink) Record(_ context.Context, e *auditmodel.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memSink) count(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

type fixture struct {
	db      store.DB
	members *fakeMembers
	exec    *countExec
	sink    *memSink
	engine  *Engine
}

func newFixture(t *testing.T, opts Options, admins ...string) *fixture {
	t.Helper()
	f := &fixture{
		db:      store.NewMemDB(),
		members: newFakeMembers(admins...),
		exec:    &countExec{},
		sink:    &memSink{},
	}
	f.engine = New(f.db, f.members, f.exec, f.sink, NewLocalLocker(), opts)
	return f
}

const (
	tenant = "t1"
	group  = "g1"
)

// —— 发起审批 ——

func TestSubmitSoleAdminResolvesImmediately(t *testing.T) {
	f := newFixture(t, Options{}, "a")
	f.members.addMember("u-new")

	res, err := f.engine.Submit(context.Background(), tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.RequiresApproval {
		t.Fatal("sole admin must not wait for approval")
	}
	if res.Approval.Status != model.ApprovalStatusApproved {
		t.Fatalf("status = %d", res.Approval.Status)
	}
	if res.Approval.CompleteTime == nil {
		t.Fatal("complete time not set")
	}
	if got := f.exec.calls.Load(); got != 1 {
		t.Fatalf("executor calls = %d", got)
	}
	if f.sink.count(auditmodel.ActionAutoResolved) != 1 {
		t.Fatal("missing auto_resolved audit entry")
	}
}

func TestSubmitMajorityOfTwoResolvesImmediately(t *testing.T) {
	// 两个管理员、50% 阈值：发起人自己的一票就达标
	f := newFixture(t, Options{}, "a", "b")

	res, err := f.engine.Submit(context.Background(), tenant, group, "a", model.ActionRemoveMember,
		map[string]any{"user_id": "victim"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.RequiresApproval {
		t.Fatal("one of two admins meets a 50% threshold")
	}
	if res.Approval.Status != model.ApprovalStatusApproved {
		t.Fatalf("status = %d", res.Approval.Status)
	}
	if got := f.exec.calls.Load(); got != 1 {
		t.Fatalf("executor calls = %d", got)
	}
}

func TestSubmitUnanimousGoesPending(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b", "c")

	res, err := f.engine.Submit(context.Background(), tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.RequiresApproval {
		t.Fatal("unanimous action with 3 admins must wait")
	}
	if res.Approval.Status != model.ApprovalStatusPending {
		t.Fatalf("status = %d", res.Approval.Status)
	}
	if f.exec.calls.Load() != 0 {
		t.Fatal("executor must not run before approval")
	}

	// 发起人自己的一票已记入
	tally, err := f.db.TallyFor(context.Background(), tenant, res.Approval.ApprovalID)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Approve != 1 || tally.Reject != 0 {
		t.Fatalf("tally = %+v", tally)
	}
}

func TestSubmitRejectsNonMemberAndNonAdmin(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b")
	f.members.addMember("plain") // 成员但不是管理员

	_, err := f.engine.Submit(context.Background(), tenant, group, "ghost", model.ActionDeleteGroup, nil)
	if !errs.ErrNotAMember.Is(err) {
		t.Fatalf("want NotAMember, got %v", err)
	}

	_, err = f.engine.Submit(context.Background(), tenant, group, "plain", model.ActionDeleteGroup, nil)
	if !errs.ErrNotAnAdmin.Is(err) {
		t.Fatalf("want NotAnAdmin, got %v", err)
	}
}

func TestSubmitInvalidOverrideRejected(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b")
	f.members.overrides = map[string]model.ThresholdRule{
		model.ActionDeleteGroup: model.Percentage(0),
	}

	_, err := f.engine.Submit(context.Background(), tenant, group, "a", model.ActionDeleteGroup, nil)
	if !errs.ErrInvalidThreshold.Is(err) {
		t.Fatalf("want InvalidThreshold, got %v", err)
	}
}

func TestSubmitUnknownAction(t *testing.T) {
	f := newFixture(t, Options{}, "a")
	if _, err := f.engine.Submit(context.Background(), tenant, group, "a", "rename_group", nil); err == nil {
		t.Fatal("want error for unknown action")
	}
}

// —— 自动批准授权 ——

func TestAutoApproveGrantFastPath(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b", "c")
	ctx := context.Background()

	// b 授权 a 的踢人动作；2/3 满足 50%
	if err := f.engine.GrantAutoApprove(ctx, tenant, group, "b", "a", model.CategoryRemoveMember); err != nil {
		t.Fatalf("grant: %v", err)
	}

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionRemoveMember,
		map[string]any{"user_id": "victim"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.RequiresApproval {
		t.Fatal("grant should satisfy the threshold at submit")
	}
	if res.Approval.Status != model.ApprovalStatusApproved {
		t.Fatalf("status = %d", res.Approval.Status)
	}

	// 合成票：a 的真实票 + b 的自动票
	votes, err := f.db.ListVotes(ctx, tenant, res.Approval.ApprovalID)
	if err != nil {
		t.Fatalf("list votes: %v", err)
	}
	if len(votes) != 2 {
		t.Fatalf("votes = %d", len(votes))
	}
	auto := 0
	for _, v := range votes {
		if v.IsAutoApplied {
			auto++
			if v.AdminID != "b" {
				t.Fatalf("auto vote from %s", v.AdminID)
			}
		}
	}
	if auto != 1 {
		t.Fatalf("auto-applied votes = %d", auto)
	}
}

func TestTwoGrantsResolveUnanimousAtSubmit(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b", "c")
	ctx := context.Background()

	// b、c 都已授权 a 的解散动作：全票制也能在建单时直接通过
	for _, grantor := range []string{"b", "c"} {
		if err := f.engine.GrantAutoApprove(ctx, tenant, group, grantor, "a", model.CategoryDeleteGroup); err != nil {
			t.Fatalf("grant %s: %v", grantor, err)
		}
	}

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.RequiresApproval || res.Approval.Status != model.ApprovalStatusApproved {
		t.Fatalf("result = %+v", res)
	}

	votes, err := f.db.ListVotes(ctx, tenant, res.Approval.ApprovalID)
	if err != nil {
		t.Fatalf("list votes: %v", err)
	}
	auto := 0
	for _, v := range votes {
		if v.IsAutoApplied {
			auto++
		}
	}
	if len(votes) != 3 || auto != 2 {
		t.Fatalf("votes = %d, auto = %d", len(votes), auto)
	}
	if got := f.exec.calls.Load(); got != 1 {
		t.Fatalf("executor calls = %d", got)
	}
}

func TestGrantWrongCategoryDoesNotApply(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b", "c")
	ctx := context.Background()

	// 授权的是加人，发起的是踢人
	if err := f.engine.GrantAutoApprove(ctx, tenant, group, "b", "a", model.CategoryAddMember); err != nil {
		t.Fatalf("grant: %v", err)
	}
	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionRemoveMember,
		map[string]any{"user_id": "victim"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.RequiresApproval {
		t.Fatal("grant for a different category must not count")
	}
}

func TestGrantIsDirectional(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b", "c")
	ctx := context.Background()

	// b→a 的授权不等于 a→b
	if err := f.engine.GrantAutoApprove(ctx, tenant, group, "b", "a", model.CategoryRemoveMember); err != nil {
		t.Fatalf("grant: %v", err)
	}
	res, err := f.engine.Submit(ctx, tenant, group, "b", model.ActionRemoveMember,
		map[string]any{"user_id": "victim"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.RequiresApproval {
		t.Fatal("grant direction must matter")
	}
}

func TestRevokeRemovesFastPath(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b", "c")
	ctx := context.Background()

	if err := f.engine.GrantAutoApprove(ctx, tenant, group, "b", "a", model.CategoryRemoveMember); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.engine.RevokeAutoApprove(ctx, tenant, group, "b", "a", model.CategoryRemoveMember); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionRemoveMember,
		map[string]any{"user_id": "victim"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.RequiresApproval {
		t.Fatal("revoked grant must not count")
	}
	if f.sink.count(auditmodel.ActionRevoke) != 1 {
		t.Fatal("missing revoke audit entry")
	}
}

func TestGrantValidation(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b")
	f.members.addMember("plain")
	ctx := context.Background()

	if err := f.engine.GrantAutoApprove(ctx, tenant, group, "a", "a", model.CategoryAddMember); err == nil {
		t.Fatal("self-grant must fail")
	}
	if err := f.engine.GrantAutoApprove(ctx, tenant, group, "a", "b", "no_such_category"); err == nil {
		t.Fatal("unknown category must fail")
	}
	if err := f.engine.GrantAutoApprove(ctx, tenant, group, "a", "plain", model.CategoryAddMember); !errs.ErrNotAnAdmin.Is(err) {
		t.Fatalf("want NotAnAdmin, got %v", err)
	}
}

// —— 投票 ——

func TestCastVoteRejectKillsUnanimous(t *testing.T) {
	// 全票制下一张反对票立即否决，动作永不执行
	f := newFixture(t, Options{}, "a", "b", "c", "d", "e")
	ctx := context.Background()

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := res.Approval.ApprovalID

	for _, voter := range []string{"b", "c", "d"} {
		if _, err := f.engine.CastVote(ctx, tenant, id, voter, model.VoteChoiceApprove); err != nil {
			t.Fatalf("vote %s: %v", voter, err)
		}
	}

	ap, err := f.engine.CastVote(ctx, tenant, id, "e", model.VoteChoiceReject)
	if err != nil {
		t.Fatalf("reject vote: %v", err)
	}
	if ap.Status != model.ApprovalStatusRejected {
		t.Fatalf("status = %d", ap.Status)
	}
	if f.exec.calls.Load() != 0 {
		t.Fatal("rejected approval must never execute")
	}
	if f.sink.count(auditmodel.ActionRejected) != 1 {
		t.Fatal("missing rejected audit entry")
	}

	// 终态拒投
	if _, err := f.engine.CastVote(ctx, tenant, id, "b", model.VoteChoiceApprove); !errs.ErrAlreadyResolved.Is(err) {
		t.Fatalf("want AlreadyResolved, got %v", err)
	}
}

func TestCastVoteUnanimousApproves(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b", "c")
	ctx := context.Background()

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := res.Approval.ApprovalID

	if _, err := f.engine.CastVote(ctx, tenant, id, "b", model.VoteChoiceApprove); err != nil {
		t.Fatalf("vote b: %v", err)
	}
	if f.exec.calls.Load() != 0 {
		t.Fatal("2/3 is not unanimous")
	}

	ap, err := f.engine.CastVote(ctx, tenant, id, "c", model.VoteChoiceApprove)
	if err != nil {
		t.Fatalf("vote c: %v", err)
	}
	if ap.Status != model.ApprovalStatusApproved {
		t.Fatalf("status = %d", ap.Status)
	}
	if got := f.exec.calls.Load(); got != 1 {
		t.Fatalf("executor calls = %d", got)
	}
}

func TestCastVoteDuplicate(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b", "c")
	ctx := context.Background()

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := res.Approval.ApprovalID

	// 发起人已有初始票
	if _, err := f.engine.CastVote(ctx, tenant, id, "a", model.VoteChoiceApprove); !errs.ErrDuplicateVote.Is(err) {
		t.Fatalf("want DuplicateVote, got %v", err)
	}

	if _, err := f.engine.CastVote(ctx, tenant, id, "b", model.VoteChoiceApprove); err != nil {
		t.Fatalf("vote b: %v", err)
	}
	if _, err := f.engine.CastVote(ctx, tenant, id, "b", model.VoteChoiceReject); !errs.ErrDuplicateVote.Is(err) {
		t.Fatalf("want DuplicateVote on changed mind, got %v", err)
	}
}

func TestCastVoteNonAdmin(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b", "c")
	f.members.addMember("plain")
	ctx := context.Background()

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.engine.CastVote(ctx, tenant, res.Approval.ApprovalID, "plain", model.VoteChoiceApprove); !errs.ErrNotAnAdmin.Is(err) {
		t.Fatalf("want NotAnAdmin, got %v", err)
	}
}

func TestCastVoteUnknownApproval(t *testing.T) {
	f := newFixture(t, Options{}, "a")
	_, err := f.engine.CastVote(context.Background(), tenant, "no-such-id", "a", model.VoteChoiceApprove)
	if !errs.ErrUnknownApproval.Is(err) {
		t.Fatalf("want UnknownApproval, got %v", err)
	}
}

// 并发投同一单：终态只翻转一次，动作只执行一次
func TestConcurrentVotesExecuteOnce(t *testing.T) {
	const admins = 8
	ids := make([]string, admins)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	f := newFixture(t, Options{}, ids...)
	ctx := context.Background()

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := res.Approval.ApprovalID

	var wg sync.WaitGroup
	for _, voter := range ids[1:] {
		wg.Add(1)
		go func(voter string) {
			defer wg.Done()
			_, err := f.engine.CastVote(ctx, tenant, id, voter, model.VoteChoiceApprove)
			if err != nil && !errs.ErrAlreadyResolved.Is(err) {
				t.Errorf("vote %s: %v", voter, err)
			}
		}(voter)
	}
	wg.Wait()

	ap, err := f.db.GetApproval(ctx, tenant, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ap.Status != model.ApprovalStatusApproved {
		t.Fatalf("status = %d", ap.Status)
	}
	if got := f.exec.calls.Load(); got != 1 {
		t.Fatalf("executor calls = %d, want exactly 1", got)
	}
}

// —— 管理员离群重算 ——

func TestOnAdminRemovedShrinksQuorum(t *testing.T) {
	// 3 管理员全票制：a 发起，b 同意，c 离群后 2/2 达标
	f := newFixture(t, Options{}, "a", "b", "c")
	ctx := context.Background()

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := res.Approval.ApprovalID
	if _, err := f.engine.CastVote(ctx, tenant, id, "b", model.VoteChoiceApprove); err != nil {
		t.Fatalf("vote b: %v", err)
	}

	f.members.removeAdmin("c")
	if err := f.engine.OnAdminRemoved(ctx, tenant, group, "c"); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	ap, err := f.db.GetApproval(ctx, tenant, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ap.Status != model.ApprovalStatusApproved {
		t.Fatalf("status = %d", ap.Status)
	}
	if got := f.exec.calls.Load(); got != 1 {
		t.Fatalf("executor calls = %d", got)
	}
}

func TestOnAdminRemovedPurgesVote(t *testing.T) {
	// c 的反对票随人一起撤走：1 同意 / 0 反对 / 2 人 → 50% 达标
	f := newFixture(t, Options{}, "a", "b", "c")
	ctx := context.Background()

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionRemoveMember,
		map[string]any{"user_id": "victim"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := res.Approval.ApprovalID
	if res.Approval.Status != model.ApprovalStatusPending {
		t.Fatalf("1/3 should be pending, status = %d", res.Approval.Status)
	}
	if _, err := f.engine.CastVote(ctx, tenant, id, "c", model.VoteChoiceReject); err != nil {
		t.Fatalf("vote c: %v", err)
	}

	f.members.removeAdmin("c")
	if err := f.engine.OnAdminRemoved(ctx, tenant, group, "c"); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	ap, err := f.db.GetApproval(ctx, tenant, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ap.Status != model.ApprovalStatusApproved {
		t.Fatalf("status = %d", ap.Status)
	}
	tally, err := f.db.TallyFor(ctx, tenant, id)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Reject != 0 {
		t.Fatalf("removed admin's vote still counted: %+v", tally)
	}
	if f.sink.count(auditmodel.ActionRecompute) != 1 {
		t.Fatal("missing recompute audit entry")
	}
}

func TestOnAdminRemovedApprovesWithoutNewVote(t *testing.T) {
	// 4 管理员 50% 阈值：只有发起人一票（25%），
	// 两个未投票的管理员相继离群后 1/2 = 50% 达标，全程没有新票。
	f := newFixture(t, Options{}, "a", "b", "c", "d")
	ctx := context.Background()

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionRemoveMember,
		map[string]any{"user_id": "victim"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := res.Approval.ApprovalID
	if res.Approval.Status != model.ApprovalStatusPending {
		t.Fatalf("1/4 should be pending, status = %d", res.Approval.Status)
	}

	f.members.removeAdmin("c")
	if err := f.engine.OnAdminRemoved(ctx, tenant, group, "c"); err != nil {
		t.Fatalf("recompute c: %v", err)
	}
	ap, err := f.db.GetApproval(ctx, tenant, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ap.Status != model.ApprovalStatusPending {
		t.Fatalf("1/3 should still be pending, status = %d", ap.Status)
	}

	f.members.removeAdmin("d")
	if err := f.engine.OnAdminRemoved(ctx, tenant, group, "d"); err != nil {
		t.Fatalf("recompute d: %v", err)
	}
	ap, err = f.db.GetApproval(ctx, tenant, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ap.Status != model.ApprovalStatusApproved {
		t.Fatalf("status = %d", ap.Status)
	}
	tally, err := f.db.TallyFor(ctx, tenant, id)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Approve != 1 || tally.Reject != 0 {
		t.Fatalf("no new vote expected, tally = %+v", tally)
	}
	if got := f.exec.calls.Load(); got != 1 {
		t.Fatalf("executor calls = %d", got)
	}
}

// 投票与离群重算抢同一张单：谁先进锁谁翻状态，另一方退化为 no-op，
// 动作仍只执行一次。
func TestVoteRacesAdminRemoval(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, Options{}, "a", "b", "c", "d")
		ctx := context.Background()

		res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionRemoveMember,
			map[string]any{"user_id": "victim"})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		id := res.Approval.ApprovalID
		if res.Approval.Status != model.ApprovalStatusPending {
			t.Fatalf("1/4 should be pending, status = %d", res.Approval.Status)
		}

		// c 先离群：b 的同意票会凑出 2/3，重算路径也可能先拿到锁
		f.members.removeAdmin("c")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.engine.CastVote(ctx, tenant, id, "b", model.VoteChoiceApprove)
			if err != nil && !errs.ErrAlreadyResolved.Is(err) {
				t.Errorf("vote: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := f.engine.OnAdminRemoved(ctx, tenant, group, "c"); err != nil {
				t.Errorf("recompute: %v", err)
			}
		}()
		wg.Wait()

		ap, err := f.db.GetApproval(ctx, tenant, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ap.Status != model.ApprovalStatusApproved {
			t.Fatalf("status = %d", ap.Status)
		}
		if got := f.exec.calls.Load(); got != 1 {
			t.Fatalf("executor calls = %d, want exactly 1", got)
		}
	}
}

func TestOnAdminRemovedIdempotentOnResolved(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b")
	ctx := context.Background()

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionRemoveMember,
		map[string]any{"user_id": "victim"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Approval.Status != model.ApprovalStatusApproved {
		t.Fatalf("status = %d", res.Approval.Status)
	}

	f.members.removeAdmin("b")
	if err := f.engine.OnAdminRemoved(ctx, tenant, group, "b"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got := f.exec.calls.Load(); got != 1 {
		t.Fatalf("executor calls = %d after replay", got)
	}
}

// —— 执行失败 ——

func TestExecutionFailureKeepsApproved(t *testing.T) {
	f := newFixture(t, Options{}, "a")
	f.exec.fail = true
	ctx := context.Background()

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !errs.ErrExecutionFailed.Is(res.ExecErr) {
		t.Fatalf("want ExecutionFailed, got %v", res.ExecErr)
	}

	// 审批终态不回滚
	ap, err := f.db.GetApproval(ctx, tenant, res.Approval.ApprovalID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ap.Status != model.ApprovalStatusApproved {
		t.Fatalf("status = %d", ap.Status)
	}
	if f.sink.count(auditmodel.ActionExecutionFailed) != 1 {
		t.Fatal("missing execution_failed audit entry")
	}
}

// —— 查询与过期 ——

func TestGetPending(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b", "c")
	ctx := context.Background()

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.engine.CastVote(ctx, tenant, res.Approval.ApprovalID, "b", model.VoteChoiceApprove); err != nil {
		t.Fatalf("vote: %v", err)
	}

	pending, err := f.engine.GetPending(ctx, tenant, group)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d", len(pending))
	}
	if pending[0].Tally.Approve != 2 || pending[0].Tally.Reject != 0 {
		t.Fatalf("tally = %+v", pending[0].Tally)
	}
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t, Options{PendingTTL: time.Hour}, "a", "b", "c")
	ctx := context.Background()

	// 直接造一张超龄的 Pending 单
	old := &model.ApprovalRequest{
		TenantID:    tenant,
		ApprovalID:  "stale-1",
		GroupID:     group,
		RequestedBy: "a",
		ActionType:  model.ActionDeleteGroup,
		Threshold:   model.Unanimous(),
		Status:      model.ApprovalStatusPending,
		CreateTime:  time.Now().Add(-2 * time.Hour),
	}
	if err := f.db.CreateWithInitialVotes(ctx, old, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionDeleteGroup, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	n, err := f.engine.ExpireStale(ctx, tenant, group)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d", n)
	}

	ap, err := f.db.GetApproval(ctx, tenant, "stale-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ap.Status != model.ApprovalStatusRejected {
		t.Fatalf("stale status = %d", ap.Status)
	}
	fresh, err := f.db.GetApproval(ctx, tenant, res.Approval.ApprovalID)
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if fresh.Status != model.ApprovalStatusPending {
		t.Fatalf("fresh approval must survive, status = %d", fresh.Status)
	}
}

func TestExpireStaleDisabledByDefault(t *testing.T) {
	f := newFixture(t, Options{}, "a", "b", "c")
	ctx := context.Background()

	if _, err := f.engine.Submit(ctx, tenant, group, "a", model.ActionDeleteGroup, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	n, err := f.engine.ExpireStale(ctx, tenant, group)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 0 {
		t.Fatalf("expired = %d with no TTL", n)
	}
}
