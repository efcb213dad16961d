package store

import (
	"context"
	"testing"
	"time"

	"GProject/module/governance/model"
	"GProject/tools/errs"
)

func seedApproval(t *testing.T, db DB, id string) *model.ApprovalRequest {
	t.Helper()
	a := &model.ApprovalRequest{
		TenantID:    "t1",
		ApprovalID:  id,
		GroupID:     "g1",
		RequestedBy: "a",
		ActionType:  model.ActionDeleteGroup,
		Threshold:   model.Unanimous(),
		Status:      model.ApprovalStatusPending,
		CreateTime:  time.Now(),
	}
	vote := &model.Vote{
		TenantID: "t1", ApprovalID: id, GroupID: "g1",
		AdminID: "a", Choice: model.VoteChoiceApprove, CastTime: time.Now(),
	}
	if err := db.CreateWithInitialVotes(context.Background(), a, []*model.Vote{vote}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

func TestMemDBMarkResolvedFlipsOnce(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	seedApproval(t, db, "ap-1")

	flipped, err := db.MarkResolved(ctx, "t1", "ap-1", model.ApprovalStatusApproved, time.Now())
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !flipped {
		t.Fatal("first flip must succeed")
	}

	// 二次翻转是 no-op，状态不被覆盖
	flipped, err = db.MarkResolved(ctx, "t1", "ap-1", model.ApprovalStatusRejected, time.Now())
	if err != nil {
		t.Fatalf("mark again: %v", err)
	}
	if flipped {
		t.Fatal("second flip must be a no-op")
	}
	a, err := db.GetApproval(ctx, "t1", "ap-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Status != model.ApprovalStatusApproved {
		t.Fatalf("status = %d", a.Status)
	}
}

func TestMemDBDuplicateVote(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	seedApproval(t, db, "ap-1")

	_, err := db.InsertVoteAndTally(ctx, &model.Vote{
		TenantID: "t1", ApprovalID: "ap-1", AdminID: "a", Choice: model.VoteChoiceReject,
	})
	if !errs.ErrDuplicateVote.Is(err) {
		t.Fatalf("want DuplicateVote, got %v", err)
	}

	tally, err := db.InsertVoteAndTally(ctx, &model.Vote{
		TenantID: "t1", ApprovalID: "ap-1", AdminID: "b", Choice: model.VoteChoiceReject,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if tally.Approve != 1 || tally.Reject != 1 {
		t.Fatalf("tally = %+v", tally)
	}
}

func TestMemDBDeleteVote(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	seedApproval(t, db, "ap-1")

	removed, err := db.DeleteVote(ctx, "t1", "ap-1", "a")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !removed {
		t.Fatal("existing vote must be removed")
	}
	removed, err = db.DeleteVote(ctx, "t1", "ap-1", "a")
	if err != nil {
		t.Fatalf("delete again: %v", err)
	}
	if removed {
		t.Fatal("second delete must report nothing removed")
	}

	tally, err := db.TallyFor(ctx, "t1", "ap-1")
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Approve != 0 || tally.Reject != 0 {
		t.Fatalf("tally = %+v", tally)
	}
}

func TestMemDBListPendingFiltersResolved(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()
	seedApproval(t, db, "ap-1")
	seedApproval(t, db, "ap-2")

	if _, err := db.MarkResolved(ctx, "t1", "ap-1", model.ApprovalStatusRejected, time.Now()); err != nil {
		t.Fatalf("mark: %v", err)
	}
	pending, err := db.ListPending(ctx, "t1", "g1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].ApprovalID != "ap-2" {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestMemDBGrantUpsert(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()

	g := &model.AutoApproveGrant{
		TenantID: "t1", GroupID: "g1", GrantorID: "a", GranteeID: "b",
		Categories: model.CategoryFlags{}.WithCategory(model.CategoryAddMember, true),
		UpdateTime: time.Now(),
	}
	if err := db.UpsertGrant(ctx, g); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// 同一有序对再写覆盖类别位，而不是新增一行
	g2 := *g
	g2.Categories = g.Categories.WithCategory(model.CategoryDeleteGroup, true)
	if err := db.UpsertGrant(ctx, &g2); err != nil {
		t.Fatalf("upsert 2: %v", err)
	}

	got, err := db.GetGrant(ctx, "t1", "g1", "a", "b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || !got.Categories.AddMember || !got.Categories.DeleteGroup {
		t.Fatalf("grant = %+v", got)
	}

	list, err := db.ListGrantsTo(ctx, "t1", "g1", "b")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("grants = %d", len(list))
	}

	// 反方向不存在
	rev, err := db.GetGrant(ctx, "t1", "g1", "b", "a")
	if err != nil {
		t.Fatalf("get reverse: %v", err)
	}
	if rev != nil {
		t.Fatal("reverse direction must be empty")
	}
}
