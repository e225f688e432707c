package tags

import (
	"context"
	"errors"
	"testing"
	"time"

	"docentdispatch/internal/errs"
	"docentdispatch/internal/model"
	"docentdispatch/internal/notify"
	"docentdispatch/internal/store/memory"
)

var (
	newDocent      = model.Actor{ID: "nd-1", Role: model.RoleNewDocent}
	otherNewDocent = model.Actor{ID: "nd-2", Role: model.RoleNewDocent}
	seasoned       = model.Actor{ID: "sd-1", Role: model.RoleSeasonedDocent}
	otherSeasoned  = model.Actor{ID: "sd-2", Role: model.RoleSeasonedDocent}
	coordinator    = model.Actor{ID: "co-1", Role: model.RoleCoordinator}
)

func newTestService(t *testing.T) (*Service, *memory.Store, *notify.Recorder, time.Time) {
	t.Helper()
	st := memory.New()
	recorder := notify.NewRecorder()
	svc := NewService(st, recorder)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	for _, actor := range []model.Actor{newDocent, otherNewDocent, seasoned, otherSeasoned, coordinator} {
		user := model.User{
			ID:        actor.ID,
			Email:     actor.ID + "@example.org",
			FirstName: "Docent",
			LastName:  actor.ID,
			Role:      actor.Role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.CreateUser(ctx, user); err != nil {
			t.Fatalf("seed user %s: %v", actor.ID, err)
		}
	}
	return svc, st, recorder, now
}

func TestCreateRejectsPastDate(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, -1), model.SlotAM, nil); !errors.Is(err, errs.ErrPastDate) {
		t.Fatalf("expected past date error, got %v", err)
	}
	// Today is allowed.
	if _, err := svc.Create(ctx, newDocent, now, model.SlotAM, nil); err != nil {
		t.Fatalf("expected today to be allowed, got %v", err)
	}
}

func TestCreateDuplicateSlot(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()
	date := now.AddDate(0, 0, 3)

	if _, err := svc.Create(ctx, newDocent, date, model.SlotAM, nil); err != nil {
		t.Fatalf("create error: %v", err)
	}
	if _, err := svc.Create(ctx, newDocent, date, model.SlotAM, nil); !errors.Is(err, errs.ErrDuplicateSlot) {
		t.Fatalf("expected duplicate slot, got %v", err)
	}
	// Same date, other slot is a different schedulable unit.
	if _, err := svc.Create(ctx, newDocent, date, model.SlotPM, nil); err != nil {
		t.Fatalf("expected PM slot to pass, got %v", err)
	}
	// Same slot, other requester is fine too.
	if _, err := svc.Create(ctx, otherNewDocent, date, model.SlotAM, nil); err != nil {
		t.Fatalf("expected other docent's slot to pass, got %v", err)
	}
}

func TestCreateRequiresNewDocent(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()
	for _, actor := range []model.Actor{seasoned, coordinator} {
		if _, err := svc.Create(ctx, actor, now.AddDate(0, 0, 1), model.SlotAM, nil); !errors.Is(err, errs.ErrForbidden) {
			t.Fatalf("expected forbidden for %s, got %v", actor.Role, err)
		}
	}
}

func TestClaimLifecycle(t *testing.T) {
	svc, _, recorder, now := newTestService(t)
	ctx := context.Background()

	tag, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, 2), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	claimed, err := svc.Claim(ctx, seasoned, tag.ID)
	if err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if claimed.Status != model.StatusFilled {
		t.Fatalf("expected filled, got %s", claimed.Status)
	}
	if claimed.SeasonedDocentID == nil || *claimed.SeasonedDocentID != seasoned.ID {
		t.Fatalf("expected claimer recorded")
	}
	if len(recorder.TagConfirmations) != 1 {
		t.Fatalf("expected one confirmation notification, got %d", len(recorder.TagConfirmations))
	}

	if _, err := svc.Claim(ctx, otherSeasoned, tag.ID); !errors.Is(err, errs.ErrAlreadyFilled) {
		t.Fatalf("expected already filled, got %v", err)
	}
}

func TestClaimRules(t *testing.T) {
	svc, st, _, now := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, seasoned, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	tag, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, 2), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if _, err := svc.Claim(ctx, newDocent, tag.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected forbidden for new docent, got %v", err)
	}

	// A request that aged past its date can no longer be claimed.
	past := model.DateOnly(now.AddDate(0, 0, -1))
	stale := model.TagRequest{
		ID:          "stale",
		NewDocentID: newDocent.ID,
		Date:        past,
		TimeSlot:    model.SlotPM,
		Status:      model.StatusRequested,
		CreatedAt:   now.AddDate(0, 0, -7),
		UpdatedAt:   now.AddDate(0, 0, -7),
	}
	if err := st.CreateTagRequest(ctx, stale); err != nil {
		t.Fatalf("seed stale tag: %v", err)
	}
	if _, err := svc.Claim(ctx, seasoned, stale.ID); !errors.Is(err, errs.ErrPastDate) {
		t.Fatalf("expected past date, got %v", err)
	}
}

func TestCoordinatorEditIsUnchecked(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()

	tag, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, 2), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	// Filled without a claimer: the administrative override skips invariant
	// re-validation on purpose.
	filled := model.StatusFilled
	edited, err := svc.CoordinatorEdit(ctx, coordinator, tag.ID, CoordinatorEditInput{Status: &filled})
	if err != nil {
		t.Fatalf("edit error: %v", err)
	}
	if edited.Status != model.StatusFilled || edited.SeasonedDocentID != nil {
		t.Fatalf("expected filled without claimer, got %+v", edited)
	}

	// And back to requested.
	requested := model.StatusRequested
	edited, err = svc.CoordinatorEdit(ctx, coordinator, tag.ID, CoordinatorEditInput{Status: &requested})
	if err != nil {
		t.Fatalf("edit error: %v", err)
	}
	if edited.Status != model.StatusRequested {
		t.Fatalf("expected requested, got %s", edited.Status)
	}

	if _, err := svc.CoordinatorEdit(ctx, seasoned, tag.ID, CoordinatorEditInput{Status: &filled}); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected forbidden for non-coordinator, got %v", err)
	}
}

func TestOwnerEdit(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()

	notes := "prefer reptile house"
	tag, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, 2), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	edited, err := svc.OwnerEdit(ctx, newDocent, tag.ID, OwnerEditInput{Notes: &notes})
	if err != nil {
		t.Fatalf("owner edit error: %v", err)
	}
	if edited.Notes == nil || *edited.Notes != notes {
		t.Fatalf("expected notes applied")
	}

	// Moving the slot re-runs the creation rules.
	past := now.AddDate(0, 0, -1)
	if _, err := svc.OwnerEdit(ctx, newDocent, tag.ID, OwnerEditInput{Date: &past}); !errors.Is(err, errs.ErrPastDate) {
		t.Fatalf("expected past date, got %v", err)
	}

	if _, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, 5), model.SlotAM, nil); err != nil {
		t.Fatalf("create error: %v", err)
	}
	conflict := now.AddDate(0, 0, 5)
	if _, err := svc.OwnerEdit(ctx, newDocent, tag.ID, OwnerEditInput{Date: &conflict}); !errors.Is(err, errs.ErrDuplicateSlot) {
		t.Fatalf("expected duplicate slot, got %v", err)
	}

	if _, err := svc.OwnerEdit(ctx, otherNewDocent, tag.ID, OwnerEditInput{Notes: &notes}); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}

	if _, err := svc.Claim(ctx, seasoned, tag.ID); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if _, err := svc.OwnerEdit(ctx, newDocent, tag.ID, OwnerEditInput{Notes: &notes}); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected forbidden once filled, got %v", err)
	}
}

func TestDeletePermissions(t *testing.T) {
	svc, st, _, now := newTestService(t)
	ctx := context.Background()

	open, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, 2), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	if err := svc.Delete(ctx, otherNewDocent, open.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected forbidden for other docent, got %v", err)
	}

	filledTag, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, 3), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if _, err := svc.Claim(ctx, seasoned, filledTag.ID); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if err := svc.Delete(ctx, newDocent, filledTag.ID); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict for own filled request, got %v", err)
	}

	if err := svc.Delete(ctx, newDocent, open.ID); err != nil {
		t.Fatalf("expected own open delete to pass, got %v", err)
	}
	if _, err := st.GetTagRequest(ctx, open.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected record removed")
	}

	// Coordinators may delete anything, filled included.
	if err := svc.Delete(ctx, coordinator, filledTag.ID); err != nil {
		t.Fatalf("expected coordinator delete to pass, got %v", err)
	}
}

func TestVisibilityScoping(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()

	mine, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, 1), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	open, err := svc.Create(ctx, otherNewDocent, now.AddDate(0, 0, 2), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	claimedByMe, err := svc.Create(ctx, otherNewDocent, now.AddDate(0, 0, 3), model.SlotPM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if _, err := svc.Claim(ctx, seasoned, claimedByMe.ID); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	claimedByOther, err := svc.Create(ctx, otherNewDocent, now.AddDate(0, 0, 4), model.SlotPM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if _, err := svc.Claim(ctx, otherSeasoned, claimedByOther.ID); err != nil {
		t.Fatalf("claim error: %v", err)
	}

	coordinatorView, err := svc.List(ctx, coordinator, nil)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(coordinatorView) != 4 {
		t.Fatalf("expected coordinator to see 4, got %d", len(coordinatorView))
	}

	seasonedView, err := svc.List(ctx, seasoned, nil)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	ids := idSet(seasonedView)
	if !ids[mine.ID] || !ids[open.ID] || !ids[claimedByMe.ID] {
		t.Fatalf("expected open requests and own claim visible, got %v", ids)
	}
	if ids[claimedByOther.ID] {
		t.Fatalf("expected other docent's filled claim hidden")
	}

	newDocentView, err := svc.List(ctx, newDocent, nil)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(newDocentView) != 1 || newDocentView[0].ID != mine.ID {
		t.Fatalf("expected only own request, got %d", len(newDocentView))
	}
}

func TestListDateRange(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()

	early, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, 1), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	late, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, 10), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	dateRange := &model.DateRange{
		Start: model.DateOnly(now),
		End:   model.DateOnly(now.AddDate(0, 0, 5)),
	}
	listed, err := svc.List(ctx, coordinator, dateRange)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != early.ID {
		t.Fatalf("expected only the early request, got %d", len(listed))
	}

	// The range is inclusive of its end date.
	dateRange.End = model.DateOnly(now.AddDate(0, 0, 10))
	listed, err = svc.List(ctx, coordinator, dateRange)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(listed) != 2 || listed[1].ID != late.ID {
		t.Fatalf("expected both requests, got %d", len(listed))
	}
}

func TestListMine(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()

	mine, err := svc.Create(ctx, newDocent, now.AddDate(0, 0, 1), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	claimed, err := svc.Create(ctx, otherNewDocent, now.AddDate(0, 0, 2), model.SlotAM, nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if _, err := svc.Claim(ctx, seasoned, claimed.ID); err != nil {
		t.Fatalf("claim error: %v", err)
	}

	fromNew, err := svc.ListMine(ctx, newDocent)
	if err != nil {
		t.Fatalf("list mine error: %v", err)
	}
	if len(fromNew) != 1 || fromNew[0].ID != mine.ID {
		t.Fatalf("expected own request only")
	}

	fromSeasoned, err := svc.ListMine(ctx, seasoned)
	if err != nil {
		t.Fatalf("list mine error: %v", err)
	}
	if len(fromSeasoned) != 1 || fromSeasoned[0].ID != claimed.ID {
		t.Fatalf("expected own claim only")
	}

	if _, err := svc.ListMine(ctx, coordinator); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected forbidden for coordinator, got %v", err)
	}
}

func idSet(tags []model.TagRequest) map[string]bool {
	ids := make(map[string]bool, len(tags))
	for _, tag := range tags {
		ids[tag.ID] = true
	}
	return ids
}
