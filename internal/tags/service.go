// Package tags implements the tag-request lifecycle: creation by new
// docents, claiming by seasoned docents, coordinator overrides, and the
// role-scoped visibility rules.
package tags

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"docentdispatch/internal/errs"
	"docentdispatch/internal/model"
	"docentdispatch/internal/notify"
	"docentdispatch/internal/store"
)

type Service struct {
	store    store.Store
	notifier notify.Notifier
	now      func() time.Time
}

func NewService(st store.Store, notifier notify.Notifier) *Service {
	return &Service{
		store:    st,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) today() time.Time {
	return model.DateOnly(s.now())
}

// Create opens a new Requested slot for the acting new docent. The date must
// be today or later and the (docent, date, slot) combination must be free.
func (s *Service) Create(ctx context.Context, actor model.Actor, date time.Time, slot model.TimeSlot, notes *string) (model.TagRequest, error) {
	if actor.Role != model.RoleNewDocent {
		return model.TagRequest{}, errs.ErrForbidden
	}
	if !slot.Valid() {
		return model.TagRequest{}, errs.NewValidation("timeSlot", "must be AM or PM")
	}
	date = model.DateOnly(date)
	if date.Before(s.today()) {
		return model.TagRequest{}, errs.ErrPastDate
	}
	taken, err := s.store.SlotTaken(ctx, actor.ID, date, slot)
	if err != nil {
		return model.TagRequest{}, err
	}
	if taken {
		return model.TagRequest{}, errs.ErrDuplicateSlot
	}

	now := s.now()
	tag := model.TagRequest{
		ID:          uuid.NewString(),
		NewDocentID: actor.ID,
		Date:        date,
		TimeSlot:    slot,
		Status:      model.StatusRequested,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTagRequest(ctx, tag); err != nil {
		return model.TagRequest{}, err
	}
	return tag, nil
}

// Claim fills an open request with the acting seasoned docent and hands the
// pairing to the notifier. Notification is best-effort: the transition is
// already committed and a delivery failure never surfaces here.
func (s *Service) Claim(ctx context.Context, actor model.Actor, id string) (model.TagRequest, error) {
	if actor.Role != model.RoleSeasonedDocent {
		return model.TagRequest{}, errs.ErrForbidden
	}
	tag, err := s.store.GetTagRequest(ctx, id)
	if err != nil {
		return model.TagRequest{}, err
	}
	if tag.Status != model.StatusRequested {
		return model.TagRequest{}, errs.ErrAlreadyFilled
	}
	// Creation already rejects past dates, but a request can age while open.
	if tag.Date.Before(s.today()) {
		return model.TagRequest{}, errs.ErrPastDate
	}

	status := model.StatusFilled
	claimed, err := s.store.UpdateTagRequest(ctx, id, store.TagUpdate{
		SeasonedDocentID: &actor.ID,
		Status:           &status,
	})
	if err != nil {
		return model.TagRequest{}, err
	}

	newDocent, err := s.store.GetUserByID(ctx, claimed.NewDocentID)
	if err != nil {
		log.Printf("tag %s filled but requester %s lookup failed: %v", claimed.ID, claimed.NewDocentID, err)
		return claimed, nil
	}
	seasonedDocent, err := s.store.GetUserByID(ctx, actor.ID)
	if err != nil {
		log.Printf("tag %s filled but claimer %s lookup failed: %v", claimed.ID, actor.ID, err)
		return claimed, nil
	}
	s.notifier.SendTagConfirmation(ctx, claimed, newDocent, seasonedDocent)
	return claimed, nil
}

// CoordinatorEditInput mirrors store.TagUpdate: any present field is applied
// verbatim, with no invariant re-validation. This is the deliberate
// administrative override.
type CoordinatorEditInput struct {
	NewDocentID         *string
	SeasonedDocentID    *string
	ClearSeasonedDocent bool
	Date                *time.Time
	TimeSlot            *model.TimeSlot
	Status              *model.TagStatus
	Notes               *string
}

func (s *Service) CoordinatorEdit(ctx context.Context, actor model.Actor, id string, input CoordinatorEditInput) (model.TagRequest, error) {
	if actor.Role != model.RoleCoordinator {
		return model.TagRequest{}, errs.ErrForbidden
	}
	if _, err := s.store.GetTagRequest(ctx, id); err != nil {
		return model.TagRequest{}, err
	}
	update := store.TagUpdate{
		NewDocentID:         input.NewDocentID,
		SeasonedDocentID:    input.SeasonedDocentID,
		ClearSeasonedDocent: input.ClearSeasonedDocent,
		TimeSlot:            input.TimeSlot,
		Status:              input.Status,
		Notes:               input.Notes,
	}
	if input.Date != nil {
		date := model.DateOnly(*input.Date)
		update.Date = &date
	}
	return s.store.UpdateTagRequest(ctx, id, update)
}

// OwnerEditInput limits owner edits to notes, date and time slot.
type OwnerEditInput struct {
	Notes    *string
	Date     *time.Time
	TimeSlot *model.TimeSlot
}

// OwnerEdit lets the requesting new docent adjust their own still-open
// request. A date or slot change is re-validated with the same past-date and
// duplicate-slot rules as creation.
func (s *Service) OwnerEdit(ctx context.Context, actor model.Actor, id string, input OwnerEditInput) (model.TagRequest, error) {
	tag, err := s.store.GetTagRequest(ctx, id)
	if err != nil {
		return model.TagRequest{}, err
	}
	if actor.Role != model.RoleNewDocent || tag.NewDocentID != actor.ID {
		return model.TagRequest{}, errs.ErrForbidden
	}
	if tag.Status != model.StatusRequested {
		return model.TagRequest{}, errs.ErrForbidden
	}

	update := store.TagUpdate{Notes: input.Notes}
	newDate := tag.Date
	newSlot := tag.TimeSlot
	if input.Date != nil {
		newDate = model.DateOnly(*input.Date)
		if newDate.Before(s.today()) {
			return model.TagRequest{}, errs.ErrPastDate
		}
		update.Date = &newDate
	}
	if input.TimeSlot != nil {
		if !input.TimeSlot.Valid() {
			return model.TagRequest{}, errs.NewValidation("timeSlot", "must be AM or PM")
		}
		newSlot = *input.TimeSlot
		update.TimeSlot = &newSlot
	}
	if (input.Date != nil || input.TimeSlot != nil) && !(newDate.Equal(tag.Date) && newSlot == tag.TimeSlot) {
		taken, err := s.store.SlotTaken(ctx, actor.ID, newDate, newSlot)
		if err != nil {
			return model.TagRequest{}, err
		}
		if taken {
			return model.TagRequest{}, errs.ErrDuplicateSlot
		}
	}
	return s.store.UpdateTagRequest(ctx, id, update)
}

// Delete removes a request. Coordinators may delete anything; a new docent
// only their own request, and only while it is still open. Deleting someone
// else's request is an authorization failure, deleting an own filled request
// a state conflict.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id string) error {
	tag, err := s.store.GetTagRequest(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != model.RoleCoordinator {
		if tag.NewDocentID != actor.ID {
			return errs.ErrForbidden
		}
		if tag.Status != model.StatusRequested {
			return errs.ErrConflict
		}
	}
	return s.store.DeleteTagRequest(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (model.TagRequest, error) {
	return s.store.GetTagRequest(ctx, id)
}

// List applies the role-scoped visibility rules: coordinators see everything,
// seasoned docents see open requests plus their own claims, new docents only
// their own requests. The optional date range is inclusive on both ends.
func (s *Service) List(ctx context.Context, actor model.Actor, dateRange *model.DateRange) ([]model.TagRequest, error) {
	switch actor.Role {
	case model.RoleCoordinator:
		return s.store.ListTagRequests(ctx, dateRange)
	case model.RoleSeasonedDocent:
		return s.store.ListOpenOrClaimedBy(ctx, actor.ID, dateRange)
	case model.RoleNewDocent:
		return s.store.ListTagRequestsByNewDocent(ctx, actor.ID, dateRange)
	default:
		return nil, errs.ErrForbidden
	}
}

// ListMine returns the actor's own slice of the schedule: requests they made
// or claims they hold.
func (s *Service) ListMine(ctx context.Context, actor model.Actor) ([]model.TagRequest, error) {
	switch actor.Role {
	case model.RoleNewDocent:
		return s.store.ListTagRequestsByNewDocent(ctx, actor.ID, nil)
	case model.RoleSeasonedDocent:
		return s.store.ListTagRequestsBySeasonedDocent(ctx, actor.ID, nil)
	default:
		return nil, errs.ErrForbidden
	}
}
