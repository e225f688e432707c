package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docentdispatch/internal/config"
	"docentdispatch/internal/directory"
	"docentdispatch/internal/errs"
	"docentdispatch/internal/model"
	"docentdispatch/internal/session"
	"docentdispatch/internal/store"
	"docentdispatch/internal/tags"
)

const sessionCookie = "session"

type Server struct {
	cfg      config.Config
	store    store.Store
	sessions session.Store
	auth     AuthService
	users    *directory.Service
	tags     *tags.Service
}

// AuthService is the slice of the authentication engine the HTTP layer needs.
type AuthService interface {
	Login(ctx context.Context, email, password string) (model.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

func NewServer(cfg config.Config, st store.Store, sessions session.Store, auth AuthService, users *directory.Service, tagSvc *tags.Service) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		auth:     auth,
		users:    users,
		tags:     tagSvc,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/register", s.handleRegister)
	r.Post("/api/login", s.handleLogin)
	r.Post("/api/request-password-reset", s.handleRequestPasswordReset)
	r.Post("/api/reset-password", s.handleResetPassword)

	r.With(s.authMiddleware).Post("/api/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/api/user", s.handleGetMe)

	r.Route("/api/users", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireRole(model.RoleCoordinator))
		r.Get("/", s.handleListUsers)
		r.Post("/", s.handleCreateUser)
		r.Post("/csv", s.handleImportUsers)
		r.Patch("/{userID}", s.handleUpdateUser)
		r.Delete("/{userID}", s.handleDeleteUser)
	})

	r.Route("/api/tag-requests", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.handleListTags)
		r.Post("/", s.handleCreateTag)
		r.Patch("/{tagID}", s.handlePatchTag)
		r.Delete("/{tagID}", s.handleDeleteTag)
	})

	r.With(s.authMiddleware).Get("/api/my-tag-requests", s.handleMyTags)

	return r
}

type registerRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Phone     *string `json:"phone,omitempty"`
	Role      string  `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if len(req.Password) < 6 {
		writeErrorMessage(w, http.StatusBadRequest, "validation_failed", "password must be at least 6 characters")
		return
	}

	user, err := s.users.Register(r.Context(), directory.CreateInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Phone:     req.Phone,
		Role:      model.Role(strings.TrimSpace(req.Role)),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.issueSession(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.issueSession(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		_ = s.sessions.Destroy(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	user, err := s.users.Get(r.Context(), actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	// Same response for known and unknown addresses.
	if err := s.auth.RequestPasswordReset(r.Context(), email); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if an account exists for that email, a reset link has been sent",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "missing_token")
		return
	}
	if len(req.NewPassword) < 6 {
		writeErrorMessage(w, http.StatusBadRequest, "validation_failed", "password must be at least 6 characters")
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Phone     *string `json:"phone,omitempty"`
	Role      string  `json:"role"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := s.users.Create(r.Context(), directory.CreateInput{
		Email:     strings.TrimSpace(strings.ToLower(req.Email)),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Phone:     req.Phone,
		Role:      model.Role(strings.TrimSpace(req.Role)),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type updateUserRequest struct {
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Role      *string `json:"role,omitempty"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	input := directory.UpdateInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if email != "" {
			input.Email = &email
		}
	}
	if req.Role != nil {
		role := model.Role(strings.TrimSpace(*req.Role))
		input.Role = &role
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			writeErrorMessage(w, http.StatusBadRequest, "validation_failed", "password must be at least 6 characters")
			return
		}
		input.Password = req.Password
	}

	user, err := s.users.Update(r.Context(), userID, input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id")
		return
	}
	if err := s.users.Delete(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type importUserRow struct {
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Phone     *string `json:"phone,omitempty"`
	Role      string  `json:"role"`
}

// handleImportUsers accepts either a JSON array of rows or a raw CSV body
// with the header email,firstName,lastName,phone,role.
func (s *Server) handleImportUsers(w http.ResponseWriter, r *http.Request) {
	var rows []directory.CreateInput

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		parsed, err := directory.ParseCSV(r.Body)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid_csv", err.Error())
			return
		}
		rows = parsed
	} else {
		var body []importUserRow
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		for _, row := range body {
			rows = append(rows, directory.CreateInput{
				Email:     strings.TrimSpace(strings.ToLower(row.Email)),
				FirstName: strings.TrimSpace(row.FirstName),
				LastName:  strings.TrimSpace(row.LastName),
				Phone:     row.Phone,
				Role:      model.Role(strings.TrimSpace(row.Role)),
			})
		}
	}

	result := s.users.BulkImport(r.Context(), rows)
	writeJSON(w, http.StatusOK, result)
}

type createTagRequest struct {
	Date     string  `json:"date"`
	TimeSlot string  `json:"timeSlot"`
	Notes    *string `json:"notes,omitempty"`
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	var req createTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		return
	}

	tag, err := s.tags.Create(r.Context(), actor, date, model.TimeSlot(req.TimeSlot), req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.renderTag(r.Context(), tag))
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	dateRange, err := parseDateRange(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	listed, err := s.tags.List(r.Context(), actor, dateRange)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.renderTags(r.Context(), listed))
}

func (s *Server) handleMyTags(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	listed, err := s.tags.ListMine(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.renderTags(r.Context(), listed))
}

type patchTagRequest struct {
	NewDocentID      *string `json:"newDocentId,omitempty"`
	SeasonedDocentID *string `json:"seasonedDocentId,omitempty"`
	Date             *string `json:"date,omitempty"`
	TimeSlot         *string `json:"timeSlot,omitempty"`
	Status           *string `json:"status,omitempty"`
	Notes            *string `json:"notes,omitempty"`
}

// handlePatchTag dispatches on the caller's role: a seasoned docent claims the
// request, the owning new docent edits it, a coordinator may rewrite any field.
func (s *Server) handlePatchTag(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	tagID := chi.URLParam(r, "tagID")
	if tagID == "" {
		writeError(w, http.StatusBadRequest, "missing_tag_id")
		return
	}

	if actor.Role == model.RoleSeasonedDocent {
		claimed, err := s.tags.Claim(r.Context(), actor, tagID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.renderTag(r.Context(), claimed))
		return
	}

	var req patchTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	var date *time.Time
	if req.Date != nil {
		parsed, err := parseDate(*req.Date)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
			return
		}
		date = &parsed
	}
	var slot *model.TimeSlot
	if req.TimeSlot != nil {
		value := model.TimeSlot(*req.TimeSlot)
		slot = &value
	}

	if actor.Role == model.RoleCoordinator {
		input := tags.CoordinatorEditInput{
			NewDocentID: req.NewDocentID,
			Date:        date,
			TimeSlot:    slot,
			Notes:       req.Notes,
		}
		if req.SeasonedDocentID != nil {
			// An explicit empty id releases the claim.
			if *req.SeasonedDocentID == "" {
				input.ClearSeasonedDocent = true
			} else {
				input.SeasonedDocentID = req.SeasonedDocentID
			}
		}
		if req.Status != nil {
			status := model.TagStatus(*req.Status)
			if !status.Valid() {
				writeErrorMessage(w, http.StatusBadRequest, "validation_failed", "status must be requested or filled")
				return
			}
			input.Status = &status
		}
		edited, err := s.tags.CoordinatorEdit(r.Context(), actor, tagID, input)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.renderTag(r.Context(), edited))
		return
	}

	// Owners may only touch notes, date and timeSlot; assignment and status
	// fields are off limits even on their own request.
	if req.NewDocentID != nil || req.SeasonedDocentID != nil || req.Status != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	edited, err := s.tags.OwnerEdit(r.Context(), actor, tagID, tags.OwnerEditInput{
		Notes:    req.Notes,
		Date:     date,
		TimeSlot: slot,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.renderTag(r.Context(), edited))
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	tagID := chi.URLParam(r, "tagID")
	if tagID == "" {
		writeError(w, http.StatusBadRequest, "missing_tag_id")
		return
	}
	if err := s.tags.Delete(r.Context(), actor, tagID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type tagResponse struct {
	model.TagRequest
	Date           string      `json:"date"`
	NewDocent      *model.User `json:"newDocent,omitempty"`
	SeasonedDocent *model.User `json:"seasonedDocent,omitempty"`
}

func (s *Server) renderTag(ctx context.Context, tag model.TagRequest) tagResponse {
	resp := tagResponse{
		TagRequest: tag,
		Date:       tag.Date.Format("2006-01-02"),
	}
	if user, err := s.store.GetUserByID(ctx, tag.NewDocentID); err == nil {
		resp.NewDocent = &user
	}
	if tag.SeasonedDocentID != nil {
		if user, err := s.store.GetUserByID(ctx, *tag.SeasonedDocentID); err == nil {
			resp.SeasonedDocent = &user
		}
	}
	return resp
}

func (s *Server) renderTags(ctx context.Context, listed []model.TagRequest) []tagResponse {
	resp := make([]tagResponse, 0, len(listed))
	for _, tag := range listed {
		resp = append(resp, s.renderTag(ctx, tag))
	}
	return resp
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, userID string) error {
	token, err := s.sessions.Create(r.Context(), userID, s.cfg.SessionTTL)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		userID, err := s.sessions.Resolve(r.Context(), cookie.Value)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		user, err := s.store.GetUserByID(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		ctx := context.WithValue(r.Context(), actorKey{}, model.Actor{ID: user.ID, Role: user.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := actorFromContext(r.Context())
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

type actorKey struct{}

func actorFromContext(ctx context.Context) model.Actor {
	actor, _ := ctx.Value(actorKey{}).(model.Actor)
	return actor
}

func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(value))
}

// parseDateRange reads the optional startDate/endDate query parameters. Both
// must be present for a filter to apply; the range is inclusive.
func parseDateRange(r *http.Request) (*model.DateRange, error) {
	start := r.URL.Query().Get("startDate")
	end := r.URL.Query().Get("endDate")
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, errors.New("startDate and endDate must be supplied together")
	}
	startDate, err := parseDate(start)
	if err != nil {
		return nil, errors.New("startDate must be YYYY-MM-DD")
	}
	endDate, err := parseDate(end)
	if err != nil {
		return nil, errors.New("endDate must be YYYY-MM-DD")
	}
	if endDate.Before(startDate) {
		return nil, errors.New("endDate must not precede startDate")
	}
	return &model.DateRange{Start: startDate, End: endDate}, nil
}

// writeDomainError translates the domain error taxonomy into HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var locked errs.LockedError
	if errors.As(err, &locked) {
		writeErrorMessage(w, http.StatusForbidden, "account_locked", locked.Error())
		return
	}
	var validation errs.ValidationError
	if errors.As(err, &validation) {
		writeErrorMessage(w, http.StatusBadRequest, "validation_failed", validation.Error())
		return
	}

	switch {
	case errors.Is(err, errs.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, errs.ErrInvalidCredentials):
		writeErrorMessage(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, errs.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, errs.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, errs.ErrAlreadyFilled):
		writeErrorMessage(w, http.StatusConflict, "already_filled", err.Error())
	case errors.Is(err, errs.ErrHasDependentRequests):
		writeErrorMessage(w, http.StatusConflict, "user_has_tag_requests", err.Error())
	case errors.Is(err, errs.ErrDuplicateEmail):
		writeErrorMessage(w, http.StatusBadRequest, "email_already_registered", err.Error())
	case errors.Is(err, errs.ErrDuplicateSlot):
		writeErrorMessage(w, http.StatusBadRequest, "duplicate_slot", err.Error())
	case errors.Is(err, errs.ErrPastDate):
		writeErrorMessage(w, http.StatusBadRequest, "past_date", err.Error())
	case errors.Is(err, errs.ErrInvalidOrExpiredToken):
		writeErrorMessage(w, http.StatusBadRequest, "invalid_or_expired_token", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
