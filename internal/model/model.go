package model

import "time"

type Role string

const (
	RoleNewDocent      Role = "new_docent"
	RoleSeasonedDocent Role = "seasoned_docent"
	RoleCoordinator    Role = "coordinator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleNewDocent, RoleSeasonedDocent, RoleCoordinator:
		return true
	default:
		return false
	}
}

type TimeSlot string

const (
	SlotAM TimeSlot = "AM"
	SlotPM TimeSlot = "PM"
)

func (s TimeSlot) Valid() bool {
	return s == SlotAM || s == SlotPM
}

type TagStatus string

const (
	StatusRequested TagStatus = "requested"
	StatusFilled    TagStatus = "filled"
)

func (s TagStatus) Valid() bool {
	return s == StatusRequested || s == StatusFilled
}

type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	Phone               *string    `json:"phone,omitempty"`
	Role                Role       `json:"role"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"-"`
	UpdatedAt           time.Time  `json:"-"`
}

// IsLocked reports whether the lockout window is still open at now.
// Lockout expiry is lazy: no background timer clears LockedUntil.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Actor is the authenticated identity passed explicitly into every
// directory, lifecycle and visibility operation.
type Actor struct {
	ID   string
	Role Role
}

type PasswordResetToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

type TagRequest struct {
	ID               string     `json:"id"`
	NewDocentID      string     `json:"newDocentId"`
	SeasonedDocentID *string    `json:"seasonedDocentId"`
	Date             time.Time  `json:"-"`
	TimeSlot         TimeSlot   `json:"timeSlot"`
	Status           TagStatus  `json:"status"`
	Notes            *string    `json:"notes"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// DateOnly truncates t to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive [Start, End] calendar-date filter.
type DateRange struct {
	Start time.Time
	End   time.Time
}
