// Package notify delivers transactional email and SMS. Delivery is
// best-effort: every send runs on its own goroutine and failures are logged,
// never returned to the caller.
package notify

import (
	"context"
	"fmt"
	"log"

	"docentdispatch/internal/model"
)

// Notifier is the collaborator the auth and tag engines hand finished state
// transitions to. Implementations must not block the request path.
type Notifier interface {
	SendTagConfirmation(ctx context.Context, tag model.TagRequest, newDocent, seasonedDocent model.User)
	SendPasswordReset(ctx context.Context, user model.User, resetLink string)
}

type Mailer interface {
	Send(to []string, subject, body string) error
}

type SMSSender interface {
	Send(toPhone, message string) error
}

// Service fans a notification out to email and, when a phone number is on
// file, SMS. Either channel may be nil.
type Service struct {
	mailer Mailer
	sms    SMSSender
}

func NewService(mailer Mailer, sms SMSSender) *Service {
	return &Service{mailer: mailer, sms: sms}
}

func (s *Service) SendTagConfirmation(_ context.Context, tag model.TagRequest, newDocent, seasonedDocent model.User) {
	subject, body := formatTagConfirmation(tag, newDocent, seasonedDocent)
	go func() {
		if s.mailer != nil {
			if err := s.mailer.Send([]string{newDocent.Email, seasonedDocent.Email}, subject, body); err != nil {
				log.Printf("tag confirmation email failed for tag %s: %v", tag.ID, err)
			}
		}
		if s.sms != nil {
			message := fmt.Sprintf("Tag-along scheduled for %s (%s). Check your email for details.",
				tag.Date.Format("Mon Jan 2"), tag.TimeSlot)
			for _, docent := range []model.User{newDocent, seasonedDocent} {
				if docent.Phone == nil || *docent.Phone == "" {
					continue
				}
				if err := s.sms.Send(*docent.Phone, message); err != nil {
					log.Printf("tag confirmation sms to %s failed: %v", *docent.Phone, err)
				}
			}
		}
	}()
}

func (s *Service) SendPasswordReset(_ context.Context, user model.User, resetLink string) {
	subject, body := formatPasswordReset(user, resetLink)
	go func() {
		if s.mailer == nil {
			// Dev mode: no SMTP configured, log instead of sending.
			log.Printf("password reset for %s: %s", user.Email, resetLink)
			return
		}
		if err := s.mailer.Send([]string{user.Email}, subject, body); err != nil {
			log.Printf("password reset email to %s failed: %v", user.Email, err)
		}
	}()
}

func formatTagConfirmation(tag model.TagRequest, newDocent, seasonedDocent model.User) (string, string) {
	tagDate := tag.Date.Format("Monday, January 2, 2006")
	subject := fmt.Sprintf("Tag-Along Scheduled: %s (%s)", tagDate, tag.TimeSlot)
	body := fmt.Sprintf(`Hello %s and %s,

A tag-along has been scheduled for:

Date: %s
Time: %s

New Docent: %s (%s)
Seasoned Docent: %s (%s)

Please communicate directly to agree on a specific meeting time and location.

If you need to cancel or reschedule, please do so at least 24 hours in advance
through the docent matching app.

Thank you for your participation in the docent program!

Best regards,
Docent Program Coordinator
`,
		newDocent.FullName(), seasonedDocent.FullName(),
		tagDate, tag.TimeSlot,
		newDocent.FullName(), newDocent.Email,
		seasonedDocent.FullName(), seasonedDocent.Email)
	return subject, body
}

func formatPasswordReset(user model.User, resetLink string) (string, string) {
	subject := "Docent Program Password Reset"
	body := fmt.Sprintf(`Hello %s,

A password reset was requested for your docent program account. Use the link
below within the next hour to choose a new password:

%s

If you did not request this, you can ignore this message.

Best regards,
Docent Program Coordinator
`, user.FullName(), resetLink)
	return subject, body
}

// Recorder captures notifications for tests.
type Recorder struct {
	TagConfirmations []model.TagRequest
	ResetLinks       map[string]string
}

func NewRecorder() *Recorder {
	return &Recorder{ResetLinks: make(map[string]string)}
}

func (r *Recorder) SendTagConfirmation(_ context.Context, tag model.TagRequest, _, _ model.User) {
	r.TagConfirmations = append(r.TagConfirmations, tag)
}

func (r *Recorder) SendPasswordReset(_ context.Context, user model.User, resetLink string) {
	r.ResetLinks[user.Email] = resetLink
}

var _ Notifier = (*Service)(nil)
var _ Notifier = (*Recorder)(nil)
