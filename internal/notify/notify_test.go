package notify

import (
	"strings"
	"testing"
	"time"

	"docentdispatch/internal/model"
)

func TestFormatTagConfirmation(t *testing.T) {
	phone := "+14155550123"
	newDocent := model.User{FirstName: "Dana", LastName: "Lee", Email: "dana@example.org", Phone: &phone}
	seasoned := model.User{FirstName: "Sam", LastName: "Reyes", Email: "sam@example.org"}
	tag := model.TagRequest{
		ID:       "tag-1",
		Date:     time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		TimeSlot: model.SlotAM,
	}

	subject, body := formatTagConfirmation(tag, newDocent, seasoned)
	if !strings.Contains(subject, "Monday, September 14, 2026") {
		t.Fatalf("expected formatted date in subject, got %q", subject)
	}
	if !strings.Contains(subject, "AM") {
		t.Fatalf("expected time slot in subject, got %q", subject)
	}
	for _, want := range []string{"Dana Lee", "Sam Reyes", "dana@example.org", "sam@example.org"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in body", want)
		}
	}
}

func TestFormatPasswordReset(t *testing.T) {
	user := model.User{FirstName: "Dana", LastName: "Lee", Email: "dana@example.org"}
	link := "https://docents.example.org/reset-password?token=abc"

	_, body := formatPasswordReset(user, link)
	if !strings.Contains(body, link) {
		t.Fatalf("expected reset link in body")
	}
	if !strings.Contains(body, "Dana Lee") {
		t.Fatalf("expected recipient name in body")
	}
}
