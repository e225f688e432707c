package notify

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioSMS sends messages through the Twilio REST API.
type TwilioSMS struct {
	accountSID string
	authToken  string
	fromPhone  string
	client     *http.Client
}

func NewTwilioSMS(accountSID, authToken, fromPhone string) *TwilioSMS {
	return &TwilioSMS{
		accountSID: accountSID,
		authToken:  authToken,
		fromPhone:  fromPhone,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TwilioSMS) Send(toPhone, message string) error {
	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", t.accountSID)
	form := url.Values{}
	form.Set("To", toPhone)
	form.Set("From", t.fromPhone)
	form.Set("Body", message)

	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("twilio responded %d", resp.StatusCode)
	}
	return nil
}
