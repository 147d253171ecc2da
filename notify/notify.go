// Package notify implements the notification facade (C9, spec.md §4.4,
// §7, §9): four Slack webhooks plus optional Twilio SMS, fire-and-forget,
// best-effort ordering (spec.md §5: "Notifications are fire-and-forget;
// their ordering is best-effort.").
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config carries the webhook/SMS endpoints spec.md §6 lists as env vars.
// Any empty URL disables that sink silently (matches original_source's
// "skipped when kovan" / missing-webhook behaviour).
type Config struct {
	SlackErrorsWebhook               string
	SlackPrintingTxWebhook           string
	SlackArbitrageOpportunitiesWebhook string
	SlackSnipeWebhook                string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	AgentPhoneNumbers []string

	HTTPTimeout time.Duration
}

// Notifier sends best-effort notifications to the sinks above.
type Notifier struct {
	config Config
	client *http.Client
}

// New builds a Notifier. All sends are fire-and-forget: errors are logged,
// never returned to the caller, matching the facade's best-effort ordering
// guarantee (spec.md §5).
func New(config Config) *Notifier {
	timeout := config.HTTPTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{config: config, client: &http.Client{Timeout: timeout}}
}

type slackMessage struct {
	Text string `json:"text"`
}

func (n *Notifier) postSlack(webhook, text string) {
	if webhook == "" {
		return
	}
	go func() {
		body, err := json.Marshal(slackMessage{Text: text})
		if err != nil {
			log.Printf("⚠️ notify: marshal slack payload: %v", err)
			return
		}
		resp, err := n.client.Post(webhook, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("⚠️ notify: slack webhook post failed: %v", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Printf("⚠️ notify: slack webhook returned status %d", resp.StatusCode)
		}
	}()
}

// Errors sends to SLACK_ERRORS_WEBHOOK — spec.md §7's sink for
// ValidationFailure / TxTimeout / TxReverted.
func (n *Notifier) Errors(text string) { n.postSlack(n.config.SlackErrorsWebhook, text) }

// PrintingTx sends to SLACK_PRINTING_TX_WEBHOOK — a dispatch's success or
// revert notice (spec.md §4.4 Step 5).
func (n *Notifier) PrintingTx(text string) { n.postSlack(n.config.SlackPrintingTxWebhook, text) }

// ArbitrageOpportunity sends to SLACK_ARBITRAGE_OPPORTUNITIES_WEBHOOK — the
// formatted opportunity message (ArbitragePath.print in original_source;
// the text is built by strategy's formatOpportunity).
func (n *Notifier) ArbitrageOpportunity(text string) {
	n.postSlack(n.config.SlackArbitrageOpportunitiesWebhook, text)
}

// Snipe sends to SLACK_SNIPE_WEBHOOK — SNIPE-strategy-only notices.
func (n *Notifier) Snipe(text string) { n.postSlack(n.config.SlackSnipeWebhook, text) }

// SMS sends a Twilio SMS to every configured agent phone number. A no-op
// when Twilio credentials are unset (spec.md §6: optional).
func (n *Notifier) SMS(body string) {
	if n.config.TwilioAccountSID == "" || n.config.TwilioAuthToken == "" {
		return
	}
	for _, to := range n.config.AgentPhoneNumbers {
		to := to
		go func() {
			endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", n.config.TwilioAccountSID)
			form := url.Values{}
			form.Set("From", n.config.TwilioFromNumber)
			form.Set("To", to)
			form.Set("Body", body)
			req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
			if err != nil {
				log.Printf("⚠️ notify: build twilio request: %v", err)
				return
			}
			req.SetBasicAuth(n.config.TwilioAccountSID, n.config.TwilioAuthToken)
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			resp, err := n.client.Do(req)
			if err != nil {
				log.Printf("⚠️ notify: twilio send failed: %v", err)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				log.Printf("⚠️ notify: twilio returned status %d", resp.StatusCode)
			}
		}()
	}
}
