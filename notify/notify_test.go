package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureServer records every request body it receives on a channel, since
// every send in this package is fire-and-forget (launched in a goroutine).
func captureServer(t *testing.T) (*httptest.Server, chan []byte) {
	t.Helper()
	received := make(chan []byte, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, received
}

func waitForBody(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case body := <-ch:
		return body
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notifier to post")
		return nil
	}
}

func TestNotifier_Errors_PostsSlackMessage(t *testing.T) {
	server, received := captureServer(t)
	n := New(Config{SlackErrorsWebhook: server.URL})

	n.Errors("gas cost exceeds sanity cap")

	body := waitForBody(t, received)
	var msg slackMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "gas cost exceeds sanity cap", msg.Text)
}

func TestNotifier_PostSlack_NoopOnEmptyWebhook(t *testing.T) {
	n := New(Config{})
	// Must not panic or block; there is nothing to assert beyond "returns".
	n.Errors("should be dropped silently")
	n.PrintingTx("should be dropped silently")
	n.ArbitrageOpportunity("should be dropped silently")
	n.Snipe("should be dropped silently")
}

func TestNotifier_ArbitrageOpportunity_RoutesToItsOwnWebhook(t *testing.T) {
	errServer, errReceived := captureServer(t)
	oppServer, oppReceived := captureServer(t)
	n := New(Config{SlackErrorsWebhook: errServer.URL, SlackArbitrageOpportunitiesWebhook: oppServer.URL})

	n.ArbitrageOpportunity("found a fillable cycle")

	body := waitForBody(t, oppReceived)
	var msg slackMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "found a fillable cycle", msg.Text)

	select {
	case <-errReceived:
		t.Fatal("ArbitrageOpportunity must not post to the errors webhook")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifier_SMS_NoopWithoutTwilioCredentials(t *testing.T) {
	n := New(Config{AgentPhoneNumbers: []string{"+15550001111"}})
	n.SMS("should be dropped silently: no twilio creds configured")
}

