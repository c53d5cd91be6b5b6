package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobarthurs/pg-health/internal/health"
)

// --- Helpers ---

func issueReport() *health.Report {
	checks := []health.Finding{
		{Name: "Cache Hit Ratio", Severity: health.OK, Message: "Cache hit ratio: 99.0%"},
		{Name: "Lock Waits", Severity: health.Warning, Message: "8 queries waiting on locks",
			Suggestion: "Identify blocking queries with pg_blocking_pids()"},
		{Name: "Connection Usage", Severity: health.Critical, Message: "95/100 connections (95%)"},
	}
	return &health.Report{
		DatabaseName:  "app",
		Checks:        checks,
		OverallStatus: health.Overall(checks),
	}
}

func cleanReport() *health.Report {
	checks := []health.Finding{
		{Name: "Cache Hit Ratio", Severity: health.OK, Message: "Cache hit ratio: 99.0%"},
		{Name: "Lock Waits", Severity: health.OK, Message: "No lock waits"},
	}
	return &health.Report{
		DatabaseName:  "app",
		Checks:        checks,
		OverallStatus: health.Overall(checks),
	}
}

// capture records requests arriving at a test server.
type capture struct {
	requests int
	path     string
	body     []byte
}

func newCaptureServer(t *testing.T, status int, response string) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.requests++
		c.path = r.URL.Path
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		c.body = body
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(server.Close)
	return server, c
}

func TestWebhook_PostsPayload(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, "")

	result := NewNotifier().Webhook(context.Background(), issueReport(), server.URL)

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "webhook", result.Provider)
	assert.True(t, strings.HasPrefix(result.Message, "Posted to "))
	require.Equal(t, 1, captured.requests)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(captured.body, &payload))
	assert.Equal(t, "app", payload["database"])
	assert.Equal(t, "critical", payload["status"])
	assert.Equal(t, true, payload["has_issues"])

	checks := payload["checks"].([]any)
	require.Len(t, checks, 3)
	first := checks[0].(map[string]any)
	for _, key := range []string{"name", "severity", "message", "suggestion"} {
		assert.Contains(t, first, key)
	}

	summary := payload["summary"].(map[string]any)
	assert.Equal(t, float64(3), summary["total_checks"])
	assert.Equal(t, float64(1), summary["warnings"])
	assert.Equal(t, float64(1), summary["criticals"])
}

func TestWebhook_SkipsCleanReport(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, "")

	result := NewNotifier().Webhook(context.Background(), cleanReport(), server.URL)

	assert.True(t, result.Success)
	assert.Equal(t, "Skipped - no issues to report", result.Message)
	assert.Equal(t, 0, captured.requests, "clean report must not hit the webhook")
}

func TestWebhook_NotifyAlways(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, "")

	n := NewNotifier()
	n.OnlyOnIssues = false
	result := n.Webhook(context.Background(), cleanReport(), server.URL)

	assert.True(t, result.Success)
	assert.Equal(t, 1, captured.requests)
}

func TestWebhook_MissingURL(t *testing.T) {
	t.Setenv("PG_HEALTH_WEBHOOK_URL", "")

	result := NewNotifier().Webhook(context.Background(), issueReport(), "")

	assert.False(t, result.Success)
	assert.Equal(t, "missing webhook URL", result.Error)
}

func TestWebhook_EnvFallback(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, "")
	t.Setenv("PG_HEALTH_WEBHOOK_URL", server.URL)

	result := NewNotifier().Webhook(context.Background(), issueReport(), "")

	assert.True(t, result.Success)
	assert.Equal(t, 1, captured.requests)
}

func TestWebhook_ServerError(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusInternalServerError, "")

	result := NewNotifier().Webhook(context.Background(), issueReport(), server.URL)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unexpected status 500")
}

func TestSlack_AttachmentShape(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, "ok")

	result := NewNotifier().Slack(context.Background(), issueReport(), server.URL)

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "Sent to Slack", result.Message)

	var msg slackMessage
	require.NoError(t, json.Unmarshal(captured.body, &msg))
	require.Len(t, msg.Attachments, 1)

	att := msg.Attachments[0]
	assert.Equal(t, "danger", att.Color)
	assert.Equal(t, "PG Health: app", att.Title)
	assert.Equal(t, "pg-health", att.Footer)
	assert.Contains(t, att.Text, "❌ CRITICAL:")
	assert.Contains(t, att.Text, "• Connection Usage: 95/100 connections (95%)")
	assert.Contains(t, att.Text, "⚠️ WARNINGS:")
}

func TestSlack_ColorTracksSeverity(t *testing.T) {
	for severity, want := range map[health.Severity]string{
		health.OK:       "good",
		health.Info:     "#439FE0",
		health.Warning:  "warning",
		health.Critical: "danger",
	} {
		assert.Equal(t, want, slackColor(severity), "severity %s", severity)
	}
}

func TestTelegram_SendMessage(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, `{"ok": true}`)

	n := NewNotifier()
	n.telegramBase = server.URL
	result := n.Telegram(context.Background(), issueReport(), "TOKEN123", "42")

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "Sent to chat 42", result.Message)
	assert.Equal(t, "/botTOKEN123/sendMessage", captured.path)

	var body map[string]string
	require.NoError(t, json.Unmarshal(captured.body, &body))
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "HTML", body["parse_mode"])
	assert.Contains(t, body["text"], "🐘 PG Health Report: app")
}

func TestTelegram_APIError(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusOK, `{"ok": false, "description": "chat not found"}`)

	n := NewNotifier()
	n.telegramBase = server.URL
	result := n.Telegram(context.Background(), issueReport(), "TOKEN123", "42")

	assert.False(t, result.Success)
	assert.Equal(t, "chat not found", result.Error)
}

func TestTelegram_MissingConfig(t *testing.T) {
	t.Setenv("PG_HEALTH_TELEGRAM_TOKEN", "")
	t.Setenv("PG_HEALTH_TELEGRAM_CHAT_ID", "")

	result := NewNotifier().Telegram(context.Background(), issueReport(), "", "")

	assert.False(t, result.Success)
	assert.Equal(t, "missing Telegram token or chat ID", result.Error)
}

func TestEmail_BuildsMultipartMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	n := NewNotifier()
	n.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	result := n.Email(issueReport(), EmailConfig{
		Host: "smtp.example.com",
		Port: 2525,
		User: "mailer",
		Pass: "secret",
		From: "pg-health@example.com",
		To:   "dba@example.com",
	})

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "Sent to dba@example.com", result.Message)
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, "pg-health@example.com", gotFrom)
	assert.Equal(t, []string{"dba@example.com"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: [pg-health] app: CRITICAL")
	assert.Contains(t, msg, "Content-Type: multipart/alternative")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, msg, "Content-Type: text/html; charset=utf-8")
	assert.Contains(t, msg, "<h3>❌ Critical Issues</h3>")
	assert.Contains(t, msg, "Sent by pg-health")
}

func TestEmail_DefaultPort(t *testing.T) {
	t.Setenv("PG_HEALTH_SMTP_PORT", "")
	var gotAddr string

	n := NewNotifier()
	n.sendMail = func(addr string, _ smtp.Auth, _ string, _ []string, _ []byte) error {
		gotAddr = addr
		return nil
	}

	result := n.Email(issueReport(), EmailConfig{
		Host: "smtp.example.com",
		User: "mailer",
		Pass: "secret",
		From: "a@example.com",
		To:   "b@example.com",
	})

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
}

func TestEmail_MissingConfig(t *testing.T) {
	for _, key := range []string{
		"PG_HEALTH_SMTP_HOST", "PG_HEALTH_SMTP_USER", "PG_HEALTH_SMTP_PASS",
		"PG_HEALTH_EMAIL_FROM", "PG_HEALTH_EMAIL_TO",
	} {
		t.Setenv(key, "")
	}

	result := NewNotifier().Email(issueReport(), EmailConfig{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "missing SMTP configuration")
}

func TestFormatText(t *testing.T) {
	text := FormatText(issueReport(), false)

	assert.True(t, strings.HasPrefix(text, "🐘 PG Health Report: app\n"))
	assert.Contains(t, text, "Status: ❌ CRITICAL")
	assert.Contains(t, text, "  • Connection Usage: 95/100 connections (95%)")
	assert.Contains(t, text, "  • Lock Waits: 8 queries waiting on locks")
	assert.Less(t, strings.Index(text, "❌ CRITICAL:"), strings.Index(text, "⚠️ WARNINGS:"),
		"critical findings come before warnings")
	assert.NotContains(t, text, "checks passed")

	withOK := FormatText(issueReport(), true)
	assert.Contains(t, withOK, "✅ 1 checks passed")
}

func TestSend_DispatchAndUnknownProvider(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, "")
	t.Setenv("PG_HEALTH_WEBHOOK_URL", server.URL)

	results := NewNotifier().Send(context.Background(), issueReport(), []string{"webhook", "pager"})

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, 1, captured.requests)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, `unknown provider "pager"`)
}
