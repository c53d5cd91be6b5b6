// Package notify delivers health reports to external channels: generic
// webhooks, Slack, Telegram, and SMTP email. Senders return a Result
// instead of an error so one broken channel never blocks the others,
// and by default they stay quiet when a report has no issues.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jacobarthurs/pg-health/internal/health"
)

// Providers that Send understands.
const (
	ProviderWebhook  = "webhook"
	ProviderSlack    = "slack"
	ProviderTelegram = "telegram"
	ProviderEmail    = "email"
)

// Result reports one delivery attempt.
type Result struct {
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Payload is the JSON contract posted to generic webhooks. Field names
// are stable; downstream consumers key on them.
type Payload struct {
	Database  string         `json:"database"`
	Status    string         `json:"status"`
	HasIssues bool           `json:"has_issues"`
	Checks    []PayloadCheck `json:"checks"`
	Summary   PayloadSummary `json:"summary"`
}

type PayloadCheck struct {
	Name       string `json:"name"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

type PayloadSummary struct {
	TotalChecks int `json:"total_checks"`
	Warnings    int `json:"warnings"`
	Criticals   int `json:"criticals"`
}

func NewPayload(report *health.Report) Payload {
	sum := report.Summary()
	checks := make([]PayloadCheck, 0, len(report.Checks))
	for _, c := range report.Checks {
		checks = append(checks, PayloadCheck{
			Name:       c.Name,
			Severity:   c.Severity.String(),
			Message:    c.Message,
			Suggestion: c.Suggestion,
		})
	}
	return Payload{
		Database:  report.DatabaseName,
		Status:    report.OverallStatus.String(),
		HasIssues: report.HasIssues(),
		Checks:    checks,
		Summary: PayloadSummary{
			TotalChecks: sum.TotalChecks,
			Warnings:    sum.Warnings,
			Criticals:   sum.Criticals,
		},
	}
}

func severityEmoji(s health.Severity) string {
	switch s {
	case health.OK:
		return "✅"
	case health.Info:
		return "ℹ️"
	case health.Warning:
		return "⚠️"
	case health.Critical:
		return "❌"
	}
	return "❓"
}

// FormatText renders the plain-text notification body shared by Slack,
// Telegram, and email: status line, then critical findings, then
// warnings.
func FormatText(report *health.Report, includeOK bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🐘 PG Health Report: %s\n", report.DatabaseName)
	fmt.Fprintf(&b, "Status: %s %s\n", severityEmoji(report.OverallStatus),
		strings.ToUpper(report.OverallStatus.String()))

	var warnings, criticals []health.Finding
	passed := 0
	for _, c := range report.Checks {
		switch c.Severity {
		case health.Warning:
			warnings = append(warnings, c)
		case health.Critical:
			criticals = append(criticals, c)
		case health.OK:
			passed++
		}
	}

	if len(criticals) > 0 {
		b.WriteString("\n❌ CRITICAL:\n")
		for _, c := range criticals {
			fmt.Fprintf(&b, "  • %s: %s\n", c.Name, c.Message)
		}
	}
	if len(warnings) > 0 {
		b.WriteString("\n⚠️ WARNINGS:\n")
		for _, c := range warnings {
			fmt.Fprintf(&b, "  • %s: %s\n", c.Name, c.Message)
		}
	}
	if includeOK && passed > 0 {
		fmt.Fprintf(&b, "\n✅ %d checks passed\n", passed)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Notifier carries the shared HTTP client and send policy. With
// OnlyOnIssues set (the default), clean reports are skipped with a
// successful "skipped" result.
type Notifier struct {
	OnlyOnIssues bool

	http         *http.Client
	telegramBase string
	sendMail     sendMailFunc
}

func NewNotifier() *Notifier {
	return &Notifier{
		OnlyOnIssues: true,
		http:         &http.Client{Timeout: 10 * time.Second},
		telegramBase: "https://api.telegram.org",
		sendMail:     defaultSendMail,
	}
}

// Send fans a report out to the named providers, each configured from
// its environment variables. Unknown names come back as failed results
// so a typo is visible instead of silent.
func (n *Notifier) Send(ctx context.Context, report *health.Report, providers []string) []Result {
	results := make([]Result, 0, len(providers))
	for _, p := range providers {
		var r Result
		switch p {
		case ProviderWebhook:
			r = n.Webhook(ctx, report, "")
		case ProviderSlack:
			r = n.Slack(ctx, report, "")
		case ProviderTelegram:
			r = n.Telegram(ctx, report, "", "")
		case ProviderEmail:
			r = n.Email(report, EmailConfig{})
		default:
			r = Result{Provider: p, Error: fmt.Sprintf("unknown provider %q (valid: webhook, slack, telegram, email)", p)}
		}
		if r.Success {
			log.Debug().Str("provider", r.Provider).Str("message", r.Message).Msg("notification sent")
		} else {
			log.Warn().Str("provider", r.Provider).Str("error", r.Error).Msg("notification failed")
		}
		results = append(results, r)
	}
	return results
}

// Webhook posts the canonical JSON payload to an arbitrary endpoint.
// An empty url falls back to PG_HEALTH_WEBHOOK_URL.
func (n *Notifier) Webhook(ctx context.Context, report *health.Report, url string) Result {
	if url == "" {
		url = os.Getenv("PG_HEALTH_WEBHOOK_URL")
	}
	if url == "" {
		return Result{Provider: ProviderWebhook, Error: "missing webhook URL"}
	}
	if r, ok := n.skip(report, ProviderWebhook); ok {
		return r
	}

	if _, err := n.post(ctx, url, NewPayload(report)); err != nil {
		return Result{Provider: ProviderWebhook, Error: err.Error()}
	}
	return Result{Provider: ProviderWebhook, Success: true, Message: "Posted to " + truncate(url, 50)}
}

type slackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer"`
}

type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

func slackColor(s health.Severity) string {
	switch s {
	case health.OK:
		return "good"
	case health.Info:
		return "#439FE0"
	case health.Warning:
		return "warning"
	case health.Critical:
		return "danger"
	}
	return "#808080"
}

// Slack posts the report as a color-coded attachment. An empty url
// falls back to PG_HEALTH_SLACK_WEBHOOK.
func (n *Notifier) Slack(ctx context.Context, report *health.Report, url string) Result {
	if url == "" {
		url = os.Getenv("PG_HEALTH_SLACK_WEBHOOK")
	}
	if url == "" {
		return Result{Provider: ProviderSlack, Error: "missing Slack webhook URL"}
	}
	if r, ok := n.skip(report, ProviderSlack); ok {
		return r
	}

	msg := slackMessage{Attachments: []slackAttachment{{
		Color:  slackColor(report.OverallStatus),
		Title:  "PG Health: " + report.DatabaseName,
		Text:   FormatText(report, false),
		Footer: "pg-health",
	}}}
	if _, err := n.post(ctx, url, msg); err != nil {
		return Result{Provider: ProviderSlack, Error: err.Error()}
	}
	return Result{Provider: ProviderSlack, Success: true, Message: "Sent to Slack"}
}

// Telegram sends the report through the Bot API. Empty token or chatID
// fall back to PG_HEALTH_TELEGRAM_TOKEN / PG_HEALTH_TELEGRAM_CHAT_ID.
func (n *Notifier) Telegram(ctx context.Context, report *health.Report, token, chatID string) Result {
	if token == "" {
		token = os.Getenv("PG_HEALTH_TELEGRAM_TOKEN")
	}
	if chatID == "" {
		chatID = os.Getenv("PG_HEALTH_TELEGRAM_CHAT_ID")
	}
	if token == "" || chatID == "" {
		return Result{Provider: ProviderTelegram, Error: "missing Telegram token or chat ID"}
	}
	if r, ok := n.skip(report, ProviderTelegram); ok {
		return r
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.telegramBase, token)
	body, err := n.post(ctx, url, map[string]string{
		"chat_id":    chatID,
		"text":       FormatText(report, false),
		"parse_mode": "HTML",
	})
	if err != nil {
		return Result{Provider: ProviderTelegram, Error: err.Error()}
	}

	var reply struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return Result{Provider: ProviderTelegram, Error: fmt.Sprintf("decoding response: %v", err)}
	}
	if !reply.OK {
		if reply.Description == "" {
			reply.Description = "unknown error"
		}
		return Result{Provider: ProviderTelegram, Error: reply.Description}
	}
	return Result{Provider: ProviderTelegram, Success: true, Message: "Sent to chat " + chatID}
}

func (n *Notifier) skip(report *health.Report, provider string) (Result, bool) {
	if n.OnlyOnIssues && !report.HasIssues() {
		return Result{Provider: provider, Success: true, Message: "Skipped - no issues to report"}, true
	}
	return Result{}, false
}

func (n *Notifier) post(ctx context.Context, url string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	const maxResponseBytes = 1 << 20
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
