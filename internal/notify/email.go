package notify

import (
	"bytes"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"

	"github.com/jacobarthurs/pg-health/internal/health"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

func defaultSendMail(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	return smtp.SendMail(addr, a, from, to, msg)
}

// EmailConfig carries SMTP settings; zero fields fall back to the
// PG_HEALTH_SMTP_* and PG_HEALTH_EMAIL_* environment variables.
type EmailConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   string
}

func (c EmailConfig) withEnv() EmailConfig {
	if c.Host == "" {
		c.Host = os.Getenv("PG_HEALTH_SMTP_HOST")
	}
	if c.Port == 0 {
		c.Port = 587
		if v := os.Getenv("PG_HEALTH_SMTP_PORT"); v != "" {
			if p, err := strconv.Atoi(v); err == nil {
				c.Port = p
			}
		}
	}
	if c.User == "" {
		c.User = os.Getenv("PG_HEALTH_SMTP_USER")
	}
	if c.Pass == "" {
		c.Pass = os.Getenv("PG_HEALTH_SMTP_PASS")
	}
	if c.From == "" {
		c.From = os.Getenv("PG_HEALTH_EMAIL_FROM")
	}
	if c.To == "" {
		c.To = os.Getenv("PG_HEALTH_EMAIL_TO")
	}
	return c
}

// Email sends the report as a text+HTML multipart message over SMTP
// with STARTTLS.
func (n *Notifier) Email(report *health.Report, cfg EmailConfig) Result {
	cfg = cfg.withEnv()
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" || cfg.From == "" || cfg.To == "" {
		return Result{Provider: ProviderEmail, Error: "missing SMTP configuration (host/user/pass/from/to)"}
	}
	if r, ok := n.skip(report, ProviderEmail); ok {
		return r
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	auth := smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	if err := n.sendMail(addr, auth, cfg.From, []string{cfg.To}, buildEmail(report, cfg.From, cfg.To)); err != nil {
		return Result{Provider: ProviderEmail, Error: err.Error()}
	}
	return Result{Provider: ProviderEmail, Success: true, Message: "Sent to " + cfg.To}
}

func buildEmail(report *health.Report, from, to string) []byte {
	status := strings.ToUpper(report.OverallStatus.String())
	const boundary = "pg-health-report"

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: [pg-health] %s: %s\r\n", report.DatabaseName, status)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(FormatText(report, true))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(htmlBody(report, status))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}

func htmlBody(report *health.Report, status string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>🐘 PG Health Report: %s</h2>\n", html.EscapeString(report.DatabaseName))
	fmt.Fprintf(&b, "<p><strong>Status:</strong> %s %s</p>\n", severityEmoji(report.OverallStatus), status)

	section := func(icon, title string, sev health.Severity) {
		var items []health.Finding
		for _, c := range report.Checks {
			if c.Severity == sev {
				items = append(items, c)
			}
		}
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "<h3>%s %s</h3>\n<ul>\n", icon, title)
		for _, c := range items {
			fmt.Fprintf(&b, "<li><strong>%s:</strong> %s</li>\n", html.EscapeString(c.Name), html.EscapeString(c.Message))
		}
		b.WriteString("</ul>\n")
	}
	section("❌", "Critical Issues", health.Critical)
	section("⚠️", "Warnings", health.Warning)

	passed := 0
	for _, c := range report.Checks {
		if c.Severity == health.OK {
			passed++
		}
	}
	fmt.Fprintf(&b, "<p>✅ %d checks passed</p>\n", passed)
	b.WriteString("<hr><p><small>Sent by pg-health</small></p>")
	return b.String()
}
