package output

import (
	"fmt"
	"io"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jacobarthurs/pg-health/internal/comparator"
	"github.com/jacobarthurs/pg-health/internal/fix"
	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/history"
	"github.com/jacobarthurs/pg-health/internal/suggest"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

var grouped = message.NewPrinter(language.English)

type textWriter struct {
	w   io.Writer
	err error
}

func (tw *textWriter) printf(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, format, args...)
}

// RenderReportText writes the full check report: database header, one
// line per check with its suggestion, the severity summary, then the
// unused-index, largest-table, and slow-query sections.
func RenderReportText(w io.Writer, report *health.Report) error {
	tw := &textWriter{w: w}

	tw.printf("%s%s%s%s\n", colorBold, colorCyan, report.DatabaseName, colorReset)
	if report.DatabaseVersion != "" {
		tw.printf("%s%s%s\n", colorDim, report.DatabaseVersion, colorReset)
	}
	tw.printf("\n%s%sHealth Checks%s\n\n", colorBold, colorCyan, colorReset)

	for _, c := range report.Checks {
		color := severityColor(c.Severity)
		tw.printf("  %s %s%-22s%s %s%s%s\n",
			severityIcon(c.Severity), colorBold, c.Name, colorReset, color, c.Message, colorReset)
		if c.Suggestion != "" {
			tw.printf("       %s→ %s%s\n", colorDim, c.Suggestion, colorReset)
		}
	}

	s := report.Summary()
	tw.printf("\n%sSummary:%s %s%d OK%s, %s%d Info%s, %s%d Warnings%s, %s%d Critical%s\n",
		colorBold, colorReset,
		colorGreen, s.OK, colorReset,
		colorBlue, s.Info, colorReset,
		colorYellow, s.Warnings, colorReset,
		colorRed, s.Criticals, colorReset)

	tw.renderUnusedIndexes(report.UnusedIndexes)
	tw.renderLargestTables(report.Tables)
	tw.renderSlowQueries(report.SlowQueries)

	return tw.err
}

func (tw *textWriter) renderUnusedIndexes(indexes []health.IndexStat) {
	if len(indexes) == 0 {
		return
	}
	tw.printf("\n%s%sUnused Indexes (%d):%s\n", colorBold, colorYellow, len(indexes), colorReset)
	for i, idx := range indexes {
		if i == 5 {
			tw.printf("  ... and %d more\n", len(indexes)-5)
			break
		}
		tw.printf("  • %s.%s (%s)\n", idx.Table, idx.Name, idx.Size)
	}
}

func (tw *textWriter) renderLargestTables(tables []health.TableStat) {
	if len(tables) == 0 {
		return
	}
	tw.printf("\n%sLargest Tables:%s\n", colorBold, colorReset)
	for i, t := range tables {
		if i == 5 {
			break
		}
		tw.printf("  • %s.%s: %s (%s rows)\n",
			t.Schema, t.Name, t.TotalSize, grouped.Sprintf("%d", t.RowCount))
	}
}

func (tw *textWriter) renderSlowQueries(queries []health.SlowQuery) {
	if len(queries) == 0 {
		return
	}
	tw.printf("\n%sSlowest Queries:%s\n", colorBold, colorReset)
	for i, q := range queries {
		if i == 3 {
			break
		}
		tw.printf("  • %.0fms avg (%d calls)\n", q.MeanTimeMS, q.Calls)
		tw.printf("    %s%s%s\n", colorDim, queryPreview(q.Query), colorReset)
	}
}

// queryPreview flattens a statement to one line and caps it at 80 runes.
func queryPreview(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if r := []rune(q); len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return q
}

func severityIcon(s health.Severity) string {
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

func severityColor(s health.Severity) string {
	switch s {
	case health.OK:
		return colorGreen
	case health.Info:
		return colorBlue
	case health.Warning:
		return colorYellow
	case health.Critical:
		return colorRed
	}
	return ""
}

// RenderRecommendationsText writes recommendations grouped by priority,
// highest first. The engine emits them already ordered, so groups are
// contiguous. SQL actions print the statement ready to paste.
func RenderRecommendationsText(w io.Writer, recs []suggest.Recommendation) error {
	tw := &textWriter{w: w}

	if len(recs) == 0 {
		tw.printf("%s%sNo recommendations. Database looks good.%s\n", colorBold, colorGreen, colorReset)
		return tw.err
	}

	tw.printf("%s%sRecommendations (%d)%s\n", colorBold, colorCyan, len(recs), colorReset)

	var last suggest.Priority
	for _, r := range recs {
		if r.Priority != last {
			label, color := priorityFormat(r.Priority)
			tw.printf("\n%s%s%s%s\n\n", colorBold, color, label, colorReset)
			last = r.Priority
		}
		tw.printf("  • %s%s%s\n", colorBold, r.Title, colorReset)
		tw.printf("    %s\n", r.Why)
		if r.Impact != "" {
			tw.printf("    %simpact: %s%s\n", colorDim, r.Impact, colorReset)
		}
		if r.Action.IsSQL() {
			tw.printf("    %s%s%s\n", colorCyan, r.Action.Text(), colorReset)
		} else {
			tw.printf("    %s→ %s%s\n", colorDim, r.Action.Text(), colorReset)
		}
	}

	return tw.err
}

func priorityFormat(p suggest.Priority) (string, string) {
	switch p {
	case suggest.High:
		return "HIGH", colorRed
	case suggest.Medium:
		return "MEDIUM", colorYellow
	default:
		return "LOW", colorCyan
	}
}

// RenderPlanText writes a fix plan: the statements for a dry run, or
// per-item outcomes after an apply.
func RenderPlanText(w io.Writer, plan *fix.Plan) error {
	tw := &textWriter{w: w}

	mode := "apply"
	if plan.DryRun {
		mode = "dry-run"
	}
	tw.printf("%s%sFix Plan: %s (%s)%s\n\n", colorBold, colorCyan, plan.FixType, mode, colorReset)

	if len(plan.Items) == 0 {
		tw.printf("%s%sNothing to fix.%s\n", colorBold, colorGreen, colorReset)
		return tw.err
	}

	for _, item := range plan.Items {
		tw.renderPlanItem(item, plan.DryRun)
	}

	if plan.DryRun {
		tw.printf("\n%sDry run only. Re-run with --apply to execute.%s\n", colorDim, colorReset)
	}

	return tw.err
}

func (tw *textWriter) renderPlanItem(item fix.Item, dryRun bool) {
	if dryRun {
		tw.printf("  %s%s%s\n", colorCyan, item.Statement, colorReset)
		tw.printf("  %s%s%s\n\n", colorDim, item.Message, colorReset)
		return
	}
	switch {
	case item.Error != "":
		tw.printf("  ❌ %s%s%s\n", colorRed, item.Message, colorReset)
	case item.Executed:
		tw.printf("  ✅ %s\n", item.Message)
	default:
		tw.printf("  %s– skipped: %s%s\n", colorDim, item.Target, colorReset)
	}
}

// RenderHistoryText lists saved runs, newest first.
func RenderHistoryText(w io.Writer, entries []history.Entry) error {
	tw := &textWriter{w: w}

	if len(entries) == 0 {
		tw.printf("No saved runs. Use check --save to record one.\n")
		return tw.err
	}

	tw.printf("%s%sHistory (%d runs)%s\n\n", colorBold, colorCyan, len(entries), colorReset)
	for _, e := range entries {
		sev, _ := health.ParseSeverity(e.WorstSeverity)
		tw.printf("  %s  %s %s%-8s%s %-16s %d checks, %d warnings, %d critical\n",
			e.CheckedAt.Local().Format("2006-01-02 15:04"),
			severityIcon(sev), severityColor(sev), e.WorstSeverity, colorReset,
			e.DatabaseName, e.TotalChecks, e.Warnings, e.Criticals)
	}

	return tw.err
}

// RenderTrendText writes a metric's samples oldest first, each with the
// movement against the previous sample, then the overall change.
func RenderTrendText(w io.Writer, metric string, points []history.MetricPoint) error {
	tw := &textWriter{w: w}

	if len(points) == 0 {
		tw.printf("No samples for %s.\n", metric)
		return tw.err
	}

	tw.printf("%s%sTrend: %s%s\n\n", colorBold, colorCyan, metric, colorReset)

	for i, p := range points {
		tw.printf("  %s  %s", p.Timestamp.Local().Format("2006-01-02 15:04"), formatValue(p.Value))
		if i > 0 {
			tw.printf(" %s", trendArrow(points[i-1].Value, p.Value))
		}
		tw.printf("\n")
	}

	if len(points) > 1 {
		first, lastVal := points[0].Value, points[len(points)-1].Value
		tw.printf("\n%s → %s %s (%+.1f%%)\n",
			formatValue(first), formatValue(lastVal), trendArrow(first, lastVal), pctChange(first, lastVal))
	}

	return tw.err
}

func trendArrow(prev, cur float64) string {
	switch {
	case cur > prev:
		return "↑"
	case cur < prev:
		return "↓"
	}
	return "→"
}

// RenderComparisonText writes a run comparison: status movement, the
// per-check changes with their metric deltas, then the verdict.
func RenderComparisonText(w io.Writer, result comparator.ComparisonResult) error {
	tw := &textWriter{w: w}
	s := result.Summary

	tw.printf("%s%sComparison: %s%s\n", colorBold, colorCyan, result.New.Database, colorReset)
	tw.printf("%s%s → %s%s\n\n", colorDim,
		result.Old.CheckedAt.Local().Format("2006-01-02 15:04"),
		result.New.CheckedAt.Local().Format("2006-01-02 15:04"), colorReset)

	tw.printf("  Status:    %s%s%s → %s%s%s\n",
		severityColor(s.OldStatus), s.OldStatus, colorReset,
		severityColor(s.NewStatus), s.NewStatus, colorReset)
	tw.printf("  Warnings:  %d → %d\n", s.OldWarnings, s.NewWarnings)
	tw.printf("  Criticals: %d → %d\n", s.OldCriticals, s.NewCriticals)

	changes := s.ChecksImproved + s.ChecksRegressed + s.ChecksModified + s.ChecksAdded + s.ChecksRemoved
	if changes == 0 {
		tw.printf("\n%s%sRuns are identical.%s\n", colorBold, colorGreen, colorReset)
		return tw.err
	}

	tw.printf("\n  Changes: %d improved, %d regressed, %d modified, %d added, %d removed\n",
		s.ChecksImproved, s.ChecksRegressed, s.ChecksModified, s.ChecksAdded, s.ChecksRemoved)

	tw.printf("\n%s%sCheck Details%s\n\n", colorBold, colorCyan, colorReset)

	for _, d := range result.Deltas {
		tw.renderCheckDelta(d)
	}

	tw.renderVerdict(s)
	return tw.err
}

func (tw *textWriter) renderCheckDelta(d comparator.CheckDelta) {
	switch d.ChangeType {
	case comparator.NoChange:
		return
	case comparator.Added:
		tw.printf("  %s+ %s%s (%s)\n", colorGreen, d.Name, colorReset, d.NewSeverity)
		if d.NewMessage != "" {
			tw.printf("    %s%s%s\n", colorDim, d.NewMessage, colorReset)
		}
	case comparator.Removed:
		tw.printf("  %s- %s%s (was %s)\n", colorRed, d.Name, colorReset, d.OldSeverity)
	case comparator.Modified:
		tw.renderModifiedCheck(d)
	}
}

func (tw *textWriter) renderModifiedCheck(d comparator.CheckDelta) {
	tw.printf("  %s~ %s%s", colorYellow, d.Name, colorReset)
	if d.OldSeverity != d.NewSeverity {
		tw.printf(": %s%s%s → %s%s%s %s",
			severityColor(d.OldSeverity), d.OldSeverity, colorReset,
			severityColor(d.NewSeverity), d.NewSeverity, colorReset,
			dirMark(d.SeverityDir))
	}
	tw.printf("\n")
	if d.NewMessage != "" && d.NewMessage != d.OldMessage {
		tw.printf("    %s%s%s\n", colorDim, d.NewMessage, colorReset)
	}
	for _, m := range d.Metrics {
		tw.printf("    %s: %s → %s (%+.1f%%)\n", m.Key, formatValue(m.Old), formatValue(m.New), m.Pct)
	}
}

func dirMark(d comparator.Direction) string {
	switch d {
	case comparator.Improved:
		return colorGreen + "✓" + colorReset
	case comparator.Regressed:
		return colorRed + "✗" + colorReset
	}
	return ""
}

func (tw *textWriter) renderVerdict(s comparator.Summary) {
	var color string
	switch {
	case s.ChecksImproved > 0 && s.ChecksRegressed == 0:
		color = colorGreen
	case s.ChecksRegressed > 0 && s.ChecksImproved == 0:
		color = colorRed
	case s.ChecksImproved > 0 || s.ChecksRegressed > 0:
		color = colorYellow
	}
	if color != "" {
		tw.printf("\n%sVerdict: %s%s\n", color, s.Verdict, colorReset)
	} else {
		tw.printf("\nVerdict: %s\n", s.Verdict)
	}
}

// formatValue keeps whole numbers whole and fractions at two decimals.
func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return grouped.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func pctChange(old, new float64) float64 {
	if old == 0 {
		if new == 0 {
			return 0
		}
		return 100
	}
	return ((new - old) / old) * 100
}
