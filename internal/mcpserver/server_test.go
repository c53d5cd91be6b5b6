package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobarthurs/pg-health/internal/fix"
	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/suggest"
)

const initLine = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`

func mcpReport() *health.Report {
	checks := []health.Finding{
		{Name: "Cache Hit Ratio", Severity: health.OK, Message: "Cache hit ratio: 99.4%"},
		{
			Name:       "Connection Usage",
			Severity:   health.Critical,
			Message:    "95/100 connections (95%)",
			Suggestion: "Increase max_connections or add a pooler like pgbouncer",
		},
	}
	tables := make([]health.TableStat, 6)
	for i := range tables {
		tables[i] = health.TableStat{
			Schema:    "public",
			Name:      string(rune('a' + i)),
			RowCount:  int64(1000 * (i + 1)),
			TotalSize: "10 MB",
		}
	}
	return &health.Report{
		DatabaseName:    "app",
		DatabaseVersion: "PostgreSQL 16.2",
		Checks:          checks,
		Tables:          tables,
		UnusedIndexes: []health.IndexStat{
			{Schema: "public", Table: "orders", Name: "idx_old", Size: "12 MB", IsUnused: true},
		},
		OverallStatus: health.Overall(checks),
	}
}

func runSession(t *testing.T, deps Deps, lines ...string) (string, []response) {
	t.Helper()
	s := New("1.2.3", deps)
	s.in = strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer
	s.out = &out
	require.NoError(t, s.Run(context.Background()))

	var responses []response
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var resp response
		require.NoError(t, json.Unmarshal([]byte(line), &resp), "response line: %s", line)
		responses = append(responses, resp)
	}
	return out.String(), responses
}

func session(t *testing.T, deps Deps, lines ...string) []response {
	t.Helper()
	_, responses := runSession(t, deps, lines...)
	return responses
}

func toolText(t *testing.T, resp response) (string, bool) {
	t.Helper()
	require.Nil(t, resp.Error, "expected a tool result, got protocol error")
	var res callResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	require.Len(t, res.Content, 1)
	require.Equal(t, "text", res.Content[0].Type)
	return res.Content[0].Text, res.IsError
}

func callLine(id int, name string, args map[string]any) string {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	}
	data, _ := json.Marshal(msg)
	return string(data)
}

func TestInitialize(t *testing.T) {
	responses := session(t, Deps{}, initLine)
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)

	var res initializeResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &res))
	assert.Equal(t, "2024-11-05", res.ProtocolVersion)
	assert.Equal(t, "pg-health", res.ServerInfo.Name)
	assert.Equal(t, "1.2.3", res.ServerInfo.Version)
}

func TestInitializeTwice(t *testing.T) {
	responses := session(t, Deps{}, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"initialize"}`)
	require.Len(t, responses, 2)
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, codeInvalidRequest, responses[1].Error.Code)
	assert.Contains(t, responses[1].Error.Message, "already initialized")
}

func TestToolsList_RequiresInitialize(t *testing.T) {
	responses := session(t, Deps{},
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, codeInvalidRequest, responses[0].Error.Code)
	assert.Contains(t, responses[0].Error.Message, "not initialized")
}

func TestToolsList(t *testing.T) {
	responses := session(t, Deps{}, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Len(t, responses, 2)

	var res listToolsResult
	require.NoError(t, json.Unmarshal(responses[1].Result, &res))
	require.Len(t, res.Tools, 3)
	assert.Equal(t, "pg_health_check", res.Tools[0].Name)
	assert.Equal(t, "pg_health_suggest", res.Tools[1].Name)
	assert.Equal(t, "pg_health_fix", res.Tools[2].Name)

	for _, tool := range res.Tools {
		assert.Equal(t, "object", tool.InputSchema.Type)
		assert.Contains(t, tool.InputSchema.Required, "connection_string")
	}

	fixSchema := res.Tools[2].InputSchema
	assert.Equal(t, []string{"unused-indexes", "vacuum", "analyze", "all"},
		fixSchema.Properties["fix_type"].Enum)
	assert.Equal(t, "all", fixSchema.Properties["fix_type"].Default)
	assert.Equal(t, true, fixSchema.Properties["dry_run"].Default)
}

func TestToolsCall_Check(t *testing.T) {
	var gotConn string
	deps := Deps{Check: func(_ context.Context, conn string) (*health.Report, error) {
		gotConn = conn
		return mcpReport(), nil
	}}
	responses := session(t, deps, initLine,
		callLine(2, "pg_health_check", map[string]any{"connection_string": "postgres://u:p@db/app"}))
	require.Len(t, responses, 2)
	assert.Equal(t, "postgres://u:p@db/app", gotConn)

	text, isErr := toolText(t, responses[1])
	require.False(t, isErr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, "critical", out["overall_status"])
	assert.Equal(t, true, out["has_issues"])
	assert.Equal(t, map[string]any{"ok": float64(1), "critical": float64(1)}, out["summary"])
	assert.Equal(t, map[string]any{"name": "app", "version": "PostgreSQL 16.2"}, out["database"])

	checks := out["checks"].([]any)
	require.Len(t, checks, 2)
	first := checks[0].(map[string]any)
	assert.Equal(t, "Cache Hit Ratio", first["name"])
	assert.Equal(t, "✅ ok", first["status"])
	assert.NotContains(t, first, "suggestion")
	second := checks[1].(map[string]any)
	assert.Equal(t, "❌ critical", second["status"])
	assert.Contains(t, second["suggestion"], "pgbouncer")

	assert.Len(t, out["top_tables"], 5, "tables truncate to the five largest")
	assert.Equal(t, float64(1), out["unused_indexes_count"])
	unused := out["unused_indexes"].([]any)[0].(map[string]any)
	assert.Equal(t, "public.idx_old", unused["name"])
	assert.Equal(t, "orders", unused["table"])
}

func TestToolsCall_HandlerErrorIsToolResult(t *testing.T) {
	deps := Deps{Check: func(context.Context, string) (*health.Report, error) {
		return nil, errors.New("connecting to database: connection refused")
	}}
	responses := session(t, deps, initLine,
		callLine(2, "pg_health_check", map[string]any{"connection_string": "postgres://db/app"}))
	require.Len(t, responses, 2)

	text, isErr := toolText(t, responses[1])
	assert.True(t, isErr)
	assert.Contains(t, text, "connection refused")
}

func TestToolsCall_UnknownTool(t *testing.T) {
	responses := session(t, Deps{}, initLine,
		callLine(2, "pg_drop_database", map[string]any{"connection_string": "postgres://db/app"}))
	require.Len(t, responses, 2)
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, codeInvalidParams, responses[1].Error.Code)
	assert.Contains(t, responses[1].Error.Message, `unknown tool "pg_drop_database"`)
}

func TestToolsCall_MissingConnectionString(t *testing.T) {
	responses := session(t, Deps{}, initLine,
		callLine(2, "pg_health_check", map[string]any{}))
	require.Len(t, responses, 2)
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, codeInvalidParams, responses[1].Error.Code)
	assert.Contains(t, responses[1].Error.Message, `missing required argument "connection_string"`)
}

func TestUnknownMethod(t *testing.T) {
	responses := session(t, Deps{}, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","method":"notifications/progress"}`)
	require.Len(t, responses, 2, "unknown notifications are ignored")
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, codeMethodNotFound, responses[1].Error.Code)
	assert.Contains(t, responses[1].Error.Message, "resources/list")
}

func TestParseError(t *testing.T) {
	responses := session(t, Deps{}, `{not json`)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, codeParseError, responses[0].Error.Code)
	assert.Nil(t, responses[0].ID)
}

func TestShutdownExit(t *testing.T) {
	raw, responses := runSession(t, Deps{}, initLine,
		`{"jsonrpc":"2.0","id":2,"method":"shutdown"}`,
		`{"jsonrpc":"2.0","method":"exit"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	require.Len(t, responses, 2, "no responses after exit")
	assert.Contains(t, raw, `"result":null`, "shutdown acknowledges with a null result")
}

func TestSuggestTool_GroupsByPriority(t *testing.T) {
	deps := Deps{Suggest: func(context.Context, string) ([]suggest.Recommendation, error) {
		return []suggest.Recommendation{
			{Priority: suggest.Medium, Title: "Tune shared_buffers"},
			{Priority: suggest.High, Title: "Vacuum public.events"},
			{Priority: suggest.Low, Title: "Review seq scans"},
		}, nil
	}}
	responses := session(t, deps, initLine,
		callLine(2, "pg_health_suggest", map[string]any{"connection_string": "postgres://db/app"}))
	text, isErr := toolText(t, responses[1])
	require.False(t, isErr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, "needs_attention", out["status"])
	assert.Equal(t, float64(3), out["total_recommendations"])
	assert.Len(t, out["high_priority"], 1)
	assert.Len(t, out["medium_priority"], 1)
	assert.Len(t, out["low_priority"], 1)
}

func TestSuggestTool_Healthy(t *testing.T) {
	deps := Deps{Suggest: func(context.Context, string) ([]suggest.Recommendation, error) {
		return nil, nil
	}}
	responses := session(t, deps, initLine,
		callLine(2, "pg_health_suggest", map[string]any{"connection_string": "postgres://db/app"}))
	text, isErr := toolText(t, responses[1])
	require.False(t, isErr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, "No issues found! Database looks good.", out["message"])
	assert.Empty(t, out["recommendations"])
}

func TestSuggestTool_NoHighMeansCouldImprove(t *testing.T) {
	deps := Deps{Suggest: func(context.Context, string) ([]suggest.Recommendation, error) {
		return []suggest.Recommendation{{Priority: suggest.Low, Title: "Review seq scans"}}, nil
	}}
	responses := session(t, deps, initLine,
		callLine(2, "pg_health_suggest", map[string]any{"connection_string": "postgres://db/app"}))
	text, _ := toolText(t, responses[1])

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, "could_improve", out["status"])
}

func TestFixTool_Defaults(t *testing.T) {
	var gotReq fix.Request
	deps := Deps{Fix: func(_ context.Context, _ string, req fix.Request) (*fix.Plan, error) {
		gotReq = req
		return &fix.Plan{FixType: req.Type, DryRun: req.DryRun, Status: fix.StatusDryRun}, nil
	}}
	responses := session(t, deps, initLine,
		callLine(2, "pg_health_fix", map[string]any{"connection_string": "postgres://db/app"}))
	text, isErr := toolText(t, responses[1])
	require.False(t, isErr)

	assert.Equal(t, fix.TypeAll, gotReq.Type)
	assert.True(t, gotReq.DryRun)
	assert.Empty(t, gotReq.Targets)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, "all", out["fix_type"])
	assert.Equal(t, true, out["dry_run"])
	assert.Equal(t, "Set dry_run=false to actually execute these fixes", out["note"])
}

func TestFixTool_ParsesArguments(t *testing.T) {
	var gotReq fix.Request
	deps := Deps{Fix: func(_ context.Context, _ string, req fix.Request) (*fix.Plan, error) {
		gotReq = req
		return &fix.Plan{FixType: req.Type, DryRun: req.DryRun, Status: fix.StatusReported}, nil
	}}
	responses := session(t, deps, initLine,
		callLine(2, "pg_health_fix", map[string]any{
			"connection_string": "postgres://db/app",
			"fix_type":          "vacuum",
			"dry_run":           false,
			"tables":            "events, public.logs",
		}))
	text, isErr := toolText(t, responses[1])
	require.False(t, isErr)

	assert.Equal(t, fix.TypeVacuum, gotReq.Type)
	assert.False(t, gotReq.DryRun)
	assert.Equal(t, []string{"events", "public.logs"}, gotReq.Targets)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, "Fixes applied", out["note"])
	assert.Equal(t, "reported", out["status"])
}

func TestFixTool_BadFixType(t *testing.T) {
	responses := session(t, Deps{}, initLine,
		callLine(2, "pg_health_fix", map[string]any{
			"connection_string": "postgres://db/app",
			"fix_type":          "reindex",
		}))
	text, isErr := toolText(t, responses[1])
	assert.True(t, isErr)
	assert.Contains(t, text, "unknown fix type")
}
