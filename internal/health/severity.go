// Package health defines the data model shared by the check engine,
// renderers, and integrations: check findings, report structure, and
// the severity scale used to grade results.
package health

import (
	"encoding/json"
	"fmt"
)

// Severity grades a single check result. The zero value is OK.
// Ordering is meaningful: OK < Info < Warning < Critical.
type Severity int

const (
	OK       Severity = 0
	Info     Severity = 1
	Warning  Severity = 2
	Critical Severity = 3
)

func (s Severity) String() string {
	switch s {
	case OK:
		return "ok"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// ExitCode maps a severity to the process exit code reported by the CLI.
// Informational results carry no operational weight and exit clean.
func (s Severity) ExitCode() int {
	switch s {
	case Warning:
		return 1
	case Critical:
		return 2
	default:
		return 0
	}
}

func ParseSeverity(raw string) (Severity, error) {
	switch raw {
	case "ok":
		return OK, nil
	case "info":
		return Info, nil
	case "warning":
		return Warning, nil
	case "critical":
		return Critical, nil
	}
	return OK, fmt.Errorf("unknown severity %q", raw)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
