package thresholds

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileLevels struct {
	Warning  *float64 `yaml:"warning"`
	Critical *float64 `yaml:"critical"`
}

type fileConfig struct {
	Thresholds map[string]fileLevels `yaml:"thresholds"`
}

// LoadFile reads threshold overrides from a YAML file. Each entry must
// carry both levels; validation against the built-in table happens in
// Resolve.
func LoadFile(path string) (map[string]Levels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading threshold config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing threshold config %s: %w", path, err)
	}

	overrides := make(map[string]Levels, len(fc.Thresholds))
	for key, lv := range fc.Thresholds {
		if lv.Warning == nil || lv.Critical == nil {
			return nil, &ConfigError{Key: key, Reason: "both warning and critical are required"}
		}
		overrides[key] = Levels{Warning: *lv.Warning, Critical: *lv.Critical}
	}
	return overrides, nil
}

// Template renders a commented starter config listing every metric with
// its built-in levels.
func Template() string {
	var b strings.Builder
	b.WriteString("# pg-health threshold overrides.\n")
	b.WriteString("# Uncomment a block to replace the built-in levels for that metric.\n")
	b.WriteString("# An override always replaces both levels.\n")
	b.WriteString("thresholds:\n")
	for _, key := range Defaults().Keys() {
		spec := defaults[key]
		b.WriteString("  # " + key + ":\n")
		b.WriteString("  #   warning: " + formatLevel(spec.Warning) + "\n")
		b.WriteString("  #   critical: " + formatLevel(spec.Critical) + "\n")
	}
	return b.String()
}

func formatLevel(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
