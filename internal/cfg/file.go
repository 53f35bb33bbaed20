package cfg

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/raven/internal/news"
)

const (
	// DefaultMaxAgeDays applies when global.max_age_days is absent.
	DefaultMaxAgeDays = 7

	// MaxAgeDaysLimit is the largest accepted max age.
	MaxAgeDaysLimit = 90
)

// File is the YAML configuration file.
type File struct {
	Global     GlobalConfig               `yaml:"global"`
	Collectors map[string]CollectorConfig `yaml:"collectors"`
	LLM        LLMConfig                  `yaml:"llm"`
	Company    news.Profile               `yaml:"company"`
}

// GlobalConfig holds settings shared by every collector.
type GlobalConfig struct {
	MaxAgeDays int `yaml:"max_age_days"`
}

// CollectorConfig configures one collector. MaxAgeDays of 0 falls back to
// the global value.
type CollectorConfig struct {
	Enabled    bool   `yaml:"enabled"`
	FeedURL    string `yaml:"feed_url"`
	DataDir    string `yaml:"data_dir"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LLMConfig configures the analysis backend.
type LLMConfig struct {
	Model              string   `yaml:"model"`
	RelevanceThreshold *float64 `yaml:"relevance_threshold"`
	MaxTokens          int      `yaml:"max_tokens"`
}

// Threshold returns the configured relevance threshold, or 0 if unset.
func (l LLMConfig) Threshold() float64 {
	if l.RelevanceThreshold == nil {
		return 0
	}
	return *l.RelevanceThreshold
}

// ConfigurationError lists every problem found in a configuration file.
// It is fatal: nothing runs until it is fixed.
type ConfigurationError struct {
	Path     string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Path, strings.Join(e.Problems, "; "))
}

// LoadFile reads, defaults and validates a configuration file. Validation
// failures come back as *ConfigurationError.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, raw)
}

// Parse decodes and validates configuration bytes. path is only used in
// error messages.
func Parse(path string, raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, &ConfigurationError{Path: path, Problems: []string{fmt.Sprintf("yaml: %v", err)}}
	}
	f.applyDefaults()
	if problems := f.validate(); len(problems) > 0 {
		return nil, &ConfigurationError{Path: path, Problems: problems}
	}
	return &f, nil
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func (f *File) applyDefaults() {
	if f.Global.MaxAgeDays == 0 {
		f.Global.MaxAgeDays = DefaultMaxAgeDays
	}
	if f.Collectors == nil {
		f.Collectors = map[string]CollectorConfig{}
	}
}

func (f *File) validate() []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if f.Global.MaxAgeDays < 1 || f.Global.MaxAgeDays > MaxAgeDaysLimit {
		add("global.max_age_days %d must be 1..%d", f.Global.MaxAgeDays, MaxAgeDaysLimit)
	}

	names := make([]string, 0, len(f.Collectors))
	for name := range f.Collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := f.Collectors[name]
		if c.MaxAgeDays != 0 && (c.MaxAgeDays < 1 || c.MaxAgeDays > MaxAgeDaysLimit) {
			add("collectors.%s.max_age_days %d must be 1..%d", name, c.MaxAgeDays, MaxAgeDaysLimit)
		}
	}

	if strings.TrimSpace(f.LLM.Model) == "" {
		add("llm.model is required")
	}
	switch {
	case f.LLM.RelevanceThreshold == nil:
		add("llm.relevance_threshold is required")
	case *f.LLM.RelevanceThreshold < 0 || *f.LLM.RelevanceThreshold > 1:
		add("llm.relevance_threshold %v must be 0..1", *f.LLM.RelevanceThreshold)
	}
	if f.LLM.MaxTokens <= 0 {
		add("llm.max_tokens %d must be > 0", f.LLM.MaxTokens)
	}

	p := f.Company
	for _, field := range []struct{ key, val string }{
		{"company.name", p.Name},
		{"company.industry", p.Industry},
		{"company.size", p.Size},
		{"company.region", p.Region},
	} {
		if strings.TrimSpace(field.val) == "" {
			add("%s is required", field.key)
		}
	}
	if len(p.Assets.CriticalSystems) == 0 {
		add("company.assets.critical_systems must list at least one system")
	}

	return problems
}

// EffectiveMaxAge returns the max age for a collector: run override, then
// collector override, then the global value.
func (f *File) EffectiveMaxAge(collector string, runOverride int) int {
	if runOverride > 0 {
		return runOverride
	}
	if c, ok := f.Collectors[collector]; ok && c.MaxAgeDays > 0 {
		return c.MaxAgeDays
	}
	return f.Global.MaxAgeDays
}

// EnabledCollectors returns the names of enabled collectors, sorted.
func (f *File) EnabledCollectors() []string {
	var out []string
	for name, c := range f.Collectors {
		if c.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
