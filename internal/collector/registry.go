package collector

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/raven/internal/cfg"
)

// Deps are the shared dependencies handed to collector factories.
type Deps struct {
	HTTPClient *http.Client
	Logger     log.Logger
	Now        func() time.Time
}

// Factory builds a collector from its config entry.
type Factory func(name string, c cfg.CollectorConfig, deps Deps) (Collector, error)

// Registry maps config names to factories and remembers registration order.
type Registry struct {
	names     []string
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows the built-in collectors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("riskybiz", NewRSSFactory(RiskyBizSource, RiskyBizFeedURL))
	r.Register("therecord", NewTheRecord)
	r.Register("mock", NewMock)
	return r
}

// Register adds a factory. Registering a name twice replaces the factory but
// keeps its original position.
func (r *Registry) Register(name string, f Factory) {
	if _, ok := r.factories[name]; !ok {
		r.names = append(r.names, name)
	}
	r.factories[name] = f
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Build constructs every enabled collector in registration order. Unknown
// names in the config are an error.
func (r *Registry) Build(configs map[string]cfg.CollectorConfig, deps Deps) ([]Source, error) {
	var unknown []string
	for name := range configs {
		if _, ok := r.factories[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown collectors: %v", unknown)
	}

	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = log.Nop()
	}

	var out []Source
	for _, name := range r.names {
		c, ok := configs[name]
		if !ok || !c.Enabled {
			continue
		}
		col, err := r.factories[name](name, c, deps)
		if err != nil {
			return nil, fmt.Errorf("collector %s: %w", name, err)
		}
		out = append(out, Source{Collector: col, MaxAgeDays: c.MaxAgeDays})
	}
	return out, nil
}
