package transcriber

import (
	"fmt"
	"sort"
	"time"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/api"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/google"
)

// DefaultProvider is the alias resolved to the primary provider
const DefaultProvider = "default"

// ProviderConfig keeps construction parameters of one named provider
type ProviderConfig struct {
	Endpoints        google.Endpoints
	ResultPrefix     string
	RoutingOverrides map[string]google.Routing
	DisableDiarized  bool
	PollTimeout      time.Duration
	PollWait         time.Duration
}

// EndpointSource supplies up-to-date recognizer endpoints, e.g. from consul
type EndpointSource interface {
	Endpoints() (*google.Endpoints, error)
}

// Factory resolves provider names to freshly constructed adapters.
// A new adapter is built per call so no mutable connection state
// is shared across concurrent workers
type Factory struct {
	providers map[string]ProviderConfig
	primary   string
	store     google.ResultStore
	endpoints EndpointSource
}

// NewFactory creates provider factory
func NewFactory(primary string, providers map[string]ProviderConfig, store google.ResultStore) (*Factory, error) {
	if primary == "" {
		return nil, fmt.Errorf("no primary provider")
	}
	if _, ok := providers[primary]; !ok {
		return nil, fmt.Errorf("primary provider '%s' not configured", primary)
	}
	if store == nil {
		return nil, fmt.Errorf("no result store")
	}
	return &Factory{providers: providers, primary: primary, store: store}, nil
}

// WithEndpointSource attaches dynamic endpoint discovery
func (f *Factory) WithEndpointSource(s EndpointSource) *Factory {
	f.endpoints = s
	return f
}

// Primary returns the primary provider name
func (f *Factory) Primary() string {
	return f.primary
}

// Get constructs an adapter for a provider name. Empty or "default"
// resolves to the primary, unknown names are a configuration error
func (f *Factory) Get(name string) (api.Transcriber, error) {
	if name == "" || name == DefaultProvider {
		name = f.primary
	}
	cfg, ok := f.providers[name]
	if !ok {
		return nil, api.NewErrConfiguration(fmt.Errorf("unknown provider '%s', available: %v", name, f.Available()))
	}
	if f.endpoints != nil {
		if ep, err := f.endpoints.Endpoints(); err == nil && ep != nil {
			cfg.Endpoints = *ep
		} else if err != nil {
			goapp.Log.Warn().Err(err).Str("provider", name).Msg("endpoint discovery failed - using static endpoints")
		}
	}
	res, err := google.NewClient(google.Config{Name: name, Endpoints: cfg.Endpoints, Store: f.store,
		ResultPrefix: cfg.ResultPrefix, RoutingOverrides: cfg.RoutingOverrides,
		DisableDiarized: cfg.DisableDiarized, PollTimeout: cfg.PollTimeout, PollWait: cfg.PollWait})
	if err != nil {
		return nil, api.NewErrConfiguration(fmt.Errorf("can't init provider '%s': %v", name, err))
	}
	return res, nil
}

// Available lists configured provider names for diagnostics
func (f *Factory) Available() []string {
	res := make([]string, 0, len(f.providers))
	for n := range f.providers {
		res = append(res, n)
	}
	sort.Strings(res)
	return res
}
