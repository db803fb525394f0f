// Package suite exposes a stable public API for embedding the LinkedIn
// research suite: the service supervisor, the browser-session registry and
// the management HTTP surface.
package suite

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/k2riddim/linkedin-research-suite/internal/browser"
	cfg "github.com/k2riddim/linkedin-research-suite/internal/config"
	"github.com/k2riddim/linkedin-research-suite/internal/eventbus"
	"github.com/k2riddim/linkedin-research-suite/internal/logmux"
	"github.com/k2riddim/linkedin-research-suite/internal/metrics"
	"github.com/k2riddim/linkedin-research-suite/internal/registry"
	iapi "github.com/k2riddim/linkedin-research-suite/internal/server"
	"github.com/k2riddim/linkedin-research-suite/internal/service"
	"github.com/k2riddim/linkedin-research-suite/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = service.Spec

type Status = supervisor.Status

type Options = supervisor.Options

type SessionParams = registry.CreateParams

type Session = registry.Record

type CleanupSummary = registry.Summary

type Credentials = browser.Credentials

// Suite bundles a supervisor and a session registry behind one facade.
type Suite struct {
	sup *supervisor.Supervisor
	reg *registry.Registry
	bus *eventbus.Bus
	mux *logmux.Mux
}

// Config describes an embedded suite.
type Config struct {
	Services       []Spec
	Lifecycle      Options
	ProviderURL    string
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Console        bool // multiplex child output to stdout

	// OnExit replaces os.Exit on fatal supervisor shutdown. Embedders that
	// must outlive the suite set this.
	OnExit func(code int)
}

// New wires a suite from code. Shutdown behavior is identical to the daemon;
// use WithExitFunc via Supervisor for embedding in long-lived processes.
func New(c Config) (*Suite, error) {
	var console *logmux.Mux
	if c.Console {
		console = logmux.New(nil, os.Stdout)
	} else {
		console = logmux.New(nil, nil)
	}
	var sopts []supervisor.SupOption
	if c.OnExit != nil {
		sopts = append(sopts, supervisor.WithExitFunc(c.OnExit))
	}
	sup, err := supervisor.New(c.Services, console, c.Logger, c.Lifecycle, sopts...)
	if err != nil {
		return nil, err
	}
	providerURL := c.ProviderURL
	if providerURL == "" {
		providerURL = "http://127.0.0.1:8081"
	}
	bus := eventbus.New(c.Logger)
	reg := registry.New(browser.NewClient(providerURL, c.RequestTimeout), c.Logger,
		registry.WithNotifier(func(event string, fields map[string]any) {
			bus.Publish(event, fields)
		}))
	return &Suite{sup: sup, reg: reg, bus: bus, mux: console}, nil
}

func (s *Suite) Start(ctx context.Context) error { return s.sup.Start(ctx) }
func (s *Suite) Shutdown(code int)               { s.bus.Close(); s.sup.Shutdown(code) }

func (s *Suite) Services() []Status                  { return s.sup.StatusAll() }
func (s *Suite) Service(name string) (Status, error) { return s.sup.StatusOf(name) }
func (s *Suite) Sessions() []Session                 { return s.reg.List() }

func (s *Suite) Cleanup(ctx context.Context) CleanupSummary {
	return s.reg.CleanupAll(ctx)
}

func (s *Suite) CreateSession(ctx context.Context, p SessionParams) (registry.Created, error) {
	return s.reg.Create(ctx, p)
}

func (s *Suite) CloseSession(ctx context.Context, id string) error {
	return s.reg.Close(ctx, id)
}

// Handler returns the management API as an embeddable http.Handler.
func (s *Suite) Handler(basePath string) http.Handler {
	return iapi.NewRouter(s.sup, s.reg, basePath).WithEvents(s.bus.Handler()).Handler()
}

// LoadConfig reads a daemon config file; embedders can reuse its Services
// and Lifecycle sections.
func LoadConfig(path string) (*cfg.Config, error) {
	return cfg.Load(path)
}

// CredentialsFromEnv reads provider credentials from the environment.
func CredentialsFromEnv() (Credentials, error) {
	return browser.CredentialsFromEnv()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
