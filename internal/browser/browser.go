// Package browser talks to the browser-automation provider service. Sessions
// are remote headless browsers driven through a small request/response action
// protocol; the suite only ever holds an opaque handle to one.
package browser

import (
	"context"
	"encoding/json"

	"github.com/kelseyhightower/envconfig"
)

// Credentials are the provider secrets required to start a session. They are
// read from the environment and never stored in config files.
type Credentials struct {
	APIKey    string `envconfig:"BROWSERBASE_API_KEY"`
	ProjectID string `envconfig:"BROWSERBASE_PROJECT_ID"`
	ModelKey  string `envconfig:"MODEL_API_KEY"`
}

// CredentialsFromEnv loads provider credentials from the environment.
func CredentialsFromEnv() (Credentials, error) {
	var c Credentials
	err := envconfig.Process("", &c)
	return c, err
}

// StartParams carries everything needed to start one remote session.
type StartParams struct {
	APIKey    string `json:"apiKey"`
	ProjectID string `json:"projectId"`
	ModelKey  string `json:"modelApiKey"`
	Headless  bool   `json:"headless"`
	Debug     bool   `json:"debug"`
}

// ScreenshotOptions are the optional rendering options for Screenshot.
type ScreenshotOptions struct {
	FullPage bool   `json:"fullPage,omitempty"`
	Format   string `json:"format,omitempty"`
}

// Handle is a live remote browser session. Implementations are NOT safe for
// concurrent use; serializing actions per session is the caller's job.
type Handle interface {
	RemoteID() string
	LiveURL() string
	Navigate(ctx context.Context, url string) (json.RawMessage, error)
	Act(ctx context.Context, instruction string) (json.RawMessage, error)
	Observe(ctx context.Context, instruction string) (json.RawMessage, error)
	Extract(ctx context.Context, instruction string) (json.RawMessage, error)
	Screenshot(ctx context.Context, opts ScreenshotOptions) (json.RawMessage, error)
	Close(ctx context.Context) error
}

// Dialer starts new remote sessions. The registry depends on this interface
// only, so tests substitute a fake provider.
type Dialer interface {
	Start(ctx context.Context, p StartParams) (Handle, error)
}
