package registry

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/parley-im/parley/internal/tlswarn"
)

// ValidationOutcome classifies a server reachability probe.
type ValidationOutcome string

const (
	// ValidationOK means the server answered the info endpoint.
	ValidationOK ValidationOutcome = "valid"
	// ValidationInvalid means the server answered with an error or the
	// request failed outright.
	ValidationInvalid ValidationOutcome = "invalid"
	// ValidationBasicAuthRequired means the server demands HTTP basic
	// auth credentials before it will talk.
	ValidationBasicAuthRequired ValidationOutcome = "basic-auth-required"
	// ValidationTimeout means the probe did not settle in time.
	ValidationTimeout ValidationOutcome = "timeout"
)

// DefaultValidationTimeout bounds a reachability probe.
const DefaultValidationTimeout = 5 * time.Second

const infoPath = "/api/info"

type probeConfig struct {
	client  *http.Client
	timeout time.Duration
}

func defaultProbeConfig() probeConfig {
	return probeConfig{
		client:  &http.Client{},
		timeout: DefaultValidationTimeout,
	}
}

// WithProbeClient overrides the HTTP client used for reachability probes.
func WithProbeClient(client *http.Client) Option {
	return func(r *Registry) {
		if client != nil {
			r.probe.client = client
		}
	}
}

// WithInsecureProbe disables certificate verification for reachability
// probes. For self-hosted servers with self-signed certificates; a one-shot
// warning is logged.
func WithInsecureProbe() Option {
	return func(r *Registry) {
		tlswarn.LogInsecure()
		r.probe.client = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}
}

// WithProbeTimeout overrides the default probe timeout.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		if timeout > 0 {
			r.probe.timeout = timeout
		}
	}
}

// Validate probes a server's info endpoint and classifies the outcome. The
// raw url may embed basic auth credentials; they are sent with the probe.
// The first of response and deadline wins, so a slow server reports
// ValidationTimeout instead of hanging the caller.
func (r *Registry) Validate(ctx context.Context, rawURL string) (ValidationOutcome, error) {
	canonical, username, password, _, err := SplitCredentials(rawURL)
	if err != nil {
		return ValidationInvalid, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.probe.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, canonical+infoPath, nil)
	if err != nil {
		return ValidationInvalid, fmt.Errorf("registry: build probe request: %w", err)
	}
	if username != "" {
		req.SetBasicAuth(username, password)
	}

	resp, err := r.probe.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ValidationTimeout, nil
		}
		return ValidationInvalid, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ValidationBasicAuthRequired, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return ValidationOK, nil
	default:
		return ValidationInvalid, nil
	}
}
