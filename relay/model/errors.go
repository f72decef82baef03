package model

import (
	"context"
	"fmt"

	"github.com/Laisky/errors/v2"
)

// ErrPricingUnavailable is returned when neither the remote catalog nor a
// disk cache can produce pricing data.
var ErrPricingUnavailable = errors.New("pricing data unavailable")

// ConfigurationMissingError reports a call routed to a provider without
// credentials. The message points the user at the config CLI.
type ConfigurationMissingError struct {
	Provider string
}

func (e *ConfigurationMissingError) Error() string {
	return fmt.Sprintf("provider %q is not configured; run `ultra-mcp config` to add credentials", e.Provider)
}

// UpstreamError is any non-2xx response from a provider. The body excerpt is
// already sanitized and bounded by the adaptor.
type UpstreamError struct {
	Provider   string
	Model      string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s (model %s) returned status %d: %s",
		e.Provider, e.Model, e.StatusCode, e.Body)
}

// TransportError wraps network, DNS, and TLS failures reaching the upstream.
type TransportError struct {
	Provider string
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.Provider, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// IsCanceled reports whether err stems from caller cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// AsConfigurationMissing reports whether err is a missing-credentials failure.
func AsConfigurationMissing(err error) bool {
	var target *ConfigurationMissingError
	return errors.As(err, &target)
}

// AsUpstreamError extracts an UpstreamError when present.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var target *UpstreamError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
