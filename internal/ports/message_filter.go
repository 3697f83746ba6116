package ports

import (
	"context"

	"github.com/mikey/mail-triage/internal/core"
)

// MessageFilter defines the interface for message ingress adapters
type MessageFilter interface {
	// ProcessEmail triages a single email and returns the result
	ProcessEmail(ctx context.Context, email *core.Email) (*core.TriageResult, error)

	// Start starts the filter service
	Start() error

	// Stop stops the filter service
	Stop() error
}
