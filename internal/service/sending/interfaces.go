// Package sending defines the gateways the lead processor talks to: the
// outbound email provider and the address verifier.
//
// Implementations live in ses/ and verification/. Both are passed into the
// worker explicitly so each execution (or test) can supply its own instance.
package sending

import (
	"context"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

// Provider sends a single email. Implementations classify provider errors,
// retry only the retryable class with backoff, and report the final outcome
// in SendResult rather than as an error. A non-nil error means the call
// could not be attempted at all. Implementations must be safe for
// concurrent use.
type Provider interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}

// Verifier checks a single address. maxRetries bounds retries of transient
// failures; the fill-buffer passes a small value so prefetching never stalls
// the loop. An error means no verdict could be obtained.
type Verifier interface {
	Verify(ctx context.Context, email string, maxRetries int) (*domain.VerificationResult, error)
}
