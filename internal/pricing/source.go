// Package pricing provides price sources for the session engine.
package pricing

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no price can be obtained. It is a
// transient condition: callers skip the current operation and continue.
var ErrUnavailable = errors.New("price unavailable")

// Source supplies the latest quote for a symbol on demand. Implementations
// must honor context cancellation and enforce a bounded timeout so a fetch
// cannot stall a tick indefinitely.
type Source interface {
	Price(ctx context.Context, symbol string) (float64, error)
}
