package monitor

import (
	"context"

	"github.com/zabbix-problems/zabbix-problems/internal/problem"
)

// Source defines the interface for a remote problem provider. The Zabbix
// JSON-RPC client is the production implementation; the mock generator
// and test fakes implement it too.
//
// Implementations do not need to be safe for concurrent use. The
// coordinator guarantees at most one Fetch is in flight at a time.
type Source interface {
	// Name returns a short lowercase identifier for this source, e.g.
	// "zabbix" or "mock". Used in logs and metrics labels.
	Name() string

	// Fetch returns the complete list of currently active problems. It
	// either returns every event or fails; partial results must not be
	// returned alongside a nil error.
	//
	// Fetch may be slow (network-bound). It should honour ctx
	// cancellation so that Stop does not wait on a dead server. Errors
	// should wrap ErrConnection, ErrAuthentication or
	// ErrMalformedResponse so the coordinator can classify them.
	Fetch(ctx context.Context) ([]problem.Event, error)
}
