package repolib

import "github.com/netguru/repolib/internal/admission"

// NewGuardedController fronts a remote DataSource with a cached controller
// whose admission check is a circuit breaker fed by ds's own outcomes.
// While the breaker is open, writes are buffered in queue (nil selects an
// in-memory queue) and replayed once it closes again.
//
// Fetch requests read through the controller, so the default strategies
// work unchanged.
func NewGuardedController[T any](ds DataSource[T], queue Queue[T], cfg BreakerConfig, opts ControllerOptions) (Controller[T], *Breaker, error) {
	if ds == nil {
		return nil, nil, ErrNilDataSource
	}
	if cfg.Logger == nil {
		cfg.Logger = opts.Logger
	}
	b := admission.NewBreaker(cfg)

	opts.ReadThrough = true
	c, err := NewCachedController(admission.Guard(ds, b), queue, b, opts)
	if err != nil {
		return nil, nil, err
	}
	return c, b, nil
}
