package cover

import (
	"time"

	"github.com/fyrsmithlabs/detectd/pkg/sat"
)

// Defaults of the cover search.
const (
	DefaultMaxDistance = 5.0
	DefaultTimeout     = 100 * time.Millisecond
	DefaultLowerBound  = 2
)

type options struct {
	maxDistance float64
	timeout     time.Duration
	lowerBound  int
	newSolver   sat.Factory
	now         func() time.Time
}

func defaultOptions() options {
	return options{
		maxDistance: DefaultMaxDistance,
		timeout:     DefaultTimeout,
		lowerBound:  DefaultLowerBound,
		newSolver:   sat.NewGini,
		now:         time.Now,
	}
}

// Option configures a cover search.
type Option func(*options)

// WithMaxDistance sets the Manhattan distance beyond which FindCover ignores
// a source.
func WithMaxDistance(d float64) Option {
	return func(o *options) { o.maxDistance = d }
}

// WithTimeout bounds the SAT search, measured from its start. The first
// solution is always awaited; the budget only stops the hunt for smaller
// ones.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLowerBound sets the solution size at which the SAT search stops
// early.
func WithLowerBound(n int) Option {
	return func(o *options) { o.lowerBound = n }
}

// WithSolver sets the SAT solver factory.
func WithSolver(f sat.Factory) Option {
	return func(o *options) {
		if f != nil {
			o.newSolver = f
		}
	}
}

// WithClock replaces the wall clock used for the SAT timeout.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func apply(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
