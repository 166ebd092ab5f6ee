package batch

import (
	"golang.org/x/time/rate"
)

const defaultRowArraySize = 1

// Option configures a Statement at creation.
type Option func(*Statement)

// WithRowArraySize sets N, the number of rows moved per round. Every buffer bound to the statement must hold at
// least N slots.
func WithRowArraySize(n int) Option {
	return func(s *Statement) {
		s.size = n
	}
}

// WithRoundLimiter paces fetch rounds. Fetch waits on limiter before reading each round.
func WithRoundLimiter(limiter *rate.Limiter) Option {
	return func(s *Statement) {
		s.limiter = limiter
	}
}

// WithAtomicBatch controls whether a parameterized execute runs all parameter sets in one transaction. It is on
// by default. With it off every set runs on its own and failures are reported per set.
func WithAtomicBatch(atomic bool) Option {
	return func(s *Statement) {
		s.atomic = atomic
	}
}
