package ddbbatch

import (
	"iter"
	"math/rand/v2"
	"time"
)

// Default backoff bounds.
const (
	DefaultBackoffBase = 50 * time.Millisecond
	DefaultBackoffCap  = 60 * time.Second
)

// Backoff is a capped exponential backoff with full jitter: the delay before
// attempt k is drawn uniformly from [0, min(base*2^k, cap)).
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
type Backoff struct {
	base   time.Duration
	cap    time.Duration
	finite bool
}

type BackoffOption func(*Backoff)

func WithBase(d time.Duration) BackoffOption {
	return func(b *Backoff) {
		b.base = d
	}
}

func WithCap(d time.Duration) BackoffOption {
	return func(b *Backoff) {
		b.cap = d
	}
}

// Finite ends the sequence after the first delay drawn at the cap. Without
// it the sequence yields capped delays forever.
func Finite(finite bool) BackoffOption {
	return func(b *Backoff) {
		b.finite = finite
	}
}

func NewBackoff(opts ...BackoffOption) Backoff {
	b := Backoff{base: DefaultBackoffBase, cap: DefaultBackoffCap}
	for _, opt := range opts {
		opt(&b)
	}
	if b.base <= 0 {
		b.base = DefaultBackoffBase
	}
	if b.cap < b.base {
		b.cap = b.base
	}
	return b
}

// DefaultBackoff never gives up.
var DefaultBackoff = NewBackoff()

// Len is the number of delays a finite sequence yields, or -1.
func (b Backoff) Len() int {
	if !b.finite {
		return -1
	}
	n := 1
	for x := b.base; x < b.cap; x *= 2 {
		n++
	}
	return n
}

func (b Backoff) IsFinite() bool {
	return b.finite
}

// Delays yields the jittered delays in order. Each draw is independent.
func (b Backoff) Delays() iter.Seq[time.Duration] {
	return func(yield func(time.Duration) bool) {
		for x := b.base; x < b.cap; x *= 2 {
			if !yield(jitter(x)) {
				return
			}
		}
		if b.finite {
			yield(jitter(b.cap))
			return
		}
		for {
			if !yield(jitter(b.cap)) {
				return
			}
		}
	}
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)))
}
