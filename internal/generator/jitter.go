package generator

import (
	"math/rand"
	"sync"
)

// MaxJitter bounds the confidence jitter: values fall in [0, MaxJitter).
const MaxJitter = 5.0

// JitterSource supplies the small per-artifact confidence offset.
type JitterSource interface {
	Jitter() float64
}

// FixedJitter always returns the same offset.
type FixedJitter float64

// DefaultJitter sits in the middle of the jitter range.
const DefaultJitter FixedJitter = 2.5

func (f FixedJitter) Jitter() float64 { return float64(f) }

// SeededJitter draws uniformly from [0, MaxJitter) using a seeded source,
// so a given seed replays the same sequence.
type SeededJitter struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSeededJitter(seed int64) *SeededJitter {
	return &SeededJitter{rnd: rand.New(rand.NewSource(seed))}
}

func (s *SeededJitter) Jitter() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64() * MaxJitter
}
