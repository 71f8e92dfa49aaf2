package logger

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// eventSampler passes the first numerator of every denominator calls, counted per event
// name so a chatty event does not starve rare ones.
type eventSampler struct {
	ratio    atomic.Uint64 // numerator<<32 | denominator
	counters sync.Map      // event -> *atomic.Uint64
}

func newEventSampler(numerator, denominator int) *eventSampler {
	s := &eventSampler{}
	s.Set(numerator, denominator)
	return s
}

// Set configures the ratio and resets all counters. Non-positive values disable sampling.
func (s *eventSampler) Set(numerator, denominator int) {
	if numerator <= 0 || denominator <= 0 {
		numerator, denominator = 0, 0
	}
	if numerator > denominator {
		numerator = denominator
	}
	s.ratio.Store(uint64(uint32(numerator))<<32 | uint64(uint32(denominator)))
	s.counters.Clear()
}

// Allow reports whether the next occurrence of event passes.
func (s *eventSampler) Allow(event string) bool {
	r := s.ratio.Load()
	num, den := r>>32, r&0xffffffff
	if num == 0 || den == 0 {
		return true
	}
	c, ok := s.counters.Load(event)
	if !ok {
		c, _ = s.counters.LoadOrStore(event, new(atomic.Uint64))
	}
	n := c.(*atomic.Uint64).Add(1)
	return (n-1)%den < num
}

// parseRatioSpec accepts "n/d" or "d" (meaning 1/d). Anything else yields 0, 0.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if num, den, ok := strings.Cut(spec, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return n, d
	}
	v, err := strconv.Atoi(spec)
	if err != nil || v <= 0 {
		return 0, 0
	}
	return 1, v
}
