// Package metrics has small duration statistics helpers used for pipeline
// timing and travel time distributions.
package metrics

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// DurationStats keeps basic time.Duration statistics. Welford's method is
// used to keep a running mean and standard deviation.
type DurationStats struct {
	Total time.Duration
	N     uint
	Min   time.Duration
	Max   time.Duration
	s     float64
	mean  float64
}

func (s *DurationStats) Push(d time.Duration) {
	if s.N == 0 {
		s.Min = d
		s.Max = d
		s.Total = d
	} else {
		if d < s.Min {
			s.Min = d
		}
		if d > s.Max {
			s.Max = d
		}
		s.Total += d
	}
	s.N++
	om := s.mean
	fd := float64(d)
	s.mean += (fd - om) / float64(s.N)
	s.s += (fd - om) * (fd - s.mean)
}

func (s *DurationStats) IsZero() bool {
	return s.N == 0
}

func (s *DurationStats) Mean() time.Duration {
	return time.Duration(s.mean)
}

func (s *DurationStats) Variance() float64 {
	if s.N > 1 {
		return s.s / float64(s.N-1)
	}
	return 0.0
}

func (s *DurationStats) Stddev() time.Duration {
	return time.Duration(math.Sqrt(s.Variance()))
}

// DurationHistogram is a histogram divided into adjacent ranges with
// per-range bin widths, so short durations get fine bins and long ones
// coarse bins.
type DurationHistogram struct {
	counts     [][]uint64
	starts     []time.Duration
	ends       []time.Duration
	steps      []time.Duration
	unit       string
	N          uint64
	OutOfRange uint64
	sync.RWMutex
}

// NewDurationHistogram makes a histogram whose i'th range covers
// [ends[i-1], ends[i]) in bins of steps[i]. unit names the counted thing in
// the String dump.
func NewDurationHistogram(steps, ends []time.Duration, unit string) (h *DurationHistogram) {
	if len(steps) != len(ends) {
		panic("duration histogram steps and ends must be same size")
	}

	h = &DurationHistogram{
		steps: steps,
		ends:  ends,
		unit:  unit,
	}

	h.counts = make([][]uint64, len(ends))
	h.starts = make([]time.Duration, len(ends))
	for i := 0; i < len(ends); i++ {
		var start time.Duration
		if i > 0 {
			start = ends[i-1]
		}
		bins := (ends[i] - start) / steps[i]
		h.counts[i] = make([]uint64, bins)
		h.starts[i] = start
	}

	return
}

// Push adds the duration to the histogram. Negative durations and durations
// past the last range end are counted as out of range.
func (h *DurationHistogram) Push(d time.Duration) {
	h.Lock()
	defer h.Unlock()

	if d < 0 || d >= h.ends[len(h.ends)-1] {
		h.OutOfRange++
		return
	}

	for i := 0; i < len(h.ends); i++ {
		if d >= h.starts[i] && d < h.ends[i] {
			base := d - h.starts[i]
			h.counts[i][base/h.steps[i]]++
			h.N++
			break
		}
	}
}

// String returns an ASCII rendering with bars at most width ticks wide,
// and the percentage of pushed values that fell out of range.
func (h *DurationHistogram) String(width int) (s string, oorPct float64) {
	h.RLock()
	defer h.RUnlock()

	sb := &strings.Builder{}
	w := tabwriter.NewWriter(sb, 0, 0, 2, ' ', 0)

	for i := 0; i < len(h.counts); i++ {
		max, tot := h.rangeStats(i)
		tick := float64(1)
		if max > uint64(width) {
			tick = float64(max) / float64(width)
		}

		fmt.Fprintf(w, "\n")
		fmt.Fprintf(w, "---- %s-%s, step=%s, total=%d %s, 1 tick=%.1f ----\n",
			h.starts[i], h.ends[i], h.steps[i], tot, h.unit, tick)
		fmt.Fprintf(w, "Range\tCount\tGraph\n")
		for j := 0; j < len(h.counts[i]); j++ {
			dj := time.Duration(j)
			fmt.Fprintf(w, "%s-%s\t%d\t",
				h.starts[i]+dj*h.steps[i],
				h.starts[i]+(dj+1)*h.steps[i],
				h.counts[i][j])
			t := float64(h.counts[i][j]) / tick
			for l := 0; l < int(t); l++ {
				fmt.Fprintf(w, "#")
			}
			fmt.Fprintf(w, "\n")
		}
	}

	w.Flush()
	s = sb.String()

	if h.OutOfRange+h.N > 0 {
		oorPct = 100 * float64(h.OutOfRange) / (float64(h.OutOfRange) + float64(h.N))
	}

	return
}

func (h *DurationHistogram) rangeStats(i int) (max, tot uint64) {
	for _, c := range h.counts[i] {
		if c > max {
			max = c
		}
		tot += c
	}
	return
}
