// Package summary collects per-window mean travel times per flow and
// reduces them to seven number summaries at end of run.
package summary

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// pcts are the seven number summary percentiles.
var pcts = [7]float64{0.02, 0.09, 0.25, 0.5, 0.75, 0.91, 0.98}

// A Summary is one flow's travel time quantiles over its flushed windows,
// in microseconds.
type Summary struct {
	Source    string
	Windows   int
	Quantiles [7]float64
}

// A Collector accumulates window mean travel times keyed by flow, keeping
// flow first-seen order for output.
type Collector struct {
	avgs  map[string][]float64
	order []string
}

func New() *Collector {
	return &Collector{avgs: make(map[string][]float64)}
}

// Push records one flushed window's mean travel time for a flow. Windows
// with no travel samples should not be pushed.
func (c *Collector) Push(source string, avgUs float64) {
	if _, ok := c.avgs[source]; !ok {
		c.order = append(c.order, source)
	}
	c.avgs[source] = append(c.avgs[source], avgUs)
}

// Summaries reduces the collected data, one Summary per flow in first-seen
// order. Flows with no windows are absent.
func (c *Collector) Summaries() (ss []Summary) {
	for _, src := range c.order {
		d := c.avgs[src]
		s := Summary{Source: src, Windows: len(d)}
		sort.Float64s(d)
		for i, p := range pcts {
			s.Quantiles[i] = stat.Quantile(p, stat.LinInterp, d, nil)
		}
		ss = append(ss, s)
	}
	return
}
