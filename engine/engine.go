// Package engine maintains per-flow sequence tracking for pktgen marker
// streams: it detects gaps (losses) and their late arrival (reorders),
// aggregates counts and travel times into fixed-size windows, and handles
// sequence counter wraparound with deferred cleanup of stale loss records.
package engine

import (
	"log"
	"sync"
	"time"

	"github.com/teperf/pktgenmon/metrics"
)

// A Config contains the engine configuration.
type Config struct {
	WindowSize uint32 // packets per aggregation window
	MaxGap     uint32 // gaps longer than this are discarded as sensor artifacts
	ResetSlack uint32 // windows to wait after wraparound before purging pre-reset intervals
	Log        bool   // if true, logging is enabled
}

// A Flow holds the tracking state for one source address. All fields are
// owned by the engine's single processing goroutine.
type Flow struct {
	Source        string
	lastSeq       uint32 // last sequence treated as in order
	packets       uint32 // packets in the current window
	outOfOrder    uint32 // late arrivals matched to a loss interval, current window
	travelSumUs   float64
	travelSamples uint32
	group         uint32 // current aggregation window index
	firstArrival  time.Time
	lastArrival   time.Time
	lost          lossList
	reset         *pendingReset
}

// A pendingReset is a deferred cleanup scheduled on wraparound: once the
// flow's group counter reaches applyAtGroup, intervals tagged with groups in
// [gpStart, gpEnd] are discarded.
type pendingReset struct {
	gpStart      uint32
	gpEnd        uint32
	applyAtGroup uint32
}

// A WindowStats is the summary emitted when a flow's aggregation window is
// flushed.
type WindowStats struct {
	Source        string
	Group         uint32
	Packets       uint32
	TravelSumUs   float64
	TravelAvgUs   float64
	Lost          uint32 // sequence numbers in loss intervals tagged with this group
	LostPct       float64
	OutOfOrder    uint32
	OutOfOrderPct float64
	WindowMs      float64 // last arrival minus first arrival
}

// Metrics are engine counters, safe for concurrent reads from the signal
// handler and the metrics endpoint while the engine processes events.
type Metrics struct {
	ProcessTimes  metrics.DurationStats
	Packets       uint64 // marker events processed
	Flows         int    // flows tracked
	Intervals     int    // open loss intervals across all flows
	GapsOpened    uint64
	GapsDiscarded uint64 // pathological gaps dropped
	Reorders      uint64 // late arrivals attributed to an older group
	Flushes       uint64
	Wraparounds   uint64
	sync.RWMutex
}

func (m *Metrics) record(elapsed time.Duration, flows, intervalDelta int) {
	m.Lock()
	defer m.Unlock()
	m.ProcessTimes.Push(elapsed)
	m.Packets++
	m.Flows = flows
	m.Intervals += intervalDelta
}

// An Engine aggregates marker events into per-flow window statistics. It is
// an explicit instance with no global state, and must be driven from a
// single goroutine.
type Engine struct {
	Config
	metrics  Metrics
	travel   *metrics.DurationHistogram
	flows    map[string]*Flow
	order    []string // flow creation order, for deterministic final flush
	reorders reorderTable
}

// travel time histogram ranges: 100us bins to 10ms, 1ms bins to 100ms,
// 10ms bins to 1s
var travelSteps = []time.Duration{
	100 * time.Microsecond, time.Millisecond, 10 * time.Millisecond,
}

var travelEnds = []time.Duration{
	10 * time.Millisecond, 100 * time.Millisecond, time.Second,
}

func NewEngine(cfg Config) (e *Engine) {
	e = &Engine{cfg,
		Metrics{},
		metrics.NewDurationHistogram(travelSteps, travelEnds, "packets"),
		make(map[string]*Flow),
		nil,
		newReorderTable(),
	}
	return
}

// Process runs one decoded marker event through the engine and returns a
// non-nil WindowStats if the event completed an aggregation window (or
// forced one closed on wraparound).
func (e *Engine) Process(src string, seq uint32, arrival, sourceTS time.Time) (ws *WindowStats) {
	t0 := time.Now()

	f, ok := e.flows[src]
	created := false
	if !ok {
		f = &Flow{Source: src}
		e.flows[src] = f
		e.order = append(e.order, src)
		created = true

		// the sender's first observed packet implies everything before
		// it was lost
		if seq > 1 {
			e.openGap(f, 1, seq-1)
		}
	}
	base := len(f.lost)
	if created {
		base = 0
	}

	if !created && f.lastSeq >= e.WindowSize && seq == 1 {
		ws = e.wraparound(f, arrival, sourceTS)
		e.finishEvent(t0, f, base)
		return
	}

	f.packets++
	f.travelSumUs += float64(arrival.Sub(sourceTS)) / float64(time.Microsecond)
	f.travelSamples++
	if f.firstArrival.IsZero() {
		f.firstArrival = arrival
	}
	f.lastArrival = arrival
	e.travel.Push(arrival.Sub(sourceTS))

	if group, found := f.lost.fill(seq); found {
		// a presumed-lost packet arrived late after all
		f.outOfOrder++
		if group != f.group {
			e.reorders.add(f.Source, group)
			e.metrics.Lock()
			e.metrics.Reorders++
			e.metrics.Unlock()
		}
	} else {
		if !created && seq != f.lastSeq+1 {
			e.openGap(f, f.lastSeq+1, seq-1)
		}
		f.lastSeq = seq
	}

	if f.packets == e.WindowSize {
		ws = e.flush(f)
	}

	e.finishEvent(t0, f, base)
	return
}

// wraparound handles a full sequence counter restart: a partially filled
// window is forced closed, removal of all pre-reset loss intervals is
// scheduled one slack period out so genuinely late packets can still be
// matched, and the window state is reset to treat this arrival as sequence 1
// of a fresh stream. Loss intervals themselves are not touched here.
func (e *Engine) wraparound(f *Flow, arrival, sourceTS time.Time) (ws *WindowStats) {
	if e.Log {
		log.Printf("engine wraparound source=%s lastseq=%d group=%d", f.Source, f.lastSeq, f.group)
	}

	if f.packets > 0 {
		ws = e.flush(f)
	}

	f.reset = &pendingReset{0, f.group - 1, f.group + e.ResetSlack}
	if e.Log {
		log.Printf("engine scheduled interval purge source=%s groups=%d-%d at=%d",
			f.Source, f.reset.gpStart, f.reset.gpEnd, f.reset.applyAtGroup)
	}

	f.lastSeq = 1
	f.packets = 1
	f.outOfOrder = 0
	f.travelSumUs = float64(arrival.Sub(sourceTS)) / float64(time.Microsecond)
	f.travelSamples = 1
	f.firstArrival = arrival
	f.lastArrival = arrival
	e.travel.Push(arrival.Sub(sourceTS))

	e.metrics.Lock()
	e.metrics.Wraparounds++
	e.metrics.Unlock()

	return
}

// openGap records [start, end] as a new loss interval in the flow's current
// group. An inverted range (a duplicate or backwards arrival) is no gap at
// all; gaps longer than MaxGap are upstream counter glitches, not real loss,
// and are dropped.
func (e *Engine) openGap(f *Flow, start, end uint32) {
	if start > end {
		return
	}
	if end-start > e.MaxGap {
		e.metrics.Lock()
		e.metrics.GapsDiscarded++
		e.metrics.Unlock()
		log.Printf("engine discarding pathological gap source=%s start=%d end=%d", f.Source, start, end)
		return
	}

	f.lost.insert(start, end, f.group)

	e.metrics.Lock()
	e.metrics.GapsOpened++
	e.metrics.Unlock()
}

// flush closes the flow's current window: it builds the window summary,
// zeroes the window counters, advances the group counter and executes a
// pending wraparound cleanup if its group has been reached.
func (e *Engine) flush(f *Flow) (ws *WindowStats) {
	ws = &WindowStats{
		Source:      f.Source,
		Group:       f.group,
		Packets:     f.packets,
		TravelSumUs: f.travelSumUs,
		OutOfOrder:  f.outOfOrder,
		Lost:        f.lost.lostInGroup(f.group),
	}
	if f.travelSamples > 0 {
		ws.TravelAvgUs = f.travelSumUs / float64(f.travelSamples)
	}
	if f.packets > 0 {
		ws.LostPct = float64(ws.Lost) / float64(f.packets) * 100
		ws.OutOfOrderPct = float64(f.outOfOrder) / float64(f.packets) * 100
		ws.WindowMs = float64(f.lastArrival.Sub(f.firstArrival)) / float64(time.Millisecond)
	}

	f.packets = 0
	f.outOfOrder = 0
	f.travelSumUs = 0
	f.travelSamples = 0
	f.firstArrival = time.Time{} // next arrival starts the window
	f.group++

	if f.reset != nil && f.reset.applyAtGroup == f.group {
		n := f.lost.dropGroups(f.reset.gpStart, f.reset.gpEnd)
		if e.Log {
			log.Printf("engine purged stale intervals source=%s groups=%d-%d intervals=%d",
				f.Source, f.reset.gpStart, f.reset.gpEnd, n)
		}
		f.reset = nil
	}

	e.metrics.Lock()
	e.metrics.Flushes++
	e.metrics.Unlock()

	if e.Log {
		log.Printf("engine flush source=%s group=%d packets=%d lost=%d ooo=%d",
			ws.Source, ws.Group, ws.Packets, ws.Lost, ws.OutOfOrder)
	}

	return
}

// FlushAll force-flushes every flow with a non-empty current window, in flow
// creation order. Called at end of stream.
func (e *Engine) FlushAll() (wss []*WindowStats) {
	for _, src := range e.order {
		if f := e.flows[src]; f.packets > 0 {
			wss = append(wss, e.flush(f))
		}
	}
	return
}

// Reorders returns the reorder attribution table in first-seen order.
func (e *Engine) Reorders() []Reorder {
	return e.reorders.snapshot()
}

func (e *Engine) Metrics() (m Metrics) {
	e.metrics.RLock()
	defer e.metrics.RUnlock()
	m.ProcessTimes = e.metrics.ProcessTimes
	m.Packets = e.metrics.Packets
	m.Flows = e.metrics.Flows
	m.Intervals = e.metrics.Intervals
	m.GapsOpened = e.metrics.GapsOpened
	m.GapsDiscarded = e.metrics.GapsDiscarded
	m.Reorders = e.metrics.Reorders
	m.Flushes = e.metrics.Flushes
	m.Wraparounds = e.metrics.Wraparounds
	return
}

// TravelHistogram returns the travel time histogram shared with the metrics
// dump and the HTTP endpoint.
func (e *Engine) TravelHistogram() *metrics.DurationHistogram {
	return e.travel
}

func (e *Engine) finishEvent(t0 time.Time, f *Flow, intervalBase int) {
	e.metrics.record(time.Since(t0), len(e.flows), len(f.lost)-intervalBase)
}
