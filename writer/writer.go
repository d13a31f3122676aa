// Package writer emits the aggregation results as tab-separated tables: one
// row per flushed window, then the reorder attribution table at end of
// stream, and optionally per-flow travel time summaries.
package writer

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/teperf/pktgenmon/engine"
	"github.com/teperf/pktgenmon/metrics"
	"github.com/teperf/pktgenmon/summary"
)

type Config struct {
	File string // output file; stdout if empty
	Log  bool   // if true, logging is enabled
}

// Metrics are writer counters, safe for concurrent reads from the signal
// handler and the metrics endpoint while rows are being written.
type Metrics struct {
	WriteTimes metrics.DurationStats
	Rows       uint64
	sync.RWMutex
}

func (m *Metrics) record(elapsed time.Duration) {
	m.Lock()
	defer m.Unlock()
	m.WriteTimes.Push(elapsed)
	m.Rows++
}

type Writer struct {
	Config
	metrics Metrics
	w       *bufio.Writer
	file    *os.File
}

// Open opens the configured output file, or wraps stdout if none is
// configured.
func Open(cfg Config) (w *Writer, err error) {
	var out io.Writer = os.Stdout
	var f *os.File
	if cfg.File != "" {
		if f, err = os.Create(cfg.File); err != nil {
			return
		}
		out = f
	} else if cfg.Log {
		log.Printf("writer using stdout")
	}

	w = New(out, cfg)
	w.file = f

	return
}

// New makes a Writer over an arbitrary destination.
func New(out io.Writer, cfg Config) *Writer {
	return &Writer{cfg, Metrics{}, bufio.NewWriter(out), nil}
}

// Header writes the window table header.
func (w *Writer) Header() (err error) {
	_, err = fmt.Fprintln(w.w,
		"source\tgroup\tpackets\ttotal_time_us\tavg_time_us\tlost\tlost_pct\treorder\treorder_pct\twindow_ms")
	return
}

// Window writes one flushed window row.
func (w *Writer) Window(ws *engine.WindowStats) (err error) {
	t0 := time.Now()

	_, err = fmt.Fprintf(w.w, "%s\t%d\t%d\t%.2f\t%.2f\t%d\t%.2f\t%d\t%.2f\t%.2f\n",
		ws.Source, ws.Group, ws.Packets, ws.TravelSumUs, ws.TravelAvgUs,
		ws.Lost, ws.LostPct, ws.OutOfOrder, ws.OutOfOrderPct, ws.WindowMs)

	w.metrics.record(time.Since(t0))

	if w.Log {
		log.Printf("writer row source=%s group=%d", ws.Source, ws.Group)
	}

	return
}

// Reorders writes the end-of-stream reorder attribution table.
func (w *Writer) Reorders(rs []engine.Reorder) (err error) {
	if _, err = fmt.Fprintln(w.w, "\nsource\tgroup\treorder"); err != nil {
		return
	}
	for _, r := range rs {
		if _, err = fmt.Fprintf(w.w, "%s\t%d\t%d\n", r.Source, r.Group, r.Count); err != nil {
			return
		}
	}
	return
}

// Summaries writes per-flow travel time quantile summaries.
func (w *Writer) Summaries(ss []summary.Summary) (err error) {
	if _, err = fmt.Fprintln(w.w,
		"\nsource\twindows\tp2_us\tp9_us\tp25_us\tp50_us\tp75_us\tp91_us\tp98_us"); err != nil {
		return
	}
	for _, s := range ss {
		if _, err = fmt.Fprintf(w.w, "%s\t%d", s.Source, s.Windows); err != nil {
			return
		}
		for _, q := range s.Quantiles {
			if _, err = fmt.Fprintf(w.w, "\t%.2f", q); err != nil {
				return
			}
		}
		if _, err = fmt.Fprintln(w.w); err != nil {
			return
		}
	}
	return
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}

func (w *Writer) Metrics() (m Metrics) {
	w.metrics.RLock()
	defer w.metrics.RUnlock()
	m.WriteTimes = w.metrics.WriteTimes
	m.Rows = w.metrics.Rows
	return
}

func (w *Writer) Close() (err error) {
	if err = w.w.Flush(); err != nil {
		return
	}
	if w.file != nil {
		err = w.file.Close()
	}
	return
}
