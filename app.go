package main

import (
	"fmt"
	"io"
	"log"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/teperf/pktgenmon/engine"
	"github.com/teperf/pktgenmon/marker"
	"github.com/teperf/pktgenmon/summary"
	"github.com/teperf/pktgenmon/trace"
	"github.com/teperf/pktgenmon/writer"
)

type Config struct {
	Trace       trace.Config  // trace source config
	Engine      engine.Config // engine config
	Writer      writer.Config // writer config
	HTTPAddr    string        // listen address of metrics server
	Summary     bool          // if true, emit travel time summaries at end of run
	StopTimeout time.Duration // time to wait on stop request
}

type App struct {
	*Config
	source *trace.Source
	engine *engine.Engine
	writer *writer.Writer
	sum    *summary.Collector
	stop   chan bool
	done   chan bool
}

func NewApp(cfg *Config) (a *App, err error) {
	var w *writer.Writer
	if w, err = writer.Open(cfg.Writer); err != nil {
		return
	}

	var src *trace.Source
	if src, err = trace.Open(cfg.Trace); err != nil {
		w.Close()
		return
	}

	a = &App{cfg,
		src,
		engine.NewEngine(cfg.Engine),
		w,
		summary.New(),
		make(chan bool),
		make(chan bool),
	}

	return
}

// Run consumes the trace one packet at a time until end of stream or a stop
// request, then drains the engine: final flush of every open window, the
// reorder table, and summaries if enabled. An upstream source error is
// fatal and suppresses the drain.
func (a *App) Run() (err error) {
	defer close(a.done)
	defer func() {
		if e := a.writer.Close(); e != nil {
			log.Printf("error closing writer (%s)", e)
		}
	}()
	defer a.source.Close()

	if a.HTTPAddr != "" {
		go a.httpServer()
	}

	if err = a.writer.Header(); err != nil {
		return
	}

	stopped := false
	for !stopped {
		select {
		case <-a.stop:
			stopped = true
			continue
		default:
		}

		var p trace.Packet
		if p, err = a.source.Next(); err != nil {
			if err == io.EOF {
				err = nil
				break
			}
			if err == trace.ErrTimeout {
				err = nil
				continue
			}
			return
		}

		if err = a.process(p); err != nil {
			return
		}
	}

	err = a.drain()

	return
}

// process runs one captured packet through marker decode and the engine,
// writing a window row if the event completed a window.
func (a *App) process(p trace.Packet) (err error) {
	if p.Source == "" || len(p.Payload) < marker.MinPayloadLen {
		return
	}

	m, ok := marker.Decode(p.Payload)
	if !ok {
		return
	}

	if ws := a.engine.Process(p.Source, m.Seq, p.Arrival, m.SourceTS); ws != nil {
		err = a.emit(ws)
	}

	return
}

func (a *App) emit(ws *engine.WindowStats) (err error) {
	if err = a.writer.Window(ws); err != nil {
		return
	}
	if a.Summary && ws.Packets > 0 {
		a.sum.Push(ws.Source, ws.TravelAvgUs)
	}
	return
}

func (a *App) drain() (err error) {
	for _, ws := range a.engine.FlushAll() {
		if err = a.emit(ws); err != nil {
			return
		}
	}

	if err = a.writer.Reorders(a.engine.Reorders()); err != nil {
		return
	}

	if a.Summary {
		err = a.writer.Summaries(a.sum.Summaries())
	}

	return
}

func (a *App) Stop() (err error) {
	log.Printf("stopping (waiting up to %s for stop)", a.StopTimeout)
	close(a.stop)
	select {
	case <-a.done:
	case <-time.After(a.StopTimeout):
		err = fmt.Errorf("wait for stop timed out")
	}
	return
}

func (a *App) DumpMetrics() (s string) {
	sb := &strings.Builder{}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	em := a.engine.Metrics()
	wm := a.writer.Metrics()

	w := tabwriter.NewWriter(sb, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Tracking %d flows, %d open loss intervals\n\n", em.Flows, em.Intervals)

	fmt.Fprintf(w, "Counters:\n")
	fmt.Fprintf(w, "---------\n\n")
	fmt.Fprintf(w, "Markers\t%d\n", em.Packets)
	fmt.Fprintf(w, "Gaps opened\t%d\n", em.GapsOpened)
	fmt.Fprintf(w, "Gaps discarded\t%d\n", em.GapsDiscarded)
	fmt.Fprintf(w, "Reorders\t%d\n", em.Reorders)
	fmt.Fprintf(w, "Window flushes\t%d\n", em.Flushes)
	fmt.Fprintf(w, "Wraparounds\t%d\n", em.Wraparounds)
	fmt.Fprintf(w, "\n")

	pt := em.ProcessTimes
	wt := wm.WriteTimes
	fmt.Fprintf(w, "Pipeline Stage Times (in μs):\n")
	fmt.Fprintf(w, "-----------------------------\n\n")
	fmt.Fprintf(w, "Stage\tCalls\tMin\tMean\tMax\tStddev\n")
	fmt.Fprintf(w, "Engine\t%d\t%d\t%d\t%d\t%d\n",
		pt.N, us(pt.Min), us(pt.Mean()), us(pt.Max), us(pt.Stddev()))
	fmt.Fprintf(w, "Writer\t%d\t%d\t%d\t%d\t%d\n",
		wt.N, us(wt.Min), us(wt.Mean()), us(wt.Max), us(wt.Stddev()))
	fmt.Fprintf(w, "\n")

	th, oor := a.engine.TravelHistogram().String(60)
	fmt.Fprintf(w, "Travel Times (%.1f%% out of range):\n", oor)
	fmt.Fprintf(w, "%s\n", th)

	fmt.Fprintf(w, "Memory Stats:\n")
	fmt.Fprintf(w, "-------------\n\n")
	fmt.Fprintf(w, "Heap alloc bytes\t%d\n", ms.HeapAlloc)
	fmt.Fprintf(w, "Heap total bytes\t%d\n", ms.TotalAlloc)
	fmt.Fprintf(w, "Sys (OS virt size)\t%d\n", ms.Sys)
	fmt.Fprintf(w, "Mallocs\t%d\n", ms.Mallocs)
	fmt.Fprintf(w, "Frees\t%d\n", ms.Frees)
	fmt.Fprintf(w, "Live objects\t%d\n", ms.Mallocs-ms.Frees)
	w.Flush()

	s = sb.String()
	return
}

func us(d time.Duration) int64 {
	return int64(d) / 1e3
}
