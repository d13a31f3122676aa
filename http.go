package main

import (
	"log"
	"net/http"
	"runtime"
	"text/template"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teperf/pktgenmon/engine"
)

// httpServer serves a human-readable metrics page at / and Prometheus
// metrics at /metrics, for long-lived live captures.
func (a *App) httpServer() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(newEngineCollector(a.engine))

	mux := http.NewServeMux()
	mux.Handle("/", newRootHandler(a))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.Printf("starting http server on %s", a.HTTPAddr)
	if err := http.ListenAndServe(a.HTTPAddr, mux); err != nil {
		log.Printf("http server exiting due to error (%s)", err)
	}
}

// An engineCollector exposes engine counters as Prometheus metrics.
type engineCollector struct {
	engine      *engine.Engine
	markers     *prometheus.Desc
	flows       *prometheus.Desc
	intervals   *prometheus.Desc
	gaps        *prometheus.Desc
	gapsDropped *prometheus.Desc
	reorders    *prometheus.Desc
	flushes     *prometheus.Desc
	wraparounds *prometheus.Desc
}

func newEngineCollector(e *engine.Engine) *engineCollector {
	return &engineCollector{
		engine: e,
		markers: prometheus.NewDesc("pktgenmon_markers_total",
			"Marker events processed", nil, nil),
		flows: prometheus.NewDesc("pktgenmon_flows",
			"Flows currently tracked", nil, nil),
		intervals: prometheus.NewDesc("pktgenmon_loss_intervals",
			"Open loss intervals across all flows", nil, nil),
		gaps: prometheus.NewDesc("pktgenmon_gaps_opened_total",
			"Loss intervals opened", nil, nil),
		gapsDropped: prometheus.NewDesc("pktgenmon_gaps_discarded_total",
			"Pathological gaps discarded as counter glitches", nil, nil),
		reorders: prometheus.NewDesc("pktgenmon_reorders_total",
			"Late arrivals attributed to an older group", nil, nil),
		flushes: prometheus.NewDesc("pktgenmon_window_flushes_total",
			"Aggregation windows flushed", nil, nil),
		wraparounds: prometheus.NewDesc("pktgenmon_wraparounds_total",
			"Sequence counter restarts detected", nil, nil),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.markers
	ch <- c.flows
	ch <- c.intervals
	ch <- c.gaps
	ch <- c.gapsDropped
	ch <- c.reorders
	ch <- c.flushes
	ch <- c.wraparounds
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.engine.Metrics()
	ch <- prometheus.MustNewConstMetric(c.markers, prometheus.CounterValue, float64(m.Packets))
	ch <- prometheus.MustNewConstMetric(c.flows, prometheus.GaugeValue, float64(m.Flows))
	ch <- prometheus.MustNewConstMetric(c.intervals, prometheus.GaugeValue, float64(m.Intervals))
	ch <- prometheus.MustNewConstMetric(c.gaps, prometheus.CounterValue, float64(m.GapsOpened))
	ch <- prometheus.MustNewConstMetric(c.gapsDropped, prometheus.CounterValue, float64(m.GapsDiscarded))
	ch <- prometheus.MustNewConstMetric(c.reorders, prometheus.CounterValue, float64(m.Reorders))
	ch <- prometheus.MustNewConstMetric(c.flushes, prometheus.CounterValue, float64(m.Flushes))
	ch <- prometheus.MustNewConstMetric(c.wraparounds, prometheus.CounterValue, float64(m.Wraparounds))
}

type rootHandler struct {
	tmpl *template.Template
	app  *App
}

func newRootHandler(a *App) *rootHandler {
	thtml := `
<html>
<head>
<title>pktgenmon {{.Version}}</title>
</head>
<h2>pktgenmon version {{.Version}}</h2>

<pre>
{{.Metrics}}
</pre>

<div>
<form action="/" method="GET" style="float: left; margin-right: 1em">
    <input type="submit" value="Refresh" />
</form>
<form action="/" method="GET">
	<input type="hidden" name="gc" value="1" />
    <input type="submit" value="Run GC" />
</form>
</div>

</html>`

	tmpl := template.Must(template.New("thtml").Parse(thtml))

	return &rootHandler{tmpl, a}
}

func (h *rootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.URL.Query()["gc"]; ok {
		runtime.GC()
	}

	d := httpServerData{
		VERSION,
		h.app.DumpMetrics(),
	}

	if err := h.tmpl.Execute(w, d); err != nil {
		log.Printf("http server error executing template (%s)", err)
	}
}

type httpServerData struct {
	Version string
	Metrics string
}
