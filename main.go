// pktgenmon aggregates per-flow latency, loss and reordering statistics
// from pktgen marker streams read from a trace file or a live interface.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/teperf/pktgenmon/engine"
	"github.com/teperf/pktgenmon/prof"
	"github.com/teperf/pktgenmon/trace"
	"github.com/teperf/pktgenmon/writer"
)

const VERSION = "1.1.0"

// Defaults.
const (
	DEFAULT_GROUP_SIZE   = 10000
	DEFAULT_MAX_GAP      = 10000
	DEFAULT_RESET_SLACK  = 1
	DEFAULT_SNAPLEN      = 9000
	DEFAULT_READ_TIMEOUT = 250 * time.Millisecond
	DEFAULT_STOP_TIMEOUT = 15 * time.Second
	DEFAULT_HTTP_SERVER  = ""
	DEFAULT_OUT          = ""
	DEFAULT_SUMMARY      = false
	DEFAULT_LOG_ALL      = false
	DEFAULT_LOG_ENGINE   = false
	DEFAULT_LOG_TRACE    = false
	DEFAULT_LOG_WRITER   = false
)

func main() {
	// start profiling, if enabled in build
	if prof.ProfileEnabled {
		defer prof.StartProfile("./pktgenmon.pprof").Stop()
	}

	var cfp = flag.String("config", "", "YAML config file overriding built-in defaults")
	var rhs = flag.String("http", DEFAULT_HTTP_SERVER,
		"listen host/port of http server for metrics (e.g. :8080 or localhost:8080)")
	var out = flag.String("out", DEFAULT_OUT, "write results to this file instead of stdout")
	var smy = flag.Bool("summary", DEFAULT_SUMMARY,
		"emit per-flow travel time quantile summaries at end of run")
	var mgp = flag.Uint("max-gap", DEFAULT_MAX_GAP,
		"discard sequence gaps longer than this as upstream counter glitches")
	var rsl = flag.Uint("reset-slack", DEFAULT_RESET_SLACK,
		"windows to wait after a sequence wraparound before purging stale loss intervals")
	var snl = flag.Int("snaplen", DEFAULT_SNAPLEN, "live capture snap length")
	var rto = flag.Duration("read-timeout", DEFAULT_READ_TIMEOUT,
		"live capture read timeout (bounds stop latency)")
	var lal = flag.Bool("log-all", DEFAULT_LOG_ALL, "enable all logging")
	var lge = flag.Bool("log-engine", DEFAULT_LOG_ENGINE, "enable engine logging")
	var lgt = flag.Bool("log-trace", DEFAULT_LOG_TRACE, "enable trace source logging")
	var lgw = flag.Bool("log-writer", DEFAULT_LOG_WRITER, "enable writer logging")
	var ver = flag.Bool("version", false, "show version number")
	flag.Usage = usage
	flag.Parse()

	if *ver {
		fmt.Printf("%s version %s\n", os.Args[0], VERSION)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	uri := args[0]

	groupSize := DEFAULT_GROUP_SIZE
	rawGroup := strconv.Itoa(DEFAULT_GROUP_SIZE)
	if len(args) > 1 {
		var err error
		rawGroup = args[1]
		if groupSize, err = strconv.Atoi(args[1]); err != nil {
			groupSize = 0
		}
	}

	if *cfp != "" {
		fc, err := loadConfig(*cfp)
		if err != nil {
			log.Fatalf("unable to load config %s (%s)", *cfp, err)
		}

		set := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

		fc.apply(set, &options{rhs, out, smy, mgp, rsl, snl, lal})
		if fc.GroupSize != nil && len(args) < 2 {
			groupSize = *fc.GroupSize
			rawGroup = strconv.Itoa(groupSize)
		}
	}

	// a zero window size would never flush; reject it up front
	if groupSize < 1 {
		fmt.Fprintf(os.Stderr, "invalid group size %q: must be a positive packet count\n", rawGroup)
		os.Exit(1)
	}

	if *lal {
		*lge = true
		*lgt = true
		*lgw = true
	}

	cfg := &Config{
		trace.Config{
			URI:         uri,
			SnapLen:     int32(*snl),
			ReadTimeout: *rto,
			Log:         *lgt,
		},
		engine.Config{
			WindowSize: uint32(groupSize),
			MaxGap:     uint32(*mgp),
			ResetSlack: uint32(*rsl),
			Log:        *lge,
		},
		writer.Config{
			File: *out,
			Log:  *lgw,
		},
		*rhs,
		*smy,
		DEFAULT_STOP_TIMEOUT,
	}

	log.Printf("pktgenmon version %s started uri=%s group=%d", VERSION, uri, groupSize)

	os.Exit(run(cfg))
}

func run(cfg *Config) (code int) {
	var a *App
	var err error

	if a, err = NewApp(cfg); err != nil {
		log.Printf("initialization failed (%s)", err)
		return 2
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for {
			sig := <-sigs
			log.Println("received signal:", sig)
			if sig == syscall.SIGUSR1 {
				log.Printf("reading metrics\n" + a.DumpMetrics())
			} else if sig == syscall.SIGUSR2 {
				log.Println("running full GC")
				runtime.GC()
				log.Printf("reading metrics\n" + a.DumpMetrics())
			} else {
				if err := a.Stop(); err != nil {
					log.Printf("error on stop (%s)", err)
				}
				break
			}
		}
	}()

	if err = a.Run(); err != nil {
		log.Printf("run failed (%s)", err)
		return 2
	}

	log.Println("successful termination")
	return 0
}

func usage() {
	fmt.Fprintf(os.Stderr, "USAGE: %s [flags] inputURI [groupSize]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\tinputURI - capture URI (int:eth0, pcap:trace.pcap or a plain file path)\n")
	fmt.Fprintf(os.Stderr, "\tgroupSize - packets per aggregation window (default %d)\n\n", DEFAULT_GROUP_SIZE)
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
}
