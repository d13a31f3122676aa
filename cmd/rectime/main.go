// rectime computes the recovery time between two pktgen traces taken on a
// primary and a secondary path. It locates the first marker packet in the
// secondary trace and the highest sequence marker packet in the primary
// trace, and reports the difference of the two source timestamps along with
// the sequence delta as a lost packet estimate.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/teperf/pktgenmon/marker"
	"github.com/teperf/pktgenmon/trace"
)

const timeFormat = "2006-01-02 15:04:05.000000"

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "USAGE: %s primaryURI secondaryURI\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\tprimaryURI - trace of the path in use before the event\n")
		fmt.Fprintf(os.Stderr, "\tsecondaryURI - trace of the path in use after the event\n")
		os.Exit(1)
	}

	os.Exit(run(os.Args[1], os.Args[2]))
}

func run(primURI, secURI string) int {
	sec, err := firstMarker(secURI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading secondary trace (%s)\n", err)
		return 2
	}
	if sec.Seq == 0 {
		fmt.Printf("Error!,Can't locate PKTGEN packet in secondary trace %s\n", secURI)
		return 2
	}

	prim, err := lastMarker(primURI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading primary trace (%s)\n", err)
		return 2
	}
	if prim.Seq == 0 {
		fmt.Printf("Error!,Can't locate PKTGEN packet in primary trace %s\n", primURI)
		return 2
	}

	recTimeMs := float64(sec.SourceTS.Sub(prim.SourceTS)) / float64(time.Millisecond)
	packetLoss := int32(sec.Seq - prim.Seq)

	fmt.Printf("%f,%d,%d,%s,%d,%s\n", recTimeMs, packetLoss,
		prim.Seq, prim.SourceTS.Format(timeFormat),
		sec.Seq, sec.SourceTS.Format(timeFormat))

	return 0
}

// firstMarker returns the first marker in the trace, or a zero Marker if the
// trace holds none.
func firstMarker(uri string) (m marker.Marker, err error) {
	var src *trace.Source
	if src, err = trace.Open(trace.Config{URI: uri}); err != nil {
		return
	}
	defer src.Close()

	var p trace.Packet
	for {
		if p, err = src.Next(); err != nil {
			if err == io.EOF {
				err = nil
			}
			return
		}
		if len(p.Payload) < marker.MinPayloadLen {
			continue
		}
		var ok bool
		if m, ok = marker.Decode(p.Payload); ok {
			return
		}
	}
}

// lastMarker returns the marker with the highest sequence number in the
// trace, or a zero Marker if the trace holds none.
func lastMarker(uri string) (m marker.Marker, err error) {
	var src *trace.Source
	if src, err = trace.Open(trace.Config{URI: uri}); err != nil {
		return
	}
	defer src.Close()

	var p trace.Packet
	for {
		if p, err = src.Next(); err != nil {
			if err == io.EOF {
				err = nil
			}
			return
		}
		if len(p.Payload) < marker.MinPayloadLen {
			continue
		}
		if c, ok := marker.Decode(p.Payload); ok && c.Seq > m.Seq {
			m = c
		}
	}
}
