// capfilter copies pktgen marker packets from an input capture to an output
// pcap file. The capture stops after maxCount marker packets, or when
// capturing indefinitely, on SIGINT. An indefinite capture writes DONE to a
// sentinel file next to the output once it has exited, so orchestration
// scripts can detect completion.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/gopacket/pcapgo"

	"github.com/teperf/pktgenmon/marker"
	"github.com/teperf/pktgenmon/trace"
)

const (
	DEFAULT_SNAPLEN      = 9000
	DEFAULT_READ_TIMEOUT = 250 * time.Millisecond
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "USAGE: %s inputURI outputFile [maxCount]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\tinputURI - capture URI (i.e. int:eth0 or pcap:trace.pcap)\n")
		fmt.Fprintf(os.Stderr, "\toutputFile - pcap file to save marker packets to\n")
		fmt.Fprintf(os.Stderr, "\tmaxCount - number of marker packets to capture\n")
		fmt.Fprintf(os.Stderr, "\t           if < 1 record until SIGINT\n")
		os.Exit(1)
	}

	maxCount := 0
	if len(os.Args) > 3 {
		maxCount, _ = strconv.Atoi(os.Args[3])
	}

	os.Exit(run(os.Args[1], os.Args[2], maxCount))
}

func run(uri, outFile string, maxCount int) int {
	src, err := trace.Open(trace.Config{
		URI:         uri,
		SnapLen:     DEFAULT_SNAPLEN,
		ReadTimeout: DEFAULT_READ_TIMEOUT,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening input trace (%s)\n", err)
		return 2
	}
	defer src.Close()

	f, err := os.Create(outFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening output file (%s)\n", err)
		return 2
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err = w.WriteFileHeader(src.SnapLen(), src.LinkType()); err != nil {
		fmt.Fprintf(os.Stderr, "error writing output file header (%s)\n", err)
		return 2
	}

	stop := make(chan os.Signal, 1)
	if maxCount < 1 {
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	}

	count := 0
	for {
		select {
		case <-stop:
			return finish(outFile, maxCount)
		default:
		}

		var p trace.Packet
		if p, err = src.Next(); err != nil {
			if err == io.EOF {
				return finish(outFile, maxCount)
			}
			if err == trace.ErrTimeout {
				continue
			}
			fmt.Fprintf(os.Stderr, "error reading packets (%s)\n", err)
			return 2
		}

		if len(p.Payload) < marker.MinPayloadLen {
			continue
		}
		if _, ok := marker.Decode(p.Payload); !ok {
			continue
		}

		if err = w.WritePacket(p.Info, p.Data); err != nil {
			fmt.Fprintf(os.Stderr, "error saving packet to trace (%s)\n", err)
			return 2
		}

		count++
		if maxCount > 0 && count >= maxCount {
			return finish(outFile, maxCount)
		}
	}
}

// finish writes the done sentinel when capturing indefinitely.
func finish(outFile string, maxCount int) int {
	if maxCount >= 1 {
		return 0
	}
	f, err := os.Create(outFile + ".done")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error writing done sentinel (%s)\n", err)
		return 2
	}
	defer f.Close()
	fmt.Fprintln(f, "DONE")
	return 0
}
