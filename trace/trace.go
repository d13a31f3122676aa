// Package trace reads packets from a capture URI, either a live interface
// or a pcap trace file, and extracts what marker processing needs: arrival
// timestamp, source address and UDP payload.
package trace

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ErrTimeout is returned by Next when a live capture read timed out with no
// packet. Callers use the pause to check for a stop request and read again.
var ErrTimeout = errors.New("trace: read timed out")

// A Config contains the trace source configuration.
type Config struct {
	URI         string        // capture URI (int:IFACE, ring:IFACE, pcap:PATH or a file path)
	SnapLen     int32         // live capture snap length
	ReadTimeout time.Duration // live capture read timeout, bounds stop latency
	Log         bool          // if true, logging is enabled
}

// A Packet is one captured packet. Payload is nil when the packet carries no
// UDP layer.
type Packet struct {
	Arrival time.Time
	Source  string // network-layer source address
	Payload []byte // UDP payload
	Data    []byte // full link-layer frame, for re-writing to a trace
	Info    gopacket.CaptureInfo
}

// A Source iterates packets from one capture URI.
type Source struct {
	Config
	handle *pcap.Handle
	ps     *gopacket.PacketSource
}

// Open opens the capture URI. Schemes int: and ring: open a live capture on
// the named interface; pcap: and pcapfile: (or no scheme at all) open an
// offline trace file. Live captures are kernel-filtered to UDP.
func Open(cfg Config) (s *Source, err error) {
	scheme, rest := splitURI(cfg.URI)

	var handle *pcap.Handle
	var live bool
	switch scheme {
	case "int", "ring":
		live = true
		if handle, err = pcap.OpenLive(rest, cfg.SnapLen, true, cfg.ReadTimeout); err != nil {
			err = fmt.Errorf("opening interface %s: %w", rest, err)
			return
		}
		if err = handle.SetBPFFilter("udp"); err != nil {
			handle.Close()
			err = fmt.Errorf("applying udp filter: %w", err)
			return
		}
	case "pcap", "pcapfile", "":
		if handle, err = pcap.OpenOffline(rest); err != nil {
			err = fmt.Errorf("opening trace %s: %w", rest, err)
			return
		}
	default:
		err = fmt.Errorf("unsupported trace URI scheme %q", scheme)
		return
	}

	if cfg.Log {
		log.Printf("trace opened uri=%s live=%t link=%s", cfg.URI, live, handle.LinkType())
	}

	s = &Source{cfg,
		handle,
		gopacket.NewPacketSource(handle, handle.LinkType()),
	}

	return
}

// Next returns the next packet. At the end of an offline trace the error is
// io.EOF; on a live capture a quiet period surfaces as ErrTimeout.
func (s *Source) Next() (p Packet, err error) {
	pkt, err := s.ps.NextPacket()
	if err != nil {
		if err == pcap.NextErrorTimeoutExpired {
			err = ErrTimeout
		}
		return
	}

	md := pkt.Metadata()
	p.Arrival = md.Timestamp
	p.Info = md.CaptureInfo
	p.Data = pkt.Data()

	nl := pkt.NetworkLayer()
	if nl == nil {
		return
	}
	p.Source = nl.NetworkFlow().Src().String()

	if udp, ok := pkt.TransportLayer().(*layers.UDP); ok {
		p.Payload = udp.Payload
	}

	return
}

// LinkType returns the capture's link type, needed to write packets back
// out to a trace file.
func (s *Source) LinkType() layers.LinkType {
	return s.handle.LinkType()
}

// SnapLen returns the open handle's snap length. For an offline trace this
// is the file's own snap length, not the configured one.
func (s *Source) SnapLen() uint32 {
	return uint32(s.handle.SnapLen())
}

func (s *Source) Close() {
	s.handle.Close()
}

// splitURI splits a libtrace-style capture URI into scheme and remainder.
// A URI with no colon is a bare file path and has no scheme.
func splitURI(uri string) (scheme, rest string) {
	if i := strings.Index(uri, ":"); i >= 0 {
		return uri[:i], uri[i+1:]
	}
	return "", uri
}
