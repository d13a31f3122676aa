// Package marker decodes pktgen marker payloads. A marker is a UDP payload
// carrying a fixed 4-byte magic, a sequence number and the sender's
// timestamp, all as big-endian 32-bit fields.
package marker

import (
	"encoding/binary"
	"time"
)

// Magic is the fixed value in the first four payload bytes of a marker.
const Magic = 0xBE9BE955

// HeaderLen is the number of payload bytes occupied by the marker fields.
const HeaderLen = 16

// MinPayloadLen is the UDP payload length floor below which a payload is
// rejected before decoding is attempted (one 4-byte slot larger than the
// marker fields strictly need, matching the pktgen sender's minimum).
const MinPayloadLen = 20

// A Marker contains the decoded fields of a pktgen marker payload.
type Marker struct {
	Seq      uint32    // sender sequence number, starts at 1
	SourceTS time.Time // sender timestamp embedded in the payload
}

// Decode extracts a marker from payload. ok is false if the payload is too
// short or the magic does not match; no other failure mode exists.
func Decode(payload []byte) (m Marker, ok bool) {
	if len(payload) < HeaderLen {
		return
	}

	if binary.BigEndian.Uint32(payload[0:4]) != Magic {
		return
	}

	m.Seq = binary.BigEndian.Uint32(payload[4:8])
	sec := binary.BigEndian.Uint32(payload[8:12])
	usec := binary.BigEndian.Uint32(payload[12:16])
	m.SourceTS = time.Unix(int64(sec), int64(usec)*1000)
	ok = true

	return
}
