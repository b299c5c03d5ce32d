// Package ovrtp implements just enough of RFC 3550's RTP fixed header
// to hand a recorder pipeline the fields it needs: sequence number,
// SSRC, payload type, and payload.
package ovrtp

import (
	"encoding/binary"
	"fmt"
)

const minHeaderLen = 12

// Header is the RTP fixed header (RFC 3550 §5.1).
type Header struct {
	Version        uint8
	Padding        bool
	Extension      bool
	CSRCCount      uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
}

// ParsePacket parses an RTP packet, returning its header and payload.
// When the padding bit is set, the trailing padding (its length taken
// from the last byte) is removed from the payload.
func ParsePacket(data []byte) (Header, []byte, error) {
	if len(data) < minHeaderLen {
		return Header{}, nil, fmt.Errorf("rtp packet too short: %d bytes", len(data))
	}

	b0, b1 := data[0], data[1]
	version := b0 >> 6
	if version != 2 {
		return Header{}, nil, fmt.Errorf("unsupported rtp version %d", version)
	}

	h := Header{
		Version:        version,
		Padding:        b0&0x20 != 0,
		Extension:      b0&0x10 != 0,
		CSRCCount:      b0 & 0x0f,
		Marker:         b1&0x80 != 0,
		PayloadType:    b1 & 0x7f,
		SequenceNumber: binary.BigEndian.Uint16(data[2:4]),
		Timestamp:      binary.BigEndian.Uint32(data[4:8]),
		SSRC:           binary.BigEndian.Uint32(data[8:12]),
	}

	offset := minHeaderLen + int(h.CSRCCount)*4
	if len(data) < offset {
		return Header{}, nil, fmt.Errorf("rtp packet truncated before CSRC list end")
	}

	if h.Extension {
		if len(data) < offset+4 {
			return Header{}, nil, fmt.Errorf("rtp packet truncated before extension header")
		}
		extLen := int(binary.BigEndian.Uint16(data[offset+2:offset+4])) * 4
		offset += 4 + extLen
		if len(data) < offset {
			return Header{}, nil, fmt.Errorf("rtp packet truncated within extension")
		}
	}

	payload := data[offset:]
	if h.Padding && len(payload) > 0 {
		padLen := int(payload[len(payload)-1])
		if padLen > 0 && padLen <= len(payload) {
			payload = payload[:len(payload)-padLen]
		}
	}

	return h, payload, nil
}
