package ovcontainer

import (
	"encoding/binary"
	"hash/crc32"
	"os"
)

// oggWriter pages raw 16-bit PCM samples into single-stream Ogg
// container pages (RFC 3533 framing: capture pattern, CRC32, lacing
// values). No pure-Go Opus encoder exists anywhere in the example pack
// (see DESIGN.md), so each "packet" is simply the chunk's little-endian
// PCM bytes; this keeps the container layer exercised end to end while
// leaving real Opus encoding as a follow-up behind the Decoder/Writer
// interfaces.
type oggWriter struct {
	f          *os.File
	sampleRate int
	serial     uint32
	pageSeq    uint32
	granule    int64
	samples    int64
	wroteBOS   bool
}

var oggCRCTable = makeOggCRCTable()

// Ogg uses the unreflected CRC-32 polynomial 0x04C11DB7, not the
// standard IEEE reflected one crc32.IEEE implements.
func makeOggCRCTable() [256]uint32 {
	var table [256]uint32
	const poly = uint32(0x04c11db7)
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for bit := 0; bit < 8; bit++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}

func oggCRC(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = (crc << 8) ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}

func newOggWriter(path string, sampleRate int) (*oggWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &oggWriter{
		f:          f,
		sampleRate: sampleRate,
		serial:     uint32(crc32.ChecksumIEEE([]byte(path))),
	}
	return w, nil
}

// writePage emits one Ogg page containing a single packet, header type
// bosEOS bit flags passed via headerType (0x02 = BOS, 0x04 = EOS).
func (w *oggWriter) writePage(packet []byte, headerType byte, granule int64) error {
	segments := lacingValues(len(packet))

	header := make([]byte, 27+len(segments))
	copy(header[0:4], "OggS")
	header[4] = 0 // stream structure version
	header[5] = headerType
	binary.LittleEndian.PutUint64(header[6:14], uint64(granule))
	binary.LittleEndian.PutUint32(header[14:18], w.serial)
	binary.LittleEndian.PutUint32(header[18:22], w.pageSeq)
	// header[22:26] CRC, computed below with CRC field zeroed
	header[26] = byte(len(segments))
	copy(header[27:], segments)

	page := append(header, packet...)
	crc := oggCRC(page)
	binary.LittleEndian.PutUint32(page[22:26], crc)

	if _, err := w.f.Write(page); err != nil {
		return err
	}
	w.pageSeq++
	return nil
}

// lacingValues encodes a packet length as a sequence of 255-valued
// segments terminated by a value < 255 (0 if the length is an exact
// multiple of 255).
func lacingValues(n int) []byte {
	var segs []byte
	for n >= 255 {
		segs = append(segs, 255)
		n -= 255
	}
	segs = append(segs, byte(n))
	return segs
}

func (w *oggWriter) WriteChunk(pcm []int16) error {
	buf := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}

	headerType := byte(0)
	if !w.wroteBOS {
		headerType = 0x02
		w.wroteBOS = true
	}

	w.samples += int64(len(pcm))
	w.granule = w.samples

	if err := w.writePage(buf, headerType, w.granule); err != nil {
		return err
	}
	return nil
}

func (w *oggWriter) Close() (int64, error) {
	// Emit an empty EOS page so readers see a clean stream end.
	if err := w.writePage(nil, 0x04, w.granule); err != nil {
		w.f.Close()
		return w.samples, err
	}
	return w.samples, w.f.Close()
}
