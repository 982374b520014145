package synth

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ContentTypeWAV is the content type of RIFF/WAVE audio.
const ContentTypeWAV = "audio/wav"

// ContentTypeMP3 is the content type of MPEG audio.
const ContentTypeMP3 = "audio/mpeg"

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// wavSegment is a parsed WAV file split into header and sample payload.
type wavSegment struct {
	header         []byte
	format         []byte
	payload        []byte
	dataSizeOffset int
}

// isWAV reports whether data starts with a RIFF/WAVE signature.
func isWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

// parseWAV locates the fmt and data chunks of a WAV file. Chunks between
// them are kept in the header. Streaming encoders often write 0 or 0xFFFFFFFF
// as the data size, so an oversized data chunk is clamped to the buffer.
func parseWAV(data []byte) (wavSegment, error) {
	if !isWAV(data) {
		return wavSegment{}, errNotWAV
	}

	var seg wavSegment
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if body+size > len(data) {
				return wavSegment{}, fmt.Errorf("truncated fmt chunk")
			}
			seg.format = data[body : body+size]
		case "data":
			if seg.format == nil {
				return wavSegment{}, fmt.Errorf("data chunk before fmt chunk")
			}
			end := body + size
			if size == 0 || end > len(data) || end < body {
				end = len(data)
			}
			seg.header = data[:body]
			seg.payload = data[body:end]
			seg.dataSizeOffset = pos + 4
			return seg, nil
		}

		pos = body + size + size%2
	}

	return wavSegment{}, fmt.Errorf("missing data chunk")
}

// encodeWAV wraps 16-bit little-endian PCM samples in a canonical WAV header.
func encodeWAV(samples []int16, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	dataSize := len(samples) * 2
	blockAlign := channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	_ = binary.Write(buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
