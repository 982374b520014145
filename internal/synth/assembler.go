package synth

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Sink is the artifact being built. storage.Writer satisfies it.
type Sink interface {
	Append(p []byte) error
	io.WriterAt
	Size() int64
}

// Assembler concatenates audio segments, in the order they are added, into one
// artifact. WAV segments are merged into a single RIFF stream; any other
// format is concatenated byte for byte.
type Assembler struct {
	sink        Sink
	contentType string
	segments    int
	pause       time.Duration

	wavFormat      []byte
	dataStart      int64
	dataSizeOffset int64
}

// NewAssembler creates an assembler writing to sink.
func NewAssembler(sink Sink) *Assembler {
	return &Assembler{sink: sink}
}

// SetPause inserts d of silence between consecutive WAV segments. Other
// formats are joined without a gap.
func (a *Assembler) SetPause(d time.Duration) {
	a.pause = d
}

// Segments returns the number of non-empty segments added.
func (a *Assembler) Segments() int {
	return a.segments
}

// Add appends one synthesized segment. Empty segments are skipped.
func (a *Assembler) Add(audio Audio) error {
	if len(audio.Data) == 0 {
		return nil
	}

	if a.segments == 0 {
		a.contentType = audio.ContentType
		if isWAV(audio.Data) {
			a.contentType = ContentTypeWAV
		}
	}

	var err error
	if a.contentType == ContentTypeWAV {
		err = a.addWAV(audio.Data)
	} else {
		if audio.ContentType != a.contentType {
			return fmt.Errorf("segment %d is %s, artifact is %s", a.segments, audio.ContentType, a.contentType)
		}
		err = a.sink.Append(audio.Data)
	}
	if err != nil {
		return err
	}

	a.segments++
	return nil
}

func (a *Assembler) addWAV(data []byte) error {
	seg, err := parseWAV(data)
	if err != nil {
		return fmt.Errorf("segment %d: %w", a.segments, err)
	}

	if a.segments == 0 {
		a.wavFormat = append([]byte(nil), seg.format...)
		a.dataStart = a.sink.Size() + int64(len(seg.header))
		a.dataSizeOffset = a.sink.Size() + int64(seg.dataSizeOffset)
		if err := a.sink.Append(seg.header); err != nil {
			return err
		}
		return a.sink.Append(seg.payload)
	}

	if !bytes.Equal(seg.format, a.wavFormat) {
		return fmt.Errorf("segment %d: wav format differs from first segment", a.segments)
	}
	if gap := silence(a.wavFormat, a.pause); len(gap) > 0 {
		if err := a.sink.Append(gap); err != nil {
			return err
		}
	}
	return a.sink.Append(seg.payload)
}

// Finish completes the container and returns the artifact content type.
// An artifact with no segments is empty and typed as WAV.
func (a *Assembler) Finish() (string, error) {
	if a.segments == 0 {
		return ContentTypeWAV, nil
	}
	if a.contentType != ContentTypeWAV {
		return a.contentType, nil
	}

	total := a.sink.Size()
	var le [4]byte

	binary.LittleEndian.PutUint32(le[:], uint32(total-8))
	if _, err := a.sink.WriteAt(le[:], 4); err != nil {
		return "", err
	}

	binary.LittleEndian.PutUint32(le[:], uint32(total-a.dataStart))
	if _, err := a.sink.WriteAt(le[:], a.dataSizeOffset); err != nil {
		return "", err
	}
	return ContentTypeWAV, nil
}

// silence returns d of PCM silence in the sample format described by the fmt
// chunk, rounded down to whole frames.
func silence(format []byte, d time.Duration) []byte {
	if d <= 0 || len(format) < 16 {
		return nil
	}
	byteRate := int64(binary.LittleEndian.Uint32(format[8:12]))
	blockAlign := int64(binary.LittleEndian.Uint16(format[12:14]))
	bits := binary.LittleEndian.Uint16(format[14:16])
	if byteRate == 0 || blockAlign == 0 {
		return nil
	}

	n := byteRate * d.Milliseconds() / 1000
	n -= n % blockAlign
	if n <= 0 {
		return nil
	}
	if bits == 8 {
		return bytes.Repeat([]byte{0x80}, int(n))
	}
	return make([]byte, n)
}
