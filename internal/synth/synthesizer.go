// Package synth adapts speech engines to the chunked conversion pipeline.
package synth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
)

// Audio is one synthesized segment.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer turns text into audio using an external speech engine.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice domain.VoiceProfile) (Audio, error)
	Voices(ctx context.Context) ([]domain.Voice, error)
}

// Engine names accepted by New.
const (
	EngineEspeak = "espeak"
	EngineKokoro = "kokoro"
	EngineTone   = "tone"
)

// Options selects and configures a Synthesizer backend.
type Options struct {
	Engine      string
	EspeakPath  string
	KokoroURL   string
	KokoroModel string
	HTTPTimeout time.Duration
}

// New builds the Synthesizer named by opts.Engine.
func New(opts Options) (Synthesizer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Engine)) {
	case EngineEspeak, "espeak-ng", "":
		return NewEspeakSynthesizer(opts.EspeakPath), nil
	case EngineKokoro:
		return NewKokoroSynthesizer(opts.KokoroURL, opts.KokoroModel, opts.HTTPTimeout), nil
	case EngineTone:
		return NewToneSynthesizer(), nil
	default:
		return nil, fmt.Errorf("%w: unknown speech engine %q", domain.ErrInvalidParameter, opts.Engine)
	}
}
