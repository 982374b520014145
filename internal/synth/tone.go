package synth

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
)

const toneSampleRate = 8000

var toneVoices = []domain.Voice{
	{ID: "tone-low", Name: "Low tone", Language: "none"},
	{ID: "tone-mid", Name: "Middle tone", Language: "none"},
	{ID: "tone-high", Name: "High tone", Language: "none"},
}

var toneFrequencies = map[string]float64{
	"tone-low":  220,
	"tone-mid":  440,
	"tone-high": 880,
}

// ToneSynthesizer renders a sine tone whose length follows the word count and
// rate. It needs no speech engine and is meant for development and tests.
type ToneSynthesizer struct{}

// NewToneSynthesizer creates the offline tone engine.
func NewToneSynthesizer() *ToneSynthesizer {
	return &ToneSynthesizer{}
}

// Synthesize returns a mono 16-bit WAV tone for text.
func (s *ToneSynthesizer) Synthesize(ctx context.Context, text string, voice domain.VoiceProfile) (Audio, error) {
	if err := ctx.Err(); err != nil {
		return Audio{}, err
	}

	freq, ok := toneFrequencies[voice.VoiceID]
	if !ok {
		freq = toneFrequencies["tone-mid"]
	}

	rate := voice.Rate
	if rate <= 0 {
		rate = baseRate
	}
	words := len(strings.Fields(text))
	if words == 0 && utf8.RuneCountInString(text) > 0 {
		words = 1
	}

	seconds := float64(words) * 60 / float64(rate)
	n := int(seconds * toneSampleRate)
	samples := make([]int16, n)
	amp := voice.Volume * math.MaxInt16
	for i := range samples {
		samples[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/toneSampleRate))
	}

	return Audio{Data: encodeWAV(samples, toneSampleRate, 1), ContentType: ContentTypeWAV}, nil
}

// Voices lists the available tones.
func (s *ToneSynthesizer) Voices(context.Context) ([]domain.Voice, error) {
	return append([]domain.Voice(nil), toneVoices...), nil
}
