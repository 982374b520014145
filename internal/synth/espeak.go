package synth

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
)

// DefaultEspeakPath is the espeak-ng binary looked up on PATH.
const DefaultEspeakPath = "espeak-ng"

// EspeakSynthesizer drives the espeak-ng command line engine. Its speed flag
// is in words per minute and its amplitude spans 0-200, so voice profiles map
// onto it without conversion tables.
type EspeakSynthesizer struct {
	path   string
	runner commandRunner
}

// NewEspeakSynthesizer creates an espeak-ng backed synthesizer.
func NewEspeakSynthesizer(path string) *EspeakSynthesizer {
	if strings.TrimSpace(path) == "" {
		path = DefaultEspeakPath
	}
	return &EspeakSynthesizer{path: path, runner: &execRunner{}}
}

// Path returns the configured binary.
func (s *EspeakSynthesizer) Path() string {
	return s.path
}

// Synthesize renders text to WAV through espeak-ng's stdout.
func (s *EspeakSynthesizer) Synthesize(ctx context.Context, text string, voice domain.VoiceProfile) (Audio, error) {
	args := buildEspeakArgs(voice)
	res, err := s.runner.Run(ctx, text, s.path, args...)
	if err != nil {
		return Audio{}, &CommandError{
			Command:  s.path,
			Args:     args,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}
	if !isWAV(res.Stdout) {
		return Audio{}, &CommandError{
			Command: s.path,
			Args:    args,
			Stderr:  res.Stderr,
			Err:     errNotWAV,
		}
	}
	return Audio{Data: res.Stdout, ContentType: ContentTypeWAV}, nil
}

// Voices lists the installed espeak-ng voices.
func (s *EspeakSynthesizer) Voices(ctx context.Context) ([]domain.Voice, error) {
	res, err := s.runner.Run(ctx, "", s.path, "--voices")
	if err != nil {
		return nil, &CommandError{
			Command:  s.path,
			Args:     []string{"--voices"},
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}
	voices := parseEspeakVoices(res.Stdout)
	if len(voices) == 0 {
		return nil, errors.New("espeak-ng reported no voices")
	}
	return voices, nil
}

// buildEspeakArgs maps a voice profile to espeak-ng flags reading text from stdin.
func buildEspeakArgs(voice domain.VoiceProfile) []string {
	args := []string{"--stdout", "--stdin"}
	if v := strings.TrimSpace(voice.VoiceID); v != "" {
		args = append(args, "-v", v)
	}
	if voice.Rate > 0 {
		args = append(args, "-s", strconv.Itoa(voice.Rate))
	}
	amplitude := int(math.Round(voice.Volume * 200))
	args = append(args, "-a", strconv.Itoa(amplitude))
	return args
}

// parseEspeakVoices reads the table printed by `espeak-ng --voices`:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  af              --/M      Afrikaans          gmw/af
func parseEspeakVoices(out []byte) []domain.Voice {
	var voices []domain.Voice
	seen := make(map[string]bool)

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}

		id := fields[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		voices = append(voices, domain.Voice{
			ID:       id,
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: id,
		})
	}
	return voices
}
