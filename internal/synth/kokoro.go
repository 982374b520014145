package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
)

const (
	defaultKokoroURL   = "http://localhost:8880"
	defaultKokoroModel = "kokoro"
	defaultKokoroVoice = "af_bella"

	// baseRate is the words-per-minute rate that maps to speed 1.0.
	baseRate = 200
)

// KokoroSynthesizer uses a Kokoro TTS server through its OpenAI-compatible
// /v1/audio/speech API. The API has no volume control; volume is ignored.
type KokoroSynthesizer struct {
	apiBase    string
	model      string
	httpClient *http.Client
}

type kokoroRequest struct {
	Model  string  `json:"model"`
	Input  string  `json:"input"`
	Voice  string  `json:"voice"`
	Format string  `json:"response_format"`
	Speed  float64 `json:"speed"`
}

type kokoroVoices struct {
	Voices []string `json:"voices"`
}

// NewKokoroSynthesizer creates a Kokoro TTS client.
func NewKokoroSynthesizer(apiBase, model string, timeout time.Duration) *KokoroSynthesizer {
	if apiBase == "" {
		apiBase = defaultKokoroURL
	}
	if model == "" {
		model = defaultKokoroModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger.InfoCF("synth", "Creating Kokoro TTS synthesizer", map[string]any{
		"api_base": apiBase,
		"model":    model,
	})

	return &KokoroSynthesizer{
		apiBase:    strings.TrimRight(apiBase, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Synthesize requests WAV audio for text.
func (s *KokoroSynthesizer) Synthesize(ctx context.Context, text string, voice domain.VoiceProfile) (Audio, error) {
	voiceID := voice.VoiceID
	if voiceID == "" {
		voiceID = defaultKokoroVoice
	}

	body, err := json.Marshal(kokoroRequest{
		Model:  s.model,
		Input:  text,
		Voice:  voiceID,
		Format: "wav",
		Speed:  kokoroSpeed(voice.Rate),
	})
	if err != nil {
		return Audio{}, fmt.Errorf("marshal TTS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return Audio{}, fmt.Errorf("create TTS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("TTS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Audio{}, fmt.Errorf("kokoro TTS error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("read TTS audio: %w", err)
	}

	contentType := ContentTypeWAV
	if !isWAV(data) {
		contentType = resp.Header.Get("Content-Type")
	}
	return Audio{Data: data, ContentType: contentType}, nil
}

// Voices lists the voices the server advertises.
func (s *KokoroSynthesizer) Voices(ctx context.Context) ([]domain.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+"/v1/audio/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("create voices request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voices request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kokoro voices error (status %d)", resp.StatusCode)
	}

	var payload kokoroVoices
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}

	voices := make([]domain.Voice, 0, len(payload.Voices))
	for _, id := range payload.Voices {
		voices = append(voices, domain.Voice{ID: id, Name: id, Language: kokoroLanguage(id)})
	}
	return voices, nil
}

// kokoroSpeed converts words per minute to the API's speed multiplier.
func kokoroSpeed(rate int) float64 {
	if rate <= 0 {
		return 1.0
	}
	speed := float64(rate) / baseRate
	speed = math.Max(0.25, math.Min(4.0, speed))
	return math.Round(speed*100) / 100
}

// kokoroLanguage derives the language from the voice prefix ("af_bella" -> "en-US").
func kokoroLanguage(id string) string {
	if id == "" {
		return ""
	}
	switch id[0] {
	case 'a':
		return "en-US"
	case 'b':
		return "en-GB"
	case 'e':
		return "es"
	case 'f':
		return "fr"
	case 'h':
		return "hi"
	case 'i':
		return "it"
	case 'j':
		return "ja"
	case 'p':
		return "pt-BR"
	case 'z':
		return "zh"
	default:
		return ""
	}
}
