package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
)

// ChunkError reports an engine failure for one chunk. It matches
// domain.ErrSynthesisFailure, and domain.ErrTimeout when the chunk deadline
// expired.
type ChunkError struct {
	Index   int
	Timeout bool
	Err     error
}

// Error formats the failure with the chunk index.
func (e *ChunkError) Error() string {
	if e == nil {
		return ""
	}
	if e.Timeout {
		return fmt.Sprintf("chunk %d: synthesis timed out: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("chunk %d: synthesis failed: %v", e.Index, e.Err)
}

// Unwrap exposes the engine error.
func (e *ChunkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is classifies the error for errors.Is.
func (e *ChunkError) Is(target error) bool {
	if target == domain.ErrSynthesisFailure {
		return true
	}
	return e.Timeout && target == domain.ErrTimeout
}

// Adapter calls a Synthesizer once per chunk with an optional deadline.
// It never retries; retry policy belongs to the caller.
type Adapter struct {
	engine  Synthesizer
	timeout time.Duration
}

// NewAdapter wraps engine. A non-positive timeout disables the deadline.
func NewAdapter(engine Synthesizer, timeout time.Duration) *Adapter {
	return &Adapter{engine: engine, timeout: timeout}
}

// Synthesize converts chunk number index. Whitespace-only chunks yield empty audio.
func (a *Adapter) Synthesize(ctx context.Context, index int, chunk string, voice domain.VoiceProfile) (Audio, error) {
	if strings.TrimSpace(chunk) == "" {
		return Audio{}, nil
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	audio, err := a.engine.Synthesize(callCtx, chunk, voice)
	if err != nil {
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		return Audio{}, &ChunkError{Index: index, Timeout: timedOut, Err: err}
	}
	if len(audio.Data) == 0 {
		return Audio{}, &ChunkError{Index: index, Err: errors.New("engine returned no audio")}
	}
	return audio, nil
}
