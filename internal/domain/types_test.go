package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestVoiceProfileValidateBounds checks inclusive rate and volume limits.
func TestVoiceProfileValidateBounds(t *testing.T) {
	tests := []struct {
		name    string
		profile VoiceProfile
		wantErr bool
	}{
		{name: "lower bounds", profile: VoiceProfile{Rate: 50, Volume: 0}},
		{name: "upper bounds", profile: VoiceProfile{Rate: 400, Volume: 1}},
		{name: "rate too low", profile: VoiceProfile{Rate: 49, Volume: 0.5}, wantErr: true},
		{name: "rate too high", profile: VoiceProfile{Rate: 1000, Volume: 0.5}, wantErr: true},
		{name: "volume negative", profile: VoiceProfile{Rate: 200, Volume: -0.1}, wantErr: true},
		{name: "volume too high", profile: VoiceProfile{Rate: 200, Volume: 1.01}, wantErr: true},
		{name: "volume NaN", profile: VoiceProfile{Rate: 200, Volume: math.NaN()}, wantErr: true},
		{name: "volume infinite", profile: VoiceProfile{Rate: 200, Volume: math.Inf(1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidParameter), "err = %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

// TestTaskStateTerminal lists which states end the lifecycle.
func TestTaskStateTerminal(t *testing.T) {
	assert.False(t, TaskStatePending.Terminal())
	assert.False(t, TaskStateProcessing.Terminal())
	assert.True(t, TaskStateCompleted.Terminal())
	assert.True(t, TaskStateFailed.Terminal())
	assert.True(t, TaskStateCancelled.Terminal())
}
