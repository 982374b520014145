package domain

import (
	"math"
	"time"
)

// TaskState tracks the lifecycle stage of one conversion task.
type TaskState string

const (
	TaskStatePending    TaskState = "pending"
	TaskStateProcessing TaskState = "processing"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
	TaskStateCancelled  TaskState = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Voice profile bounds.
const (
	MinRate   = 50
	MaxRate   = 400
	MinVolume = 0.0
	MaxVolume = 1.0
)

// VoiceProfile selects the voice and delivery applied to synthesis.
type VoiceProfile struct {
	VoiceID string  `json:"voiceId" yaml:"voice_id"`
	Rate    int     `json:"rate" yaml:"rate"`
	Volume  float64 `json:"volume" yaml:"volume"`
}

// Validate rejects rates and volumes outside the supported range.
func (v VoiceProfile) Validate() error {
	if v.Rate < MinRate || v.Rate > MaxRate {
		return InvalidParameter("rate %d outside [%d,%d]", v.Rate, MinRate, MaxRate)
	}
	if math.IsNaN(v.Volume) || v.Volume < MinVolume || v.Volume > MaxVolume {
		return InvalidParameter("volume %.2f outside [%.1f,%.1f]", v.Volume, MinVolume, MaxVolume)
	}
	return nil
}

// Task is the full record of one text-to-speech conversion.
type Task struct {
	ID           string       `json:"id"`
	State        TaskState    `json:"state"`
	Progress     int          `json:"progress"`
	Input        string       `json:"-"`
	Voice        VoiceProfile `json:"voice"`
	ArtifactPath string       `json:"-"`
	Error        string       `json:"error,omitempty"`
	Chunks       int          `json:"chunks"`
	ChunksDone   int          `json:"chunksDone"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Status projects the externally visible part of a task.
func (t Task) Status() TaskStatus {
	return TaskStatus{
		ID:       t.ID,
		State:    t.State,
		Progress: t.Progress,
		Error:    t.Error,
	}
}

// TaskStatus is the answer to a status poll.
type TaskStatus struct {
	ID       string    `json:"task_id"`
	State    TaskState `json:"state"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
}

// Voice is one selectable engine voice.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
}

// Settings contains user-selectable synthesis defaults.
type Settings struct {
	VoiceID   string  `json:"voiceId" yaml:"voice_id"`
	Rate      int     `json:"rate" yaml:"rate"`
	Volume    float64 `json:"volume" yaml:"volume"`
	ChunkSize int     `json:"chunkSize" yaml:"chunk_size"`
	PauseMs   int     `json:"pauseMs" yaml:"pause_ms"`
}

// Profile returns the voice profile described by the settings.
func (s Settings) Profile() VoiceProfile {
	return VoiceProfile{VoiceID: s.VoiceID, Rate: s.Rate, Volume: s.Volume}
}

// Outcome is the journal entry written when a task reaches a terminal state.
type Outcome struct {
	TaskID     string    `json:"task_id"`
	State      TaskState `json:"state"`
	Error      string    `json:"error,omitempty"`
	Chunks     int       `json:"chunks"`
	Bytes      int64     `json:"bytes"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}
