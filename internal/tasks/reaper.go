package tasks

import (
	"context"
	"time"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/storage"
)

// tombstoneRetention bounds how long evicted ids keep answering "gone".
const tombstoneRetention = 24 * time.Hour

// Reaper evicts terminal tasks past the retention window together with their
// artifacts, and deletes stale uploads.
type Reaper struct {
	registry  *Registry
	area      *storage.Area
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewReaper creates a reaper. Non-positive durations fall back to one hour
// retention checked every minute.
func NewReaper(registry *Registry, area *storage.Area, retention, interval time.Duration) *Reaper {
	if retention <= 0 {
		retention = time.Hour
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		registry:  registry,
		area:      area,
		retention: retention,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep performs one eviction pass and returns the number of tasks evicted.
func (r *Reaper) Sweep() int {
	now := r.now()
	cutoff := now.Add(-r.retention)

	evicted := 0
	for _, id := range r.registry.Expired(cutoff) {
		if err := r.Evict(id); err != nil {
			logger.WarnCF("reaper", "Failed to evict task", map[string]any{
				"task_id": id,
				"error":   err.Error(),
			})
			continue
		}
		evicted++
	}

	uploads, err := r.area.SweepUploads(cutoff)
	if err != nil {
		logger.WarnCF("reaper", "Failed to sweep uploads", map[string]any{"error": err.Error()})
	}
	r.registry.PruneTombstones(now.Add(-tombstoneRetention))

	if evicted > 0 || uploads > 0 {
		logger.InfoCF("reaper", "Sweep finished", map[string]any{
			"tasks":   evicted,
			"uploads": uploads,
		})
	}
	return evicted
}

// Evict removes one terminal task and its artifact. The registry entry goes
// first so new downloads see "gone" while open readers finish.
func (r *Reaper) Evict(id string) error {
	if err := r.registry.Evict(id); err != nil {
		return err
	}
	return r.area.Evict(id)
}
