// Package playback toggles stored recordings between playing and paused and
// keeps each recording's playhead in step with the audio engine.
package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/config"
	"github.com/audiolibrelab/voicememo/internal/recording"
)

type Options struct {
	// Exclusive pauses every other playing recording before one starts
	Exclusive bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{Exclusive: cfg.Playback.Exclusive}
}

type Controller struct {
	capability audio.Capability
	store      *recording.Store
	opts       Options

	mu      sync.Mutex
	handles map[string]audio.PlaybackHandle
	wg      sync.WaitGroup
}

func New(capability audio.Capability, store *recording.Store, opts Options) *Controller {
	return &Controller{
		capability: capability,
		store:      store,
		opts:       opts,
		handles:    make(map[string]audio.PlaybackHandle),
	}
}

// TogglePlayback pauses the recording if it is playing and plays it otherwise.
// Unknown ids and recordings without an asset are ignored.
func (c *Controller) TogglePlayback(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.store.Get(id)
	if !ok || rec.Asset == nil {
		slog.Debug("Nothing to play", "id", id)
		return nil
	}

	if rec.Playback.IsPlaying {
		return c.pauseLocked(ctx, id)
	}

	if c.opts.Exclusive {
		c.pauseOthersLocked(ctx, id)
	}

	handle, loaded := c.handles[id]
	if !loaded {
		h, err := c.capability.LoadAndPlay(ctx, rec.Asset)
		if err != nil {
			slog.Error("Failed to load recording", "id", id, "path", rec.Asset.Path, "error", err)
			return audio.PlaybackError(err)
		}
		c.handles[id] = h
		// Fresh handles start at 0 and may report completion right away
		c.store.UpdatePlayback(id, recording.Playing(true).With(recording.Playhead(0)))
		c.subscribe(rec, h)
		slog.Debug("Playback started", "id", id)
		return nil
	}

	if rec.Finished() {
		if err := handle.Seek(ctx, 0); err != nil {
			return audio.PlaybackError(err)
		}
		c.store.UpdatePlayback(id, recording.Playhead(0))
	}

	if err := handle.Resume(ctx); err != nil {
		return audio.PlaybackError(err)
	}
	c.store.UpdatePlayback(id, recording.Playing(true))
	slog.Debug("Playback resumed", "id", id, "playhead", rec.Playback.PlayheadFraction)
	return nil
}

func (c *Controller) pauseLocked(ctx context.Context, id string) error {
	if handle, ok := c.handles[id]; ok {
		if err := handle.Pause(ctx); err != nil {
			return audio.PlaybackError(err)
		}
	}
	c.store.UpdatePlayback(id, recording.Playing(false))
	slog.Debug("Playback paused", "id", id)
	return nil
}

func (c *Controller) pauseOthersLocked(ctx context.Context, id string) {
	for otherID := range c.handles {
		if otherID == id {
			continue
		}
		other, ok := c.store.Get(otherID)
		if !ok || !other.Playback.IsPlaying {
			continue
		}
		if err := c.pauseLocked(ctx, otherID); err != nil {
			slog.Warn("Failed to pause recording", "id", otherID, "error", err)
		}
	}
}

// subscribe applies position reports from h to the recording until h is stopped
func (c *Controller) subscribe(rec recording.Recording, h audio.PlaybackHandle) {
	bars := float64(rec.Bars())
	fallback := rec.Asset.DurationMillis

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for st := range h.Updates() {
			if st.DidJustFinish {
				c.store.UpdatePlayback(rec.ID, recording.Playing(false).With(recording.Playhead(bars)))
				slog.Debug("Playback finished", "id", rec.ID)
				continue
			}
			if !st.IsLoaded {
				continue
			}
			duration := st.DurationMillis
			if duration <= 0 {
				duration = fallback
			}
			if duration <= 0 {
				continue
			}
			c.store.UpdatePlayback(rec.ID, recording.Playhead(Fraction(st.PositionMillis, duration, bars)))
		}
	}()
}

// Fraction maps a playback position onto the bar scale, clamped to [0, bars]
func Fraction(positionMillis, durationMillis int64, bars float64) float64 {
	if durationMillis <= 0 {
		return 0
	}
	f := float64(positionMillis) / float64(durationMillis) * bars
	if f < 0 {
		return 0
	}
	if f > bars {
		return bars
	}
	return f
}

// Close stops every loaded recording and waits for their reports to drain
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	for id, h := range c.handles {
		if err := h.Stop(ctx); err != nil {
			slog.Warn("Failed to stop playback", "id", id, "error", err)
		}
		c.store.UpdatePlayback(id, recording.Playing(false))
		delete(c.handles, id)
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}
