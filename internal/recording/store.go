// Package recording holds completed voice memos and their playback state.
package recording

import (
	"sync"
	"time"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/google/uuid"
)

// PlaybackState is the mutable part of a recording
type PlaybackState struct {
	IsPlaying bool `json:"is_playing"`
	// PlayheadFraction is progress in bars, from 0 to len(Amplitudes)
	PlayheadFraction float64 `json:"playhead_fraction"`
}

type Recording struct {
	ID         string        `json:"id"`
	Index      int           `json:"index"`
	Asset      *audio.Asset  `json:"asset"`
	Amplitudes []float64     `json:"amplitudes"`
	Playback   PlaybackState `json:"playback"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Bars returns the number of waveform bars
func (r Recording) Bars() int {
	return len(r.Amplitudes)
}

// Finished reports whether the playhead is parked at the end
func (r Recording) Finished() bool {
	return r.Playback.PlayheadFraction >= float64(len(r.Amplitudes))
}

// PlaybackUpdate changes only the fields that are set
type PlaybackUpdate struct {
	IsPlaying        *bool
	PlayheadFraction *float64
}

// Playing builds an update of IsPlaying
func Playing(v bool) PlaybackUpdate {
	return PlaybackUpdate{IsPlaying: &v}
}

// Playhead builds an update of PlayheadFraction
func Playhead(f float64) PlaybackUpdate {
	return PlaybackUpdate{PlayheadFraction: &f}
}

// With merges the set fields of other into u
func (u PlaybackUpdate) With(other PlaybackUpdate) PlaybackUpdate {
	if other.IsPlaying != nil {
		u.IsPlaying = other.IsPlaying
	}
	if other.PlayheadFraction != nil {
		u.PlayheadFraction = other.PlayheadFraction
	}
	return u
}

// Store is an append-only ordered collection of recordings
type Store struct {
	mu         sync.RWMutex
	recordings []*Recording
	byID       map[string]*Recording
	// next is the ticket handed to the next change
	next uint64

	// notifyMu and turn deliver changes to observers in ticket order
	notifyMu sync.Mutex
	turn     *sync.Cond
	notified uint64

	observersMu sync.RWMutex
	observers   []func(Recording)
}

func NewStore() *Store {
	s := &Store{byID: make(map[string]*Recording)}
	s.turn = sync.NewCond(&s.notifyMu)
	return s
}

// OnChange registers fn to be called after every append and applied update.
// Calls arrive in the order the changes were applied. fn may read the store
// but must not modify it.
func (s *Store) OnChange(fn func(Recording)) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, fn)
}

// ticketLocked numbers a change; s.mu must be held
func (s *Store) ticketLocked() uint64 {
	t := s.next
	s.next++
	return t
}

// notify waits until every earlier ticket has been delivered, then delivers rec
func (s *Store) notify(ticket uint64, rec Recording) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for s.notified != ticket {
		s.turn.Wait()
	}

	s.observersMu.RLock()
	observers := s.observers
	s.observersMu.RUnlock()

	for _, fn := range observers {
		fn(rec)
	}

	s.notified++
	s.turn.Broadcast()
}

// Append stores a copy of rec, assigning its ID, index and creation time
func (s *Store) Append(rec Recording) Recording {
	s.mu.Lock()
	stored := rec.clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.Index = len(s.recordings)
	s.recordings = append(s.recordings, &stored)
	s.byID[stored.ID] = &stored
	out := stored.clone()
	ticket := s.ticketLocked()
	s.mu.Unlock()

	s.notify(ticket, out)
	return out
}

func (s *Store) Get(id string) (Recording, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return Recording{}, false
	}
	return rec.clone(), true
}

// At returns the recording at position index
func (s *Store) At(index int) (Recording, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.recordings) {
		return Recording{}, false
	}
	return s.recordings[index].clone(), true
}

func (s *Store) List() []Recording {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Recording, len(s.recordings))
	for i, rec := range s.recordings {
		out[i] = rec.clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recordings)
}

// UpdatePlayback applies u to the playback state of id. Unknown ids are ignored.
func (s *Store) UpdatePlayback(id string, u PlaybackUpdate) bool {
	s.mu.Lock()
	rec, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if u.IsPlaying != nil {
		rec.Playback.IsPlaying = *u.IsPlaying
	}
	if u.PlayheadFraction != nil {
		rec.Playback.PlayheadFraction = *u.PlayheadFraction
	}
	out := rec.clone()
	ticket := s.ticketLocked()
	s.mu.Unlock()

	s.notify(ticket, out)
	return true
}

func (r *Recording) clone() Recording {
	c := *r
	c.Amplitudes = append([]float64(nil), r.Amplitudes...)
	if r.Asset != nil {
		asset := *r.Asset
		c.Asset = &asset
	}
	return c
}
