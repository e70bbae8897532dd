package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/compliance"
)

// InMemoryStore is a Backend for tests and local runs. Transactions work on
// a copy of the state that replaces the original only on success.
type InMemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	calls    map[int64]db.Call
	entries  []db.ExclusionLogEntry
	zones    map[int64][]db.ZoneThreshold
	parishes map[int64]db.ParishSettings
	weather  map[string]db.WeatherEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{state: &memState{
		calls:    make(map[int64]db.Call),
		zones:    make(map[int64][]db.ZoneThreshold),
		parishes: make(map[int64]db.ParishSettings),
		weather:  make(map[string]db.WeatherEvent),
	}}
}

func (st *memState) clone() *memState {
	c := &memState{
		calls:    make(map[int64]db.Call, len(st.calls)),
		entries:  append([]db.ExclusionLogEntry(nil), st.entries...),
		zones:    st.zones,
		parishes: st.parishes,
		weather:  st.weather,
	}
	for id, call := range st.calls {
		c.calls[id] = call
	}
	return c
}

func (s *InMemoryStore) WithTx(_ context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	working := s.state.clone()
	if err := fn(&memTx{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// PutCall inserts or replaces a call
func (s *InMemoryStore) PutCall(call db.Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.calls[call.ID] = call
}

func (s *InMemoryStore) PutZoneThreshold(z db.ZoneThreshold) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.zones[z.ParishID] = append(s.state.zones[z.ParishID], z)
}

func (s *InMemoryStore) PutParishSettings(p db.ParishSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.parishes[p.ParishID] = p
}

func (s *InMemoryStore) GetCall(_ context.Context, callID int64) (*db.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.state.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return &call, nil
}

func (s *InMemoryStore) ListCalls(_ context.Context, filter db.CallFilter) ([]db.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []db.Call{}
	for _, call := range s.state.calls {
		if call.ParishID != filter.ParishID {
			continue
		}
		if filter.ExclusionType != nil && call.ExclusionType != *filter.ExclusionType {
			continue
		}
		if filter.From != nil || filter.To != nil {
			if call.QueueTime == nil {
				continue
			}
			if filter.From != nil && call.QueueTime.Before(*filter.From) {
				continue
			}
			if filter.To != nil && !call.QueueTime.Before(*filter.To) {
				continue
			}
		}
		out = append(out, call)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) ListLogEntries(_ context.Context, callID int64) ([]db.ExclusionLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []db.ExclusionLogEntry{}
	for _, e := range s.state.entries {
		if e.CallID == callID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListZoneThresholds(_ context.Context, parishID int64) ([]db.ZoneThreshold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.ZoneThreshold(nil), s.state.zones[parishID]...), nil
}

func (s *InMemoryStore) GetParishSettings(_ context.Context, parishID int64) (*db.ParishSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.parishes[parishID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) ListWeatherEvents(_ context.Context, from, to time.Time, state string) ([]db.WeatherEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []db.WeatherEvent{}
	for _, ev := range s.state.weather {
		if state != "" && ev.State != state {
			continue
		}
		if ev.StartsAt.Before(to) && ev.EndsAt.After(from) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (s *InMemoryStore) UpsertWeatherEvent(_ context.Context, ev db.WeatherEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.weather[ev.ExternalID] = ev
	return nil
}

type memTx struct {
	state *memState
}

func (t *memTx) GetCall(_ context.Context, callID int64) (*db.Call, error) {
	call, ok := t.state.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return &call, nil
}

func (t *memTx) SetCallCompliance(_ context.Context, callID int64, c compliance.Classification) error {
	call, ok := t.state.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.Apply(&call)
	call.UpdatedAt = time.Now().UTC()
	t.state.calls[callID] = call
	return nil
}

func (t *memTx) SetCallExclusion(_ context.Context, callID int64, ex *db.CallExclusion) error {
	call, ok := t.state.calls[callID]
	if !ok {
		return ErrNotFound
	}
	applyExclusion(&call, ex)
	call.UpdatedAt = time.Now().UTC()
	t.state.calls[callID] = call
	return nil
}

func (t *memTx) GetActiveLogEntry(_ context.Context, callID int64) (*db.ExclusionLogEntry, error) {
	for i := range t.state.entries {
		e := t.state.entries[i]
		if e.CallID == callID && e.IsActive() {
			return &e, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertLogEntry(_ context.Context, entry db.ExclusionLogEntry) (bool, error) {
	if entry.IsActive() {
		for _, e := range t.state.entries {
			if e.CallID == entry.CallID && e.IsActive() {
				return false, nil
			}
		}
	}
	t.state.entries = append(t.state.entries, entry)
	return true, nil
}

func (t *memTx) MarkLogEntryReverted(_ context.Context, entryID string, at time.Time, by *string, reason string) error {
	for i := range t.state.entries {
		e := &t.state.entries[i]
		if e.ID != entryID || !e.IsActive() {
			continue
		}
		r := reason
		e.RevertedAt = &at
		e.RevertedBy = by
		e.RevertReason = &r
		return nil
	}
	return fmt.Errorf("exclusion log entry %s is not active", entryID)
}
