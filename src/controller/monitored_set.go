package controller

import (
	"sort"
	"sync"

	"fxscheduler/src/model"
)

// MonitoredSet holds the positions opened by this process. A position is
// either open (watched by the monitor) or claimed (being closed by exactly one
// caller). Claim is the only way to take a position out of the open state, so
// the monitor and the scheduled exit can never close the same position twice.
type MonitoredSet struct {
	mu      sync.Mutex
	open    map[string]model.MonitoredPosition
	claimed map[string]model.MonitoredPosition
}

func NewMonitoredSet() *MonitoredSet {
	return &MonitoredSet{
		open:    map[string]model.MonitoredPosition{},
		claimed: map[string]model.MonitoredPosition{},
	}
}

// Add registers a position. It returns false when the ID is already known.
func (s *MonitoredSet) Add(p model.MonitoredPosition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.open[p.PositionID]; ok {
		return false
	}
	if _, ok := s.claimed[p.PositionID]; ok {
		return false
	}
	s.open[p.PositionID] = p
	return true
}

// Claim moves an open position to the claimed state.
func (s *MonitoredSet) Claim(positionID string) (model.MonitoredPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.open[positionID]
	if !ok {
		return model.MonitoredPosition{}, false
	}
	delete(s.open, positionID)
	s.claimed[positionID] = p
	return p, true
}

// ClaimOccurrence claims every open position of one schedule occurrence.
func (s *MonitoredSet) ClaimOccurrence(key string) []model.MonitoredPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MonitoredPosition
	for id, p := range s.open {
		if p.OccurrenceKey != key {
			continue
		}
		delete(s.open, id)
		s.claimed[id] = p
		out = append(out, p)
	}
	sortByEntry(out)
	return out
}

// Restore returns a claimed position to the open state after a failed close.
func (s *MonitoredSet) Restore(p model.MonitoredPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, p.PositionID)
	p.Closed = false
	s.open[p.PositionID] = p
}

// Finish forgets a claimed position once its close is settled.
func (s *MonitoredSet) Finish(positionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, positionID)
}

// Owned reports whether the position belongs to this process, open or claimed.
func (s *MonitoredSet) Owned(positionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, open := s.open[positionID]
	_, claimed := s.claimed[positionID]
	return open || claimed
}

// Snapshot returns a copy of the open positions ordered by entry time.
func (s *MonitoredSet) Snapshot() []model.MonitoredPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.MonitoredPosition, 0, len(s.open))
	for _, p := range s.open {
		out = append(out, p)
	}
	sortByEntry(out)
	return out
}

func (s *MonitoredSet) ByOccurrence(key string) []model.MonitoredPosition {
	var out []model.MonitoredPosition
	for _, p := range s.Snapshot() {
		if p.OccurrenceKey == key {
			out = append(out, p)
		}
	}
	return out
}

// Symbols lists the distinct symbols of the open positions.
func (s *MonitoredSet) Symbols() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range s.Snapshot() {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	return out
}

func (s *MonitoredSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

func sortByEntry(ps []model.MonitoredPosition) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].EntryTime.Equal(ps[j].EntryTime) {
			return ps[i].PositionID < ps[j].PositionID
		}
		return ps[i].EntryTime.Before(ps[j].EntryTime)
	})
}
