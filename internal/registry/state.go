// Package registry holds the in-memory record of which container ports are
// registered as backends and under which store keys.
//
// State is owned by a single reconciler goroutine and is not safe for
// concurrent use.
package registry

import (
	"sort"

	"backendd/internal/inventory"
)

// Record is one registered (container, published port) pair.
type Record struct {
	ContainerID string
	Backend     string
	Host        string
	PublicPort  uint16
	Key         string
}

type entry struct {
	records  []Record
	complete bool
}

// State tracks registrations keyed by container id, then by public port.
type State struct {
	entries map[string]*entry
}

func New() *State {
	return &State{entries: make(map[string]*entry)}
}

// Diff compares the live snapshot with tracked registrations.
//
// toCreate holds live containers that are untracked or were only partially
// registered. toRemove holds tracked ids absent from the snapshot.
func (s *State) Diff(live []inventory.Container) (toCreate []inventory.Container, toRemove []string) {
	liveIDs := make(map[string]struct{}, len(live))
	for _, c := range live {
		liveIDs[c.ID] = struct{}{}
		e, ok := s.entries[c.ID]
		if !ok || !e.complete {
			toCreate = append(toCreate, c)
		}
	}
	for id := range s.entries {
		if _, ok := liveIDs[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	sort.Strings(toRemove)
	return toCreate, toRemove
}

// Track marks a container as seen. Records are added separately via Add.
func (s *State) Track(containerID string) {
	if _, ok := s.entries[containerID]; !ok {
		s.entries[containerID] = &entry{}
	}
}

// Add stores rec, replacing any record for the same container and public port.
func (s *State) Add(rec Record) {
	s.Track(rec.ContainerID)
	e := s.entries[rec.ContainerID]
	for i := range e.records {
		if e.records[i].PublicPort == rec.PublicPort {
			e.records[i] = rec
			return
		}
	}
	e.records = append(e.records, rec)
}

// MarkComplete records that every labeled port of the container is registered.
func (s *State) MarkComplete(containerID string) {
	s.Track(containerID)
	s.entries[containerID].complete = true
}

// Lookup returns the records held for a container.
func (s *State) Lookup(containerID string) ([]Record, bool) {
	e, ok := s.entries[containerID]
	if !ok {
		return nil, false
	}
	out := make([]Record, len(e.records))
	copy(out, e.records)
	return out, true
}

// RemoveRecord drops the record for (containerID, publicPort). The container
// stays tracked until Forget is called.
func (s *State) RemoveRecord(containerID string, publicPort uint16) {
	e, ok := s.entries[containerID]
	if !ok {
		return
	}
	out := e.records[:0]
	for _, r := range e.records {
		if r.PublicPort != publicPort {
			out = append(out, r)
		}
	}
	e.records = out
}

// Forget stops tracking a container and all of its records.
func (s *State) Forget(containerID string) {
	delete(s.entries, containerID)
}

// Containers returns tracked container ids in sorted order.
func (s *State) Containers() []string {
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Records returns every record, ordered by container id then public port.
func (s *State) Records() []Record {
	var out []Record
	for _, id := range s.Containers() {
		recs := s.entries[id].records
		sorted := make([]Record, len(recs))
		copy(sorted, recs)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].PublicPort < sorted[j].PublicPort })
		out = append(out, sorted...)
	}
	return out
}

// Keys returns the distinct store keys of every record, sorted. Two ports of
// one container labeled with the same backend share a key.
func (s *State) Keys() []string {
	recs := s.Records()
	seen := make(map[string]struct{}, len(recs))
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		if _, ok := seen[r.Key]; ok {
			continue
		}
		seen[r.Key] = struct{}{}
		out = append(out, r.Key)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of records.
func (s *State) Len() int {
	n := 0
	for _, e := range s.entries {
		n += len(e.records)
	}
	return n
}
