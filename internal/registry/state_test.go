package registry

import (
	"reflect"
	"sort"
	"testing"

	"backendd/internal/inventory"
)

func ids(cs []inventory.Container) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	sort.Strings(out)
	return out
}

func complete(s *State, id string) {
	s.Track(id)
	s.MarkComplete(id)
}

func TestDiff(t *testing.T) {
	s := New()
	for _, id := range []string{"c1", "c2", "c3"} {
		complete(s, id)
	}

	toCreate, toRemove := s.Diff([]inventory.Container{{ID: "c2"}, {ID: "c3"}, {ID: "c4"}})

	if got := ids(toCreate); !reflect.DeepEqual(got, []string{"c4"}) {
		t.Errorf("toCreate = %v, want [c4]", got)
	}
	if !reflect.DeepEqual(toRemove, []string{"c1"}) {
		t.Errorf("toRemove = %v, want [c1]", toRemove)
	}
}

func TestDiffEmpty(t *testing.T) {
	s := New()
	toCreate, toRemove := s.Diff(nil)
	if len(toCreate) != 0 || len(toRemove) != 0 {
		t.Fatalf("Diff(nil) on empty state = %v, %v", toCreate, toRemove)
	}
}

func TestDiffReoffersIncomplete(t *testing.T) {
	s := New()
	s.Add(Record{ContainerID: "c1", PublicPort: 32000, Key: "k1"})

	toCreate, _ := s.Diff([]inventory.Container{{ID: "c1"}})
	if got := ids(toCreate); !reflect.DeepEqual(got, []string{"c1"}) {
		t.Fatalf("toCreate = %v, want [c1] for incomplete container", got)
	}

	s.MarkComplete("c1")
	toCreate, _ = s.Diff([]inventory.Container{{ID: "c1"}})
	if len(toCreate) != 0 {
		t.Fatalf("toCreate = %v, want empty once complete", ids(toCreate))
	}
}

func TestAddReplacesSamePort(t *testing.T) {
	s := New()
	s.Add(Record{ContainerID: "c1", PublicPort: 32000, Key: "old"})
	s.Add(Record{ContainerID: "c1", PublicPort: 32000, Key: "new"})
	s.Add(Record{ContainerID: "c1", PublicPort: 32001, Key: "other"})

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"new", "other"}) {
		t.Errorf("Keys() = %v", got)
	}
}

func TestKeysDistinctForSharedBackend(t *testing.T) {
	s := New()
	const key = "backends/web/servers/c1/url"
	s.Add(Record{ContainerID: "c1", Backend: "web", PublicPort: 32000, Key: key})
	s.Add(Record{ContainerID: "c1", Backend: "web", PublicPort: 32001, Key: key})

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if got := s.Keys(); !reflect.DeepEqual(got, []string{key}) {
		t.Errorf("Keys() = %v, want [%s]", got, key)
	}
}

func TestRemoveRecordAndForget(t *testing.T) {
	s := New()
	s.Add(Record{ContainerID: "c1", PublicPort: 1, Key: "k1"})
	s.Add(Record{ContainerID: "c1", PublicPort: 2, Key: "k2"})
	s.Add(Record{ContainerID: "c2", PublicPort: 3, Key: "k3"})

	s.RemoveRecord("c1", 1)
	recs, ok := s.Lookup("c1")
	if !ok || len(recs) != 1 || recs[0].Key != "k2" {
		t.Fatalf("Lookup(c1) = %v, %v", recs, ok)
	}

	s.Forget("c1")
	if _, ok := s.Lookup("c1"); ok {
		t.Error("c1 still tracked after Forget")
	}
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"k3"}) {
		t.Errorf("Keys() = %v, want [k3]", got)
	}
	if got := s.Containers(); !reflect.DeepEqual(got, []string{"c2"}) {
		t.Errorf("Containers() = %v, want [c2]", got)
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	s := New()
	s.Add(Record{ContainerID: "c1", PublicPort: 1, Key: "k1"})
	recs, _ := s.Lookup("c1")
	recs[0].Key = "mutated"
	if got := s.Keys(); got[0] != "k1" {
		t.Errorf("state mutated through Lookup result: %v", got)
	}
}
