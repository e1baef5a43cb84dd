package config

import "testing"

func twoLinkConfig() *Config {
	return &Config{
		ConfigVersion: SupportedConfigVersion,
		Sources: map[string]Source{
			"kbd": {Name: "kbd", Kind: SourceEvdevUdev},
		},
		SourceGroups: map[string]SourceGroup{
			"g": {Name: "g", Sources: []string{"kbd"}},
		},
		Destinations: map[string]Destination{
			"d1": {Name: "d1", Kind: DestUinput},
			"d2": {Name: "d2", Kind: DestUinput},
		},
		Links: []Link{
			{SourceGroup: "g", Destination: "d1"},
			{SourceGroup: "g", Destination: "d2"},
		},
	}
}

func TestNewStoreEmitsInitialAddsInDependencyOrder(t *testing.T) {
	store, err := NewStore(twoLinkConfig())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	var order []EntityKind
	for i := 0; i < 5; i++ {
		select {
		case ev := <-store.Events():
			order = append(order, ev.Kind)
		default:
			t.Fatalf("expected 5 initial events, got %d", i)
		}
	}
	want := []EntityKind{EntitySource, EntityGroup, EntityDestination, EntityDestination, EntityLink}
	for i, k := range want {
		if order[i] != k {
			t.Fatalf("event %d: got kind %v, want %v", i, order[i], k)
		}
	}
}

func TestCycleLinkIsAPermutation(t *testing.T) {
	store, err := NewStore(twoLinkConfig())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	drainInitial(store, 4)

	seen := map[string]bool{}
	var first string
	for i := 0; i < 4; i++ {
		for rl := range store.CurrentLinks() {
			if i == 0 {
				first = rl.Link.Destination
			}
			seen[rl.Link.Destination] = true
		}
		if err := store.CycleLink("g", nil); err != nil {
			t.Fatalf("CycleLink: %v", err)
		}
	}
	if len(seen) != 2 {
		t.Fatalf("expected both links visited, saw %v", seen)
	}

	// After cycling four times (a multiple of the two links), we should be
	// back at the starting link.
	var current string
	for rl := range store.CurrentLinks() {
		current = rl.Link.Destination
	}
	if current != first {
		t.Fatalf("cycling all the way around should return to %q, got %q", first, current)
	}
}

func TestCycleLinkFailsForUnknownGroup(t *testing.T) {
	store, err := NewStore(twoLinkConfig())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.CycleLink("nope", nil); err == nil {
		t.Fatal("expected error cycling an unknown group")
	}
}

func drainInitial(s *Store, n int) {
	for i := 0; i < n; i++ {
		<-s.Events()
	}
}
