package config

import (
	"fmt"
	"iter"
	"sync"
)

type Action int

const (
	ActionAdd Action = iota
	ActionRemove
)

func (a Action) String() string {
	if a == ActionAdd {
		return "add"
	}
	return "remove"
}

type EntityKind int

const (
	EntitySource EntityKind = iota
	EntityGroup
	EntityDestination
	EntityLink
)

// Event is one delta in the Config Store's event stream.
type Event struct {
	Action Action
	Kind   EntityKind
	Name   string // entity name; for EntityLink, the owning source_group
	Link   Link   // populated for EntityLink events
}

// ResolvedLink is one entry yielded by CurrentLinks: a link together with
// its resolved member sources and destination.
type ResolvedLink struct {
	Group       string
	Link        Link
	Sources     []Source
	Destination Destination
}

// Store holds the validated Config and the mutable current-link selection.
type Store struct {
	mu           sync.Mutex
	cfg          *Config
	linksByGroup map[string][]Link
	current      map[string]int // group -> index into linksByGroup[group]
	events       chan Event
}

// NewStore validates cfg and emits the initial add events for every entity
// in dependency order: sources, groups, destinations, links.
func NewStore(cfg *Config) (*Store, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:          cfg,
		linksByGroup: make(map[string][]Link),
		current:      make(map[string]int),
		events:       make(chan Event, 256),
	}
	for _, link := range cfg.Links {
		s.linksByGroup[link.SourceGroup] = append(s.linksByGroup[link.SourceGroup], link)
	}
	for group := range s.linksByGroup {
		s.current[group] = 0
	}

	for name := range cfg.Sources {
		s.events <- Event{Action: ActionAdd, Kind: EntitySource, Name: name}
	}
	for name := range cfg.SourceGroups {
		s.events <- Event{Action: ActionAdd, Kind: EntityGroup, Name: name}
	}
	for name := range cfg.Destinations {
		s.events <- Event{Action: ActionAdd, Kind: EntityDestination, Name: name}
	}
	for group, links := range s.linksByGroup {
		if len(links) == 0 {
			continue
		}
		s.events <- Event{Action: ActionAdd, Kind: EntityLink, Name: group, Link: links[s.current[group]]}
	}

	return s, nil
}

// Events returns the single-consumer delta channel.
func (s *Store) Events() <-chan Event {
	return s.events
}

// Config returns the validated, load-time-immutable configuration. Only
// the current-link selection mutates after load, which this accessor does
// not expose; callers needing that use CurrentLinks/CycleLink.
func (s *Store) Config() *Config {
	return s.cfg
}

// CurrentLinks iterates (link, resolved_sources, resolved_destination) for
// each source group's currently selected link.
func (s *Store) CurrentLinks() iter.Seq[ResolvedLink] {
	return func(yield func(ResolvedLink) bool) {
		s.mu.Lock()
		snapshot := make([]ResolvedLink, 0, len(s.current))
		for group, idx := range s.current {
			links := s.linksByGroup[group]
			if idx >= len(links) {
				continue
			}
			link := links[idx]
			g := s.cfg.SourceGroups[group]
			sources := make([]Source, 0, len(g.Sources))
			for _, name := range g.Sources {
				sources = append(sources, s.cfg.Sources[name])
			}
			snapshot = append(snapshot, ResolvedLink{
				Group:       group,
				Link:        link,
				Sources:     sources,
				Destination: s.cfg.Destinations[link.Destination],
			})
		}
		s.mu.Unlock()

		for _, rl := range snapshot {
			if !yield(rl) {
				return
			}
		}
	}
}

func activatorEqual(a, b ActivatorConfig) bool {
	return a.Type == b.Type && string(a.Properties) == string(b.Properties)
}

func linkHasActivator(l Link, activator ActivatorConfig) bool {
	for _, a := range l.Activators {
		if activatorEqual(a, activator) {
			return true
		}
	}
	return false
}

// CycleLink selects the next link for group, restricted to links whose
// activator list contains activator when given. It wraps around and is
// atomic with events(): it emits a paired remove(old) -> add(new).
func (s *Store) CycleLink(group string, activator *ActivatorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	links := s.linksByGroup[group]
	if len(links) == 0 {
		return fmt.Errorf("cycle_link: no link for group %q", group)
	}

	candidates := links
	if activator != nil {
		candidates = nil
		for _, l := range links {
			if linkHasActivator(l, *activator) {
				candidates = append(candidates, l)
			}
		}
		if len(candidates) == 0 {
			return fmt.Errorf("cycle_link: no link for group %q matches the given activator", group)
		}
	}

	curIdx := s.current[group]
	oldLink := links[curIdx]

	// Find the candidate that directly follows the current link in the
	// full link list, wrapping to the first candidate.
	nextIdx := curIdx
	for step := 1; step <= len(links); step++ {
		cand := (curIdx + step) % len(links)
		l := links[cand]
		if activator == nil || linkHasActivator(l, *activator) {
			nextIdx = cand
			break
		}
	}

	s.current[group] = nextIdx
	newLink := links[nextIdx]

	s.events <- Event{Action: ActionRemove, Kind: EntityLink, Name: group, Link: oldLink}
	s.events <- Event{Action: ActionAdd, Kind: EntityLink, Name: group, Link: newLink}
	return nil
}
