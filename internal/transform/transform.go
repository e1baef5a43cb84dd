// Package transform implements the ordered chain of stateless-or-stateful
// event mappers described in §4.3 step 1: each mapper declares the input
// codes it cares about and a function producing zero-or-more output events
// per input event.
package transform

import (
	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
)

// Transform is one stage of the chain. Events it is not Interested in pass
// through unchanged, matching the teacher's transform-chain contract.
type Transform interface {
	// Interested reports whether this transform wants to examine ev.
	Interested(ev ievent.Event) bool
	// Apply maps one event to zero or more output events. Only called
	// when Interested returned true.
	Apply(ev ievent.Event) ([]ievent.Event, error)
}

// Chain is transform 0..n-1, applied in order: each intermediate event
// produced by stage i is fed to stage i+1.
type Chain []Transform

// Run feeds ev through every stage, logging and dropping an event on a
// per-stage failure rather than aborting the whole pipeline (§4.3 Failure
// semantics: "Transform or activator exceptions: logged, event dropped,
// pipeline continues").
func (c Chain) Run(ev ievent.Event, onError func(error)) []ievent.Event {
	stage := []ievent.Event{ev}
	for _, t := range c {
		var next []ievent.Event
		for _, e := range stage {
			if !t.Interested(e) {
				next = append(next, e)
				continue
			}
			out, err := t.Apply(e)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			next = append(next, out...)
		}
		stage = next
	}
	return stage
}
