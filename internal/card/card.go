// Package card turns an event plus a template into the structured interactive
// payload posted to a channel. Rendering is a pure function of its inputs:
// no side effects, no clock, no I/O, safe to recompute on every retry.
package card

import (
	"encoding/json"

	id "beacon/pkg/domain"
)

// Card is the channel-agnostic interactive message payload. Field order is
// fixed so the JSON encoding is stable and the payload hash recorded in the
// audit row is reproducible.
type Card struct {
	Title    string    `json:"title"`
	Summary  string    `json:"summary,omitempty"`
	Priority string    `json:"priority"`
	Facts    []Fact    `json:"facts,omitempty"`
	Sections []Section `json:"sections,omitempty"`
	Buttons  []Button  `json:"buttons,omitempty"`
}

// Fact is one name/value row in the card's fact list.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Section is a conditional block of the card.
type Section struct {
	Title string `json:"title"`
	Text  string `json:"text,omitempty"`
	Facts []Fact `json:"facts,omitempty"`
}

// Button is an interactive action. Verb round-trips through the collaboration
// platform back into the action callback.
type Button struct {
	Verb  id.ActionVerb `json:"verb"`
	Title string        `json:"title"`
}

// Encode marshals the card to its wire form.
func (c Card) Encode() ([]byte, error) {
	return json.Marshal(c)
}
