package card

import (
	"fmt"
	"time"

	"beacon/internal/event"
	id "beacon/pkg/domain"
)

// State carries delivery progress into a render. The zero value is a first
// delivery attempt; re-renders (retries, escalation views) pass the current
// counters so conditional sections appear.
type State struct {
	RetryCount int
	Status     string
}

// Renderer builds cards from events. MaxRetries drives the retry-exhausted
// conditional section.
type Renderer struct {
	maxRetries int
}

func NewRenderer(maxRetries int) *Renderer {
	return &Renderer{maxRetries: maxRetries}
}

// Render produces the card for an event on its first delivery.
func (r *Renderer) Render(e event.Event) Card {
	return r.RenderState(e, State{})
}

// RenderState produces the card for an event with delivery progress applied.
// Template selection is deterministic per event type with a generic fallback;
// missing optional data fields render as safe defaults.
func (r *Renderer) RenderState(e event.Event, st State) Card {
	c := templateFor(e.Type)(e)

	if st.RetryCount >= r.maxRetries && r.maxRetries > 0 {
		c.Sections = append(c.Sections, Section{
			Title: "Delivery retries exhausted",
			Text:  fmt.Sprintf("All %d retries failed; manual follow-up required.", r.maxRetries),
			Facts: []Fact{{Name: "Retry count", Value: fmt.Sprintf("%d", st.RetryCount)}},
		})
	}

	c.Buttons = buttonsFor(e.Priority)
	return c
}

// AllowedVerbs lists the follow-up verbs offered at a priority tier:
// acknowledge everywhere, escalate only for HIGH and CRITICAL, retry from
// MEDIUM up, discard only below HIGH (high-urgency records must be resolved,
// not archived).
func AllowedVerbs(p id.Priority) []id.ActionVerb {
	verbs := []id.ActionVerb{id.VerbAcknowledge}
	if p.AtLeast(id.PriorityHigh) {
		verbs = append(verbs, id.VerbEscalate)
	}
	if p.AtLeast(id.PriorityMedium) {
		verbs = append(verbs, id.VerbRetry)
	}
	if !p.AtLeast(id.PriorityHigh) {
		verbs = append(verbs, id.VerbDiscard)
	}
	return verbs
}

func buttonsFor(p id.Priority) []Button {
	verbs := AllowedVerbs(p)
	buttons := make([]Button, 0, len(verbs))
	for _, v := range verbs {
		buttons = append(buttons, Button{Verb: v, Title: buttonTitle(v)})
	}
	return buttons
}

func buttonTitle(v id.ActionVerb) string {
	switch v {
	case id.VerbAcknowledge:
		return "Acknowledge"
	case id.VerbEscalate:
		return "Escalate"
	case id.VerbRetry:
		return "Retry delivery"
	case id.VerbDiscard:
		return "Discard"
	default:
		return string(v)
	}
}

// Acknowledgment is the post-action state reflected in a confirmation card.
type Acknowledgment struct {
	By     string
	At     time.Time
	Action string
}

// Confirmation renders the card returned to the collaboration platform after
// an action callback, so the displayed message reflects the new state.
func (r *Renderer) Confirmation(verb id.ActionVerb, actor string, ack Acknowledgment, alreadyActioned bool) Card {
	title := fmt.Sprintf("Action %q recorded", verb)
	if alreadyActioned {
		title = "Already acknowledged"
	}

	facts := []Fact{
		{Name: "Actor", Value: orFallback(actor)},
	}
	if ack.By != "" {
		facts = append(facts, Fact{Name: "Acknowledged by", Value: ack.By})
	}
	if !ack.At.IsZero() {
		facts = append(facts, Fact{Name: "Acknowledged at", Value: ack.At.UTC().Format(time.RFC3339)})
	}
	if ack.Action != "" {
		facts = append(facts, Fact{Name: "Action taken", Value: ack.Action})
	}

	return Card{
		Title: title,
		Facts: facts,
	}
}

func orFallback(s string) string {
	if s == "" {
		return FallbackValue
	}
	return s
}
