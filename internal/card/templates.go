package card

import (
	"beacon/internal/event"
	id "beacon/pkg/domain"
)

// FallbackValue substitutes for optional event data the producer omitted.
// Missing fields degrade the card, never the delivery.
const FallbackValue = "unknown"

// template builds the non-interactive body of a card for one event family.
type template func(e event.Event) Card

// templateNames maps event types to their template. Selection is
// deterministic: an unmapped type always renders through the generic
// template rather than failing the event.
var templates = map[id.EventType]template{
	"security_incident": securityIncident,
	"job_failure":       jobFailure,
	"claim_transition":  claimTransition,
	"infra_alert":       infraAlert,
}

// TemplateName returns the template identifier used for an event type, for
// audit visibility.
func TemplateName(t id.EventType) string {
	if _, ok := templates[t]; ok {
		return string(t)
	}
	return "generic"
}

func templateFor(t id.EventType) template {
	if tmpl, ok := templates[t]; ok {
		return tmpl
	}
	return generic
}

func securityIncident(e event.Event) Card {
	return Card{
		Title:    "Security incident: " + e.StringField("summary", FallbackValue),
		Summary:  e.StringField("detail", ""),
		Priority: e.Priority.String(),
		Facts: []Fact{
			{Name: "Correlation ID", Value: e.CorrelationID.String()},
			{Name: "Source", Value: e.StringField("source", FallbackValue)},
			{Name: "Affected system", Value: e.StringField("system", FallbackValue)},
			{Name: "Detected at", Value: e.StringField("detected_at", FallbackValue)},
		},
	}
}

func jobFailure(e event.Event) Card {
	return Card{
		Title:    "Background job failed: " + e.StringField("job_name", FallbackValue),
		Summary:  e.StringField("error", ""),
		Priority: e.Priority.String(),
		Facts: []Fact{
			{Name: "Correlation ID", Value: e.CorrelationID.String()},
			{Name: "Job ID", Value: e.StringField("job_id", FallbackValue)},
			{Name: "Queue", Value: e.StringField("queue", FallbackValue)},
			{Name: "Attempts", Value: e.StringField("attempts", FallbackValue)},
		},
	}
}

func claimTransition(e event.Event) Card {
	return Card{
		Title:    "Claim " + e.StringField("claim_id", FallbackValue) + " is now " + e.StringField("status", FallbackValue),
		Summary:  e.StringField("note", ""),
		Priority: e.Priority.String(),
		Facts: []Fact{
			{Name: "Correlation ID", Value: e.CorrelationID.String()},
			{Name: "Claim ID", Value: e.StringField("claim_id", FallbackValue)},
			{Name: "Previous status", Value: e.StringField("previous_status", FallbackValue)},
			{Name: "New status", Value: e.StringField("status", FallbackValue)},
		},
	}
}

func infraAlert(e event.Event) Card {
	return Card{
		Title:    "Infrastructure alert: " + e.StringField("alert_name", FallbackValue),
		Summary:  e.StringField("description", ""),
		Priority: e.Priority.String(),
		Facts: []Fact{
			{Name: "Correlation ID", Value: e.CorrelationID.String()},
			{Name: "Host", Value: e.StringField("host", FallbackValue)},
			{Name: "Metric", Value: e.StringField("metric", FallbackValue)},
			{Name: "Value", Value: e.StringField("value", FallbackValue)},
		},
	}
}

func generic(e event.Event) Card {
	return Card{
		Title:    "Notification: " + string(e.Type),
		Summary:  e.StringField("summary", ""),
		Priority: e.Priority.String(),
		Facts: []Fact{
			{Name: "Correlation ID", Value: e.CorrelationID.String()},
			{Name: "Event type", Value: string(e.Type)},
		},
	}
}
