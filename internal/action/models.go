// Package action processes callbacks from collaboration platforms: a user
// pressed a card button and the engine must verify, record, and follow up.
package action

import (
	"beacon/internal/card"
	id "beacon/pkg/domain"
)

// Request is the callback body posted by a collaboration platform when a card
// button is pressed. Channel may be empty when the platform does not echo it;
// the service then resolves the record by correlation id alone.
type Request struct {
	CorrelationID id.CorrelationID `json:"correlation_id"`
	Channel       id.ChannelID     `json:"channel,omitempty"`
	Verb          id.ActionVerb    `json:"verb"`
	Actor         string           `json:"actor"`
	Payload       map[string]any   `json:"payload,omitempty"`
}

// Response carries the confirmation card the platform renders in place of the
// original notification.
type Response struct {
	CorrelationID   id.CorrelationID `json:"correlation_id"`
	Channel         id.ChannelID     `json:"channel"`
	Verb            id.ActionVerb    `json:"verb"`
	AlreadyActioned bool             `json:"already_actioned"`
	Card            card.Card        `json:"card"`
}
