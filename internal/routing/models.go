// Package routing resolves an event's stakeholder groups to concrete delivery
// channels. Resolution is injected behind ChannelResolver so the routing table
// source (YAML file, secret manager, control plane) stays swappable.
package routing

import (
	"context"

	id "beacon/pkg/domain"
)

// Channel is a concrete delivery destination bound to a stakeholder group.
// Secret and WebhookURL come from the resolver at dispatch time; they are
// never logged and never persisted in audit rows.
type Channel struct {
	ID            id.ChannelID
	Group         id.StakeholderGroup
	WebhookURL    string
	Secret        string
	RatePerMinute int
	Burst         int
}

// ChannelResolver resolves a stakeholder group to its configured channels.
// An unknown or not-yet-configured group returns sentinel.ErrNotFound; that is
// a recoverable configuration problem, not a crash.
type ChannelResolver interface {
	Channels(ctx context.Context, group id.StakeholderGroup) ([]Channel, error)
}
