// Package domain holds the shared vocabulary of the notification engine:
// identifiers, event typing, priorities, and action verbs. Keeping these in
// pkg/domain lets feature packages reference each other's records without
// importing service code.
package domain

// CorrelationID links an event, its delivery attempts, and later user actions.
// It is caller-supplied at intake and must be unique per logical event.
type CorrelationID string

func (c CorrelationID) String() string { return string(c) }

func (c CorrelationID) IsEmpty() bool { return c == "" }

// ChannelID names a concrete delivery destination (webhook URL + secret).
type ChannelID string

func (c ChannelID) String() string { return string(c) }

// StakeholderGroup is a named audience (e.g. security engineering, on-call SRE)
// that receives certain event types. Groups resolve to zero or more channels.
type StakeholderGroup string

func (g StakeholderGroup) String() string { return string(g) }

// EventType classifies the operational event being notified. The engine does
// not enumerate types; producers own them. Types select card templates.
type EventType string

func (t EventType) String() string { return string(t) }
