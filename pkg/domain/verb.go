package domain

// ActionVerb is a user-triggered follow-up on a delivered notification.
type ActionVerb string

const (
	VerbAcknowledge ActionVerb = "acknowledge"
	VerbEscalate    ActionVerb = "escalate"
	VerbRetry       ActionVerb = "retry"
	VerbDiscard     ActionVerb = "discard"
)

// Verbs lists all supported action verbs in presentation order.
func Verbs() []ActionVerb {
	return []ActionVerb{VerbAcknowledge, VerbEscalate, VerbRetry, VerbDiscard}
}

func (v ActionVerb) IsValid() bool {
	switch v {
	case VerbAcknowledge, VerbEscalate, VerbRetry, VerbDiscard:
		return true
	}
	return false
}

func (v ActionVerb) String() string { return string(v) }
