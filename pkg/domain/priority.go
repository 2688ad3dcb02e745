package domain

// Priority orders events by operational urgency. It controls which action
// buttons a card offers and which records the escalation view surfaces.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
	PriorityInfo     Priority = "INFO"
)

// priorityRank gives CRITICAL the highest rank so AtLeast reads naturally.
var priorityRank = map[Priority]int{
	PriorityCritical: 5,
	PriorityHigh:     4,
	PriorityMedium:   3,
	PriorityLow:      2,
	PriorityInfo:     1,
}

func (p Priority) IsValid() bool {
	_, ok := priorityRank[p]
	return ok
}

// AtLeast reports whether p is as urgent as other or more so.
// Unknown priorities rank below INFO.
func (p Priority) AtLeast(other Priority) bool {
	return priorityRank[p] >= priorityRank[other]
}

func (p Priority) String() string { return string(p) }

// PrioritiesAtLeast lists the priorities ranking at or above p, most urgent
// first. Stores use it to build IN clauses for escalation queries.
func PrioritiesAtLeast(p Priority) []Priority {
	all := []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityInfo}
	var out []Priority
	for _, candidate := range all {
		if candidate.AtLeast(p) {
			out = append(out, candidate)
		}
	}
	return out
}
