package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "beacon/pkg/domain"
	dErrors "beacon/pkg/domain-errors"
)

func validEvent() Event {
	return Event{
		CorrelationID: "evt-123",
		Type:          "security_incident",
		Priority:      id.PriorityHigh,
		Stakeholders:  []id.StakeholderGroup{"security_engineering"},
		Data:          map[string]any{"summary": "suspicious login"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts well-formed event", func(t *testing.T) {
		require.NoError(t, validEvent().Validate())
	})

	t.Run("rejects missing correlation id", func(t *testing.T) {
		e := validEvent()
		e.CorrelationID = ""
		err := e.Validate()
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})

	t.Run("rejects unknown priority", func(t *testing.T) {
		e := validEvent()
		e.Priority = "URGENT"
		require.Error(t, e.Validate())
	})

	t.Run("rejects empty stakeholder set", func(t *testing.T) {
		e := validEvent()
		e.Stakeholders = nil
		require.Error(t, e.Validate())
	})

	t.Run("rejects blank stakeholder group", func(t *testing.T) {
		e := validEvent()
		e.Stakeholders = []id.StakeholderGroup{"security_engineering", ""}
		require.Error(t, e.Validate())
	})
}

func TestWithDefaults(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	t.Run("stamps zero created_at", func(t *testing.T) {
		e := validEvent().WithDefaults(now)
		assert.Equal(t, now, e.CreatedAt)
	})

	t.Run("keeps producer created_at", func(t *testing.T) {
		earlier := now.Add(-time.Hour)
		e := validEvent()
		e.CreatedAt = earlier
		assert.Equal(t, earlier, e.WithDefaults(now).CreatedAt)
	})
}

func TestStringField(t *testing.T) {
	e := validEvent()
	assert.Equal(t, "suspicious login", e.StringField("summary", "unknown"))
	assert.Equal(t, "unknown", e.StringField("missing", "unknown"))

	e.Data["count"] = 3
	assert.Equal(t, "unknown", e.StringField("count", "unknown"))

	e.Data = nil
	assert.Equal(t, "unknown", e.StringField("summary", "unknown"))
}

func TestPriorityOrdering(t *testing.T) {
	assert.True(t, id.PriorityCritical.AtLeast(id.PriorityHigh))
	assert.True(t, id.PriorityHigh.AtLeast(id.PriorityHigh))
	assert.False(t, id.PriorityMedium.AtLeast(id.PriorityHigh))
	assert.False(t, id.Priority("URGENT").AtLeast(id.PriorityInfo))
}
