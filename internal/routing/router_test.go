package routing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"beacon/internal/event"
	id "beacon/pkg/domain"
	"beacon/pkg/platform/sentinel"
)

// stubResolver maps groups to fixed channels for router tests.
type stubResolver struct {
	channels map[id.StakeholderGroup][]Channel
}

func (s *stubResolver) Channels(_ context.Context, group id.StakeholderGroup) ([]Channel, error) {
	chs, ok := s.channels[group]
	if !ok {
		return nil, fmt.Errorf("group %q: %w", group, sentinel.ErrNotFound)
	}
	return chs, nil
}

type RouterSuite struct {
	suite.Suite
	resolver *stubResolver
	router   *Router
	ctx      context.Context
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.resolver = &stubResolver{channels: map[id.StakeholderGroup][]Channel{
		"security_engineering": {{ID: "sec-teams", Group: "security_engineering", WebhookURL: "https://hooks.test/sec", Secret: "s1"}},
		"oncall_sre":           {{ID: "sre-teams", Group: "oncall_sre", WebhookURL: "https://hooks.test/sre", Secret: "s2"}},
		"management":           {{ID: "sec-teams", Group: "management", WebhookURL: "https://hooks.test/sec", Secret: "s1"}},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = New(s.resolver, WithLogger(logger))
	s.ctx = context.Background()
}

func (s *RouterSuite) newEvent(groups ...id.StakeholderGroup) event.Event {
	return event.Event{
		CorrelationID: "evt-1",
		Type:          "security_incident",
		Priority:      id.PriorityCritical,
		Stakeholders:  groups,
	}
}

func (s *RouterSuite) TestFanOut() {
	s.Run("one unit per resolved channel", func() {
		units := s.router.Route(s.ctx, s.newEvent("security_engineering", "oncall_sre"))
		s.Require().Len(units, 2)
		s.Equal(id.ChannelID("sec-teams"), units[0].Channel.ID)
		s.Equal(id.ChannelID("sre-teams"), units[1].Channel.ID)
	})

	s.Run("unresolved group skipped, remaining channels proceed", func() {
		units := s.router.Route(s.ctx, s.newEvent("unknown_group", "oncall_sre"))
		s.Require().Len(units, 1)
		s.Equal(id.ChannelID("sre-teams"), units[0].Channel.ID)
	})

	s.Run("no resolvable group yields empty fan-out", func() {
		units := s.router.Route(s.ctx, s.newEvent("unknown_group"))
		s.Empty(units)
	})

	s.Run("shared destination collapses to one unit", func() {
		units := s.router.Route(s.ctx, s.newEvent("security_engineering", "management"))
		s.Require().Len(units, 1)
		s.Equal(id.ChannelID("sec-teams"), units[0].Channel.ID)
	})
}
