package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	id "beacon/pkg/domain"
	"beacon/pkg/platform/sentinel"
)

const routingYAML = `
channels:
  - id: sec-teams
    stakeholder_group: security_engineering
    webhook_url_env: SEC_WEBHOOK_URL
    secret_env: SEC_WEBHOOK_SECRET
    rate_per_minute: 30
    burst: 5
  - id: sre-teams
    stakeholder_group: oncall_sre
    webhook_url_env: SRE_WEBHOOK_URL
    secret_env: SRE_WEBHOOK_SECRET
`

type StaticResolverSuite struct {
	suite.Suite
	resolver *StaticResolver
	env      map[string]string
	ctx      context.Context
}

func TestStaticResolverSuite(t *testing.T) {
	suite.Run(t, new(StaticResolverSuite))
}

func (s *StaticResolverSuite) SetupTest() {
	var err error
	s.resolver, err = ParseStatic([]byte(routingYAML), 60, 10)
	s.Require().NoError(err)

	s.env = map[string]string{
		"SEC_WEBHOOK_URL":    "https://hooks.test/sec",
		"SEC_WEBHOOK_SECRET": "sec-secret",
		"SRE_WEBHOOK_URL":    "https://hooks.test/sre",
		"SRE_WEBHOOK_SECRET": "sre-secret",
	}
	s.resolver.lookupEnv = func(key string) (string, bool) {
		v, ok := s.env[key]
		return v, ok
	}
	s.ctx = context.Background()
}

func (s *StaticResolverSuite) TestResolve() {
	s.Run("resolves configured group with explicit limits", func() {
		channels, err := s.resolver.Channels(s.ctx, "security_engineering")
		s.Require().NoError(err)
		s.Require().Len(channels, 1)

		ch := channels[0]
		s.Equal(id.ChannelID("sec-teams"), ch.ID)
		s.Equal("https://hooks.test/sec", ch.WebhookURL)
		s.Equal("sec-secret", ch.Secret)
		s.Equal(30, ch.RatePerMinute)
		s.Equal(5, ch.Burst)
	})

	s.Run("applies default limits when unspecified", func() {
		channels, err := s.resolver.Channels(s.ctx, "oncall_sre")
		s.Require().NoError(err)
		s.Require().Len(channels, 1)
		s.Equal(60, channels[0].RatePerMinute)
		s.Equal(10, channels[0].Burst)
	})

	s.Run("unknown group returns ErrNotFound", func() {
		_, err := s.resolver.Channels(s.ctx, "marketing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unprovisioned secret returns ErrUnavailable", func() {
		delete(s.env, "SRE_WEBHOOK_SECRET")
		_, err := s.resolver.Channels(s.ctx, "oncall_sre")
		s.Require().ErrorIs(err, sentinel.ErrUnavailable)
	})
}

func (s *StaticResolverSuite) TestParseRejectsBadTables() {
	s.Run("duplicate channel id", func() {
		_, err := ParseStatic([]byte(`
channels:
  - {id: a, stakeholder_group: g1, webhook_url_env: U, secret_env: S}
  - {id: a, stakeholder_group: g2, webhook_url_env: U, secret_env: S}
`), 60, 10)
		s.Error(err)
	})

	s.Run("missing secret env", func() {
		_, err := ParseStatic([]byte(`
channels:
  - {id: a, stakeholder_group: g1, webhook_url_env: U}
`), 60, 10)
		s.Error(err)
	})

	s.Run("malformed yaml", func() {
		_, err := ParseStatic([]byte(`channels: [`), 60, 10)
		s.Error(err)
	})
}
