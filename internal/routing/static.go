package routing

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	id "beacon/pkg/domain"
	"beacon/pkg/platform/sentinel"
)

// routingFile is the YAML schema of the channel routing table.
//
//	channels:
//	  - id: security-eng-teams
//	    stakeholder_group: security_engineering
//	    webhook_url_env: SECURITY_ENG_WEBHOOK_URL
//	    secret_env: SECURITY_ENG_WEBHOOK_SECRET
//	    rate_per_minute: 60
//	    burst: 10
//
// URLs and secrets are indirected through environment variable names so the
// table itself never contains credentials and can live in version control.
type routingFile struct {
	Channels []channelSpec `yaml:"channels"`
}

type channelSpec struct {
	ID               string `yaml:"id"`
	StakeholderGroup string `yaml:"stakeholder_group"`
	WebhookURLEnv    string `yaml:"webhook_url_env"`
	SecretEnv        string `yaml:"secret_env"`
	RatePerMinute    int    `yaml:"rate_per_minute"`
	Burst            int    `yaml:"burst"`
}

// StaticResolver serves channel lookups from a parsed routing table. The
// webhook URL and secret are read from the environment on every lookup so a
// secret rotation takes effect without a restart.
type StaticResolver struct {
	byGroup map[id.StakeholderGroup][]channelSpec

	defaultRate  int
	defaultBurst int

	// lookupEnv is swappable for tests; defaults to os.LookupEnv.
	lookupEnv func(string) (string, bool)
}

// LoadStatic parses the routing table at path.
func LoadStatic(path string, defaultRate, defaultBurst int) (*StaticResolver, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing file: %w", err)
	}
	return ParseStatic(raw, defaultRate, defaultBurst)
}

// ParseStatic builds a resolver from raw YAML routing table bytes.
func ParseStatic(raw []byte, defaultRate, defaultBurst int) (*StaticResolver, error) {
	var file routingFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse routing file: %w", err)
	}

	byGroup := make(map[id.StakeholderGroup][]channelSpec)
	seen := make(map[string]bool)
	for _, spec := range file.Channels {
		if spec.ID == "" || spec.StakeholderGroup == "" {
			return nil, fmt.Errorf("routing entry missing id or stakeholder_group")
		}
		if spec.WebhookURLEnv == "" || spec.SecretEnv == "" {
			return nil, fmt.Errorf("channel %q missing webhook_url_env or secret_env", spec.ID)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("duplicate channel id %q", spec.ID)
		}
		seen[spec.ID] = true
		group := id.StakeholderGroup(spec.StakeholderGroup)
		byGroup[group] = append(byGroup[group], spec)
	}

	return &StaticResolver{
		byGroup:      byGroup,
		defaultRate:  defaultRate,
		defaultBurst: defaultBurst,
		lookupEnv:    os.LookupEnv,
	}, nil
}

// Channels resolves group to its configured channels. A group absent from the
// table returns sentinel.ErrNotFound. A channel whose URL or secret env var is
// unset (placeholder not yet provisioned) returns sentinel.ErrUnavailable.
func (r *StaticResolver) Channels(_ context.Context, group id.StakeholderGroup) ([]Channel, error) {
	specs, ok := r.byGroup[group]
	if !ok {
		return nil, fmt.Errorf("stakeholder group %q: %w", group, sentinel.ErrNotFound)
	}

	channels := make([]Channel, 0, len(specs))
	for _, spec := range specs {
		url, okURL := r.lookupEnv(spec.WebhookURLEnv)
		secret, okSecret := r.lookupEnv(spec.SecretEnv)
		if !okURL || !okSecret || url == "" || secret == "" {
			return nil, fmt.Errorf("channel %q not provisioned: %w", spec.ID, sentinel.ErrUnavailable)
		}

		rate, burst := spec.RatePerMinute, spec.Burst
		if rate <= 0 {
			rate = r.defaultRate
		}
		if burst <= 0 {
			burst = r.defaultBurst
		}

		channels = append(channels, Channel{
			ID:            id.ChannelID(spec.ID),
			Group:         group,
			WebhookURL:    url,
			Secret:        secret,
			RatePerMinute: rate,
			Burst:         burst,
		})
	}
	return channels, nil
}

// Groups lists the configured stakeholder groups, for health reporting.
func (r *StaticResolver) Groups() []id.StakeholderGroup {
	groups := make([]id.StakeholderGroup, 0, len(r.byGroup))
	for g := range r.byGroup {
		groups = append(groups, g)
	}
	return groups
}
