// Package settings provides the operator profile used to build reply prompts.
package settings

import (
	"time"

	"engagement_backend/internal/conversation/domain"
	"engagement_backend/platform/config"
)

// AgentProfile is the immutable operator configuration for one location.
// Values are copied out of the cache; callers cannot mutate shared state.
type AgentProfile struct {
	LocationID     string
	AgentName      string
	CompanyName    string
	ServiceLabel   string
	SchedulingLink string
	Website        string
	OpeningHours   string
	PhoneNumber    string
	Hours          domain.BusinessHours
}

// Overrides are the per-location values stored in agent_settings.
// Empty strings and nil hours mean "inherit".
type Overrides struct {
	LocationID     string
	AgentName      string
	CompanyName    string
	ServiceLabel   string
	SchedulingLink string
	Website        string
	OpeningHours   string
	PhoneNumber    string
	Timezone       string
	OpenHour       *int
	CloseHour      *int
	UpdatedAt      time.Time
}

// DefaultsFromConfig builds the fallback profile from environment configuration.
func DefaultsFromConfig(cfg config.AgentDefaultsConfig) AgentProfile {
	loc, err := time.LoadLocation(cfg.GetBusinessTimezone())
	if err != nil {
		loc = time.UTC
	}
	return AgentProfile{
		AgentName:      cfg.GetAgentName(),
		CompanyName:    cfg.GetCompanyName(),
		ServiceLabel:   cfg.GetServiceLabel(),
		SchedulingLink: cfg.GetSchedulingLink(),
		Website:        cfg.GetWebsite(),
		OpeningHours:   cfg.GetOpeningHours(),
		PhoneNumber:    cfg.GetPhoneNumber(),
		Hours: domain.BusinessHours{
			Location:  loc,
			OpenHour:  cfg.GetBusinessOpenHour(),
			CloseHour: cfg.GetBusinessCloseHour(),
		},
	}
}

// Apply returns a copy of p with every populated override applied.
func (p AgentProfile) Apply(o Overrides) AgentProfile {
	out := p
	out.AgentName = pick(o.AgentName, p.AgentName)
	out.CompanyName = pick(o.CompanyName, p.CompanyName)
	out.ServiceLabel = pick(o.ServiceLabel, p.ServiceLabel)
	out.SchedulingLink = pick(o.SchedulingLink, p.SchedulingLink)
	out.Website = pick(o.Website, p.Website)
	out.OpeningHours = pick(o.OpeningHours, p.OpeningHours)
	out.PhoneNumber = pick(o.PhoneNumber, p.PhoneNumber)

	if o.Timezone != "" {
		if loc, err := time.LoadLocation(o.Timezone); err == nil {
			out.Hours.Location = loc
		}
	}
	if o.OpenHour != nil && o.CloseHour != nil && *o.OpenHour >= 0 && *o.CloseHour <= 24 && *o.OpenHour < *o.CloseHour {
		out.Hours.OpenHour = *o.OpenHour
		out.Hours.CloseHour = *o.CloseHour
	}
	return out
}

func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
