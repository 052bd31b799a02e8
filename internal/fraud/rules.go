package fraud

import "github.com/opensource-finance/kestrel/internal/domain"

func limit(v float64) *float64 { return &v }

// DefaultRules returns the seed rule set installed for a tenant whose rule
// table is empty. Operators replace or extend these through the API.
func DefaultRules(tenantID string) []*domain.FraudRuleConfig {
	return []*domain.FraudRuleConfig{
		{
			ID:          "velocity-burst",
			TenantID:    tenantID,
			Name:        "Application velocity burst",
			Description: "Multiple applications from the same client inside the velocity window",
			Version:     "1",
			Expression:  "velocity_count",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(3), SubRuleRef: domain.RuleOutcomePass, Reason: "normal submission rate"},
				{LowerLimit: limit(3), UpperLimit: limit(5), SubRuleRef: domain.RuleOutcomeReview, Reason: "elevated application velocity"},
				{LowerLimit: limit(5), SubRuleRef: domain.RuleOutcomeFail, Reason: "application velocity burst"},
			},
			Weight:  1.0,
			Enabled: true,
		},
		{
			ID:          "pressure-pattern",
			TenantID:    tenantID,
			Name:        "Coercion pattern",
			Description: "External pressure combined with maximum urgency and stress",
			Version:     "1",
			Expression:  "external_pressure && urgency_level >= 4.0 && stress_level >= 4.0",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "no coercion pattern"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeFail, Reason: "external pressure with high urgency and stress"},
			},
			Weight:  1.5,
			Enabled: true,
		},
		{
			ID:          "implausible-request",
			TenantID:    tenantID,
			Name:        "Implausible request size",
			Description: "New client with incoherent discourse asking far beyond annual income",
			Version:     "1",
			Expression:  "client_is_new && incoherent_discourse && credit_to_income_ratio > 3.0",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "request size plausible"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeFail, Reason: "new client requesting far beyond declared income"},
			},
			Weight:  1.0,
			Enabled: true,
		},
	}
}
