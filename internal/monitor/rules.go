package monitor

import (
	"time"

	"paypipe/internal/config"
)

// Rule decides when a pending payment of one method is auto-confirmed and
// when it is given up on. maxWait always wins over eligibility: a payment
// past its maximum wait is expired even if it also qualifies for
// confirmation.
type Rule struct {
	AutoConfirmAfter time.Duration `json:"auto_confirm_after"`
	MaxWait          time.Duration `json:"max_wait"`
	RequireProof     bool          `json:"require_proof"`
}

// RulePatch is a partial rule update; nil fields keep their current value.
type RulePatch struct {
	AutoConfirmAfter *time.Duration `json:"auto_confirm_after,omitempty"`
	MaxWait          *time.Duration `json:"max_wait,omitempty"`
	RequireProof     *bool          `json:"require_proof,omitempty"`
}

func rulesFromConfig(cfgRules map[string]config.RuleConfig) map[string]Rule {
	rules := make(map[string]Rule, len(cfgRules))
	for method, rc := range cfgRules {
		rules[method] = Rule{
			AutoConfirmAfter: rc.AutoConfirmAfter,
			MaxWait:          rc.MaxWait,
			RequireProof:     rc.RequireProof,
		}
	}
	return rules
}
