// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Package detection compares a target-date rollup row against its baseline
// window using a configured rule set, producing anomaly findings and ranking
// each channel's contribution to the deviation.
package detection

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/uawatch/uawatch/internal/rollup"
)

// ThresholdKind selects how a rule's threshold is interpreted.
type ThresholdKind string

const (
	// ThresholdPercentage compares the percent change against the baseline
	// mean to the threshold value.
	ThresholdPercentage ThresholdKind = "percentage"

	// ThresholdAbsolute compares the raw delta (observed minus baseline
	// mean) to the threshold value.
	ThresholdAbsolute ThresholdKind = "absolute"

	// ThresholdIQR flags values outside [Q1 - k*IQR, Q3 + k*IQR] over the
	// baseline window, with k the threshold value. Quartile fences track
	// level shifts better than a fixed percentage on noisy metrics.
	ThresholdIQR ThresholdKind = "iqr"
)

// Direction restricts which side of the baseline triggers a rule.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionEither   Direction = "either"
)

// Severity bands a finding for presentation and alert routing.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// severityRank orders severities for the highest-wins selection.
var severityRank = map[Severity]int{
	SeverityLow:    1,
	SeverityMedium: 2,
	SeverityHigh:   3,
}

// Rank returns the numeric order of the severity (higher is more severe).
func (s Severity) Rank() int { return severityRank[s] }

// Rule is one anomaly detection rule. Rules come from configuration and are
// read-only inputs to the detector.
type Rule struct {
	Metric          rollup.Metric `json:"metric" koanf:"metric" validate:"required"`
	ThresholdKind   ThresholdKind `json:"threshold_kind" koanf:"threshold_kind" validate:"required,oneof=percentage absolute iqr"`
	ThresholdValue  float64       `json:"threshold_value" koanf:"threshold_value" validate:"gt=0"`
	Direction       Direction     `json:"direction" koanf:"direction" validate:"required,oneof=increase decrease either"`
	Severity        Severity      `json:"severity" koanf:"severity" validate:"required,oneof=low medium high"`
	MinBaselineDays int           `json:"min_baseline_days" koanf:"min_baseline_days" validate:"gte=0"`
}

var validate = validator.New()

// Validate checks the rule's declarative constraints plus the metric name.
func (r Rule) Validate() error {
	if !r.Metric.Valid() {
		return fmt.Errorf("unknown metric %q", r.Metric)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid rule for metric %s: %w", r.Metric, err)
	}
	return nil
}

// ValidateRules validates a whole rule set.
func ValidateRules(rules []Rule) error {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}
