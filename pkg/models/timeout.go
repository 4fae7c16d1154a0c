package models

import "time"

// TimeoutCategory classifies how long a step handler is allowed to block.
// Handlers declare their category; runs may override per category.
type TimeoutCategory string

const (
	TimeoutCategoryFast        TimeoutCategory = "fast"
	TimeoutCategoryStandard    TimeoutCategory = "standard"
	TimeoutCategorySlow        TimeoutCategory = "slow"
	TimeoutCategoryInteractive TimeoutCategory = "interactive"
)

var defaultTimeouts = map[TimeoutCategory]time.Duration{
	TimeoutCategoryFast:        10 * time.Second,
	TimeoutCategoryStandard:    60 * time.Second,
	TimeoutCategorySlow:        10 * time.Minute,
	TimeoutCategoryInteractive: 30 * time.Minute,
}

// ValidTimeoutCategory reports whether the category is a known one.
func ValidTimeoutCategory(category TimeoutCategory) bool {
	_, ok := defaultTimeouts[category]

	return ok
}

// ResolveTimeout returns the run-level override for the category if present,
// else the category default.
func ResolveTimeout(category TimeoutCategory, overrides map[TimeoutCategory]time.Duration) time.Duration {
	if d, ok := overrides[category]; ok {
		return d
	}

	if d, ok := defaultTimeouts[category]; ok {
		return d
	}

	return defaultTimeouts[TimeoutCategoryStandard]
}
