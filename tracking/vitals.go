package tracking

import "pianosale/api/models"

type vitalThreshold struct {
	good float64
	poor float64
}

// Thresholds follow the Core Web Vitals guidance. Times are in milliseconds,
// CLS is unitless.
var vitalThresholds = map[string]vitalThreshold{
	"LCP":  {good: 2500, poor: 4000},
	"FID":  {good: 100, poor: 300},
	"CLS":  {good: 0.1, poor: 0.25},
	"INP":  {good: 200, poor: 500},
	"TTFB": {good: 800, poor: 1800},
	"FCP":  {good: 1800, poor: 3000},
}

// Classify maps a metric reading to a rating. Names without thresholds
// (including framework metrics such as "Next.js-hydration") are always good.
func Classify(name string, value float64) models.Rating {
	t, ok := vitalThresholds[name]
	if !ok {
		return models.RatingGood
	}
	switch {
	case value <= t.good:
		return models.RatingGood
	case value <= t.poor:
		return models.RatingNeedsImprovement
	default:
		return models.RatingPoor
	}
}

// KnownVital reports whether name has classification thresholds.
func KnownVital(name string) bool {
	_, ok := vitalThresholds[name]
	return ok
}
