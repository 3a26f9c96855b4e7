package domain

// RiskLevel buckets the 1-25 risk score for filtering and display.
type RiskLevel string

const (
	LevelLow      RiskLevel = "low"
	LevelMedium   RiskLevel = "medium"
	LevelHigh     RiskLevel = "high"
	LevelCritical RiskLevel = "critical"
)

func LevelForScore(score float64) RiskLevel {
	switch {
	case score >= 17:
		return LevelCritical
	case score >= 10:
		return LevelHigh
	case score >= 5:
		return LevelMedium
	default:
		return LevelLow
	}
}
