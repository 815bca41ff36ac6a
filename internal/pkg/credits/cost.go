package credits

import (
	"math"
	"strings"
)

// CostFactors describe a single audit request for pricing purposes.
type CostFactors struct {
	CodeLength       int    `json:"code_length"`
	Complexity       int    `json:"complexity"` // 1-10, clamped
	HasMultipleFiles bool   `json:"has_multiple_files"`
	AnalysisType     string `json:"analysis_type"`
	Language         string `json:"language"`
}

const (
	baseCost = 10

	// MinCost and MaxCost bound every computed audit cost.
	MinCost = 5
	MaxCost = 500
)

var analysisTypeMultipliers = map[string]float64{
	"security":     1.0,
	"optimization": 0.8,
	"full":         1.4,
}

var languageMultipliers = map[string]float64{
	"solidity": 1.0,
	"vyper":    0.9,
	"move":     1.1,
	"rust":     1.2,
	"cairo":    1.3,
}

// CalculateCost prices an audit from its factors. It is a pure function:
// identical input yields an identical result on every call, and the result
// always lies in [MinCost, MaxCost].
func CalculateCost(f CostFactors) int {
	cost := float64(baseCost)

	// Longer code costs more, but only logarithmically.
	lengthMultiplier := 1.0
	if f.CodeLength > 0 {
		if m := math.Log10(float64(f.CodeLength)/100.0) * 0.5; m > lengthMultiplier {
			lengthMultiplier = m
		}
	}
	cost *= lengthMultiplier

	complexity := f.Complexity
	if complexity < 1 {
		complexity = 1
	}
	if complexity > 10 {
		complexity = 10
	}
	cost *= 1.0 + float64(complexity-1)*0.2

	if f.HasMultipleFiles {
		cost *= 1.5
	}

	if m, ok := analysisTypeMultipliers[strings.ToLower(strings.TrimSpace(f.AnalysisType))]; ok {
		cost *= m
	}
	if m, ok := languageMultipliers[strings.ToLower(strings.TrimSpace(f.Language))]; ok {
		cost *= m
	}

	out := int(math.Ceil(cost))
	if out < MinCost {
		return MinCost
	}
	if out > MaxCost {
		return MaxCost
	}
	return out
}

// validateFactors rejects factors no pricing can be derived from.
func validateFactors(f CostFactors) error {
	if f.CodeLength < 0 {
		return ErrInvalidArgument
	}
	return nil
}
