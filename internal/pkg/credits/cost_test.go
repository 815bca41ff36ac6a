package credits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name    string
		factors CostFactors
		want    int
	}{
		{
			name:    "Baseline solidity security audit",
			factors: CostFactors{CodeLength: 1000, Complexity: 1, AnalysisType: "security", Language: "solidity"},
			want:    10,
		},
		{
			name:    "Complexity six with multiple files",
			factors: CostFactors{CodeLength: 1000, Complexity: 6, HasMultipleFiles: true, AnalysisType: "security", Language: "solidity"},
			want:    30,
		},
		{
			name:    "Full rust audit across files",
			factors: CostFactors{CodeLength: 5000, Complexity: 5, HasMultipleFiles: true, AnalysisType: "full", Language: "rust"},
			want:    46,
		},
		{
			name:    "Large cairo codebase",
			factors: CostFactors{CodeLength: 1000000, Complexity: 10, HasMultipleFiles: true, AnalysisType: "full", Language: "cairo"},
			want:    153,
		},
		{
			name:    "Cheap vyper optimization pass",
			factors: CostFactors{CodeLength: 200, Complexity: 1, AnalysisType: "optimization", Language: "vyper"},
			want:    8,
		},
		{
			name:    "Unknown analysis and language fall back to neutral multipliers",
			factors: CostFactors{CodeLength: 1000, Complexity: 1, AnalysisType: "quantum", Language: "cobol"},
			want:    10,
		},
		{
			name:    "Case and whitespace insensitive lookups",
			factors: CostFactors{CodeLength: 1000, Complexity: 1, AnalysisType: "  SECURITY ", Language: "Solidity"},
			want:    10,
		},
		{
			name:    "Zero code length keeps the base multiplier",
			factors: CostFactors{CodeLength: 0, Complexity: 1, AnalysisType: "security", Language: "solidity"},
			want:    10,
		},
		{
			name:    "Complexity clamped to ten",
			factors: CostFactors{CodeLength: 1000, Complexity: 99, AnalysisType: "security", Language: "solidity"},
			want:    28,
		},
		{
			name:    "Absurd code length clamps at the ceiling",
			factors: CostFactors{CodeLength: 1000000000000000000, Complexity: 10, HasMultipleFiles: true, AnalysisType: "full", Language: "cairo"},
			want:    MaxCost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateCost(tt.factors))
		})
	}
}

func TestCalculateCostDeterministic(t *testing.T) {
	factors := CostFactors{CodeLength: 48000, Complexity: 7, HasMultipleFiles: true, AnalysisType: "full", Language: "move"}

	first := CalculateCost(factors)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, CalculateCost(factors))
	}
}

func TestCalculateCostBounds(t *testing.T) {
	// Sweep a coarse grid of factor combinations; every result must land
	// inside the advertised bounds.
	lengths := []int{0, 1, 100, 10000, 1000000, 1 << 40}
	complexities := []int{-3, 0, 1, 5, 10, 42}
	analyses := []string{"security", "optimization", "full", "unknown"}
	languages := []string{"solidity", "vyper", "move", "rust", "cairo", "unknown"}

	for _, l := range lengths {
		for _, c := range complexities {
			for _, a := range analyses {
				for _, lang := range languages {
					for _, multi := range []bool{false, true} {
						got := CalculateCost(CostFactors{
							CodeLength:       l,
							Complexity:       c,
							HasMultipleFiles: multi,
							AnalysisType:     a,
							Language:         lang,
						})
						assert.GreaterOrEqual(t, got, MinCost)
						assert.LessOrEqual(t, got, MaxCost)
					}
				}
			}
		}
	}
}
