package models

// ComplexityClass is a coarse Big-O bucket.
type ComplexityClass string

const (
	ComplexityConstant    ComplexityClass = "O(1)"
	ComplexityLogarithmic ComplexityClass = "O(log n)"
	ComplexityLinear      ComplexityClass = "O(n)"
	ComplexityLinearithm  ComplexityClass = "O(n log n)"
	ComplexityQuadratic   ComplexityClass = "O(n^2)"
	ComplexityCubic       ComplexityClass = "O(n^3)"
	ComplexityExponential ComplexityClass = "O(2^n)"
	ComplexityUnknown     ComplexityClass = "unknown"
)

var complexityRanks = map[ComplexityClass]int{
	ComplexityConstant:    1,
	ComplexityLogarithmic: 2,
	ComplexityLinear:      3,
	ComplexityLinearithm:  4,
	ComplexityQuadratic:   5,
	ComplexityCubic:       6,
	ComplexityExponential: 7,
}

// MaxComplexityRank is the rank of the steepest known class.
const MaxComplexityRank = 7

// Rank orders classes by growth rate, 1 for O(1) up to MaxComplexityRank.
// Unknown has rank 0.
func (c ComplexityClass) Rank() int {
	return complexityRanks[c]
}

// ComplexityEstimate is the heuristic time/space class for one reviewed file.
type ComplexityEstimate struct {
	File  string          `json:"file"`
	Time  ComplexityClass `json:"time_class"`
	Space ComplexityClass `json:"space_class"`
}
