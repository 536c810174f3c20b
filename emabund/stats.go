package emabund

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// normalize scales a in place to sum to 1.
func normalize(a []float64) error {
	sum := floats.Sum(a)
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return errors.Wrapf(ErrDegenerateDistribution, "cannot normalize %d categories summing to %v", len(a), sum)
	}
	floats.Scale(1/sum, a)
	return nil
}
