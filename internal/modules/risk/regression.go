package risk

import (
	"errors"
	"fmt"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/pkg/formulas"
	"gonum.org/v1/gonum/mat"
)

// RegressionResult holds the fitted coefficients of an OLS regression with intercept
type RegressionResult struct {
	Intercept    float64
	Coefficients []float64 // one per regressor column, in input order
	RSquared     float64
	Observations int
}

// Regress fits y = a + Σ b_j x_j by ordinary least squares using a QR factorization.
// columns holds one slice per regressor, each the same length as y.
func Regress(y []float64, columns [][]float64) (RegressionResult, error) {
	n := len(y)
	k := len(columns)
	if k == 0 {
		return RegressionResult{}, &domain.ComputationError{Op: "regress", Err: errors.New("no regressors")}
	}
	for j, col := range columns {
		if len(col) != n {
			return RegressionResult{}, &domain.ComputationError{
				Op:  "regress",
				Err: fmt.Errorf("regressor %d has %d observations, response has %d", j, len(col), n),
			}
		}
	}
	if n <= k+1 {
		return RegressionResult{}, &domain.ComputationError{
			Op:  "regress",
			Err: fmt.Errorf("%d observations cannot identify %d coefficients", n, k+1),
		}
	}

	design := mat.NewDense(n, k+1, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		for j, col := range columns {
			design.Set(i, j+1, col[i])
		}
	}

	var qr mat.QR
	qr.Factorize(design)

	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, mat.NewVecDense(n, append([]float64(nil), y...))); err != nil {
		return RegressionResult{}, &domain.ComputationError{Op: "regress", Err: fmt.Errorf("design matrix is singular: %w", err)}
	}

	var fittedVec mat.VecDense
	fittedVec.MulVec(design, &coef)
	fitted := make([]float64, n)
	for i := range fitted {
		fitted[i] = fittedVec.AtVec(i)
	}

	result := RegressionResult{
		Intercept:    coef.AtVec(0),
		Coefficients: make([]float64, k),
		RSquared:     formulas.RSquared(y, fitted),
		Observations: n,
	}
	for j := 0; j < k; j++ {
		result.Coefficients[j] = coef.AtVec(j + 1)
	}
	return result, nil
}
