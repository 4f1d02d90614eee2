package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"open-dio/config"
	"open-dio/models"
)

func testLeontiefConfig(blockSize int) config.LeontiefConfig {
	cfg := config.DefaultModelConfig().Leontief
	cfg.BlockSize = blockSize
	return cfg
}

func TestLeontiefSolveTwoSectors(t *testing.T) {
	reg := twoSectorRegistry(t)
	a := mat.NewDense(2, 2, []float64{0.1, 0.2, 0.2, 0.1})

	l, cond, err := NewLeontiefSolver(testLeontiefConfig(1), 2, newTestLogger()).Solve(context.Background(), reg, a)
	require.NoError(t, err)
	assert.Greater(t, cond, 1.0)

	want := [][]float64{{0.9 / det, 0.2 / det}, {0.2 / det, 0.9 / det}}
	for i := range want {
		for j := range want[i] {
			assert.InDelta(t, want[i][j], l.At(i, j), 1e-12)
		}
	}
}

// chainEconomy builds an n-sector economy where each sector buys 30% of its
// output from itself and 20% from the next sector.
func chainEconomy(t *testing.T, n int) (*models.SectorRegistry, *mat.Dense) {
	t.Helper()
	sectors := make([]models.Sector, n)
	for i := range sectors {
		sectors[i] = models.Sector{Code: fmt.Sprintf("S%03d", i), Name: fmt.Sprintf("Sector %d", i)}
	}
	reg, err := models.NewSectorRegistry(sectors)
	require.NoError(t, err)

	a := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		a.Set(j, j, 0.3)
		a.Set((j+1)%n, j, 0.2)
	}
	return reg, a
}

func TestLeontiefBlocksReproduceInverse(t *testing.T) {
	const n = 37
	reg, a := chainEconomy(t, n)

	// Block size 5 leaves a ragged final block.
	l, _, err := NewLeontiefSolver(testLeontiefConfig(5), 4, newTestLogger()).Solve(context.Background(), reg, a)
	require.NoError(t, err)

	ia := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := -a.At(i, j)
			if i == j {
				v++
			}
			ia.Set(i, j, v)
		}
	}
	var prod mat.Dense
	prod.Mul(l, ia)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, prod.At(i, j), 1e-10, "(L·(I-A))[%d][%d]", i, j)
		}
	}
}

func TestLeontiefSingular(t *testing.T) {
	reg := twoSectorRegistry(t)
	a := mat.NewDense(2, 2, []float64{0.5, 0.5, 0.5, 0.5})

	_, _, err := NewLeontiefSolver(testLeontiefConfig(1), 1, newTestLogger()).Solve(context.Background(), reg, a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrMatrixSingularity))

	var sing *models.SingularityError
	require.True(t, errors.As(err, &sing))
	require.Len(t, sing.Sectors, 2)
	assert.InDelta(t, 0, sing.Sectors[0].Value, 1e-12)
}

func TestLeontiefSolveHonoursCancel(t *testing.T) {
	reg, a := chainEconomy(t, 20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewLeontiefSolver(testLeontiefConfig(1), 2, newTestLogger()).Solve(ctx, reg, a)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLeontiefRoundTrip(t *testing.T) {
	in := twoSectorInputs()
	reg := twoSectorRegistry(t)
	req, err := NewRequirementsBuilder(newTestLogger()).Build(reg, in.Outputs, in.EconomicFlows)
	require.NoError(t, err)

	solver := NewLeontiefSolver(testLeontiefConfig(1), 1, newTestLogger())
	l, _, err := solver.Solve(context.Background(), reg, req.A)
	require.NoError(t, err)

	share, outliers, err := solver.Validate(reg, l, req.Demand, req.Output)
	require.NoError(t, err)
	assert.Equal(t, 1.0, share)
	assert.Empty(t, outliers)
}

func TestLeontiefValidationFails(t *testing.T) {
	reg := twoSectorRegistry(t)
	a := mat.NewDense(2, 2, []float64{0.1, 0.2, 0.2, 0.1})
	solver := NewLeontiefSolver(testLeontiefConfig(1), 1, newTestLogger())
	l, _, err := solver.Solve(context.Background(), reg, a)
	require.NoError(t, err)

	// Demand that reproduces [100, 200], checked against a different reference.
	share, outliers, err := solver.Validate(reg, l, []float64{50, 160}, []float64{100, 250})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrLeontiefValidation)
	assert.Equal(t, 0.5, share)
	require.Len(t, outliers, 1)
	assert.Equal(t, engineering, outliers[0].Code)
	assert.InDelta(t, 0.2, outliers[0].Relative, 1e-9)
}
