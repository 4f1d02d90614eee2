package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"open-dio/config"
	"open-dio/models"
	"open-dio/utils"
)

// zeroOutputTolerance is the absolute tolerance used when a sector's
// reference output is zero and a relative deviation is undefined.
const zeroOutputTolerance = 1e-9

// LeontiefSolver computes L = (I - A)⁻¹ and checks it against the reference
// output vector.
type LeontiefSolver struct {
	cfg     config.LeontiefConfig
	workers int
	logger  *utils.Logger
}

// NewLeontiefSolver creates a solver. Column blocks of L are solved on up to
// workers goroutines.
func NewLeontiefSolver(cfg config.LeontiefConfig, workers int, logger *utils.Logger) *LeontiefSolver {
	if cfg.BlockSize < 1 {
		cfg.BlockSize = 64
	}
	if cfg.DiagnosticSectors < 1 {
		cfg.DiagnosticSectors = 10
	}
	return &LeontiefSolver{cfg: cfg, workers: workers, logger: logger}
}

// Solve factorizes (I - A) once and solves for the identity in column
// blocks. It returns the inverse and the estimated condition number. An
// ill-conditioned system yields a *models.SingularityError listing the
// sectors closest to a zero column margin.
func (s *LeontiefSolver) Solve(ctx context.Context, reg *models.SectorRegistry, a *mat.Dense) (*mat.Dense, float64, error) {
	n, c := a.Dims()
	if n != c || n != reg.Len() {
		return nil, 0, fmt.Errorf("leontief: %w: A is %d×%d for %d sectors", models.ErrMalformedMatrixInput, n, c, reg.Len())
	}

	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := -a.At(i, j)
			if i == j {
				v += 1
			}
			m.Set(i, j, v)
		}
	}

	var lu mat.LU
	lu.Factorize(m)
	cond := lu.Cond()
	if math.IsNaN(cond) || math.IsInf(cond, 0) || cond > s.cfg.MaxConditionNumber {
		return nil, cond, &models.SingularityError{
			Condition: cond,
			Threshold: s.cfg.MaxConditionNumber,
			Sectors:   smallestMargins(reg, a, s.cfg.DiagnosticSectors),
		}
	}
	s.logger.Debug("[leontief] (I - A) condition number %.4g", cond)

	l := mat.NewDense(n, n, nil)
	pool := utils.NewWorkerPool(ctx, s.workers)
	for start := 0; start < n; start += s.cfg.BlockSize {
		start := start
		end := start + s.cfg.BlockSize
		if end > n {
			end = n
		}
		pool.Submit(func(ctx context.Context) error {
			w := end - start
			rhs := mat.NewDense(n, w, nil)
			for k := 0; k < w; k++ {
				rhs.Set(start+k, k, 1)
			}
			var x mat.Dense
			if err := lu.SolveTo(&x, false, rhs); err != nil {
				return fmt.Errorf("leontief: solve columns %d-%d: %w", start, end-1, err)
			}
			// Blocks write disjoint column ranges of l.
			l.Slice(0, n, start, end).(*mat.Dense).Copy(&x)
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, cond, err
	}

	s.logger.Info("[leontief] Inverted %d×%d system in blocks of %d (cond %.3g)", n, n, s.cfg.BlockSize, cond)
	return l, cond, nil
}

// Validate reconstructs x' = L·y and compares it with the reference output x
// sector by sector. It returns the share of sectors within tolerance and the
// outliers ordered by relative deviation. A share below the configured
// minimum is a *models.ValidationError.
func (s *LeontiefSolver) Validate(reg *models.SectorRegistry, l *mat.Dense, demand, output []float64) (float64, []models.SectorDeviation, error) {
	n := reg.Len()
	if len(demand) != n || len(output) != n {
		return 0, nil, fmt.Errorf("leontief: %w: vectors do not match %d sectors", models.ErrMalformedMatrixInput, n)
	}

	var computed mat.VecDense
	computed.MulVec(l, mat.NewVecDense(n, append([]float64(nil), demand...)))

	passed := 0
	var outliers []models.SectorDeviation
	for i := 0; i < n; i++ {
		ref, got := output[i], computed.AtVec(i)
		var rel float64
		ok := false
		if ref == 0 {
			ok = math.Abs(got) <= zeroOutputTolerance
			if !ok {
				rel = 1
			}
		} else {
			rel = math.Abs(got-ref) / math.Abs(ref)
			ok = rel <= s.cfg.OutputTolerance
		}
		if ok {
			passed++
			continue
		}
		sec := reg.At(i)
		outliers = append(outliers, models.SectorDeviation{
			Code: sec.Code, Name: sec.Name, Reference: ref, Computed: got, Relative: rel,
		})
	}
	sort.SliceStable(outliers, func(i, j int) bool { return outliers[i].Relative > outliers[j].Relative })

	share := float64(passed) / float64(n)
	if share < s.cfg.MinPassShare {
		return share, outliers, &models.ValidationError{
			PassShare:    share,
			MinPassShare: s.cfg.MinPassShare,
			Outliers:     outliers,
		}
	}
	if len(outliers) > 0 {
		s.logger.Warn("[leontief] %d sector(s) outside %.1f%% output tolerance", len(outliers), s.cfg.OutputTolerance*100)
	}
	s.logger.Info("[leontief] Round-trip check passed for %.2f%% of sectors", share*100)
	return share, outliers, nil
}

// smallestMargins returns up to k sectors with the smallest 1 - sum(A[:,j]).
func smallestMargins(reg *models.SectorRegistry, a *mat.Dense, k int) []models.SectorDiagnostic {
	n, _ := a.Dims()
	ds := make([]models.SectorDiagnostic, n)
	for j := 0; j < n; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += a.At(i, j)
		}
		sec := reg.At(j)
		ds[j] = models.SectorDiagnostic{Code: sec.Code, Name: sec.Name, Value: 1 - sum}
	}
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].Value < ds[j].Value })
	if len(ds) > k {
		ds = ds[:k]
	}
	return ds
}
