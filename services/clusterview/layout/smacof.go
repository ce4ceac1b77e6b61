// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package layout projects visible clusters into 2D with SMACOF stress
// majorization so that on-screen distance tracks embedding distance.
package layout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/mds"
)

// Dims is the output dimensionality.
const Dims = 2

// Defaults for Options.
const (
	DefaultMaxIterations = 300
	DefaultTolerance     = 1e-6

	// tieOffset is the fraction of the largest dissimilarity used to pull
	// apart points that start on top of each other.
	tieOffset = 1e-3
)

// Sentinel errors.
var (
	// ErrDimensionMismatch indicates centroid rows of different lengths.
	ErrDimensionMismatch = errors.New("centroids have inconsistent dimensions")

	// ErrInvalidDissimilarity indicates a negative or non-finite dissimilarity.
	ErrInvalidDissimilarity = errors.New("invalid dissimilarity")

	// ErrInitShape indicates Options.Init is not n×2.
	ErrInitShape = errors.New("initial positions must be n×2")
)

var (
	solveIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clusterview_layout_iterations",
		Help:    "SMACOF iterations per solve",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200, 300},
	})

	solveStress = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clusterview_layout_stress",
		Help:    "Final normalised stress per solve",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 1},
	})

	solveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clusterview_layout_duration_seconds",
		Help:    "SMACOF solve time",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1},
	})
)

// Options controls a solve.
type Options struct {
	// MaxIterations caps the number of Guttman transforms. Zero uses
	// DefaultMaxIterations.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations" validate:"gte=0"`

	// Tolerance stops iteration once stress improves by less than this
	// between rounds. Zero uses DefaultTolerance.
	Tolerance float64 `yaml:"tolerance" json:"tolerance" validate:"gte=0"`

	// Init seeds the positions (n×2), e.g. from the previous frame. Nil
	// uses classical scaling. Different seeds can give rotated or
	// reflected layouts.
	Init *mat.Dense `yaml:"-" json:"-"`
}

// DefaultOptions returns the standard solver options.
func DefaultOptions() Options {
	return Options{MaxIterations: DefaultMaxIterations, Tolerance: DefaultTolerance}
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if !(o.Tolerance > 0) {
		o.Tolerance = DefaultTolerance
	}
	return o
}

// Result is a solved layout.
type Result struct {
	// Positions is n×2, one row per input point.
	Positions *mat.Dense

	// InitialStress is the stress of the starting configuration.
	InitialStress float64

	// Stress is the final normalised stress.
	Stress float64

	// History holds the stress after initialisation and after every
	// iteration. It never increases.
	History []float64

	// Iterations is the number of Guttman transforms applied.
	Iterations int

	// Converged is true when iteration stopped on tolerance rather than on
	// MaxIterations.
	Converged bool
}

// Point returns the position of point i.
func (r *Result) Point(i int) [2]float64 {
	return [2]float64{r.Positions.At(i, 0), r.Positions.At(i, 1)}
}

// Len returns the number of points.
func (r *Result) Len() int {
	if r.Positions == nil {
		return 0
	}
	n, _ := r.Positions.Dims()
	return n
}

// Layout projects centroids into 2D.
//
// Description:
//
//	NaN and infinite coordinates are replaced by 0, then the Euclidean
//	distance matrix of the centroids is handed to Solve.
//
// Inputs:
//
//	ctx - Context for tracing.
//	centroids - n points of equal dimensionality. May be empty.
//	opts - Solver options.
//
// Outputs:
//
//	*Result - The layout. Positions has one row per centroid.
//	error - ErrDimensionMismatch for ragged input, ErrInitShape for a bad seed.
func Layout(ctx context.Context, centroids [][]float64, opts Options) (*Result, error) {
	clean, err := Sanitize(centroids)
	if err != nil {
		return nil, err
	}
	if len(clean) == 0 {
		return &Result{}, nil
	}
	return Solve(ctx, EuclideanDistances(clean), opts)
}

// Sanitize returns a copy of points with NaN and infinite coordinates
// replaced by 0. All points must have the same dimensionality.
func Sanitize(points [][]float64) ([][]float64, error) {
	if len(points) == 0 {
		return nil, nil
	}
	dim := len(points[0])
	clean := make([][]float64, len(points))
	for i, p := range points {
		if len(p) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(p), dim)
		}
		row := make([]float64, dim)
		for k, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			row[k] = v
		}
		clean[i] = row
	}
	return clean, nil
}

// EuclideanDistances returns the pairwise distance matrix of points, or nil
// for no points.
func EuclideanDistances(points [][]float64) *mat.SymDense {
	n := len(points)
	if n == 0 {
		return nil
	}
	dist := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist.SetSym(i, j, floats.Distance(points[i], points[j], 2))
		}
	}
	return dist
}

// Solve runs SMACOF on an arbitrary dissimilarity matrix.
//
// Description:
//
//	Positions start from opts.Init or from classical (Torgerson) scaling
//	truncated to 2D. Points that start coincident while having positive
//	dissimilarity are pulled apart by a tiny offset whose direction
//	depends only on their index, which keeps the result reproducible.
//	Each iteration applies the Guttman transform X = B(X)X/n, which never
//	increases stress; iteration stops when the improvement drops below
//	Tolerance or after MaxIterations.
//
//	Stress is sqrt(Σ(δ-d)²/Σδ²) over pairs. When every dissimilarity is
//	zero all points are placed at the origin with stress 0.
//
// Inputs:
//
//	ctx - Context for tracing.
//	dis - Symmetric, non-negative dissimilarities. Nil means no points.
//	opts - Solver options.
//
// Outputs:
//
//	*Result - The layout.
//	error - ErrInvalidDissimilarity or ErrInitShape.
//
// Thread Safety: Safe for concurrent use; dis and opts.Init are not modified.
func Solve(ctx context.Context, dis mat.Symmetric, opts Options) (*Result, error) {
	_, span := otel.Tracer("clusterview").Start(ctx, "layout.Solve")
	defer span.End()
	start := time.Now()
	opts = opts.withDefaults()

	if dis == nil {
		return &Result{}, nil
	}
	n := dis.SymmetricDim()
	span.SetAttributes(attribute.Int("points", n))
	if n == 0 {
		return &Result{}, nil
	}

	scale := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := dis.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				err := fmt.Errorf("%w: (%d, %d) = %v", ErrInvalidDissimilarity, i, j, v)
				span.RecordError(err)
				span.SetStatus(codes.Error, "invalid dissimilarity")
				return nil, err
			}
			scale = math.Max(scale, v)
		}
	}

	if opts.Init != nil {
		if r, c := opts.Init.Dims(); r != n || c != Dims {
			err := fmt.Errorf("%w: got %d×%d for %d points", ErrInitShape, r, c, n)
			span.RecordError(err)
			span.SetStatus(codes.Error, "bad initial positions")
			return nil, err
		}
	}
	if scale == 0 {
		return &Result{
			Positions: mat.NewDense(n, Dims, nil),
			History:   []float64{0},
			Converged: true,
		}, nil
	}

	x := initialPositions(dis, opts.Init, scale)
	res := &Result{Positions: x}

	denom := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			denom += dis.At(i, j) * dis.At(i, j)
		}
	}

	s := newSolver(dis, n)
	res.InitialStress = s.stress(x, denom)
	res.Stress = res.InitialStress
	res.History = append(res.History, res.Stress)

	for res.Iterations < opts.MaxIterations {
		next := s.guttman(x)
		stress := s.stress(next, denom)
		res.Iterations++

		// Majorization guarantees no increase up to rounding; keep the
		// better configuration if rounding says otherwise.
		if stress > res.Stress {
			res.History = append(res.History, res.Stress)
			res.Converged = true
			break
		}

		improvement := res.Stress - stress
		x = next
		res.Stress = stress
		res.History = append(res.History, stress)
		if improvement < opts.Tolerance {
			res.Converged = true
			break
		}
	}
	res.Positions = x

	solveIterations.Observe(float64(res.Iterations))
	solveStress.Observe(res.Stress)
	solveDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("iterations", res.Iterations),
		attribute.Float64("stress", res.Stress),
		attribute.Bool("converged", res.Converged),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// initialPositions returns a fresh n×2 starting configuration. A non-nil
// seed must already be n×2.
func initialPositions(dis mat.Symmetric, seed *mat.Dense, scale float64) *mat.Dense {
	n := dis.SymmetricDim()
	x := mat.NewDense(n, Dims, nil)

	switch {
	case seed != nil:
		x.Copy(seed)
	case n > 1:
		var full mat.Dense
		k, _ := mds.TorgersonScaling(&full, nil, dis)
		for col := 0; col < min(k, Dims); col++ {
			for i := 0; i < n; i++ {
				x.Set(i, col, full.At(i, col))
			}
		}
	}

	separateTies(x, dis, scale)
	return x
}

// separateTies nudges every point that coincides with an earlier point it
// should be apart from. The offset direction is a function of the index
// alone.
func separateTies(x *mat.Dense, dis mat.Symmetric, scale float64) {
	n, _ := x.Dims()
	if n < 2 || scale == 0 {
		return
	}
	eps := tieOffset * scale
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			if dis.At(i, j) == 0 || !samePoint(x, i, j) {
				continue
			}
			angle := 2 * math.Pi * float64(i) / float64(n)
			x.Set(i, 0, x.At(i, 0)+eps*math.Cos(angle))
			x.Set(i, 1, x.At(i, 1)+eps*math.Sin(angle))
			break
		}
	}
}

func samePoint(x *mat.Dense, i, j int) bool {
	return x.At(i, 0) == x.At(j, 0) && x.At(i, 1) == x.At(j, 1)
}

// solver holds scratch space for one solve.
type solver struct {
	dis mat.Symmetric
	n   int
	b   *mat.Dense
}

func newSolver(dis mat.Symmetric, n int) *solver {
	return &solver{dis: dis, n: n, b: mat.NewDense(n, n, nil)}
}

// guttman returns B(X)X/n for the current configuration.
func (s *solver) guttman(x *mat.Dense) *mat.Dense {
	s.b.Zero()
	for i := 0; i < s.n; i++ {
		diag := 0.0
		for j := 0; j < s.n; j++ {
			if i == j {
				continue
			}
			d := floats.Distance(x.RawRowView(i), x.RawRowView(j), 2)
			if d == 0 {
				continue
			}
			v := -s.dis.At(i, j) / d
			s.b.Set(i, j, v)
			diag -= v
		}
		s.b.Set(i, i, diag)
	}

	var next mat.Dense
	next.Mul(s.b, x)
	next.Scale(1/float64(s.n), &next)
	return &next
}

// stress returns sqrt(Σ(δ-d)²/denom) over pairs.
func (s *solver) stress(x *mat.Dense, denom float64) float64 {
	raw := 0.0
	for i := 0; i < s.n; i++ {
		for j := i + 1; j < s.n; j++ {
			d := floats.Distance(x.RawRowView(i), x.RawRowView(j), 2)
			diff := s.dis.At(i, j) - d
			raw += diff * diff
		}
	}
	return math.Sqrt(raw / denom)
}
