// Copyright 2026 The Denoiser Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sampler runs the per-worker Metropolis-Hastings pixel-flip
// loop: choose a pixel, gather its local-plus-remote neighbour sum
// (cooperating with the boundary query engine for any remote
// contribution), and accept or reject the flip.
package sampler

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/gridmesh/denoiser/internal/boundary"
	"github.com/gridmesh/denoiser/internal/tile"
)

// Gamma derives the log-odds noise weight from the assumed pixel-flip
// probability pi, per spec.md §6: gamma = ln((1-pi)/pi) / 2.
func Gamma(pi float64) float64 {
	return math.Log((1-pi)/pi) / 2
}

// Sampler is the per-worker sampling loop over one tile.
type Sampler struct {
	t      *tile.Tile
	engine *boundary.Engine
	beta   float64
	gamma  float64
	rng    *rand.Rand

	flips int
}

// New constructs a Sampler. rng is the only source of randomness used for
// pixel selection and acceptance; callers own its seeding.
func New(t *tile.Tile, engine *boundary.Engine, beta, gamma float64, rng *rand.Rand) *Sampler {
	return &Sampler{t: t, engine: engine, beta: beta, gamma: gamma, rng: rng}
}

// Flips returns the number of accepted flips so far, for tests and
// diagnostics.
func (s *Sampler) Flips() int { return s.flips }

// Run performs exactly iterations steps, per spec.md §4.4.
func (s *Sampler) Run(iterations int) error {
	for i := 0; i < iterations; i++ {
		if err := s.Step(); err != nil {
			return fmt.Errorf("sampler: iteration %d: %w", i, err)
		}
	}
	return nil
}

// Step performs one iteration: pick a pixel, ask any bordering neighbours
// for their contribution, service incoming questions while waiting for
// those answers, and accept or reject the flip.
func (s *Sampler) Step() error {
	rows, columns := s.t.Rows(), s.t.Columns()
	r := s.rng.Intn(rows)
	c := s.rng.Intn(columns)

	localSum := s.t.WindowSum(r, c)

	if err := s.askBoundaries(r, c, rows, columns); err != nil {
		return err
	}

	for !s.engine.Outstanding() {
		if err := s.engine.ServiceOnce(); err != nil {
			return fmt.Errorf("sampler: servicing while awaiting answers: %w", err)
		}
	}
	remoteSum := s.engine.CollectAnswers()

	sum := localSum + remoteSum
	cur := float64(s.t.Current(r, c))
	obs := float64(s.t.Observed(r, c))
	deltaE := -2*s.gamma*obs*cur - 2*s.beta*cur*float64(sum)

	if math.Log(s.uniformPositive()) <= deltaE {
		s.t.Flip(r, c)
		s.flips++
	}
	return nil
}

// uniformPositive draws u from (0,1]: math/rand's Float64 returns a value
// in [0,1), so an exact 0 (for which ln is undefined) is rejected and
// redrawn.
func (s *Sampler) uniformPositive() float64 {
	for {
		if u := s.rng.Float64(); u > 0 {
			return u
		}
	}
}

func (s *Sampler) askBoundaries(r, c, rows, columns int) error {
	ask := func(d tile.Direction, position int) error {
		if err := s.engine.Ask(d, position); err != nil {
			return fmt.Errorf("sampler: asking %v: %w", d, err)
		}
		return nil
	}
	if r == 0 {
		if err := ask(tile.Top, c); err != nil {
			return err
		}
		if c == 0 {
			if err := ask(tile.TopLeft, 0); err != nil {
				return err
			}
		}
		if c == columns-1 {
			if err := ask(tile.TopRight, 0); err != nil {
				return err
			}
		}
	}
	if r == rows-1 {
		if err := ask(tile.Bottom, c); err != nil {
			return err
		}
		if c == 0 {
			if err := ask(tile.BottomLeft, 0); err != nil {
				return err
			}
		}
		if c == columns-1 {
			if err := ask(tile.BottomRight, 0); err != nil {
				return err
			}
		}
	}
	if c == 0 {
		if err := ask(tile.Left, r); err != nil {
			return err
		}
	}
	if c == columns-1 {
		if err := ask(tile.Right, r); err != nil {
			return err
		}
	}
	return nil
}
