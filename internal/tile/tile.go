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

// Package tile owns the pixel state of a single worker's rectangle of the
// image, and the neighbour-rank table that describes its place in the
// worker grid.
package tile

import "fmt"

// Direction names one of the (up to) eight neighbours of a tile.
type Direction int

// The eight compass directions a tile may have a neighbour in. Values are
// deliberately small and dense so they can index a [8]T array directly.
const (
	Top Direction = iota
	Right
	Bottom
	Left
	TopRight
	BottomRight
	BottomLeft
	TopLeft

	numDirections = 8
)

func (d Direction) String() string {
	switch d {
	case Top:
		return "TOP"
	case Right:
		return "RIGHT"
	case Bottom:
		return "BOTTOM"
	case Left:
		return "LEFT"
	case TopRight:
		return "TOP_RIGHT"
	case BottomRight:
		return "BOTTOM_RIGHT"
	case BottomLeft:
		return "BOTTOM_LEFT"
	case TopLeft:
		return "TOP_LEFT"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Directions lists all eight directions in a stable order, for ranging
// over a tile's neighbour table.
var Directions = [numDirections]Direction{Top, Right, Bottom, Left, TopRight, BottomRight, BottomLeft, TopLeft}

// AbsentRank is the neighbour-table value meaning "no neighbour in this
// direction", i.e. this edge of the tile touches the image boundary.
const AbsentRank = -1

// Neighbours is a tile's neighbour-rank table, indexed by Direction.
type Neighbours [numDirections]int

// Pixel is a single binary-image pixel, valued in {-1, +1}. It is carried
// over the wire as a signed byte and summed as a plain integer.
type Pixel = int8

// Tile is the rectangular sub-image a single worker owns.
//
// observed is immutable after construction; current is mutated only by
// Flip. Both matrices are rows-major: current[r][c] is row r, column c.
type Tile struct {
	rows, columns int
	observed      [][]Pixel
	current       [][]Pixel
	neighbours    Neighbours
}

// New constructs a Tile from the worker's initial (noisy) pixels and its
// neighbour table. observed is copied; New panics if any pixel is not ±1,
// or if the matrix dimensions don't match rows/columns — both indicate a
// bug in the coordinator's partitioning, not a runtime condition a worker
// can recover from.
func New(rows, columns int, observed [][]Pixel, neighbours Neighbours) *Tile {
	if len(observed) != rows {
		panic(fmt.Sprintf("tile: observed has %d rows, want %d", len(observed), rows))
	}
	cur := make([][]Pixel, rows)
	obs := make([][]Pixel, rows)
	for r := 0; r < rows; r++ {
		if len(observed[r]) != columns {
			panic(fmt.Sprintf("tile: observed row %d has %d columns, want %d", r, len(observed[r]), columns))
		}
		obs[r] = make([]Pixel, columns)
		cur[r] = make([]Pixel, columns)
		for c := 0; c < columns; c++ {
			p := observed[r][c]
			if p != 1 && p != -1 {
				panic(fmt.Sprintf("tile: pixel (%d,%d) = %d is not in {-1,+1}", r, c, p))
			}
			obs[r][c] = p
			cur[r][c] = p
		}
	}
	return &Tile{rows: rows, columns: columns, observed: obs, current: cur, neighbours: neighbours}
}

// Rows returns the tile's height.
func (t *Tile) Rows() int { return t.rows }

// Columns returns the tile's width.
func (t *Tile) Columns() int { return t.columns }

// Observed returns the pixel at (r,c) in the original noisy image.
func (t *Tile) Observed(r, c int) Pixel { return t.observed[r][c] }

// Current returns the pixel at (r,c) in the tile's current (denoised so
// far) state.
func (t *Tile) Current(r, c int) Pixel { return t.current[r][c] }

// CurrentRow returns a copy of row r of the current matrix, for shipping
// it back to the coordinator.
func (t *Tile) CurrentRow(r int) []Pixel {
	row := make([]Pixel, t.columns)
	copy(row, t.current[r])
	return row
}

// Flip negates current[r,c]. It is the only operation that mutates a
// tile's current matrix.
func (t *Tile) Flip(r, c int) {
	t.current[r][c] = -t.current[r][c]
}

// Neighbour returns the rank of the neighbour in direction d, or
// AbsentRank if that edge of the tile touches the image boundary.
func (t *Tile) Neighbour(d Direction) int {
	return t.neighbours[d]
}

// HasNeighbour reports whether the tile has a live neighbour in direction d.
func (t *Tile) HasNeighbour(d Direction) bool {
	return t.neighbours[d] != AbsentRank
}

// WindowSum returns the sum of current[i,j] over the 3x3 window centred on
// (centerRow, centerCol), excluding the center itself and excluding any
// (i,j) outside [0,rows) x [0,columns).
//
// The center need not itself be inside the tile: callers pass an off-tile
// "virtual" center (row -1, row==rows, column -1, or column==columns) to
// compute the contribution this tile supplies to a neighbour's boundary
// pixel, per the boundary query protocol.
func (t *Tile) WindowSum(centerRow, centerCol int) int {
	sum := 0
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			r, c := centerRow+dr, centerCol+dc
			if r < 0 || r >= t.rows || c < 0 || c >= t.columns {
				continue
			}
			sum += int(t.current[r][c])
		}
	}
	return sum
}
