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

// Package boundary implements the ask/answer protocol between a tile and
// its up-to-eight neighbours: non-blocking outgoing queries for edge and
// corner sums, concurrent servicing of incoming queries, and reclamation
// of completed request handles.
package boundary

import (
	"github.com/gridmesh/denoiser/internal/meshnet"
	"github.com/gridmesh/denoiser/internal/tile"
)

// DirectionTag maps a tile.Direction to the meshnet.Tag used to carry a
// neighbour-table entry for that direction (after ROWS and COLUMNS, the
// coordinator's initial broadcast sends one entry per direction tag). The two
// enumerations share numeric values by construction, but the explicit
// mapping keeps the two packages decoupled.
func DirectionTag(d tile.Direction) meshnet.Tag {
	switch d {
	case tile.Top:
		return meshnet.Top
	case tile.Right:
		return meshnet.Right
	case tile.Bottom:
		return meshnet.Bottom
	case tile.Left:
		return meshnet.Left
	case tile.TopRight:
		return meshnet.TopRight
	case tile.BottomRight:
		return meshnet.BottomRight
	case tile.BottomLeft:
		return meshnet.BottomLeft
	case tile.TopLeft:
		return meshnet.TopLeft
	default:
		panic("boundary: unknown direction")
	}
}

// virtualCenter returns the off-tile (row, column) center of the 3x3
// window whose sum answers a question arriving from direction d at
// position p, per the boundary protocol's sum table.
func virtualCenter(d tile.Direction, rows, columns, position int) (row, col int) {
	switch d {
	case tile.Top:
		return -1, position
	case tile.Bottom:
		return rows, position
	case tile.Left:
		return position, -1
	case tile.Right:
		return position, columns
	case tile.TopLeft:
		return -1, -1
	case tile.TopRight:
		return -1, columns
	case tile.BottomLeft:
		return rows, -1
	case tile.BottomRight:
		return rows, columns
	default:
		panic("boundary: unknown direction")
	}
}
