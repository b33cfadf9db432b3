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

package coordinator

import (
	"fmt"

	"github.com/gridmesh/denoiser/internal/tile"
)

// WorkerTile is one worker's slice of the image, plus enough placement
// information for the coordinator to both address it over the mesh and
// splice its final rows back into the assembled output image.
type WorkerTile struct {
	Rank       int
	Rows       int
	Columns    int
	RowOffset  int
	ColOffset  int
	Pixels     [][]tile.Pixel
	Neighbours tile.Neighbours
}

// Partition splits img into a gridRows x gridCols grid of worker tiles,
// row-major, assigning rank 1+r*gridCols+c to the tile at grid position
// (r,c) — rank 0 is reserved for the coordinator. It is a configuration
// error (spec.md §7) for either image dimension to not divide evenly by
// the corresponding grid dimension.
func Partition(img *Image, gridRows, gridCols int) ([]WorkerTile, error) {
	if gridRows <= 0 || gridCols <= 0 {
		return nil, fmt.Errorf("coordinator: grid shape must be positive, got %dx%d", gridRows, gridCols)
	}
	if img.Rows%gridRows != 0 {
		return nil, fmt.Errorf("coordinator: image height %d not divisible by grid rows %d", img.Rows, gridRows)
	}
	if img.Columns%gridCols != 0 {
		return nil, fmt.Errorf("coordinator: image width %d not divisible by grid columns %d", img.Columns, gridCols)
	}

	tileRows := img.Rows / gridRows
	tileCols := img.Columns / gridCols

	tiles := make([]WorkerTile, 0, gridRows*gridCols)
	for wr := 0; wr < gridRows; wr++ {
		for wc := 0; wc < gridCols; wc++ {
			rowOffset, colOffset := wr*tileRows, wc*tileCols
			pixels := make([][]tile.Pixel, tileRows)
			for r := 0; r < tileRows; r++ {
				pixels[r] = make([]tile.Pixel, tileCols)
				copy(pixels[r], img.Pixels[rowOffset+r][colOffset:colOffset+tileCols])
			}

			rank := rankAt(wr, wc, gridRows, gridCols)
			tiles = append(tiles, WorkerTile{
				Rank:       rank,
				Rows:       tileRows,
				Columns:    tileCols,
				RowOffset:  rowOffset,
				ColOffset:  colOffset,
				Pixels:     pixels,
				Neighbours: NeighbourRanks(rank, gridRows, gridCols),
			})
		}
	}
	return tiles, nil
}

// rankAt returns the rank assigned to grid position (wr,wc), or
// tile.AbsentRank if that position falls outside the grid.
func rankAt(wr, wc, gridRows, gridCols int) int {
	if wr < 0 || wr >= gridRows || wc < 0 || wc >= gridCols {
		return tile.AbsentRank
	}
	return 1 + wr*gridCols + wc
}

// gridPosition inverts rankAt: the grid position a worker rank occupies.
func gridPosition(rank, gridCols int) (wr, wc int) {
	idx := rank - 1
	return idx / gridCols, idx % gridCols
}

// NeighbourRanks computes the neighbour-rank table for the worker at rank,
// given the grid shape. It is the same computation Partition uses
// internally, exposed so a worker process can determine its own mesh
// peers before it has received anything from the coordinator.
func NeighbourRanks(rank, gridRows, gridCols int) tile.Neighbours {
	wr, wc := gridPosition(rank, gridCols)
	var n tile.Neighbours
	n[tile.Top] = rankAt(wr-1, wc, gridRows, gridCols)
	n[tile.Bottom] = rankAt(wr+1, wc, gridRows, gridCols)
	n[tile.Left] = rankAt(wr, wc-1, gridRows, gridCols)
	n[tile.Right] = rankAt(wr, wc+1, gridRows, gridCols)
	n[tile.TopLeft] = rankAt(wr-1, wc-1, gridRows, gridCols)
	n[tile.TopRight] = rankAt(wr-1, wc+1, gridRows, gridCols)
	n[tile.BottomLeft] = rankAt(wr+1, wc-1, gridRows, gridCols)
	n[tile.BottomRight] = rankAt(wr+1, wc+1, gridRows, gridCols)
	return n
}
