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

	"golang.org/x/sync/errgroup"

	"github.com/gridmesh/denoiser/internal/boundary"
	"github.com/gridmesh/denoiser/internal/meshnet"
	"github.com/gridmesh/denoiser/internal/tile"
)

// Run partitions img across a gridRows x gridCols worker grid, ships every
// worker its tile concurrently, waits for all workers to finish (signalled
// by their final tiles arriving), and assembles the denoised output image.
func Run(mesh *meshnet.Mesh, img *Image, gridRows, gridCols int) (*Image, error) {
	tiles, err := Partition(img, gridRows, gridCols)
	if err != nil {
		return nil, err
	}

	var eg errgroup.Group
	for _, wt := range tiles {
		wt := wt
		eg.Go(func() error { return broadcastTile(mesh, wt) })
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("coordinator: broadcasting tiles: %w", err)
	}

	out := &Image{Rows: img.Rows, Columns: img.Columns, Pixels: make([][]tile.Pixel, img.Rows)}
	for r := range out.Pixels {
		out.Pixels[r] = make([]tile.Pixel, img.Columns)
	}

	var eg2 errgroup.Group
	for _, wt := range tiles {
		wt := wt
		eg2.Go(func() error { return collectTile(mesh, wt, out) })
	}
	if err := eg2.Wait(); err != nil {
		return nil, fmt.Errorf("coordinator: collecting tiles: %w", err)
	}
	return out, nil
}

func broadcastTile(mesh *meshnet.Mesh, wt WorkerTile) error {
	rank := meshnet.Rank(wt.Rank)
	if err := mesh.Send(rank, meshnet.Rows, meshnet.EncodeInt32(int32(wt.Rows))); err != nil {
		return fmt.Errorf("rank %d: sending ROWS: %w", wt.Rank, err)
	}
	if err := mesh.Send(rank, meshnet.Columns, meshnet.EncodeInt32(int32(wt.Columns))); err != nil {
		return fmt.Errorf("rank %d: sending COLUMNS: %w", wt.Rank, err)
	}
	for _, d := range tile.Directions {
		tag := boundary.DirectionTag(d)
		if err := mesh.Send(rank, tag, meshnet.EncodeInt32(int32(wt.Neighbours[d]))); err != nil {
			return fmt.Errorf("rank %d: sending neighbour %v: %w", wt.Rank, d, err)
		}
	}
	for i, row := range wt.Pixels {
		if err := mesh.Send(rank, meshnet.ImageRowTag(i), meshnet.EncodeRow(row)); err != nil {
			return fmt.Errorf("rank %d: sending image row %d: %w", wt.Rank, i, err)
		}
	}
	return nil
}

func collectTile(mesh *meshnet.Mesh, wt WorkerTile, out *Image) error {
	rank := meshnet.Rank(wt.Rank)
	for i := 0; i < wt.Rows; i++ {
		h, err := mesh.PostRecv(rank, meshnet.FinalImageRowTag(i))
		if err != nil {
			return fmt.Errorf("rank %d: posting recv for final row %d: %w", wt.Rank, i, err)
		}
		if err := h.Wait(); err != nil {
			return fmt.Errorf("rank %d: receiving final row %d: %w", wt.Rank, i, err)
		}
		row := meshnet.DecodeRow(h.Payload())
		if len(row) != wt.Columns {
			return fmt.Errorf("rank %d: final row %d has %d pixels, want %d", wt.Rank, i, len(row), wt.Columns)
		}
		copy(out.Pixels[wt.RowOffset+i][wt.ColOffset:wt.ColOffset+wt.Columns], row)
	}
	return nil
}

// ReceiveTile is run by a worker at startup: it receives its tile's
// dimensions, neighbour table, and initial pixel rows from the
// coordinator, in the order broadcastTile sends them.
func ReceiveTile(mesh *meshnet.Mesh, coordinatorRank meshnet.Rank) (*tile.Tile, error) {
	rows, err := recvInt32(mesh, coordinatorRank, meshnet.Rows)
	if err != nil {
		return nil, fmt.Errorf("coordinator: receiving ROWS: %w", err)
	}
	columns, err := recvInt32(mesh, coordinatorRank, meshnet.Columns)
	if err != nil {
		return nil, fmt.Errorf("coordinator: receiving COLUMNS: %w", err)
	}

	var neighbours tile.Neighbours
	for _, d := range tile.Directions {
		tag := boundary.DirectionTag(d)
		n, err := recvInt32(mesh, coordinatorRank, tag)
		if err != nil {
			return nil, fmt.Errorf("coordinator: receiving neighbour %v: %w", d, err)
		}
		neighbours[d] = int(n)
	}

	pixels := make([][]tile.Pixel, rows)
	for i := 0; i < int(rows); i++ {
		h, err := mesh.PostRecv(coordinatorRank, meshnet.ImageRowTag(i))
		if err != nil {
			return nil, fmt.Errorf("coordinator: posting recv for image row %d: %w", i, err)
		}
		if err := h.Wait(); err != nil {
			return nil, fmt.Errorf("coordinator: receiving image row %d: %w", i, err)
		}
		pixels[i] = meshnet.DecodeRow(h.Payload())
	}

	return tile.New(int(rows), int(columns), pixels, neighbours), nil
}

func recvInt32(mesh *meshnet.Mesh, src meshnet.Rank, tag meshnet.Tag) (int32, error) {
	h, err := mesh.PostRecv(src, tag)
	if err != nil {
		return 0, err
	}
	if err := h.Wait(); err != nil {
		return 0, err
	}
	return meshnet.DecodeInt32(h.Payload())
}
