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

// Package coordinator is the rank-0 process's view of the system: it
// reads the input image, partitions it into worker tiles, ships each
// worker its tile and neighbour table, and later collects the denoised
// tiles back into the output image. ReceiveTile is the mirror image of
// that broadcast, run by every worker at startup.
package coordinator

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/gridmesh/denoiser/internal/tile"
)

// Image is a whole binary image: Rows x Columns pixels, each ±1.
type Image struct {
	Rows, Columns int
	Pixels        [][]tile.Pixel
}

// ReadImage parses a header line "H W" followed by H rows of W
// whitespace-separated ±1 integers.
func ReadImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("coordinator: opening %q: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	sc.Split(bufio.ScanWords)
	readInt := func(what string) (int, error) {
		if !sc.Scan() {
			return 0, fmt.Errorf("coordinator: %q: unexpected end of input reading %s", path, what)
		}
		v, err := strconv.Atoi(sc.Text())
		if err != nil {
			return 0, fmt.Errorf("coordinator: %q: parsing %s: %w", path, what, err)
		}
		return v, nil
	}

	rows, err := readInt("image height")
	if err != nil {
		return nil, err
	}
	columns, err := readInt("image width")
	if err != nil {
		return nil, err
	}
	if rows <= 0 || columns <= 0 {
		return nil, fmt.Errorf("coordinator: %q: image dimensions must be positive, got %dx%d", path, rows, columns)
	}

	pixels := make([][]tile.Pixel, rows)
	for r := 0; r < rows; r++ {
		pixels[r] = make([]tile.Pixel, columns)
		for c := 0; c < columns; c++ {
			v, err := readInt(fmt.Sprintf("pixel (%d,%d)", r, c))
			if err != nil {
				return nil, err
			}
			if v != 1 && v != -1 {
				return nil, fmt.Errorf("coordinator: %q: pixel (%d,%d) = %d is not in {-1,+1}", path, r, c, v)
			}
			pixels[r][c] = tile.Pixel(v)
		}
	}
	return &Image{Rows: rows, Columns: columns, Pixels: pixels}, nil
}

// WriteImage writes img in the same "H W" header plus matrix format
// ReadImage accepts.
func WriteImage(path string, img *Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("coordinator: creating %q: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(w, "%d %d\n", img.Rows, img.Columns); err != nil {
		return fmt.Errorf("coordinator: writing %q: %w", path, err)
	}
	for r := 0; r < img.Rows; r++ {
		for c := 0; c < img.Columns; c++ {
			if c > 0 {
				if err := w.WriteByte(' '); err != nil {
					return fmt.Errorf("coordinator: writing %q: %w", path, err)
				}
			}
			if _, err := fmt.Fprintf(w, "%d", img.Pixels[r][c]); err != nil {
				return fmt.Errorf("coordinator: writing %q: %w", path, err)
			}
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("coordinator: writing %q: %w", path, err)
		}
	}
	return w.Flush()
}
