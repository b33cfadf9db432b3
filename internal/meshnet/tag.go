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

// Package meshnet is a thin, tagged, point-to-point message-passing
// substrate connecting a fixed set of ranked processes (the coordinator at
// rank 0, workers at ranks 1..N). It is the only component in this repo
// that ever opens a socket; everything above it talks in terms of Tag,
// Rank, and non-blocking Handles.
package meshnet

import "fmt"

// Tag identifies the kind of a message. The numeric values only need to
// be distinct and agreed between sender and receiver; delivery ordering
// is FIFO within a single (source rank, tag) pair, and unordered across
// different tags.
type Tag int32

// The direction tags double as neighbour-table indices (see
// internal/tile.Direction) and as the wire tags the coordinator uses to
// send each neighbour-table entry. QUESTION/ANSWER traffic uses the
// Question and Answer tags whatever its direction.
const (
	Top Tag = iota
	Right
	Bottom
	Left
	TopRight
	BottomRight
	BottomLeft
	TopLeft

	Rows
	Columns
	Question
	Answer
	Finished

	imageRowBase      Tag = 1 << 16
	finalImageRowBase Tag = 1 << 20
)

// ImageRowTag returns the tag used to ship the initial tile's row i from
// the coordinator to a worker.
func ImageRowTag(i int) Tag { return imageRowBase + Tag(i) }

// FinalImageRowTag returns the tag used to ship a worker's final row i
// back to the coordinator.
func FinalImageRowTag(i int) Tag { return finalImageRowBase + Tag(i) }

func (t Tag) String() string {
	switch t {
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
	case Rows:
		return "ROWS"
	case Columns:
		return "COLUMNS"
	case Question:
		return "QUESTION"
	case Answer:
		return "ANSWER"
	case Finished:
		return "FINISHED"
	default:
		switch {
		case t >= finalImageRowBase:
			return fmt.Sprintf("FINAL_IMAGE_ROW+%d", t-finalImageRowBase)
		case t >= imageRowBase:
			return fmt.Sprintf("IMAGE_ROW+%d", t-imageRowBase)
		default:
			return fmt.Sprintf("Tag(%d)", int32(t))
		}
	}
}

// Rank identifies a process: 0 is always the coordinator, 1..N are workers.
type Rank int
