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

package boundary

import (
	"fmt"

	"github.com/gridmesh/denoiser/internal/meshnet"
	"github.com/gridmesh/denoiser/internal/tile"
)

// standingSlot is the per-direction state for a neighbour that exists:
// a standing receptor always awaiting the next incoming QUESTION, and at
// most one ANSWER send in flight at a time.
type standingSlot struct {
	rank          meshnet.Rank
	question      *meshnet.RecvHandle
	answerInFlight *meshnet.SendHandle
}

// pendingAsk is an outgoing question this worker has asked, not yet
// collected.
type pendingAsk struct {
	dir    tile.Direction
	answer *meshnet.RecvHandle
}

// Engine is the boundary query engine for one worker's tile: it owns the
// ask/answer conversation with every existing neighbour.
type Engine struct {
	mesh *meshnet.Mesh
	t    *tile.Tile

	standing [8]*standingSlot // nil slot => no neighbour in that direction
	pending  []pendingAsk

	questionsReceived [8]int
	answersSent       [8]int
}

// New creates an Engine and posts the standing question-receptors for
// every existing neighbour, per §4.3(b).
func New(mesh *meshnet.Mesh, t *tile.Tile) (*Engine, error) {
	e := &Engine{mesh: mesh, t: t}
	for _, d := range tile.Directions {
		if !t.HasNeighbour(d) {
			continue
		}
		rank := meshnet.Rank(t.Neighbour(d))
		h, err := mesh.PostRecv(rank, meshnet.Question)
		if err != nil {
			return nil, fmt.Errorf("boundary: posting standing receptor for %v: %w", d, err)
		}
		e.standing[d] = &standingSlot{rank: rank, question: h}
	}
	return e, nil
}

// Ask posts a non-blocking question to the neighbour in direction d,
// asking for its contribution at boundary position. It is a no-op if
// that neighbour is absent. The outgoing question is tracked until the
// sampler drains it with CollectAnswers.
func (e *Engine) Ask(d tile.Direction, position int) error {
	if !e.t.HasNeighbour(d) {
		return nil
	}
	rank := meshnet.Rank(e.t.Neighbour(d))
	if _, err := e.mesh.PostSend(rank, meshnet.Question, meshnet.EncodeInt32(int32(position))); err != nil {
		return fmt.Errorf("boundary: asking %v: %w", d, err)
	}
	h, err := e.mesh.PostRecv(rank, meshnet.Answer)
	if err != nil {
		return fmt.Errorf("boundary: awaiting answer from %v: %w", d, err)
	}
	e.pending = append(e.pending, pendingAsk{dir: d, answer: h})
	return nil
}

// Outstanding reports whether every question asked since the last
// CollectAnswers has been answered. It never blocks.
func (e *Engine) Outstanding() bool {
	for _, p := range e.pending {
		if !p.answer.Test() {
			return false
		}
	}
	return true
}

// CollectAnswers sums the received answer values, frees all handles, and
// resets the outstanding-query list to empty. It must only be called once
// Outstanding reports true.
func (e *Engine) CollectAnswers() int {
	total := 0
	for _, p := range e.pending {
		v, _ := meshnet.DecodeInt32(p.answer.Payload())
		total += int(v)
	}
	e.pending = e.pending[:0]
	return total
}

// ServiceOnce probes every standing receptor for a completed incoming
// question; for each one, it reposts the receptor, reclaims (waiting on,
// if necessary) the previous in-flight answer for that direction, computes
// the boundary sum this tile owes, and sends it back. It never blocks on
// its own outstanding queries — this is what a worker must call whenever
// it is waiting on anything, to stay deadlock-free.
func (e *Engine) ServiceOnce() error {
	for _, d := range tile.Directions {
		s := e.standing[d]
		if s == nil || !s.question.Test() {
			continue
		}
		position, err := meshnet.DecodeInt32(s.question.Payload())
		if err != nil {
			return fmt.Errorf("boundary: question from %v: %w", d, err)
		}
		e.questionsReceived[d]++

		h, err := e.mesh.PostRecv(s.rank, meshnet.Question)
		if err != nil {
			return fmt.Errorf("boundary: reposting receptor for %v: %w", d, err)
		}
		s.question = h

		if s.answerInFlight != nil {
			if err := s.answerInFlight.Wait(); err != nil {
				return fmt.Errorf("boundary: prior answer to %v: %w", d, err)
			}
			s.answerInFlight = nil
		}

		row, col := virtualCenter(d, e.t.Rows(), e.t.Columns(), int(position))
		sum := e.t.WindowSum(row, col)

		sh, err := e.mesh.PostSend(s.rank, meshnet.Answer, meshnet.EncodeInt32(int32(sum)))
		if err != nil {
			return fmt.Errorf("boundary: answering %v: %w", d, err)
		}
		s.answerInFlight = sh
		e.answersSent[d]++
	}
	return nil
}

// Drain waits for every standing receptor's in-flight answer to finish
// and frees the receptors themselves. It is called once, at worker exit,
// after the termination handshake guarantees no neighbour will send any
// more questions.
func (e *Engine) Drain() error {
	for _, d := range tile.Directions {
		s := e.standing[d]
		if s == nil {
			continue
		}
		if s.answerInFlight != nil {
			if err := s.answerInFlight.Wait(); err != nil {
				return fmt.Errorf("boundary: draining answer to %v: %w", d, err)
			}
		}
		e.standing[d] = nil
	}
	return nil
}

// AnswersSentNotExceedingQuestions reports whether, for every direction,
// this engine has sent no more ANSWER messages than it has received
// QUESTION messages — the protocol's safety invariant (spec.md §8,
// invariant 2).
func (e *Engine) AnswersSentNotExceedingQuestions() bool {
	for _, d := range tile.Directions {
		if e.answersSent[d] > e.questionsReceived[d] {
			return false
		}
	}
	return true
}
