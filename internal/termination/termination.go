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

// Package termination runs the distributed shutdown handshake a worker
// performs once its sampling iterations are done: tell every neighbour it
// is finished, keep answering their boundary questions until they say the
// same, then ship the final tile home.
package termination

import (
	"fmt"

	"github.com/gridmesh/denoiser/internal/boundary"
	"github.com/gridmesh/denoiser/internal/meshnet"
	"github.com/gridmesh/denoiser/internal/tile"
)

// CoordinatorRank is the fixed rank every worker ships its final tile to.
const CoordinatorRank meshnet.Rank = 0

// Handshake posts a non-blocking FINISHED to every existing neighbour along
// with a receive for the same from each of them, services the boundary
// engine until all of those complete (a neighbour may still be asking
// boundary questions right up until it too has heard from everyone), drains
// the engine's own in-flight answers, and finally ships this worker's
// denoised tile back to the coordinator row by row.
//
// It must only be called once the sampler has finished its iterations: a
// neighbour that received FINISHED is entitled to assume no more QUESTIONs
// are coming from this worker.
func Handshake(mesh *meshnet.Mesh, t *tile.Tile, engine *boundary.Engine) error {
	sends, recvs, err := announceFinished(mesh, t)
	if err != nil {
		return err
	}

	for !meshnet.TestAll(handshakeHandles(sends, recvs)) {
		if err := engine.ServiceOnce(); err != nil {
			return fmt.Errorf("termination: servicing boundary during handshake: %w", err)
		}
	}
	for _, sh := range sends {
		if err := sh.Wait(); err != nil {
			return fmt.Errorf("termination: confirming finished announcement: %w", err)
		}
	}

	if err := engine.Drain(); err != nil {
		return fmt.Errorf("termination: draining boundary engine: %w", err)
	}

	if err := shipFinalTile(mesh, t); err != nil {
		return err
	}
	return nil
}

func announceFinished(mesh *meshnet.Mesh, t *tile.Tile) ([]*meshnet.SendHandle, []*meshnet.RecvHandle, error) {
	var sends []*meshnet.SendHandle
	var recvs []*meshnet.RecvHandle
	for _, d := range tile.Directions {
		if !t.HasNeighbour(d) {
			continue
		}
		rank := meshnet.Rank(t.Neighbour(d))
		sh, err := mesh.PostSend(rank, meshnet.Finished, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("termination: announcing finished to %v: %w", d, err)
		}
		rh, err := mesh.PostRecv(rank, meshnet.Finished)
		if err != nil {
			return nil, nil, fmt.Errorf("termination: awaiting finished from %v: %w", d, err)
		}
		sends = append(sends, sh)
		recvs = append(recvs, rh)
	}
	return sends, recvs, nil
}

func handshakeHandles(sends []*meshnet.SendHandle, recvs []*meshnet.RecvHandle) []meshnet.Handle {
	hs := make([]meshnet.Handle, 0, len(sends)+len(recvs))
	for _, s := range sends {
		hs = append(hs, s)
	}
	for _, r := range recvs {
		hs = append(hs, r)
	}
	return hs
}

func shipFinalTile(mesh *meshnet.Mesh, t *tile.Tile) error {
	for i := 0; i < t.Rows(); i++ {
		tag := meshnet.FinalImageRowTag(i)
		if err := mesh.Send(CoordinatorRank, tag, meshnet.EncodeRow(t.CurrentRow(i))); err != nil {
			return fmt.Errorf("termination: shipping final row %d: %w", i, err)
		}
	}
	return nil
}
