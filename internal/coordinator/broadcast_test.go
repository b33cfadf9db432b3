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
	"context"
	"net"
	"testing"
	"time"

	"github.com/gridmesh/denoiser/internal/boundary"
	"github.com/gridmesh/denoiser/internal/meshnet"
	"github.com/gridmesh/denoiser/internal/termination"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().String()
}

// TestRunRoundTripsThroughASingleWorker exercises the full broadcast and
// collect path, end to end, over a real loopback mesh: a 4x4 image is
// partitioned into a single 4x4 tile (a 1x1 grid), shipped to "rank 1",
// received there with ReceiveTile, shipped straight back unchanged via the
// termination handshake (no neighbours, no sampling), and the coordinator
// reassembles an output image identical to the input.
func TestRunRoundTripsThroughASingleWorker(t *testing.T) {
	addrs := map[meshnet.Rank]string{0: freeAddr(t), 1: freeAddr(t)}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		m   *meshnet.Mesh
		err error
	}
	c0, c1 := make(chan result, 1), make(chan result, 1)
	go func() { m, err := meshnet.Dial(ctx, 0, addrs, []meshnet.Rank{1}); c0 <- result{m, err} }()
	go func() { m, err := meshnet.Dial(ctx, 1, addrs, []meshnet.Rank{0}); c1 <- result{m, err} }()
	r0, r1 := <-c0, <-c1
	if r0.err != nil {
		t.Fatalf("dial rank 0: %v", r0.err)
	}
	if r1.err != nil {
		t.Fatalf("dial rank 1: %v", r1.err)
	}
	defer r0.m.Close()
	defer r1.m.Close()

	img := testImage(4, 4)

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- func() error {
			tl, err := ReceiveTile(r1.m, termination.CoordinatorRank)
			if err != nil {
				return err
			}
			engine, err := boundary.New(r1.m, tl)
			if err != nil {
				return err
			}
			return termination.Handshake(r1.m, tl, engine)
		}()
	}()

	out, err := Run(r0.m, img, 1, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case err := <-workerDone:
		if err != nil {
			t.Fatalf("worker side: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for worker to finish")
	}

	if out.Rows != img.Rows || out.Columns != img.Columns {
		t.Fatalf("output dimensions = %dx%d, want %dx%d", out.Rows, out.Columns, img.Rows, img.Columns)
	}
	for r := range img.Pixels {
		for c := range img.Pixels[r] {
			if out.Pixels[r][c] != img.Pixels[r][c] {
				t.Errorf("pixel(%d,%d) = %d, want %d (unmodified round trip)", r, c, out.Pixels[r][c], img.Pixels[r][c])
			}
		}
	}
}
