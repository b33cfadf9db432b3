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

package meshnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Mesh is a bundle of full-duplex connections to a fixed set of peer
// ranks. There is exactly one connection per peer, shared by every tag
// used to talk to that peer.
type Mesh struct {
	self  Rank
	peers map[Rank]*peerConn
}

// Dial brings up one connection to every rank in connectTo: ranks lower
// than self are expected to dial in (Dial accepts their connections on
// addrs[self]); ranks higher than self are dialed out to, with retries,
// since peers start concurrently and a dial can race a peer's listener
// coming up.
func Dial(ctx context.Context, self Rank, addrs map[Rank]string, connectTo []Rank) (*Mesh, error) {
	var toAccept, toDial []Rank
	for _, r := range connectTo {
		switch {
		case r < self:
			toAccept = append(toAccept, r)
		case r > self:
			toDial = append(toDial, r)
		default:
			return nil, fmt.Errorf("meshnet: rank %d cannot be its own peer", self)
		}
	}

	lis, err := net.Listen("tcp", addrs[self])
	if err != nil {
		return nil, fmt.Errorf("meshnet: listen on %q (rank %d): %w", addrs[self], self, err)
	}

	var mu sync.Mutex
	peers := make(map[Rank]*peerConn, len(connectTo))
	add := func(r Rank, pc *peerConn) {
		mu.Lock()
		peers[r] = pc
		mu.Unlock()
	}

	eg, egCtx := errgroup.WithContext(ctx)

	if len(toAccept) > 0 {
		eg.Go(func() error {
			defer lis.Close()
			remaining := make(map[Rank]bool, len(toAccept))
			for _, r := range toAccept {
				remaining[r] = true
			}
			for len(remaining) > 0 {
				conn, err := lis.Accept()
				if err != nil {
					return fmt.Errorf("meshnet: accept on rank %d: %w", self, err)
				}
				peerRank, err := readHandshake(conn)
				if err != nil {
					conn.Close()
					return fmt.Errorf("meshnet: handshake from accepted connection: %w", err)
				}
				if !remaining[peerRank] {
					conn.Close()
					return fmt.Errorf("meshnet: unexpected peer rank %d connected to rank %d", peerRank, self)
				}
				delete(remaining, peerRank)
				add(peerRank, newPeerConn(peerRank, conn))
			}
			return nil
		})
	} else {
		lis.Close()
	}

	for _, r := range toDial {
		r := r
		eg.Go(func() error {
			var conn net.Conn
			err := retry.Do(
				func() error {
					c, err := (&net.Dialer{}).DialContext(egCtx, "tcp", addrs[r])
					if err != nil {
						return err
					}
					conn = c
					return nil
				},
				retry.Context(egCtx),
				retry.Attempts(20),
				retry.DelayType(retry.BackOffDelay),
				retry.MaxDelay(2*time.Second),
				retry.OnRetry(func(n uint, err error) {
					klog.Infof("meshnet: dial rank %d (attempt %d): %v", r, n+1, err)
				}),
			)
			if err != nil {
				return fmt.Errorf("meshnet: dial rank %d: %w", r, err)
			}
			if err := writeHandshake(conn, self); err != nil {
				conn.Close()
				return fmt.Errorf("meshnet: handshake to rank %d: %w", r, err)
			}
			add(r, newPeerConn(r, conn))
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &Mesh{self: self, peers: peers}, nil
}

func writeHandshake(w io.Writer, self Rank) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(self))
	_, err := w.Write(buf[:])
	return err
}

func readHandshake(r io.Reader) (Rank, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return Rank(binary.BigEndian.Uint32(buf[:])), nil
}

func (m *Mesh) peer(r Rank) (*peerConn, error) {
	pc, ok := m.peers[r]
	if !ok {
		return nil, fmt.Errorf("meshnet: no connection to rank %d", r)
	}
	return pc, nil
}

// Send is a blocking send of a small fixed-size payload to dest.
func (m *Mesh) Send(dest Rank, tag Tag, payload []byte) error {
	pc, err := m.peer(dest)
	if err != nil {
		return err
	}
	return pc.postSend(tag, payload).Wait()
}

// PostRecv posts a non-blocking receive for the next message tagged tag
// arriving from src. It completes when a matching message is delivered.
func (m *Mesh) PostRecv(src Rank, tag Tag) (*RecvHandle, error) {
	pc, err := m.peer(src)
	if err != nil {
		return nil, err
	}
	return pc.postRecv(tag), nil
}

// PostSend posts a non-blocking send of payload, tagged tag, to dest.
func (m *Mesh) PostSend(dest Rank, tag Tag, payload []byte) (*SendHandle, error) {
	pc, err := m.peer(dest)
	if err != nil {
		return nil, err
	}
	return pc.postSend(tag, payload), nil
}

// Close tears down every connection in the mesh.
func (m *Mesh) Close() error {
	var firstErr error
	for _, pc := range m.peers {
		if err := pc.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
