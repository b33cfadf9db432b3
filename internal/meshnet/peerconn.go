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
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"k8s.io/klog/v2"
)

// frame wire format: tag (int32 BE), length (int32 BE), payload bytes.
const frameHeaderSize = 8

// outboundMsg is one queued write on a peerConn's single writer goroutine.
type outboundMsg struct {
	tag     Tag
	payload []byte
	handle  *SendHandle
}

// tagQueue matches posted receives against arriving payloads for one tag,
// preserving FIFO order in both directions: posted receives are satisfied
// in the order they were posted, and arriving payloads are handed out in
// the order they arrived.
type tagQueue struct {
	posted  []*RecvHandle
	pending [][]byte
}

// peerConn is the full-duplex connection to one other rank.
type peerConn struct {
	rank Rank
	conn net.Conn

	outbound chan outboundMsg

	mu     sync.Mutex
	queues map[Tag]*tagQueue

	closeOnce sync.Once
	fatal     chan error // buffered; holds the first reader/writer failure, never closed
}

func newPeerConn(rank Rank, conn net.Conn) *peerConn {
	pc := &peerConn{
		rank:     rank,
		conn:     conn,
		outbound: make(chan outboundMsg, 64),
		queues:   make(map[Tag]*tagQueue),
		fatal:    make(chan error, 1),
	}
	go pc.readLoop()
	go pc.writeLoop()
	return pc
}

func (pc *peerConn) queueFor(tag Tag) *tagQueue {
	q, ok := pc.queues[tag]
	if !ok {
		q = &tagQueue{}
		pc.queues[tag] = q
	}
	return q
}

// postRecv registers interest in the next message with tag from this peer.
func (pc *peerConn) postRecv(tag Tag) *RecvHandle {
	h := newRecvHandle()
	pc.mu.Lock()
	defer pc.mu.Unlock()
	q := pc.queueFor(tag)
	if len(q.pending) > 0 {
		payload := q.pending[0]
		q.pending = q.pending[1:]
		h.complete(payload, nil)
		return h
	}
	q.posted = append(q.posted, h)
	return h
}

// postSend queues payload for tag to be written to this peer.
func (pc *peerConn) postSend(tag Tag, payload []byte) *SendHandle {
	h := newSendHandle()
	select {
	case pc.outbound <- outboundMsg{tag: tag, payload: payload, handle: h}:
	case err := <-pc.fatal:
		pc.fatal <- err // put it back for the next caller
		h.complete(fmt.Errorf("meshnet: connection to rank %d is dead: %w", pc.rank, err))
	}
	return h
}

func (pc *peerConn) writeLoop() {
	for msg := range pc.outbound {
		err := writeFrame(pc.conn, msg.tag, msg.payload)
		msg.handle.complete(err)
		if err != nil {
			pc.fail(fmt.Errorf("write to rank %d: %w", pc.rank, err))
			return
		}
	}
}

func (pc *peerConn) readLoop() {
	for {
		tag, payload, err := readFrame(pc.conn)
		if err != nil {
			pc.fail(fmt.Errorf("read from rank %d: %w", pc.rank, err))
			return
		}
		pc.deliver(tag, payload)
	}
}

func (pc *peerConn) deliver(tag Tag, payload []byte) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	q := pc.queueFor(tag)
	if len(q.posted) > 0 {
		h := q.posted[0]
		q.posted = q.posted[1:]
		h.complete(payload, nil)
		return
	}
	q.pending = append(q.pending, payload)
}

func (pc *peerConn) fail(err error) {
	klog.Warningf("meshnet: %v", err)
	select {
	case pc.fatal <- err:
	default:
	}
	pc.mu.Lock()
	for _, q := range pc.queues {
		for _, h := range q.posted {
			h.complete(nil, err)
		}
		q.posted = nil
	}
	pc.mu.Unlock()
}

func (pc *peerConn) close() error {
	var err error
	pc.closeOnce.Do(func() {
		close(pc.outbound)
		err = pc.conn.Close()
	})
	return err
}

func writeFrame(w io.Writer, tag Tag, payload []byte) error {
	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(tag))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) (Tag, []byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	tag := Tag(binary.BigEndian.Uint32(hdr[0:4]))
	length := binary.BigEndian.Uint32(hdr[4:8])
	if length == 0 {
		return tag, nil, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return tag, payload, nil
}
