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

// Handle is a non-blocking operation in flight: a posted send or a posted
// receive. Test is a non-destructive completion probe; Wait blocks until
// completion and then frees the handle.
type Handle interface {
	// Test reports whether the operation has completed, without blocking.
	Test() bool
	// Wait blocks until the operation completes, then returns its error
	// (nil on success). Calling Wait more than once is safe and returns
	// the same result.
	Wait() error
}

// TestAll reports whether every handle in hs has completed. It probes
// every handle once; it never blocks.
func TestAll(hs []Handle) bool {
	all := true
	for _, h := range hs {
		if !h.Test() {
			all = false
		}
	}
	return all
}

// SendHandle is a non-blocking send in flight.
type SendHandle struct {
	done chan struct{}
	err  error
}

func newSendHandle() *SendHandle {
	return &SendHandle{done: make(chan struct{})}
}

func (h *SendHandle) complete(err error) {
	h.err = err
	close(h.done)
}

// Test implements Handle.
func (h *SendHandle) Test() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait implements Handle.
func (h *SendHandle) Wait() error {
	<-h.done
	return h.err
}

// RecvHandle is a non-blocking receive in flight. Once it has completed
// (Test returns true, or Wait has returned), Payload returns the bytes
// that were delivered.
type RecvHandle struct {
	done    chan struct{}
	payload []byte
	err     error
}

func newRecvHandle() *RecvHandle {
	return &RecvHandle{done: make(chan struct{})}
}

func (h *RecvHandle) complete(payload []byte, err error) {
	h.payload = payload
	h.err = err
	close(h.done)
}

// Test implements Handle.
func (h *RecvHandle) Test() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait implements Handle.
func (h *RecvHandle) Wait() error {
	<-h.done
	return h.err
}

// Payload returns the bytes delivered by this receive. It is only valid
// to call after Test returns true or Wait has returned.
func (h *RecvHandle) Payload() []byte {
	return h.payload
}
