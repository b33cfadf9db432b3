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
)

// EncodeInt32 marshals a single 32-bit signed integer payload, used for
// ROWS, COLUMNS, the direction tags, QUESTION and ANSWER.
func EncodeInt32(v int32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return buf[:]
}

// DecodeInt32 unmarshals a single 32-bit signed integer payload.
func DecodeInt32(payload []byte) (int32, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("meshnet: int32 payload has %d bytes, want 4", len(payload))
	}
	return int32(binary.BigEndian.Uint32(payload)), nil
}

// EncodeRow marshals a row of W signed-byte pixels, used for IMAGE_ROW+i
// and FINAL_IMAGE_ROW+i.
func EncodeRow(row []int8) []byte {
	buf := make([]byte, len(row))
	for i, p := range row {
		buf[i] = byte(p)
	}
	return buf
}

// DecodeRow unmarshals a row of W signed-byte pixels.
func DecodeRow(payload []byte) []int8 {
	row := make([]int8, len(payload))
	for i, b := range payload {
		row[i] = int8(b)
	}
	return row
}
