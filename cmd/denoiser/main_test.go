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

package main

import "testing"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DENOISER_RANK", "0")
	t.Setenv("DENOISER_WORLD_SIZE", "4")
	t.Setenv("DENOISER_PEERS", "h0:1,h1:1,h2:1,h3:1")
	t.Setenv("DENOISER_GRID", "")
}

func TestParseConfigValid(t *testing.T) {
	setBaseEnv(t)
	cfg, err := parseConfig([]string{"in.pgm", "out.pgm", "1.0", "0.1"})
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.gridRows != 1 || cfg.gridCols != 3 {
		t.Errorf("grid = %dx%d, want 1x3 (default world_size-1 workers in one row)", cfg.gridRows, cfg.gridCols)
	}
	if cfg.beta != 1.0 || cfg.pi != 0.1 {
		t.Errorf("beta/pi = %v/%v, want 1.0/0.1", cfg.beta, cfg.pi)
	}
}

func TestParseConfigRejectsWrongArgCount(t *testing.T) {
	setBaseEnv(t)
	if _, err := parseConfig([]string{"only", "two"}); err == nil {
		t.Fatal("expected an error for the wrong number of positional arguments")
	}
}

func TestParseConfigRejectsBoundaryPi(t *testing.T) {
	setBaseEnv(t)
	for _, pi := range []string{"0", "1"} {
		if _, err := parseConfig([]string{"in.pgm", "out.pgm", "1.0", pi}); err == nil {
			t.Errorf("expected pi=%s to be rejected as a configuration error", pi)
		}
	}
}

func TestParseConfigRejectsUnparseableBeta(t *testing.T) {
	setBaseEnv(t)
	if _, err := parseConfig([]string{"in.pgm", "out.pgm", "not-a-number", "0.1"}); err == nil {
		t.Fatal("expected an unparseable beta to be rejected")
	}
}

func TestParseConfigRejectsMissingEnv(t *testing.T) {
	t.Setenv("DENOISER_RANK", "")
	if _, err := parseConfig([]string{"in.pgm", "out.pgm", "1.0", "0.1"}); err == nil {
		t.Fatal("expected a missing DENOISER_RANK to be rejected")
	}
}

func TestParseConfigRejectsGridNotMatchingWorldSize(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DENOISER_GRID", "2,2") // 4 workers, but world size 4 implies only 3
	if _, err := parseConfig([]string{"in.pgm", "out.pgm", "1.0", "0.1"}); err == nil {
		t.Fatal("expected a grid shape inconsistent with world size to be rejected")
	}
}

func TestParseConfigAcceptsExplicitGrid(t *testing.T) {
	t.Setenv("DENOISER_RANK", "0")
	t.Setenv("DENOISER_WORLD_SIZE", "10")
	peers := ""
	for i := 0; i < 10; i++ {
		if i > 0 {
			peers += ","
		}
		peers += "h:1"
	}
	t.Setenv("DENOISER_PEERS", peers)
	t.Setenv("DENOISER_GRID", "3,3")
	cfg, err := parseConfig([]string{"in.pgm", "out.pgm", "1.0", "0.1"})
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.gridRows != 3 || cfg.gridCols != 3 {
		t.Errorf("grid = %dx%d, want 3x3", cfg.gridRows, cfg.gridCols)
	}
}
