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

// denoiser is the entry point for both the coordinator process (rank 0)
// and the worker processes of the distributed binary-image denoiser:
//
//	denoiser <input> <output> <beta> <pi>
//
// Rank, world size, peer addresses, and worker-grid shape are not part of
// the four positional arguments; they come from the DENOISER_RANK,
// DENOISER_WORLD_SIZE, DENOISER_PEERS, and DENOISER_GRID environment
// variables, in the style of an MPI-style launcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/gridmesh/denoiser/internal/boundary"
	"github.com/gridmesh/denoiser/internal/coordinator"
	"github.com/gridmesh/denoiser/internal/meshnet"
	"github.com/gridmesh/denoiser/internal/sampler"
	"github.com/gridmesh/denoiser/internal/termination"
	"github.com/gridmesh/denoiser/internal/tile"
)

// totalIterations is the fixed global sampling budget. Each worker runs
// totalIterations / (world size - 1) of them.
const totalIterations = 5_000_000

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	cfg, err := parseConfig(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	mesh, err := dialMesh(context.Background(), cfg)
	if err != nil {
		klog.Exitf("denoiser: %v", err)
	}
	defer mesh.Close()

	if cfg.rank == int(termination.CoordinatorRank) {
		if err := runCoordinator(mesh, cfg); err != nil {
			klog.Exitf("denoiser: %v", err)
		}
		return
	}
	if err := runWorker(mesh, cfg); err != nil {
		klog.Exitf("denoiser: %v", err)
	}
}

// config is the fully validated configuration for one process, drawn from
// the four positional arguments and the DENOISER_* environment variables.
type config struct {
	inputPath, outputPath string
	beta, pi, gamma       float64

	rank      int
	worldSize int
	peers     []string

	gridRows, gridCols int
}

func parseConfig(args []string) (*config, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("usage: denoiser <input> <output> <beta> <pi>")
	}

	beta, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return nil, fmt.Errorf("denoiser: parsing beta %q: %w", args[2], err)
	}
	pi, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return nil, fmt.Errorf("denoiser: parsing pi %q: %w", args[3], err)
	}
	if pi <= 0 || pi >= 1 {
		return nil, fmt.Errorf("denoiser: pi must be strictly between 0 and 1, got %v", pi)
	}

	rank, err := parseEnvInt("DENOISER_RANK")
	if err != nil {
		return nil, err
	}
	if rank < 0 {
		return nil, fmt.Errorf("denoiser: DENOISER_RANK must be >= 0, got %d", rank)
	}
	worldSize, err := parseEnvInt("DENOISER_WORLD_SIZE")
	if err != nil {
		return nil, err
	}
	if worldSize < 2 {
		return nil, fmt.Errorf("denoiser: DENOISER_WORLD_SIZE must be >= 2, got %d", worldSize)
	}

	peersEnv := os.Getenv("DENOISER_PEERS")
	if peersEnv == "" {
		return nil, fmt.Errorf("denoiser: DENOISER_PEERS is required")
	}
	peers := strings.Split(peersEnv, ",")
	if len(peers) != worldSize {
		return nil, fmt.Errorf("denoiser: DENOISER_PEERS lists %d addresses, want %d (world size)", len(peers), worldSize)
	}

	gridRows, gridCols := 1, worldSize-1
	if g := os.Getenv("DENOISER_GRID"); g != "" {
		parts := strings.SplitN(g, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("denoiser: DENOISER_GRID must be \"R,C\", got %q", g)
		}
		gridRows, err = strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("denoiser: parsing DENOISER_GRID rows: %w", err)
		}
		gridCols, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("denoiser: parsing DENOISER_GRID columns: %w", err)
		}
	}
	if gridRows*gridCols != worldSize-1 {
		return nil, fmt.Errorf("denoiser: grid %dx%d has %d workers, want %d (world size - 1)",
			gridRows, gridCols, gridRows*gridCols, worldSize-1)
	}

	return &config{
		inputPath:  args[0],
		outputPath: args[1],
		beta:       beta,
		pi:         pi,
		gamma:      sampler.Gamma(pi),
		rank:       rank,
		worldSize:  worldSize,
		peers:      peers,
		gridRows:   gridRows,
		gridCols:   gridCols,
	}, nil
}

func parseEnvInt(name string) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return 0, fmt.Errorf("denoiser: %s is required", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("denoiser: parsing %s: %w", name, err)
	}
	return n, nil
}

// dialMesh brings up this process's mesh connections. A worker's peer set
// isn't known from the wire yet at this point, so it recomputes its own
// neighbour table the same way the coordinator's partitioning does.
func dialMesh(ctx context.Context, cfg *config) (*meshnet.Mesh, error) {
	addrs := make(map[meshnet.Rank]string, len(cfg.peers))
	for r, addr := range cfg.peers {
		addrs[meshnet.Rank(r)] = addr
	}

	self := meshnet.Rank(cfg.rank)
	var connectTo []meshnet.Rank
	if self == termination.CoordinatorRank {
		for r := 1; r < cfg.worldSize; r++ {
			connectTo = append(connectTo, meshnet.Rank(r))
		}
	} else {
		connectTo = append(connectTo, termination.CoordinatorRank)
		seen := map[int]bool{int(termination.CoordinatorRank): true}
		neighbours := coordinator.NeighbourRanks(cfg.rank, cfg.gridRows, cfg.gridCols)
		for _, d := range tile.Directions {
			r := neighbours[d]
			if r != tile.AbsentRank && !seen[r] {
				seen[r] = true
				connectTo = append(connectTo, meshnet.Rank(r))
			}
		}
	}

	mesh, err := meshnet.Dial(ctx, self, addrs, connectTo)
	if err != nil {
		return nil, fmt.Errorf("bringing up mesh: %w", err)
	}
	return mesh, nil
}

func runCoordinator(mesh *meshnet.Mesh, cfg *config) error {
	img, err := coordinator.ReadImage(cfg.inputPath)
	if err != nil {
		return err
	}
	klog.Infof("denoiser: read %dx%d image from %s, partitioning into a %dx%d worker grid",
		img.Rows, img.Columns, cfg.inputPath, cfg.gridRows, cfg.gridCols)

	out, err := coordinator.Run(mesh, img, cfg.gridRows, cfg.gridCols)
	if err != nil {
		return err
	}
	if err := coordinator.WriteImage(cfg.outputPath, out); err != nil {
		return err
	}
	klog.Infof("denoiser: wrote denoised image to %s", cfg.outputPath)
	return nil
}

func runWorker(mesh *meshnet.Mesh, cfg *config) error {
	t, err := coordinator.ReceiveTile(mesh, termination.CoordinatorRank)
	if err != nil {
		return fmt.Errorf("receiving tile: %w", err)
	}

	engine, err := boundary.New(mesh, t)
	if err != nil {
		return fmt.Errorf("starting boundary engine: %w", err)
	}

	iterations := totalIterations / (cfg.worldSize - 1)
	klog.Infof("rank %d: running %d iterations over a %dx%d tile", cfg.rank, iterations, t.Rows(), t.Columns())

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(cfg.rank)))
	s := sampler.New(t, engine, cfg.beta, cfg.gamma, rng)
	if err := s.Run(iterations); err != nil {
		return fmt.Errorf("sampling: %w", err)
	}

	if err := termination.Handshake(mesh, t, engine); err != nil {
		return fmt.Errorf("terminating: %w", err)
	}
	klog.Infof("rank %d: finished, %d pixels flipped", cfg.rank, s.Flips())
	return nil
}
