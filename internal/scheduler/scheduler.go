// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs a bounded pool of workers over a package
// list, driving each package through Download -> Unpack and then, once
// every package has reached Unpacked, releasing a single splat barrier
// so the splat stage runs against a complete, consistent unpack tree.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/crosswin/xwin/internal/xwinerr"
)

// State is one stage of a package's progress through the pipeline.
type State int

const (
	Pending State = iota
	Downloading
	Downloaded
	Unpacking
	Unpacked
	Splatting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Downloading:
		return "downloading"
	case Downloaded:
		return "downloaded"
	case Unpacking:
		return "unpacking"
	case Unpacked:
		return "unpacked"
	case Splatting:
		return "splatting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Package is one unit of scheduled work: a cache-addressable payload
// plus the callbacks that move it through the pipeline. The scheduler
// itself is agnostic to what Download and Unpack actually do --
// internal/fetch and internal/unpack supply them -- so this package
// carries no dependency on either.
type Package struct {
	Key      string
	Download func(ctx context.Context) (blobPath string, digestHex string, err error)
	Unpack   func(ctx context.Context, blobPath, digestHex string) error
}

// StatusFunc is notified on every state transition a package makes.
// Implementations must not block; the scheduler calls it from whichever
// worker goroutine made the transition.
type StatusFunc func(key string, state State, err error)

// Config controls the scheduler's concurrency and splat barrier.
type Config struct {
	// Concurrency is the worker pool width. Zero means runtime.NumCPU().
	Concurrency int

	// Splat, if non-nil, runs exactly once after every package has
	// reached Unpacked and before Run returns, reflecting the "splat
	// barrier" in the pipeline's state machine: splat never observes a
	// partially-unpacked tree.
	Splat func(ctx context.Context) error

	// Logger receives structured progress output. If nil, slog.Default
	// is used.
	Logger *slog.Logger

	// OnStatus, if non-nil, is called on every state transition, in
	// addition to logging.
	OnStatus StatusFunc
}

// Scheduler drives a fixed package list through the pipeline with a
// bounded worker pool. The zero value is not usable; construct with
// New.
type Scheduler struct {
	cfg    Config
	runID  uuid.UUID
	logger *slog.Logger
}

// New constructs a Scheduler with the given configuration.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, runID: uuid.New(), logger: logger}
}

// RunID identifies this scheduler's invocation, for correlating log
// output.
func (s *Scheduler) RunID() uuid.UUID { return s.runID }

// packageError pairs a package key with the error it failed on, so Run
// can report every failure rather than just the first.
type packageError struct {
	key string
	err error
}

// Run drives every package in pkgs through Download and Unpack using a
// bounded worker pool (Config.Concurrency, default runtime.NumCPU()),
// then -- once all packages reached Unpacked without error -- invokes
// the splat barrier exactly once. Cancelling ctx lets in-flight
// packages finish their current stage and return xwinerr.KindCancelled
// rather than rolling back partially-written state: a resumed run
// picks up from whatever the cache and unpack witnesses already
// recorded.
func (s *Scheduler) Run(ctx context.Context, pkgs []Package) error {
	width := s.cfg.Concurrency
	if width <= 0 {
		width = runtime.NumCPU()
	}
	if width < 1 {
		width = 1
	}

	sem := make(chan struct{}, width)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []packageError

	report := func(key string, state State, err error) {
		if err != nil {
			s.logger.Error("package failed", "run_id", s.runID, "package", key, "state", state.String(), "error", err)
		} else {
			s.logger.Debug("package transitioned", "run_id", s.runID, "package", key, "state", state.String())
		}
		if s.cfg.OnStatus != nil {
			s.cfg.OnStatus(key, state, err)
		}
	}

	for _, pkg := range pkgs {
		pkg := pkg
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.runOne(ctx, pkg, report); err != nil {
				mu.Lock()
				failures = append(failures, packageError{key: pkg.Key, err: err})
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(failures) > 0 {
		return joinFailures(failures)
	}

	if s.cfg.Splat == nil {
		return nil
	}

	for _, pkg := range pkgs {
		report(pkg.Key, Splatting, nil)
	}
	if err := s.cfg.Splat(ctx); err != nil {
		return err
	}
	for _, pkg := range pkgs {
		report(pkg.Key, Done, nil)
	}
	return nil
}

func (s *Scheduler) runOne(ctx context.Context, pkg Package, report StatusFunc) error {
	if err := ctx.Err(); err != nil {
		err = xwinerr.Wrap(xwinerr.KindCancelled, err, "package %s cancelled before starting", pkg.Key)
		report(pkg.Key, Failed, err)
		return err
	}

	report(pkg.Key, Downloading, nil)
	blobPath, digestHex, err := pkg.Download(ctx)
	if err != nil {
		err = annotateCancelled(ctx, err, "downloading %s", pkg.Key)
		report(pkg.Key, Failed, err)
		return err
	}
	report(pkg.Key, Downloaded, nil)

	report(pkg.Key, Unpacking, nil)
	if err := pkg.Unpack(ctx, blobPath, digestHex); err != nil {
		err = annotateCancelled(ctx, err, "unpacking %s", pkg.Key)
		report(pkg.Key, Failed, err)
		return err
	}
	report(pkg.Key, Unpacked, nil)
	return nil
}

func annotateCancelled(ctx context.Context, err error, format string, args ...any) error {
	if ctx.Err() != nil {
		return xwinerr.Wrap(xwinerr.KindCancelled, err, format, args...)
	}
	return err
}

func joinFailures(failures []packageError) error {
	if len(failures) == 1 {
		return fmt.Errorf("package %s: %w", failures[0].key, failures[0].err)
	}
	msg := fmt.Sprintf("%d packages failed:", len(failures))
	for _, f := range failures {
		msg += fmt.Sprintf("\n  %s: %v", f.key, f.err)
	}
	return xwinerr.New(xwinerr.KindInternal, "%s", msg)
}
