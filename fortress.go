// Package fortress maintains a large sponge-based accumulator wrapped in a
// self-healing integrity layer. Data absorbed into the accumulator can be
// squeezed into digests of any length; alongside it, an authenticated
// snapshot history detects accidental corruption of the live state and heals
// it through escalating tiers of recovery.
//
// One Fortress is one logical stream. The handle serializes all access with
// an internal mutex; independent handles share nothing and can run in
// parallel freely.
package fortress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fortresskit/fortress/internal/archive"
	"github.com/fortresskit/fortress/pkg/checksum"
	"github.com/fortresskit/fortress/pkg/selfheal"
	"github.com/fortresskit/fortress/pkg/snapshot"
	"github.com/fortresskit/fortress/pkg/sponge"
)

var ErrClosed = errors.New("fortress: accumulator closed")

// Config configures one accumulator instance.
type Config struct {
	// Logger is an optional structured logger. If nil, a stderr logger is used.
	Logger *slog.Logger
	// Keys supplies ephemeral snapshot keys. If nil, crypto/rand is used.
	Keys checksum.KeySource
	// CheckInterval enables a background detect/repair pass at the given
	// period once Start is called. Zero leaves background checking off.
	CheckInterval time.Duration
}

// Fortress is the accumulator handle. It owns the live sponge state and its
// self-heal context.
type Fortress struct {
	log    *slog.Logger
	config Config

	mu     sync.Mutex
	auth   *snapshot.Authenticator
	state  *sponge.State
	heal   *selfheal.Context
	closed bool

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// defaultLogger returns a logger that writes text logs to stderr at Info
// level. Applications can inject their own slog.Logger instead.
func defaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}

// New builds a freshly initialized accumulator and captures its first
// snapshot. New does not start background goroutines; call Start for the
// periodic integrity guard.
func New(conf Config) (*Fortress, error) {
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	auth := snapshot.NewAuthenticator()
	if conf.Keys != nil {
		auth.Keys = conf.Keys
	}

	state := sponge.New()
	heal, err := selfheal.Init(auth, state, conf.Logger)
	if err != nil {
		return nil, fmt.Errorf("init self-heal context: %w", err)
	}

	return &Fortress{
		log:    conf.Logger,
		config: conf,
		auth:   auth,
		state:  state,
		heal:   heal,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Absorb feeds data into the accumulator and re-snapshots the result, so the
// integrity layer always has an up-to-date reference for the mutated state.
func (f *Fortress) Absorb(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	f.state.Absorb(data)
	if err := f.heal.Save(f.state); err != nil {
		return fmt.Errorf("snapshot after absorb: %w", err)
	}
	return nil
}

// Write implements io.Writer over Absorb.
func (f *Fortress) Write(p []byte) (int, error) {
	if err := f.Absorb(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Sum squeezes an n-byte digest out of the current state. It never mutates
// the accumulator; absorbing may continue afterwards.
func (f *Fortress) Sum(n int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Squeeze(n)
}

// AbsorbedBytes reports how many bytes the accumulator has absorbed.
func (f *Fortress) AbsorbedBytes() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.AbsorbedBytes
}

// Snapshot captures the current state into the ring explicitly.
func (f *Fortress) Snapshot() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return f.heal.Save(f.state)
}

// Check reports whether the live state is anomalous.
func (f *Fortress) Check() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heal.Detect(f.state)
}

// Repair runs the tiered recovery if the state is anomalous. It returns
// false only when recovery degraded to a forced re-initialization and the
// absorbed input was lost.
func (f *Fortress) Repair() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.heal.Detect(f.state) {
		return true
	}
	return f.heal.Recover(f.state)
}

// Stats returns a copy of the recovery counters.
func (f *Fortress) Stats() selfheal.Counters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heal.Counters
}

// ExportHistory writes the snapshot history to w (see internal/archive).
func (f *Fortress) ExportHistory(w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return archive.Export(w, f.heal.Ring, f.heal.Shadow)
}

// ImportHistory replaces the snapshot history with one read from r. The
// archive is self-verified during decoding; whether it covers the current
// live state is for the next Check to decide.
func (f *Fortress) ImportHistory(r io.Reader) error {
	ring, shadow, err := archive.Import(r)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.heal = selfheal.Restore(f.auth, ring, shadow, f.log)
	return nil
}

// Start launches the periodic integrity guard when CheckInterval is set.
// Safe to call multiple times; only the first call has effect.
func (f *Fortress) Start(ctx context.Context) error {
	f.startOnce.Do(func() {
		if f.config.CheckInterval <= 0 {
			close(f.done)
			return
		}
		go f.guard()
		f.log.Info("fortress integrity guard started",
			"interval", f.config.CheckInterval)
	})
	return nil
}

// guard periodically detects and repairs corruption in the background.
func (f *Fortress) guard() {
	defer close(f.done)
	ticker := time.NewTicker(f.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.mu.Lock()
			if f.closed {
				f.mu.Unlock()
				return
			}
			if f.heal.Detect(f.state) {
				f.log.Warn("background check found anomaly, recovering")
				if !f.heal.Recover(f.state) {
					f.log.Warn("background recovery degraded to reinit")
				}
			}
			f.mu.Unlock()
		}
	}
}

// Run starts the accumulator, blocks until ctx is canceled, then closes it.
func (f *Fortress) Run(ctx context.Context) error {
	if err := f.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return f.Close(closeCtx)
}

// Close stops the background guard and marks the handle closed. Close is
// idempotent.
func (f *Fortress) Close(ctx context.Context) error {
	var closeErr error
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.stop)

		f.startOnce.Do(func() { close(f.done) })
		select {
		case <-f.done:
		case <-ctx.Done():
			closeErr = fmt.Errorf("wait for integrity guard: %w", ctx.Err())
		}
	})
	return closeErr
}
