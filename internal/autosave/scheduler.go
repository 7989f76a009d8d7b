// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package autosave turns the stream of local edits published by an
// editor.Store into debounced repository writes. It keeps one entry per
// element-language key holding the debounce timer, the newest unsaved
// change and an in-flight flag, so that at most one save per key runs at
// a time and an older value never overwrites a newer one.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"inlinecms/internal/clock"
	"inlinecms/internal/editor"
	"inlinecms/internal/models"
	"inlinecms/internal/sanitize"
	"inlinecms/internal/store"
)

// ErrClosed is returned by SaveNow after the scheduler has been closed.
var ErrClosed = errors.New("autosave scheduler closed")

// Policy decides what happens to edits still inside their debounce
// window when the editing surface goes away.
type Policy string

const (
	// PolicyFlush saves every pending edit before closing.
	PolicyFlush Policy = "flush"
	// PolicyDrop discards pending edits. Saves already in flight finish.
	PolicyDrop Policy = "drop"
)

// ParsePolicy parses "flush" or "drop". An empty string means flush.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFlush:
		return PolicyFlush, nil
	case PolicyDrop:
		return PolicyDrop, nil
	}
	return "", fmt.Errorf("unknown teardown policy %q (want flush or drop)", s)
}

// Config tunes a Scheduler. Zero durations fall back to the defaults.
// MaxRetries of zero disables retrying transient failures.
type Config struct {
	Debounce         time.Duration
	RetryDelay       time.Duration
	MaxRetries       uint64
	FlushConcurrency int
	SaveTimeout      time.Duration
	Teardown         Policy
	// Actor is recorded as updated_by on every save.
	Actor string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:         30 * time.Second,
		RetryDelay:       5 * time.Second,
		MaxRetries:       1,
		FlushConcurrency: 4,
		SaveTimeout:      15 * time.Second,
		Teardown:         PolicyFlush,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.FlushConcurrency <= 0 {
		c.FlushConcurrency = d.FlushConcurrency
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = d.SaveTimeout
	}
	if c.Teardown == "" {
		c.Teardown = d.Teardown
	}
	return c
}

// Saver persists one element-language value.
type Saver interface {
	UpsertElement(ctx context.Context, in store.UpsertInput) (*models.ContentElement, error)
}

// Source is the editor state the scheduler follows.
type Source interface {
	Subscribe(fn editor.Listener) (unsubscribe func())
	Latest(key editor.Key) (editor.Change, bool)
	Dirty() []editor.Change
	MarkClean(key editor.Key, seq uint64, saved *models.ContentElement) bool
}

// entry is the per-key row of the timer table.
type entry struct {
	timer      clock.Timer
	gen        uint64
	pending    *editor.Change
	inFlight   bool
	done       chan struct{}
	redispatch bool
	backoff    retry.Backoff
	err        error
}

// Scheduler debounces edits into saves. It is safe for concurrent use.
type Scheduler struct {
	cfg         Config
	source      Source
	saver       Saver
	clock       clock.Clock
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	mu      sync.Mutex
	entries map[editor.Key]*entry
	closed  bool
	saves   int
	wg      sync.WaitGroup
}

// New creates a Scheduler subscribed to source.
func New(source Source, saver Saver, clk clock.Clock, cfg Config) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:     cfg.withDefaults(),
		source:  source,
		saver:   saver,
		clock:   clk,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[editor.Key]*entry),
	}
	s.unsubscribe = source.Subscribe(s.onChange)
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

func (s *Scheduler) onChange(ch editor.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	e := s.entryLocked(ch.Key)
	e.pending = &ch
	// A fresh edit gets a fresh retry budget.
	e.backoff = nil
	s.armLocked(ch.Key, e, s.cfg.Debounce)
}

func (s *Scheduler) entryLocked(key editor.Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

func (s *Scheduler) armLocked(key editor.Key, e *entry, d time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = s.clock.AfterFunc(d, func() { s.fire(key, gen) })
}

func (s *Scheduler) fire(key editor.Key, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if s.closed || !ok || e.gen != gen || e.timer == nil {
		return
	}
	e.timer = nil
	if e.pending == nil {
		s.gcLocked(key, e)
		return
	}
	if e.inFlight {
		e.redispatch = true
		return
	}
	s.dispatchLocked(key, e)
}

func (s *Scheduler) dispatchLocked(key editor.Key, e *entry) {
	ch := *e.pending
	e.pending = nil
	e.redispatch = false
	e.inFlight = true
	e.done = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SaveTimeout)
		el, err := s.saver.UpsertElement(ctx, s.input(ch))
		cancel()
		s.finish(key, e, ch, el, err, false)
	}()
}

func (s *Scheduler) input(ch editor.Change) store.UpsertInput {
	return store.UpsertInput{
		PageKey:    ch.Key.Page,
		ElementKey: ch.Key.Element,
		Lang:       ch.Key.Lang,
		Type:       ch.Type,
		Payload:    sanitize.Payload(ch.Type, ch.Payload),
		UpdatedBy:  s.cfg.Actor,
	}
}

// finish records the outcome of a save for ch. Until the scheduler is
// closed a transient failure re-arms the key's timer until the retry
// budget is spent. surfaced marks a save whose error was returned to a
// caller; its failure is recorded at once even while a retry is armed.
func (s *Scheduler) finish(key editor.Key, e *entry, ch editor.Change, el *models.ContentElement, err error, surfaced bool) error {
	if err == nil {
		s.source.MarkClean(ch.Key, ch.Seq, el)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e.inFlight = false
	close(e.done)

	switch {
	case err == nil:
		s.saves++
		e.backoff = nil
		e.err = nil
		slog.Debug("autosave saved", "key", key.String(), "seq", ch.Seq)

	case store.IsTransient(err) && !s.closed:
		if e.pending == nil {
			e.pending = &ch
		}
		if e.backoff == nil {
			e.backoff = retry.WithMaxRetries(s.cfg.MaxRetries, retry.NewConstant(s.cfg.RetryDelay))
		}
		delay, stop := e.backoff.Next()
		if stop {
			e.backoff = nil
			e.err = err
			slog.Error("autosave failed after retries", "key", key.String(), "seq", ch.Seq, "error", err)
			break
		}
		slog.Warn("autosave transient failure, retrying", "key", key.String(), "delay", delay, "error", err)
		if surfaced {
			e.err = err
		}
		if e.timer == nil && !e.redispatch {
			s.armLocked(key, e, delay)
		}

	default:
		// Keep a transiently failed value so a later flush can retry it.
		if store.IsTransient(err) && e.pending == nil {
			e.pending = &ch
		}
		e.err = err
		slog.Error("autosave failed", "key", key.String(), "seq", ch.Seq,
			"transient", store.IsTransient(err), "error", err)
	}

	if e.redispatch && e.pending != nil && !s.closed {
		s.dispatchLocked(key, e)
	} else {
		e.redispatch = false
	}
	s.gcLocked(key, e)
	return err
}

func (s *Scheduler) gcLocked(key editor.Key, e *entry) {
	if !e.inFlight && e.timer == nil && e.pending == nil && e.err == nil {
		delete(s.entries, key)
	}
}

// SaveNow cancels every pending timer and saves all dirty keys at once.
// It reports whether any dirty keys existed. Errors for different keys
// are joined.
func (s *Scheduler) SaveNow(ctx context.Context) (bool, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false, ErrClosed
	}
	return s.flush(ctx)
}

func (s *Scheduler) flush(ctx context.Context) (bool, error) {
	dirty := s.source.Dirty()
	if len(dirty) == 0 {
		return false, nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.FlushConcurrency)
	for _, ch := range dirty {
		key := ch.Key
		g.Go(func() error {
			if err := s.flushKey(ctx, key); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("save %s: %w", key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return true, errors.Join(errs...)
}

// flushKey waits for any in-flight save of key, then saves the newest
// value if the key is still dirty.
func (s *Scheduler) flushKey(ctx context.Context, key editor.Key) error {
	for {
		s.mu.Lock()
		e := s.entryLocked(key)
		if e.inFlight {
			done := e.done
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		ch, ok := s.source.Latest(key)
		if !ok {
			s.gcLocked(key, e)
			s.mu.Unlock()
			return nil
		}
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.pending = nil
		e.redispatch = false
		e.inFlight = true
		e.done = make(chan struct{})
		s.wg.Add(1)
		s.mu.Unlock()

		saveCtx, cancel := context.WithTimeout(ctx, s.cfg.SaveTimeout)
		el, err := s.saver.UpsertElement(saveCtx, s.input(ch))
		cancel()
		err = s.finish(key, e, ch, el, err, true)
		s.wg.Done()
		return err
	}
}

// Close tears the scheduler down using the configured policy.
func (s *Scheduler) Close(ctx context.Context) error {
	return s.CloseWith(ctx, s.cfg.Teardown)
}

// CloseWith tears the scheduler down using policy. Changes published
// after Close are ignored. It waits for in-flight saves to finish. A
// teardown flush makes one attempt per key; failed values stay dirty in
// the editor store and the joined error is returned.
func (s *Scheduler) CloseWith(ctx context.Context, policy Policy) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for key, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.pending = nil
		e.redispatch = false
		s.gcLocked(key, e)
	}
	s.mu.Unlock()
	s.unsubscribe()

	var err error
	switch policy {
	case PolicyDrop:
		slog.Info("autosave closed, dropping pending edits", "dropped", len(s.source.Dirty()))
	default:
		var flushed bool
		flushed, err = s.flush(ctx)
		slog.Info("autosave closed, flushed pending edits", "flushed", flushed, "error", err)
	}

	if werr := s.wait(ctx); werr != nil && err == nil {
		err = werr
	}
	s.cancel()
	return err
}

func (s *Scheduler) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until no save is in flight.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Failures returns the last surfaced error for every key whose save
// failed and has not succeeded since.
func (s *Scheduler) Failures() map[editor.Key]error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[editor.Key]error)
	for key, e := range s.entries {
		if e.err != nil {
			out[key] = e.err
		}
	}
	return out
}

// Stats is a snapshot of the timer table.
type Stats struct {
	Scheduled int `json:"scheduled"`
	InFlight  int `json:"in_flight"`
	Failed    int `json:"failed"`
	Saves     int `json:"saves"`
}

// Stats returns counts of armed timers, running saves, surfaced failures
// and completed saves.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Saves: s.saves}
	for _, e := range s.entries {
		if e.timer != nil {
			st.Scheduled++
		}
		if e.inFlight {
			st.InFlight++
		}
		if e.err != nil {
			st.Failed++
		}
	}
	return st
}
