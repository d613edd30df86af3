// Package syncer runs the device sync cycle: fetch the remote snapshot,
// merge it with the local caches, adopt the result locally and push it back
// with bounded conflict retries. It also owns the offline phrase queue.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/famlingo/internal/merge"
	"github.com/dukerupert/famlingo/internal/model"
	"github.com/dukerupert/famlingo/internal/remote"
	"github.com/dukerupert/famlingo/internal/store"
)

// State is the orchestrator's position in the sync cycle.
type State string

const (
	StateIdle            State = "idle"
	StateFetching        State = "fetching"
	StateMerging         State = "merging"
	StatePersistingLocal State = "persisting_local"
	StatePushing         State = "pushing"
	StateDisabled        State = "disabled"
	StateError           State = "error"
)

// Status holds the current sync status.
type Status struct {
	State         State      `json:"state"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
	LastSyncHuman string     `json:"last_sync_human,omitempty"`
	Error         string     `json:"error,omitempty"`
	InProgress    bool       `json:"in_progress"`
	Queued        int        `json:"queued"`
}

// StatusCallback is called whenever the sync state changes.
type StatusCallback func(Status)

// Result describes one finished cycle.
type Result struct {
	Skipped  bool   `json:"skipped"`
	Members  int    `json:"members"`
	Phrases  int    `json:"phrases"`
	Revision string `json:"revision,omitempty"`
	Attempts int    `json:"attempts"`
}

// Backend is the subset of the backend client the orchestrator calls.
type Backend interface {
	GetFamily(ctx context.Context) (*model.Family, error)
	GetPhrases(ctx context.Context, memberID string) ([]model.Phrase, error)
	AddPhrase(ctx context.Context, memberID, familyID string, p model.Phrase) (*model.Phrase, error)
	DeletePhrase(ctx context.Context, id string) error
	GetDevice(ctx context.Context, deviceID string) (*model.DeviceSettings, error)
	RegisterDevice(ctx context.Context, d model.DeviceSettings) (*model.DeviceSettings, error)
}

// Config holds orchestrator configuration.
type Config struct {
	// MaxAttempts bounds remote writes per cycle.
	MaxAttempts int
	// RetryUnit is the linear backoff step: attempt n waits n*RetryUnit.
	RetryUnit     time.Duration
	CommitMessage string
}

// Orchestrator coordinates the local stores, the remote blob and the backend.
type Orchestrator struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback

	state   *store.StateStore
	family  *store.FamilyStore
	phrases *store.PhraseStore
	queue   *store.QueueStore
	backend Backend
	remotes remote.Factory
	logger  *slog.Logger

	group singleflight.Group
	now   func() time.Time

	// onRetry observes each backoff delay before it is waited.
	onRetry func(attempt int, delay time.Duration)
}

// Deps groups the orchestrator's collaborators.
type Deps struct {
	State   *store.StateStore
	Family  *store.FamilyStore
	Phrases *store.PhraseStore
	Queue   *store.QueueStore
	Backend Backend
	Remotes remote.Factory
	Logger  *slog.Logger
}

func New(cfg Config, deps Deps, callback StatusCallback) *Orchestrator {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryUnit == 0 {
		cfg.RetryUnit = 500 * time.Millisecond
	}
	if cfg.CommitMessage == "" {
		cfg.CommitMessage = "Sync family data"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		cfg:      cfg,
		callback: callback,
		state:    deps.State,
		family:   deps.Family,
		phrases:  deps.Phrases,
		queue:    deps.Queue,
		backend:  deps.Backend,
		remotes:  deps.Remotes,
		logger:   logger.With("component", "syncer"),
		now:      time.Now,
		status:   Status{State: StateDisabled},
	}

	if settings, err := o.state.SyncSettings(); err == nil {
		if _, err := o.remotes(settings); err == nil {
			o.status.State = StateIdle
		}
	}
	if last, err := o.state.LastSync(); err == nil {
		o.status.LastSync = last
	}
	return o
}

// Status returns the current sync status.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	s := o.status
	o.mu.RUnlock()

	if s.LastSync != nil {
		s.LastSyncHuman = humanize.Time(*s.LastSync)
	}
	if n, err := o.queue.Count(); err == nil {
		s.Queued = n
	}
	return s
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	if s.LastSync == nil {
		s.LastSync = o.status.LastSync
	}
	o.status = s
	o.mu.Unlock()
	if o.callback != nil {
		o.callback(o.Status())
	}
}

func (o *Orchestrator) setState(st State) {
	o.setStatus(Status{State: st, InProgress: st != StateIdle && st != StateDisabled && st != StateError})
}

func (o *Orchestrator) fail(err error) error {
	o.setStatus(Status{State: StateError, Error: err.Error()})
	return err
}

// Sync runs one cycle. Concurrent calls share the cycle already in flight
// and receive its result. Without sync settings it returns a skipped result
// and touches no network.
func (o *Orchestrator) Sync(ctx context.Context) (*Result, error) {
	v, err, shared := o.group.Do("sync", func() (any, error) {
		return o.runSync(ctx)
	})
	if shared {
		o.logger.Debug("joined in-flight sync")
	}
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// AutoSync runs a cycle and logs instead of returning failures.
func (o *Orchestrator) AutoSync(ctx context.Context) {
	res, err := o.Sync(ctx)
	if err != nil {
		o.logger.Warn("auto sync failed", "error", err)
		return
	}
	if res.Skipped {
		o.logger.Debug("sync not configured, skipping")
	}
}

func (o *Orchestrator) runSync(ctx context.Context) (*Result, error) {
	settings, err := o.state.SyncSettings()
	if err != nil {
		return nil, o.fail(fmt.Errorf("read sync settings: %w", err))
	}
	rs, err := o.remotes(settings)
	if errors.Is(err, model.ErrNotConfigured) {
		o.setState(StateDisabled)
		return &Result{Skipped: true}, nil
	}
	if err != nil {
		return nil, o.fail(fmt.Errorf("open remote: %w", err))
	}

	start := o.now()
	o.logger.Info("sync started")

	o.setState(StateFetching)
	snap, err := o.fetch(ctx, rs)
	if err != nil {
		return nil, o.fail(err)
	}

	o.setState(StateMerging)
	merged, phrases, err := o.mergeLocal(snap)
	if err != nil {
		return nil, o.fail(err)
	}

	o.setState(StatePushing)
	data, err := remote.Encode(remote.NewSnapshot(merged, phrases, o.now()))
	if err != nil {
		return nil, o.fail(err)
	}
	revision := ""
	if snap != nil {
		revision = snap.Revision
	}
	newRev, attempts, err := o.push(ctx, rs, data, revision)
	if err != nil {
		o.logger.Error("push failed", "attempts", attempts, "error", err)
		return nil, o.fail(err)
	}

	now := o.now()
	if err := o.state.SetLastSync(now); err != nil {
		o.logger.Warn("record last sync", "error", err)
	}
	o.setStatus(Status{State: StateIdle, LastSync: &now})

	o.logger.Info("sync complete",
		"members", len(merged.Users),
		"phrases", len(phrases),
		"attempts", attempts,
		"duration", time.Since(start))
	return &Result{
		Members:  len(merged.Users),
		Phrases:  len(phrases),
		Revision: newRev,
		Attempts: attempts,
	}, nil
}

// fetch reads the remote snapshot. A missing blob means first sync.
func (o *Orchestrator) fetch(ctx context.Context, rs remote.Store) (*model.Snapshot, error) {
	obj, err := rs.Fetch(ctx)
	if errors.Is(err, model.ErrNotFound) {
		o.logger.Info("no remote snapshot, first sync")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	snap, err := remote.Decode(obj)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// mergeLocal merges the family and every member's phrase list, adopting
// both locally. It returns the merged family and the flattened phrase list
// to push.
func (o *Orchestrator) mergeLocal(snap *model.Snapshot) (*model.Family, []model.Phrase, error) {
	var flat []model.Phrase

	merged, err := o.family.Apply(func(local *model.Family) (*model.Family, error) {
		merged := merge.Family(local, snap)
		o.setState(StatePersistingLocal)

		remoteByMember := snap.PhrasesByMember()
		members := make(map[string]bool, len(merged.Users))
		for _, m := range merged.Users {
			members[m.ID] = true
			localList, err := o.phrases.List(m.ID)
			if err != nil {
				return nil, err
			}
			list := merge.Phrases(localList, remoteByMember[m.ID])
			if err := o.phrases.Replace(m.ID, list); err != nil {
				return nil, err
			}
			for _, p := range list {
				p.MemberID = m.ID
				flat = append(flat, p)
			}
		}
		// Phrases of members this device does not know are carried through.
		if snap != nil {
			for _, p := range snap.Phrases {
				if !members[p.MemberID] {
					flat = append(flat, p)
				}
			}
		}
		return merged, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("persist merged state: %w", err)
	}
	return merged, flat, nil
}

// linearBackoff waits unit, 2*unit, ... and stops after retries waits.
func linearBackoff(unit time.Duration, retries int, observe func(int, time.Duration)) retry.Backoff {
	var mu sync.Mutex
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		mu.Lock()
		defer mu.Unlock()
		attempt++
		if attempt > retries {
			return 0, true
		}
		d := time.Duration(attempt) * unit
		if observe != nil {
			observe(attempt, d)
		}
		return d, false
	})
}

// push writes data at revision. On conflict it re-reads the revision and
// writes again, up to MaxAttempts writes in total.
func (o *Orchestrator) push(ctx context.Context, rs remote.Store, data []byte, revision string) (string, int, error) {
	attempts := 0
	var newRev string

	b := linearBackoff(o.cfg.RetryUnit, o.cfg.MaxAttempts-1, func(n int, d time.Duration) {
		o.logger.Warn("remote conflict, retrying", "attempt", n, "max", o.cfg.MaxAttempts, "backoff", d)
		if o.onRetry != nil {
			o.onRetry(n, d)
		}
	})

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if attempts > 0 {
			obj, err := rs.Fetch(ctx)
			switch {
			case errors.Is(err, model.ErrNotFound):
				revision = ""
			case err != nil:
				return fmt.Errorf("refresh revision: %w", err)
			default:
				revision = obj.Revision
			}
		}
		attempts++

		rev, err := rs.Write(ctx, data, revision, o.cfg.CommitMessage)
		if errors.Is(err, model.ErrConflict) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		newRev = rev
		return nil
	})
	if err != nil {
		return "", attempts, fmt.Errorf("push snapshot after %d attempts: %w", attempts, err)
	}
	return newRev, attempts, nil
}
