package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dukerupert/famlingo/internal/lookup"
	"github.com/dukerupert/famlingo/internal/merge"
	"github.com/dukerupert/famlingo/internal/model"
)

// AddResult reports where a new phrase ended up.
type AddResult struct {
	Phrase model.Phrase `json:"phrase"`
	Synced bool         `json:"synced"`
	Queued bool         `json:"queued"`
}

// AddPhrase saves p locally, then sends it to the backend. A transient
// backend failure queues it for Drain. A logged-out device keeps the phrase
// local only. Other backend failures are returned with the local copy kept.
func (o *Orchestrator) AddPhrase(ctx context.Context, memberID string, p model.Phrase) (*AddResult, error) {
	f, err := o.family.Get()
	if err != nil {
		return nil, err
	}
	if f.Member(memberID) == nil {
		return nil, fmt.Errorf("add phrase: %w", model.ErrMemberNotFound)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Created == "" {
		p.Created = model.Timestamp(o.now())
	}
	p.MemberID = memberID
	p.FamilyID = f.ID

	if err := o.phrases.Add(memberID, p); err != nil {
		return nil, fmt.Errorf("save phrase locally: %w", err)
	}
	res := &AddResult{Phrase: p}

	_, err = o.backend.AddPhrase(ctx, memberID, f.ID, p)
	switch {
	case err == nil:
		res.Synced = true
	case errors.Is(err, model.ErrTransient):
		if _, qerr := o.queue.Enqueue(memberID, f.ID, p); qerr != nil {
			return nil, multierr.Append(err, qerr)
		}
		res.Queued = true
		o.logger.Info("phrase queued for later sync", "phrase", p.ID, "error", err)
	case errors.Is(err, model.ErrNotAuthenticated):
		o.logger.Debug("not logged in, phrase kept locally", "phrase", p.ID)
	default:
		return res, err
	}
	return res, nil
}

// DeletePhrase removes a phrase locally and from the backend. Backend
// failures are returned, never queued.
func (o *Orchestrator) DeletePhrase(ctx context.Context, memberID, phraseID string) error {
	if err := o.phrases.Remove(memberID, phraseID); err != nil {
		return err
	}
	return o.backend.DeletePhrase(ctx, phraseID)
}

// DrainResult summarizes one pass over the offline queue.
type DrainResult struct {
	Sent      int `json:"sent"`
	Remaining int `json:"remaining"`
}

// Drain sends every queued phrase once. Sent items leave the queue, failed
// ones stay in their original order.
func (o *Orchestrator) Drain(ctx context.Context) (*DrainResult, error) {
	items, err := o.queue.List()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &DrainResult{}, nil
	}

	res := &DrainResult{}
	var errs error
	for _, item := range items {
		if _, err := o.backend.AddPhrase(ctx, item.MemberID, item.FamilyID, item.Phrase); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("phrase %s: %w", item.Phrase.ID, err))
			res.Remaining++
			continue
		}
		if err := o.queue.Remove(item.ID); err != nil {
			errs = multierr.Append(errs, err)
			res.Remaining++
			continue
		}
		res.Sent++
	}

	o.logger.Info("offline queue drained", "sent", res.Sent, "remaining", res.Remaining)
	return res, errs
}

// LoadPhrases returns a member's custom phrases. When the backend answers,
// its list is merged over the local cache and adopted; otherwise the cache
// is served as-is.
func (o *Orchestrator) LoadPhrases(ctx context.Context, memberID string) ([]model.Phrase, error) {
	chain := lookup.NewChain(o.logger,
		lookup.Source[[]model.Phrase]{Name: "backend", Get: func(ctx context.Context) ([]model.Phrase, bool, error) {
			list, err := o.backend.GetPhrases(ctx, memberID)
			return list, err == nil && list != nil, err
		}},
		lookup.Source[[]model.Phrase]{Name: "local", Get: func(context.Context) ([]model.Phrase, bool, error) {
			list, err := o.phrases.List(memberID)
			return list, err == nil, err
		}},
	)

	list, from, ok, err := chain.Get(ctx)
	if !ok {
		return []model.Phrase{}, err
	}
	if from == "local" {
		return list, nil
	}

	local, err := o.phrases.List(memberID)
	if err != nil {
		return nil, err
	}
	merged := merge.Phrases(local, list)
	if err := o.phrases.Replace(memberID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// RefreshFamily merges the backend's copy of the family into the local one.
// When the backend cannot be reached the local family is returned.
func (o *Orchestrator) RefreshFamily(ctx context.Context) (*model.Family, error) {
	chain := lookup.NewChain(o.logger,
		lookup.Source[*model.Family]{Name: "backend", Get: func(ctx context.Context) (*model.Family, bool, error) {
			f, err := o.backend.GetFamily(ctx)
			return f, err == nil && f.Initialized(), err
		}},
		lookup.Source[*model.Family]{Name: "local", Get: func(context.Context) (*model.Family, bool, error) {
			f, err := o.family.Get()
			return f, err == nil, err
		}},
	)

	f, from, ok, err := chain.Get(ctx)
	if !ok {
		return nil, err
	}
	if from == "local" {
		return f, nil
	}
	return o.family.Apply(func(local *model.Family) (*model.Family, error) {
		return merge.Family(local, &model.Snapshot{Family: f}), nil
	})
}
