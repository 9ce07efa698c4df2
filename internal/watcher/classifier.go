package watcher

import (
	"context"
	"errors"
	"fmt"

	"volowatch/internal/activity"
	"volowatch/internal/ledger"
	logx "volowatch/pkg/logx"
)

// Skip kinds reported in Classification.Skipped.
const (
	KindNormalization = "normalization"
	KindMissing       = "missing"
)

// Normalizer maps one feed row. feed.Normalizer satisfies it.
type Normalizer interface {
	Normalize(r activity.Raw) (activity.Activity, error)
}

// NormalizeFunc adapts a plain function to Normalizer.
type NormalizeFunc func(activity.Raw) (activity.Activity, error)

func (f NormalizeFunc) Normalize(r activity.Raw) (activity.Activity, error) { return f(r) }

// ItemError is one record dropped from a batch.
type ItemError struct {
	ID   string
	Kind string
	Err  error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, e.Err)
}

// Classification is the outcome of one batch.
type Classification struct {
	New     []activity.Activity // feed order
	Updated int
	Skipped []ItemError
}

// Classifier records a batch in the ledger and reports which ids were new.
type Classifier struct {
	store ledger.Store
	norm  Normalizer
	log   logx.Logger
}

func NewClassifier(store ledger.Store, norm Normalizer, log logx.Logger) *Classifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Classifier{store: store, norm: norm, log: log}
}

// Classify normalizes raws and writes each one to the ledger: unseen ids
// are inserted (with a NEW log entry), seen ids get their spot count and
// last-seen time refreshed.
//
// The first store error aborts the batch and is returned as is. Writes made
// before it stay committed.
func (c *Classifier) Classify(ctx context.Context, raws []activity.Raw) (Classification, error) {
	var res Classification
	if len(raws) == 0 {
		return res, nil
	}

	items := make([]activity.Activity, 0, len(raws))
	for _, r := range raws {
		a, err := c.norm.Normalize(r)
		if err != nil {
			ie := ItemError{ID: r.ID, Kind: KindNormalization, Err: err}
			res.Skipped = append(res.Skipped, ie)
			c.log.Warn("activity skipped",
				logx.String("id", r.ID), logx.String("kind", ie.Kind), logx.Err(err))
			continue
		}
		items = append(items, a)
	}
	if len(items) == 0 {
		return res, nil
	}

	known, err := c.store.KnownIDs(ctx)
	if err != nil {
		return res, err
	}
	if known == nil {
		known = map[string]struct{}{}
	}

	for _, a := range items {
		if _, seen := known[a.ID]; !seen {
			if err := c.store.UpsertNew(ctx, a); err != nil {
				return res, err
			}
			known[a.ID] = struct{}{}
			res.New = append(res.New, a)
			continue
		}
		if err := c.store.TouchExisting(ctx, a.ID, a.SpotsAvailable); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				ie := ItemError{ID: a.ID, Kind: KindMissing, Err: err}
				res.Skipped = append(res.Skipped, ie)
				c.log.Warn("activity skipped",
					logx.String("id", a.ID), logx.String("kind", ie.Kind), logx.Err(err))
				continue
			}
			return res, err
		}
		res.Updated++
	}

	c.log.Debug("batch classified",
		logx.Int("new", len(res.New)),
		logx.Int("updated", res.Updated),
		logx.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}
