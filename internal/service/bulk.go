package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tierboard/internal/domain"
)

// batch kinds reported to metrics
const (
	kindPlacement    = "placement"
	kindRegistration = "registration"
)

type batchItem struct {
	line int
	ign  string
	run  func(ctx context.Context) error
}

// SubmitBatch applies placement submissions with partial-failure semantics.
// Only whole-batch failures are returned as an error.
func (e *Engine) SubmitBatch(ctx context.Context, batch domain.BatchPlacementSubmission) (*domain.BatchResult, error) {
	items := make([]batchItem, 0, len(batch.Entries))
	for i, sub := range batch.Entries {
		sub := sub
		items = append(items, batchItem{
			line: i + 1,
			ign:  sub.IGN,
			run: func(ctx context.Context) error {
				return e.applySubmission(ctx, sub)
			},
		})
	}
	return e.runBatch(ctx, kindPlacement, items)
}

// RegisterBatch creates the listed players. An ign that already exists is
// reported as that line's failure.
func (e *Engine) RegisterBatch(ctx context.Context, batch domain.BatchRegistration) (*domain.BatchResult, error) {
	items := make([]batchItem, 0, len(batch.Entries))
	for i, sub := range batch.Entries {
		sub := sub
		items = append(items, batchItem{
			line: i + 1,
			ign:  sub.IGN,
			run: func(ctx context.Context) error {
				_, err := e.RegisterPlayer(ctx, domain.NewPlayerRequest{
					IGN:         sub.IGN,
					DisplayName: sub.DisplayName,
				})
				return err
			},
		})
	}
	return e.runBatch(ctx, kindRegistration, items)
}

func (e *Engine) applySubmission(ctx context.Context, sub domain.PlacementSubmission) error {
	if err := domain.ValidateIGN(sub.IGN); err != nil {
		return err
	}
	gm, code, err := e.ledger.Validate(sub.Gamemode, sub.Tier)
	if err != nil {
		return err
	}
	region, err := domain.ParseRegion(sub.Region)
	if err != nil {
		return err
	}

	player, err := e.resolvePlayer(ctx, sub.IGN, region)
	if err != nil {
		return err
	}
	_, err = e.UpsertPlacement(ctx, player.ID, string(gm), string(code))
	return err
}

func (e *Engine) runBatch(ctx context.Context, kind string, items []batchItem) (*domain.BatchResult, error) {
	if limit := e.bulk.MaxEntries; limit > 0 && len(items) > limit {
		return nil, fmt.Errorf("%w: %d entries, limit %d", domain.ErrBatchTooLarge, len(items), limit)
	}
	if err := e.store.Ping(ctx); err != nil {
		return nil, domain.NewStorageError("ping", err)
	}

	// one group per ign keeps input order for repeated igns
	var (
		groups [][]batchItem
		byIGN  = make(map[string]int)
	)
	for _, it := range items {
		idx, ok := byIGN[it.ign]
		if !ok {
			idx = len(groups)
			byIGN[it.ign] = idx
			groups = append(groups, nil)
		}
		groups[idx] = append(groups[idx], it)
	}

	var (
		mu       sync.Mutex
		failures []domain.EntryError
	)
	g, gctx := errgroup.WithContext(ctx)
	workers := e.bulk.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for _, group := range groups {
		group := group
		g.Go(func() error {
			for _, it := range group {
				if err := e.runEntry(gctx, it); err != nil {
					mu.Lock()
					failures = append(failures, entryError(it, err))
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].Line < failures[j].Line })
	result := &domain.BatchResult{
		SuccessCount: len(items) - len(failures),
		FailureCount: len(failures),
		Errors:       failures,
	}
	if result.Errors == nil {
		result.Errors = []domain.EntryError{}
	}
	e.metrics.BatchEntries(kind, result.SuccessCount, result.FailureCount)
	e.logger.Info("batch processed",
		"kind", kind,
		"entries", len(items),
		"succeeded", result.SuccessCount,
		"failed", result.FailureCount,
	)
	return result, nil
}

func (e *Engine) runEntry(ctx context.Context, it batchItem) error {
	if e.bulk.EntryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.bulk.EntryTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return it.run(ctx)
}

func entryError(it batchItem, err error) domain.EntryError {
	msg := fmt.Sprintf("line %d: ign %q: %s", it.line, it.ign, err.Error())
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = fmt.Sprintf("line %d: ign %q: timed out", it.line, it.ign)
	case errors.Is(err, domain.ErrPlayerExists):
		msg = fmt.Sprintf("line %d: ign %q: player already exists", it.line, it.ign)
	case errors.As(err, &verr) && verr.Field == "ign":
		// already names the ign
		msg = fmt.Sprintf("line %d: %s", it.line, err.Error())
	}
	return domain.EntryError{
		Line:    it.line,
		IGN:     it.ign,
		Message: msg,
		Err:     err,
	}
}
