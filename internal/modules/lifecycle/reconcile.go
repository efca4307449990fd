// README: Reconciliation sweep for records left in both the ongoing and a terminal collection.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"opsconsole/internal/modules/events"
)

// Duplicate is an ongoing record whose id already exists in a terminal collection.
type Duplicate struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
}

type ReconcileReport struct {
	Domain     Domain      `json:"domain"`
	Applied    bool        `json:"applied"`
	Duplicates []Duplicate `json:"duplicates"`
	// Removed counts ongoing copies deleted; Skipped counts ids held by a
	// concurrent operation.
	Removed int `json:"removed"`
	Skipped int `json:"skipped"`
}

var reconcileActor = Actor{UID: "system", Name: "reconciler"}

// Reconcile finds ids present in both the ongoing and a terminal collection.
// The terminal copy wins; with apply the ongoing copy is deleted.
func (s *Service) Reconcile(ctx context.Context, domain Domain, apply bool) (ReconcileReport, error) {
	start := time.Now()
	rep, err := s.reconcile(ctx, domain, apply)
	s.observe(domain, "reconcile", start, err)
	return rep, err
}

func (s *Service) reconcile(ctx context.Context, domain Domain, apply bool) (ReconcileReport, error) {
	cfg, err := LookupDomain(string(domain))
	if err != nil {
		return ReconcileReport{}, err
	}
	rep := ReconcileReport{Domain: cfg.Domain, Applied: apply, Duplicates: []Duplicate{}}

	var ongoing []string
	terminal := map[string]string{}
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		if ongoing, err = s.store.IDs(ctx, cfg.Ongoing); err != nil {
			return err
		}
		// Completed first so it wins when an id sits in both terminal collections.
		for _, col := range []string{cfg.Cancelled, cfg.Completed} {
			ids, err := s.store.IDs(ctx, col)
			if err != nil {
				return err
			}
			for _, id := range ids {
				terminal[id] = col
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileReport{}, err
	}

	for _, id := range ongoing {
		col, ok := terminal[id]
		if !ok {
			continue
		}
		rep.Duplicates = append(rep.Duplicates, Duplicate{ID: id, Collection: col})
		if !apply {
			continue
		}
		err := s.locked(ctx, cfg, id, func(ctx context.Context) error {
			return s.store.Delete(ctx, cfg.Ongoing, id)
		})
		switch {
		case errors.Is(err, ErrInFlight):
			rep.Skipped++
			continue
		case err != nil:
			return rep, err
		}
		rep.Removed++
		s.appendEvent(ctx, cfg, events.KindResume, id, "", "", col, reconcileActor)
	}
	return rep, nil
}

// RunReconciler sweeps every domain on each tick until ctx is done.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration, apply bool) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, cfg := range Domains() {
				rep, err := s.Reconcile(ctx, cfg.Domain, apply)
				if err != nil {
					s.log.Warn("reconcile failed", zap.String("domain", string(cfg.Domain)), zap.Error(err))
					continue
				}
				if len(rep.Duplicates) > 0 {
					s.log.Info("reconcile found duplicates",
						zap.String("domain", string(cfg.Domain)),
						zap.Int("duplicates", len(rep.Duplicates)),
						zap.Int("removed", rep.Removed),
						zap.Bool("applied", apply),
					)
				}
			}
		}
	}
}
