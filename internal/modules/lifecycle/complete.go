// README: Completion finalizer: validates the operator's draft and relocates the record to history.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"opsconsole/internal/modules/events"
)

const (
	LocalityLocal    = "local"
	LocalityNonLocal = "non-local"
)

// Complete relocates a record to its domain's completed collection. The
// confirmation code is checked against the record as read inside the
// relocation, so a stale client view cannot complete it.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (Result, error) {
	start := time.Now()
	res, err := s.complete(ctx, cmd)
	s.observe(cmd.Domain, "complete", start, err)
	return res, err
}

func (s *Service) complete(ctx context.Context, cmd CompleteCommand) (Result, error) {
	cfg, err := LookupDomain(string(cmd.Domain))
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(cmd.RecordID) == "" {
		return Result{}, invalidField("id", "required")
	}
	if err := validateDraft(cfg, cmd.Completion); err != nil {
		return Result{}, err
	}

	var res Result
	err = s.locked(ctx, cfg, cmd.RecordID, func(ctx context.Context) error {
		var err error
		res, err = s.finish(ctx, cfg, cmd.RecordID, cmd.Completion, cmd.Actor)
		return err
	})
	return res, err
}

func (s *Service) finish(ctx context.Context, cfg DomainConfig, id string, draft Completion, actor Actor) (Result, error) {
	var from string
	out, err := s.store.Relocate(ctx, RelocateOp{
		From: cfg.Ongoing,
		To:   cfg.Completed,
		ID:   id,
		Build: func(src *Record) (map[string]any, error) {
			if cfg.RequiresDeliveryCode {
				if err := checkCode(src, draft.ConfirmationCode); err != nil {
					return nil, err
				}
			}
			from = src.Status()
			fields := cloneFields(src.Fields)
			for k, v := range draft.fields() {
				fields[k] = v
			}
			fields[FieldStatus] = StatusCompleted
			fields[FieldActor] = actor.fields()
			fields[FieldDeliveredAt] = ServerTimestamp
			fields[FieldVersion] = src.Version() + 1
			return fields, nil
		},
	})
	if err != nil {
		return Result{}, err
	}

	kind := events.KindComplete
	if out.Resumed {
		kind = events.KindResume
	}
	s.appendEvent(ctx, cfg, kind, id, from, out.Record.Status(), cfg.Completed, actor)
	return Result{Record: out.Record, Collection: cfg.Completed, Relocated: true, Resumed: out.Resumed}, nil
}

// validateDraft checks the shape of a completion draft before any store access.
func validateDraft(cfg DomainConfig, c Completion) error {
	if cfg.RequiresDeliveryCode {
		if strings.TrimSpace(c.ConfirmationCode) == "" {
			return invalidField("confirmationCode", "required")
		}
		if _, ok := parseCode(c.ConfirmationCode); !ok {
			return invalidField("confirmationCode", "must be numeric")
		}
	}
	if cfg.RequiresEarnings {
		if c.PlatformFee == nil {
			return invalidField("platformFee", "required")
		}
		if *c.PlatformFee < 0 {
			return invalidField("platformFee", "must not be negative")
		}
		if c.WorkerEarning == nil {
			return invalidField("workerEarning", "required")
		}
		if *c.WorkerEarning < 0 {
			return invalidField("workerEarning", "must not be negative")
		}
	}
	if c.WorkerRating != 0 && (c.WorkerRating < 1 || c.WorkerRating > 5) {
		return invalidField("workerRating", "must be between 1 and 5")
	}
	switch NormalizeStatus(c.LocalNonLocal) {
	case "", LocalityLocal, LocalityNonLocal:
	default:
		return invalidField("localNonLocal", "must be local or non-local")
	}
	return nil
}

// checkCode compares codes as numbers so "0042" and 42 match.
func checkCode(rec *Record, supplied string) error {
	stored, ok := rec.DeliveryCode()
	if !ok {
		return invalidField("deliveryCode", "record has no delivery code")
	}
	got, ok := parseCode(supplied)
	if !ok {
		return invalidField("confirmationCode", "must be numeric")
	}
	if got != stored {
		return invalidField("confirmationCode", "does not match the delivery code")
	}
	return nil
}
