// README: Lifecycle service implements creation, status transitions and reads for every domain.
package lifecycle

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"opsconsole/internal/modules/events"
	"opsconsole/internal/modules/pricing"
	"opsconsole/internal/types"
)

// EventSink receives one audit event per committed change.
type EventSink interface {
	Append(ctx context.Context, e events.Event) error
}

// Notifier delivers creation notifications. Dispatch must not block.
type Notifier interface {
	Dispatch(domain, id string, fields map[string]any)
}

type Pricing interface {
	Quote(ctx context.Context, domain string, in pricing.Input) (pricing.Breakdown, error)
}

type RouteEstimator interface {
	GetTravelEstimate(ctx context.Context, origin, destination string) (time.Duration, string, error)
}

// Metrics observes every service operation with its outcome kind.
type Metrics interface {
	ObserveOperation(domain, op, outcome string, elapsed time.Duration)
}

type Deps struct {
	Store    RecordStore
	Guard    Guard
	Events   EventSink
	Notifier Notifier
	Pricing  Pricing
	Routes   RouteEstimator
	Metrics  Metrics
	Logger   *zap.Logger
	// Timeout bounds each operation's store round-trips.
	Timeout time.Duration
}

type Service struct {
	store    RecordStore
	guard    Guard
	events   EventSink
	notifier Notifier
	pricing  Pricing
	routes   RouteEstimator
	metrics  Metrics
	log      *zap.Logger
	timeout  time.Duration
}

const defaultTimeout = 10 * time.Second

func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		guard:    d.Guard,
		events:   d.Events,
		notifier: d.Notifier,
		pricing:  d.Pricing,
		routes:   d.Routes,
		metrics:  d.Metrics,
		log:      d.Logger,
		timeout:  d.Timeout,
	}
	if s.guard == nil {
		s.guard = NewLocalGuard()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	s.log = s.log.Named("lifecycle")
	return s
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Record, error) {
	start := time.Now()
	rec, err := s.create(ctx, cmd)
	s.observe(cmd.Domain, "create", start, err)
	return rec, err
}

func (s *Service) create(ctx context.Context, cmd CreateCommand) (*Record, error) {
	cfg, err := LookupDomain(string(cmd.Domain))
	if err != nil {
		return nil, err
	}
	fields := cloneFields(cmd.Fields)
	for _, k := range reservedFields {
		delete(fields, k)
	}
	for _, k := range cfg.RequiredFields {
		if isBlank(fields[k]) {
			return nil, invalidField(k, "required")
		}
	}

	if err := s.applyPricing(ctx, cfg, fields); err != nil {
		return nil, err
	}
	if cfg.Domain == DomainPickDrop {
		s.applyRoute(ctx, fields)
	}

	fields[FieldStatus] = cfg.InitialStatus
	fields[FieldCreatedAt] = ServerTimestamp
	fields[FieldUpdatedAt] = ServerTimestamp
	fields[FieldVersion] = int64(1)
	fields[FieldCreatedBy] = cmd.Actor.fields()
	if cfg.RequiresDeliveryCode {
		code, err := newDeliveryCode()
		if err != nil {
			return nil, fmt.Errorf("delivery code: %w", err)
		}
		fields[FieldDeliveryCode] = code
	}

	id := types.NewID().String()
	var rec *Record
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		if err := s.store.Set(ctx, cfg.Ongoing, id, fields); err != nil {
			return err
		}
		var err error
		rec, err = s.store.Get(ctx, cfg.Ongoing, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.appendEvent(ctx, cfg, events.KindCreate, id, "", rec.Status(), cfg.Ongoing, cmd.Actor)
	if s.notifier != nil {
		s.notifier.Dispatch(string(cfg.Domain), id, rec.Fields)
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, domain Domain, id string) (*Record, error) {
	start := time.Now()
	rec, err := s.get(ctx, domain, id)
	s.observe(domain, "get", start, err)
	return rec, err
}

func (s *Service) get(ctx context.Context, domain Domain, id string) (*Record, error) {
	cfg, err := LookupDomain(string(domain))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, invalidField("id", "required")
	}
	var rec *Record
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.store.Get(ctx, cfg.Ongoing, id)
		return err
	})
	return rec, err
}

// ListOngoing pages through a domain's in-flight records, newest first.
func (s *Service) ListOngoing(ctx context.Context, domain Domain, page PageRequest) (Page, error) {
	start := time.Now()
	cfg, err := LookupDomain(string(domain))
	if err != nil {
		s.observe(domain, "list", start, err)
		return Page{}, err
	}
	out, err := s.query(ctx, cfg.Ongoing, FieldCreatedAt, page)
	s.observe(domain, "list", start, err)
	return out, err
}

// History pages through completed or cancelled records ordered by their
// terminal timestamp, newest first.
func (s *Service) History(ctx context.Context, domain Domain, kind TerminalKind, page PageRequest) (Page, error) {
	start := time.Now()
	out, err := s.history(ctx, domain, kind, page)
	s.observe(domain, "history", start, err)
	return out, err
}

func (s *Service) history(ctx context.Context, domain Domain, kind TerminalKind, page PageRequest) (Page, error) {
	cfg, err := LookupDomain(string(domain))
	if err != nil {
		return Page{}, err
	}
	collection, ok := cfg.TerminalCollection(TerminalKind(NormalizeStatus(string(kind))))
	if !ok {
		return Page{}, invalidField("kind", "must be completed or cancelled")
	}
	orderBy := FieldDeliveredAt
	if collection == cfg.Cancelled {
		orderBy = FieldCancelledAt
	}
	return s.query(ctx, collection, orderBy, page)
}

func (s *Service) query(ctx context.Context, collection, orderBy string, page PageRequest) (Page, error) {
	var out Page
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.store.Query(ctx, collection, Query{
			OrderBy: orderBy,
			Limit:   page.limit(),
			After:   strings.TrimSpace(page.Cursor),
		})
		return err
	})
	return out, err
}

// TransitionStatus applies a requested status. Active statuses patch the
// ongoing document; "cancelled" relocates it to the cancelled collection.
// Completion always goes through Complete.
func (s *Service) TransitionStatus(ctx context.Context, cmd TransitionCommand) (Result, error) {
	start := time.Now()
	res, err := s.transition(ctx, cmd)
	s.observe(cmd.Domain, "transition", start, err)
	return res, err
}

func (s *Service) transition(ctx context.Context, cmd TransitionCommand) (Result, error) {
	cfg, err := LookupDomain(string(cmd.Domain))
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(cmd.RecordID) == "" {
		return Result{}, invalidField("id", "required")
	}
	if strings.TrimSpace(cmd.Status) == "" {
		return Result{}, invalidField("status", "required")
	}

	var res Result
	err = s.locked(ctx, cfg, cmd.RecordID, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, cfg.Ongoing, cmd.RecordID)
		if err != nil {
			return err
		}

		switch NormalizeStatus(cmd.Status) {
		case StatusCancelled:
			res, err = s.cancel(ctx, cfg, current, cmd.Actor)
			return err
		case StatusCompleted:
			// Every domain gates completion on a code or earnings.
			return invalidField("status", "completion requires the complete operation")
		}

		display, ok := cfg.ActiveStatus(cmd.Status)
		if !ok {
			return fmt.Errorf("%w: %q is not a %s status", ErrInvalidStatus, cmd.Status, cfg.Name)
		}
		rec, err := s.patch(ctx, cfg, current, display)
		if err != nil {
			return err
		}
		res = Result{Record: rec, Collection: cfg.Ongoing}
		s.appendEvent(ctx, cfg, events.KindPatch, current.ID, current.Status(), display, cfg.Ongoing, cmd.Actor)
		return nil
	})
	return res, err
}

// PatchStatus writes free text into status in place. It never relocates,
// even when the text reads like a terminal status.
func (s *Service) PatchStatus(ctx context.Context, cmd NoteCommand) (Result, error) {
	start := time.Now()
	res, err := s.patchNote(ctx, cmd)
	s.observe(cmd.Domain, "note", start, err)
	return res, err
}

func (s *Service) patchNote(ctx context.Context, cmd NoteCommand) (Result, error) {
	cfg, err := LookupDomain(string(cmd.Domain))
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(cmd.RecordID) == "" {
		return Result{}, invalidField("id", "required")
	}
	note := strings.TrimSpace(cmd.Note)
	if note == "" {
		return Result{}, invalidField("note", "required")
	}

	var res Result
	err = s.locked(ctx, cfg, cmd.RecordID, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, cfg.Ongoing, cmd.RecordID)
		if err != nil {
			return err
		}
		rec, err := s.patch(ctx, cfg, current, note)
		if err != nil {
			return err
		}
		res = Result{Record: rec, Collection: cfg.Ongoing}
		s.appendEvent(ctx, cfg, events.KindNote, current.ID, current.Status(), note, cfg.Ongoing, cmd.Actor)
		return nil
	})
	return res, err
}

func (s *Service) patch(ctx context.Context, cfg DomainConfig, current *Record, status string) (*Record, error) {
	err := s.store.Update(ctx, cfg.Ongoing, current.ID, map[string]any{
		FieldStatus:    status,
		FieldUpdatedAt: ServerTimestamp,
	}, current.Version())
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, cfg.Ongoing, current.ID)
}

func (s *Service) cancel(ctx context.Context, cfg DomainConfig, current *Record, actor Actor) (Result, error) {
	out, err := s.store.Relocate(ctx, RelocateOp{
		From: cfg.Ongoing,
		To:   cfg.Cancelled,
		ID:   current.ID,
		Build: func(src *Record) (map[string]any, error) {
			fields := cloneFields(src.Fields)
			fields[FieldStatus] = StatusCancelled
			fields[FieldActor] = actor.fields()
			fields[FieldCancelledAt] = ServerTimestamp
			fields[FieldVersion] = src.Version() + 1
			return fields, nil
		},
	})
	if err != nil {
		return Result{}, err
	}
	kind := events.KindCancel
	if out.Resumed {
		kind = events.KindResume
	}
	s.appendEvent(ctx, cfg, kind, current.ID, current.Status(), out.Record.Status(), cfg.Cancelled, actor)
	return Result{Record: out.Record, Collection: cfg.Cancelled, Relocated: true, Resumed: out.Resumed}, nil
}

// locked runs fn under the record's in-flight guard and the operation timeout.
func (s *Service) locked(ctx context.Context, cfg DomainConfig, id string, fn func(ctx context.Context) error) error {
	release, err := s.guard.Acquire(ctx, guardKey(cfg.Domain, id))
	if err != nil {
		return unavailable(err)
	}
	defer release()
	return s.withTimeout(ctx, fn)
}

func (s *Service) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return unavailable(fn(ctx))
}

func (s *Service) applyPricing(ctx context.Context, cfg DomainConfig, fields map[string]any) error {
	if s.pricing == nil {
		return nil
	}
	var (
		in      pricing.Input
		present bool
	)
	for key, dst := range map[string]*int64{"subtotal": &in.Subtotal, "tip": &in.Tip, "deliveryFee": &in.DeliveryFee} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		n, ok := asInt64(v)
		if !ok {
			return invalidField(key, "must be an integer amount in minor units")
		}
		*dst = n
		present = true
	}
	if !present {
		return nil
	}
	b, err := s.pricing.Quote(ctx, string(cfg.Domain), in)
	if err != nil {
		return invalidField("pricing", err.Error())
	}
	fields["platformFee"] = b.PlatformFee
	fields["earning"] = b.Earning
	fields["total"] = b.Total
	fields["currency"] = b.Currency
	return nil
}

// applyRoute stores a driving estimate between sender and receiver. Failures
// only cost the estimate.
func (s *Service) applyRoute(ctx context.Context, fields map[string]any) {
	if s.routes == nil {
		return
	}
	origin, dest := locationText(fields["senderLocation"]), locationText(fields["receiverLocation"])
	if origin == "" || dest == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	d, distance, err := s.routes.GetTravelEstimate(ctx, origin, dest)
	if err != nil {
		s.log.Warn("route estimate failed", zap.String("origin", origin), zap.String("destination", dest), zap.Error(err))
		return
	}
	fields["routeMinutes"] = int64(d.Round(time.Minute) / time.Minute)
	fields["routeDistance"] = distance
}

func (s *Service) appendEvent(ctx context.Context, cfg DomainConfig, kind events.Kind, id, from, to, collection string, actor Actor) {
	if s.events == nil {
		return
	}
	err := s.events.Append(context.WithoutCancel(ctx), events.Event{
		Domain:     string(cfg.Domain),
		RecordID:   id,
		Kind:       kind,
		FromStatus: from,
		ToStatus:   to,
		Collection: collection,
		ActorUID:   actor.UID,
		ActorName:  actor.Name,
	})
	if err != nil {
		s.log.Warn("append transition event failed",
			zap.String("domain", string(cfg.Domain)),
			zap.String("id", id),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func (s *Service) observe(domain Domain, op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(string(domain), op, Kind(err), time.Since(start))
	}
	if err != nil && Kind(err) == "store_unavailable" {
		s.log.Error("store operation failed", zap.String("domain", string(domain)), zap.String("op", op), zap.Error(err))
	}
}

// newDeliveryCode returns a four digit code in [1000, 9999].
func newDeliveryCode() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return 0, err
	}
	return n.Int64() + 1000, nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// locationText accepts a plain address or a location object with an address.
func locationText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if a, ok := t["address"].(string); ok {
			return strings.TrimSpace(a)
		}
	}
	return ""
}
