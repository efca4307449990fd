// README: Record store backed by Cloud Firestore; relocation runs in one transaction.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, classifyFirestore(err)
	}
	return fromSnapshot(snap), nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := s.client.Collection(collection).Doc(id).Set(ctx, toFirestore(fields))
	return classifyFirestore(err)
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields map[string]any, expectVersion int64) error {
	ref := s.client.Collection(collection).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return classifyFirestore(err)
		}
		if fromSnapshot(snap).Version() != expectVersion {
			return ErrConflict
		}
		updates := make([]firestore.Update, 0, len(fields)+1)
		for k, v := range toFirestore(fields) {
			updates = append(updates, firestore.Update{Path: k, Value: v})
		}
		updates = append(updates, firestore.Update{Path: FieldVersion, Value: expectVersion + 1})
		return tx.Update(ref, updates)
	})
	return classifyFirestore(err)
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx)
	return classifyFirestore(err)
}

func (s *FirestoreStore) Relocate(ctx context.Context, op RelocateOp) (RelocateResult, error) {
	srcRef := s.client.Collection(op.From).Doc(op.ID)
	dstRef := s.client.Collection(op.To).Doc(op.ID)

	var (
		res   RelocateResult
		built map[string]any
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// The function may run more than once under contention.
		res, built = RelocateResult{}, nil

		srcSnap, err := tx.Get(srcRef)
		if err != nil {
			return classifyFirestore(err)
		}
		dstSnap, dstErr := tx.Get(dstRef)
		if dstErr != nil && status.Code(dstErr) != codes.NotFound {
			return classifyFirestore(dstErr)
		}

		fields, err := op.Build(fromSnapshot(srcSnap))
		if err != nil {
			return err
		}
		if dstErr == nil {
			res = RelocateResult{Record: fromSnapshot(dstSnap), Resumed: true}
			return tx.Delete(srcRef)
		}
		built = fields
		if err := tx.Create(dstRef, toFirestore(fields)); err != nil {
			return err
		}
		return tx.Delete(srcRef)
	})
	if err != nil {
		return RelocateResult{}, classifyFirestore(err)
	}
	if res.Resumed {
		return res, nil
	}

	// Read back so server timestamps carry their committed values.
	if rec, err := s.Get(ctx, op.To, op.ID); err == nil {
		return RelocateResult{Record: rec}, nil
	}
	return RelocateResult{Record: &Record{ID: op.ID, Fields: built}}, nil
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, q Query) (Page, error) {
	col := s.client.Collection(collection)
	query := col.Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, "==", f.Value)
	}
	if q.OrderBy != "" {
		query = query.OrderBy(q.OrderBy, firestore.Desc)
	}
	if q.After != "" {
		cursor, err := col.Doc(q.After).Get(ctx)
		if err != nil {
			return Page{}, classifyFirestore(err)
		}
		query = query.StartAfter(cursor)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit + 1)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var page Page
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return Page{}, classifyFirestore(err)
		}
		page.Records = append(page.Records, fromSnapshot(snap))
	}
	if q.Limit > 0 && len(page.Records) > q.Limit {
		page.Records = page.Records[:q.Limit]
		page.NextCursor = page.Records[q.Limit-1].ID
	}
	return page, nil
}

func (s *FirestoreStore) IDs(ctx context.Context, collection string) ([]string, error) {
	iter := s.client.Collection(collection).DocumentRefs(ctx)
	var ids []string
	for {
		ref, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyFirestore(err)
		}
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

func fromSnapshot(snap *firestore.DocumentSnapshot) *Record {
	return &Record{ID: snap.Ref.ID, Fields: snap.Data()}
}

func toFirestore(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = firestore.ServerTimestamp
			continue
		}
		out[k] = v
	}
	return out
}

// classifyFirestore maps gRPC status codes onto the lifecycle error taxonomy.
func classifyFirestore(err error) error {
	if err == nil || isClassified(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.Aborted, codes.FailedPrecondition, codes.AlreadyExists:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
