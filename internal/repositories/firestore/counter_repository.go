package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/plateful/api/internal/platform/firestore"
	"github.com/plateful/api/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	MaxValue     *int64    `firestore:"maxValue,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out order sequence numbers through transactional
// increments, so two concurrent checkouts never share a number.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
	}, nil
}

// Next atomically increments the counter identified by counterID and returns
// the new value. A missing counter is created on first use.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, errors.New("counter repository: counter id is required")
	}
	if step < 0 {
		return 0, fmt.Errorf("counter repository: step must be positive, got %d", step)
	}

	var nextValue int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			nextValue, err = r.createCounter(tx, ref, step)
			return err
		}
		if err != nil {
			return err
		}

		var doc counterDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore counters decode %s: %w", id, err)
		}
		nextValue, err = r.advanceCounter(tx, ref, id, doc, step)
		return err
	})
	if err != nil {
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return nextValue, nil
}

// createCounter seeds a counter on first use. Its initial value equals one
// increment so the first order gets sequence 1 with the default step.
func (r *CounterRepository) createCounter(tx *firestore.Transaction, ref *firestore.DocumentRef, step int64) (int64, error) {
	if step <= 0 {
		step = 1
	}
	doc := counterDocument{
		CurrentValue: step,
		Step:         step,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := tx.Create(ref, doc); err != nil {
		return 0, err
	}
	return doc.CurrentValue, nil
}

func (r *CounterRepository) advanceCounter(tx *firestore.Transaction, ref *firestore.DocumentRef, id string, doc counterDocument, step int64) (int64, error) {
	increment := step
	if increment <= 0 {
		increment = doc.Step
	}
	if increment <= 0 {
		increment = 1
	}

	next := doc.CurrentValue + increment
	if doc.MaxValue != nil && next > *doc.MaxValue {
		return 0, pfirestore.NewConflict("counters.next",
			fmt.Errorf("counter %s exceeded max value %d", id, *doc.MaxValue))
	}

	doc.CurrentValue = next
	doc.Step = increment
	doc.UpdatedAt = time.Now().UTC()
	if err := tx.Set(ref, doc, firestore.MergeAll); err != nil {
		return 0, err
	}
	return next, nil
}

// Configure adjusts step size, max value, or current value for a counter.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if r == nil || r.provider == nil {
		return errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return errors.New("counter repository: counter id is required")
	}

	payload := map[string]any{"updatedAt": time.Now().UTC()}
	if cfg.Step > 0 {
		payload["step"] = cfg.Step
	}
	if cfg.MaxValue != nil {
		payload["maxValue"] = *cfg.MaxValue
	}
	if cfg.InitialValue != nil {
		payload["currentValue"] = *cfg.InitialValue
	}

	ref, err := r.counters.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, payload, firestore.MergeAll); err != nil {
		return pfirestore.WrapError("counters.configure", err)
	}
	return nil
}
