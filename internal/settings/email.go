package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/opsconductor/internal/audit"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// KeyEmailTarget stores the id of the target used for outbound system email.
const KeyEmailTarget = "notifications.email_target_id"

var (
	// ErrNoEmailTarget is returned when no email target is configured.
	ErrNoEmailTarget = errors.New("no email target configured")
	// ErrNotEmailTarget is returned when a target cannot send email.
	ErrNotEmailTarget = errors.New("target is not an eligible email target")
)

// EmailTargetLister lists targets able to send email. Satisfied by
// *target.Service.
type EmailTargetLister interface {
	ListEmailTargets(ctx context.Context) ([]*models.Target, error)
}

// EmailTarget holds the system email target id. The value is loaded from
// the store on first use and cached; Set and Clear write through.
type EmailTarget struct {
	store   *Store
	targets EmailTargetLister
	audit   audit.Logger
	logger  *zap.Logger

	mu     sync.RWMutex
	loaded bool
	id     int64
}

// NewEmailTarget creates the holder. auditor may be nil.
func NewEmailTarget(store *Store, targets EmailTargetLister, auditor audit.Logger, logger *zap.Logger) *EmailTarget {
	if auditor == nil {
		auditor = audit.Discard{}
	}
	return &EmailTarget{store: store, targets: targets, audit: auditor, logger: logger}
}

// Get returns the configured target id, or ErrNoEmailTarget.
func (e *EmailTarget) Get(ctx context.Context) (int64, error) {
	e.mu.RLock()
	if e.loaded {
		id := e.id
		e.mu.RUnlock()
		if id == 0 {
			return 0, ErrNoEmailTarget
		}
		return id, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		id, err := e.load(ctx)
		if err != nil {
			return 0, err
		}
		e.id, e.loaded = id, true
	}
	if e.id == 0 {
		return 0, ErrNoEmailTarget
	}
	return e.id, nil
}

func (e *EmailTarget) load(ctx context.Context) (int64, error) {
	st, err := e.store.Get(ctx, KeyEmailTarget)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(st.Value, 10, 64)
	if err != nil {
		e.logger.Warn("ignoring malformed email target setting", zap.String("value", st.Value))
		return 0, nil
	}
	return id, nil
}

// Resolve returns the configured target if it is still eligible.
func (e *EmailTarget) Resolve(ctx context.Context) (*models.Target, error) {
	id, err := e.Get(ctx)
	if err != nil {
		return nil, err
	}
	t, err := e.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: target %d", ErrNotEmailTarget, id)
	}
	return t, nil
}

// Eligible lists the targets Set accepts.
func (e *EmailTarget) Eligible(ctx context.Context) ([]*models.Target, error) {
	return e.targets.ListEmailTargets(ctx)
}

// Set stores id after checking it is an eligible email target.
func (e *EmailTarget) Set(ctx context.Context, id int64) error {
	t, err := e.find(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: target %d", ErrNotEmailTarget, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Set(ctx, KeyEmailTarget, strconv.FormatInt(id, 10)); err != nil {
		return err
	}
	previous := e.id
	e.id, e.loaded = id, true

	e.audit.LogEvent(ctx, audit.Event{
		EventType:    audit.EventEmailTargetChanged,
		ResourceType: "setting",
		ResourceID:   KeyEmailTarget,
		Action:       "set",
		Details:      map[string]any{"target_id": id, "target_name": t.Name, "previous_target_id": previous},
		Severity:     audit.SeverityMedium,
	})
	return nil
}

// Clear removes the configured email target.
func (e *EmailTarget) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Delete(ctx, KeyEmailTarget); err != nil {
		return err
	}
	e.id, e.loaded = 0, true

	e.audit.LogEvent(ctx, audit.Event{
		EventType:    audit.EventEmailTargetChanged,
		ResourceType: "setting",
		ResourceID:   KeyEmailTarget,
		Action:       "clear",
		Severity:     audit.SeverityMedium,
	})
	return nil
}

func (e *EmailTarget) find(ctx context.Context, id int64) (*models.Target, error) {
	targets, err := e.targets.ListEmailTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list email targets: %w", err)
	}
	for _, t := range targets {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}
