// Package target is the aggregate service for targets, their communication
// methods, and the encrypted credentials bound to those methods.
package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/opsconductor/internal/audit"
	"github.com/HerbHall/opsconductor/internal/methods"
	"github.com/HerbHall/opsconductor/internal/probe"
	"github.com/HerbHall/opsconductor/internal/store"
	"github.com/HerbHall/opsconductor/internal/vault"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// Prober runs live connection tests. Satisfied by *probe.Prober.
type Prober interface {
	Test(ctx context.Context, req probe.Request) *probe.Result
	HealthCheck(ctx context.Context, req probe.Request) *probe.Result
}

// Compile-time interface guard.
var _ Prober = (*probe.Prober)(nil)

// Service coordinates the Target -> CommunicationMethod -> Credential tree.
// Methods are safe for concurrent use.
type Service struct {
	db     *sql.DB
	cipher *vault.Cipher
	prober Prober
	audit  audit.Logger
	logger *zap.Logger

	hosts *hostLocks
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps and method names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a target Service. auditor may be nil.
func NewService(db *sql.DB, cipher *vault.Cipher, prober Prober, auditor audit.Logger, logger *zap.Logger, opts ...Option) *Service {
	if auditor == nil {
		auditor = audit.Discard{}
	}
	s := &Service{
		db:     db,
		cipher: cipher,
		prober: prober,
		audit:  auditor,
		logger: logger,
		hosts:  newHostLocks(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// inTx runs fn in a transaction. Validation and not-found errors pass
// through unchanged; anything else is logged and wrapped in a
// TransactionError after the rollback.
func (s *Service) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	err := store.WithTx(ctx, s.db, fn)
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsNotFound(err) {
		return err
	}
	s.logger.Error("transaction rolled back", zap.String("op", op), zap.Error(err))
	return &TransactionError{Op: op, Err: err}
}

func (s *Service) record(ctx context.Context, eventType, resourceType string, resourceID int64, action string, severity audit.Severity, details map[string]any) {
	s.audit.LogEvent(ctx, audit.Event{
		EventType:    eventType,
		UserID:       audit.UserIDFromContext(ctx),
		ResourceType: resourceType,
		ResourceID:   fmt.Sprint(resourceID),
		Action:       action,
		Details:      details,
		Severity:     severity,
		Timestamp:    s.now(),
	})
}

// canonicalHost normalizes a method host for storage and comparison.
// sqlite hosts are file paths and keep their case.
func canonicalHost(mt models.MethodType, host string) string {
	if mt == models.MethodSQLite {
		return strings.TrimSpace(host)
	}
	return methods.NormalizeHost(host)
}

func validEnvironment(env string) bool {
	switch env {
	case "", models.EnvDevelopment, models.EnvStaging, models.EnvProduction, models.EnvTesting:
		return true
	}
	return false
}

func validStatus(st models.TargetStatus) bool {
	switch st {
	case models.TargetStatusActive, models.TargetStatusInactive, models.TargetStatusMaintenance:
		return true
	}
	return false
}

// credentialInput is the secret material for a new credential.
type credentialInput struct {
	Username   string
	Password   string
	PrivateKey string
	Passphrase string
}

// newCredential classifies and encrypts in for a method of type mt.
func (s *Service) newCredential(mt models.MethodType, in credentialInput, now time.Time) (*models.Credential, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, invalid("username", "username is required")
	}
	credType, err := methods.ClassifyCredential(mt, in.Password != "", in.PrivateKey != "")
	if err != nil {
		return nil, invalid("credentials", "%v", err)
	}

	p := vault.Payload{Type: credType, Username: username}
	if credType.UsesKeySlot() {
		p.PrivateKey = in.PrivateKey
		p.Passphrase = in.Passphrase
	} else {
		p.Password = in.Password
		if credType.CarriesPassphrase() {
			p.Passphrase = in.Passphrase
		}
	}
	blob, err := s.cipher.EncryptPayload(p)
	if err != nil {
		return nil, err
	}
	return &models.Credential{
		CredentialType:       credType,
		CredentialName:       credentialName(username, credType),
		IsPrimary:            true,
		IsActive:             true,
		EncryptedCredentials: blob,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

func credentialName(username string, ct models.CredentialType) string {
	return fmt.Sprintf("%s_%s", username, ct)
}

// checkHosts verifies no other active target uses a host of t's active
// methods. Inactive or non-active-status targets never conflict.
func checkHosts(ctx context.Context, q store.Querier, t *models.Target) error {
	if !t.IsActive || t.Status != models.TargetStatusActive {
		return nil
	}
	for i := range t.Methods {
		m := &t.Methods[i]
		if !m.IsActive || m.Host() == "" {
			continue
		}
		conflict, err := findIPConflict(ctx, q, m.Host(), t.ID)
		if err != nil {
			return err
		}
		if conflict != nil {
			return invalid("ip_address", "IP address %s is already used by active target %q (id %d)",
				m.Host(), conflict.Name, conflict.TargetID)
		}
	}
	return nil
}

// checkOS verifies every active method of t is legal for t's OS.
func checkOS(t *models.Target) error {
	for i := range t.Methods {
		m := &t.Methods[i]
		if m.IsActive && !methods.IsValidForOS(m.MethodType, t.OSType) {
			return invalid("os_type", "method type %q is not supported for os_type %q", m.MethodType, t.OSType)
		}
	}
	return nil
}

// hostsOf returns the hosts of every method of t.
func hostsOf(t *models.Target) []string {
	out := make([]string, 0, len(t.Methods))
	for i := range t.Methods {
		out = append(out, t.Methods[i].Host())
	}
	return out
}

// preload reads the target outside any transaction so callers can take
// host locks before opening one.
func (s *Service) preload(ctx context.Context, id int64) (*models.Target, error) {
	t, err := loadTarget(ctx, s.db, id)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, err
		}
		return nil, fmt.Errorf("load target %d: %w", id, err)
	}
	return t, nil
}
