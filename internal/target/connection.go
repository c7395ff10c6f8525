package target

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/opsconductor/internal/audit"
	"github.com/HerbHall/opsconductor/internal/probe"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// TestOptions tunes an explicit connection test.
type TestOptions struct {
	// TestRecipient makes an SMTP test send a real message to this address.
	TestRecipient string
}

// TestTargetConnection tests the target's primary method. Configuration
// problems and connectivity failures are reported in the Result; the error
// is reserved for lookups that fail.
func (s *Service) TestTargetConnection(ctx context.Context, targetID int64) (*probe.Result, error) {
	t, err := s.GetTargetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if res := validateCommunication(t); res != nil {
		s.recordTest(ctx, t, nil, res, probe.ModeTest)
		return res, nil
	}
	return s.runProbe(ctx, t, t.PrimaryMethod(), probe.ModeTest, TestOptions{}), nil
}

// TestCommunicationMethod tests one method of a target.
func (s *Service) TestCommunicationMethod(ctx context.Context, targetID, methodID int64, opts TestOptions) (*probe.Result, error) {
	t, err := s.GetTargetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	m := t.Method(methodID)
	if m == nil {
		return nil, &NotFoundError{Resource: "communication method", Key: fmt.Sprint(methodID)}
	}
	return s.runProbe(ctx, t, m, probe.ModeTest, opts), nil
}

// HealthCheckTarget probes the primary method without side effects and
// stores the outcome as the target's health status.
func (s *Service) HealthCheckTarget(ctx context.Context, targetID int64) (*probe.Result, error) {
	t, err := s.GetTargetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	res := validateCommunication(t)
	if res != nil {
		s.recordTest(ctx, t, nil, res, probe.ModeHealth)
	} else {
		res = s.runProbe(ctx, t, t.PrimaryMethod(), probe.ModeHealth, TestOptions{})
	}

	health := models.HealthHealthy
	if !res.Success {
		health = models.HealthCritical
	}
	if err := setHealthStatus(ctx, s.db, t.ID, health, s.now()); err != nil {
		return res, fmt.Errorf("store health status: %w", err)
	}
	return res, nil
}

// validateCommunication returns a failed Result when t has nothing to test.
func validateCommunication(t *models.Target) *probe.Result {
	m := t.PrimaryMethod()
	if m == nil {
		return enrich(probe.Failed(probe.KindConfig, "target %q has no active communication method", t.Name), t, nil)
	}
	if m.Host() == "" {
		return enrich(probe.Failed(probe.KindConfig, "communication method %d has no host configured", m.ID), t, m)
	}
	if m.ActiveCredential() == nil {
		return enrich(probe.Failed(probe.KindConfig, "communication method %d has no active credential", m.ID), t, m)
	}
	return nil
}

// runProbe decrypts the method's credential and probes it. No transaction
// is open while the probe runs.
func (s *Service) runProbe(ctx context.Context, t *models.Target, m *models.CommunicationMethod, mode probe.Mode, opts TestOptions) *probe.Result {
	var res *probe.Result
	cred := m.ActiveCredential()
	switch {
	case cred == nil:
		res = probe.Failed(probe.KindConfig, "communication method %d has no active credential", m.ID)
	default:
		payload, err := s.cipher.DecryptPayload(cred.EncryptedCredentials)
		if err != nil {
			s.logger.Warn("credential decryption failed",
				zap.Int64("target_id", t.ID),
				zap.Int64("credential_id", cred.ID),
				zap.Error(err),
			)
			res = probe.Failed(probe.KindConfig, "failed to decrypt credentials")
			break
		}
		req := probe.Request{
			MethodType:    m.MethodType,
			Host:          m.Host(),
			Port:          m.Port(),
			Credential:    payload,
			Config:        m.Config,
			TestRecipient: opts.TestRecipient,
		}
		if mode == probe.ModeHealth {
			res = s.prober.HealthCheck(ctx, req)
		} else {
			res = s.prober.Test(ctx, req)
		}
	}

	enrich(res, t, m)
	s.recordTest(ctx, t, m, res, mode)
	return res
}

func enrich(res *probe.Result, t *models.Target, m *models.CommunicationMethod) *probe.Result {
	res.TargetName = t.Name
	if res.TestedAt.IsZero() {
		res.TestedAt = time.Now().UTC()
	}
	if m != nil {
		res.IPAddress = m.Host()
		res.MethodType = m.MethodType
	}
	return res
}

func (s *Service) recordTest(ctx context.Context, t *models.Target, m *models.CommunicationMethod, res *probe.Result, mode probe.Mode) {
	eventType, severity := audit.EventConnectionTestSuccess, audit.SeverityLow
	if !res.Success {
		eventType, severity = audit.EventConnectionTestFailed, audit.SeverityMedium
	}
	action := "test_connection"
	if mode == probe.ModeHealth {
		eventType, action = audit.EventHealthCheck, "health_check"
	}
	details := map[string]any{
		"success":     res.Success,
		"message":     res.Message,
		"latency_ms":  res.LatencyMs,
		"ip_address":  res.IPAddress,
		"method_type": string(res.MethodType),
		"target_name": res.TargetName,
	}
	if m != nil {
		details["method_id"] = m.ID
	}
	if k := res.Kind(); k != "" {
		details["error_kind"] = string(k)
	}
	s.record(ctx, eventType, "target", t.ID, action, severity, details)
}
