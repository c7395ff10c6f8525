package target

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/HerbHall/opsconductor/internal/audit"
	"github.com/HerbHall/opsconductor/internal/methods"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// TargetUpdate is a partial update of a target's scalar fields. Nil fields
// are left unchanged.
type TargetUpdate struct {
	Name        *string              `json:"name,omitempty"`
	Description *string              `json:"description,omitempty"`
	OSType      *string              `json:"os_type,omitempty"`
	Environment *string              `json:"environment,omitempty"`
	Location    *string              `json:"location,omitempty"`
	DataCenter  *string              `json:"data_center,omitempty"`
	Region      *string              `json:"region,omitempty"`
	Status      *models.TargetStatus `json:"status,omitempty"`
}

// apply writes u into t and returns the fields that actually changed as
// {"field": {"old": x, "new": y}}.
func (u TargetUpdate) apply(t *models.Target) (map[string]any, error) {
	changes := map[string]any{}
	str := func(field string, dst *string, v *string) {
		if v == nil || *v == *dst {
			return
		}
		changes[field] = map[string]any{"old": *dst, "new": *v}
		*dst = *v
	}

	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, invalid("name", "name must not be empty")
		}
		str("name", &t.Name, &name)
	}
	if u.OSType != nil {
		osType := strings.ToLower(strings.TrimSpace(*u.OSType))
		if osType == "" {
			return nil, invalid("os_type", "os_type must not be empty")
		}
		str("os_type", &t.OSType, &osType)
	}
	if u.Environment != nil && !validEnvironment(*u.Environment) {
		return nil, invalid("environment", "unknown environment %q", *u.Environment)
	}
	str("description", &t.Description, u.Description)
	str("environment", &t.Environment, u.Environment)
	str("location", &t.Location, u.Location)
	str("data_center", &t.DataCenter, u.DataCenter)
	str("region", &t.Region, u.Region)

	if u.Status != nil && *u.Status != t.Status {
		if !validStatus(*u.Status) {
			return nil, invalid("status", "unknown status %q", *u.Status)
		}
		changes["status"] = map[string]any{"old": string(t.Status), "new": string(*u.Status)}
		t.Status = *u.Status
	}
	return changes, nil
}

// UpdateTarget applies a scalar update. Methods and credentials are not
// touched, but an OS change must keep every active method legal and a
// return to active status re-checks host uniqueness.
func (s *Service) UpdateTarget(ctx context.Context, id int64, u TargetUpdate) (*models.Target, error) {
	pre, err := s.preload(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := s.hosts.Lock(hostsOf(pre)...)
	defer unlock()

	var changes map[string]any
	err = s.inTx(ctx, "update target", func(tx *sql.Tx) error {
		t, err := loadTarget(ctx, tx, id)
		if err != nil {
			return err
		}
		if changes, err = u.apply(t); err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		if err := checkOS(t); err != nil {
			return err
		}
		if err := checkHosts(ctx, tx, t); err != nil {
			return err
		}
		t.UpdatedAt = s.now()
		return updateTargetRow(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		s.record(ctx, audit.EventTargetUpdated, "target", id, "update", audit.SeverityMedium, map[string]any{
			"changes": changes,
		})
	}
	return s.GetTargetByID(ctx, id)
}

// ComprehensiveUpdate extends TargetUpdate with method changes and the
// legacy single-method shape.
type ComprehensiveUpdate struct {
	TargetUpdate

	// Methods patches existing methods by id; entries with ID 0 are added.
	// At most one method may become primary per call.
	Methods []MethodPatch

	// Legacy single-method fields, applied to the primary method. When the
	// target has no method they create one.
	IPAddress     *string
	MethodType    *string
	Port          *int
	Username      *string
	Password      SecretField
	SSHKey        SecretField
	SSHPassphrase SecretField
}

func (u ComprehensiveUpdate) legacyPatch() (MethodPatch, bool) {
	p := MethodPatch{
		Host:          u.IPAddress,
		Port:          u.Port,
		Username:      u.Username,
		Password:      u.Password,
		SSHKey:        u.SSHKey,
		SSHPassphrase: u.SSHPassphrase,
	}
	if u.MethodType != nil {
		p.MethodType = *u.MethodType
	}
	used := p.Host != nil || p.Port != nil || p.MethodType != "" || p.touchesCredential()
	return p, used
}

// UpdateTargetComprehensive applies scalar, method, and credential changes
// in one transaction.
func (s *Service) UpdateTargetComprehensive(ctx context.Context, id int64, u ComprehensiveUpdate) (*models.Target, error) {
	pre, err := s.preload(ctx, id)
	if err != nil {
		return nil, err
	}

	locked := hostsOf(pre)
	for _, p := range u.Methods {
		if p.Host != nil {
			locked = append(locked, canonicalHost(models.MethodType(p.MethodType), *p.Host))
		}
		if h := models.ConfigString(p.Config, "host"); h != "" {
			locked = append(locked, canonicalHost(models.MethodType(p.MethodType), h))
		}
	}
	if u.IPAddress != nil {
		locked = append(locked, methods.NormalizeHost(*u.IPAddress))
	}
	unlock := s.hosts.Lock(locked...)
	defer unlock()

	var (
		changes    map[string]any
		methodLogs []map[string]any
		rotations  []int64
	)
	err = s.inTx(ctx, "update target", func(tx *sql.Tx) error {
		t, err := loadTarget(ctx, tx, id)
		if err != nil {
			return err
		}
		if changes, err = u.TargetUpdate.apply(t); err != nil {
			return err
		}

		if err := primaryTransitions(t, u.Methods); err != nil {
			return err
		}

		now := s.now()
		for _, p := range u.Methods {
			if p.ID == 0 {
				m, err := s.addMethodTx(ctx, tx, t, p.addRequest(), now)
				if err != nil {
					return err
				}
				methodLogs = append(methodLogs, map[string]any{"method_id": m.ID, "added": string(m.MethodType)})
				continue
			}
			mc, rotated, err := s.patchMethodTx(ctx, tx, t, p.ID, p, now)
			if err != nil {
				return err
			}
			if len(mc) > 0 {
				mc["method_id"] = p.ID
				methodLogs = append(methodLogs, mc)
			}
			if rotated {
				rotations = append(rotations, p.ID)
			}
		}

		if legacy, ok := u.legacyPatch(); ok {
			mid, mc, rotated, err := s.applyLegacy(ctx, tx, t, legacy, now)
			if err != nil {
				return err
			}
			if len(mc) > 0 {
				mc["method_id"] = mid
				methodLogs = append(methodLogs, mc)
			}
			if rotated {
				rotations = append(rotations, mid)
			}
		}

		if len(changes) == 0 && len(methodLogs) == 0 && len(rotations) == 0 {
			return nil
		}
		if err := checkOS(t); err != nil {
			return err
		}
		if err := checkHosts(ctx, tx, t); err != nil {
			return err
		}
		t.UpdatedAt = now
		return updateTargetRow(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 || len(methodLogs) > 0 {
		details := map[string]any{}
		if len(changes) > 0 {
			details["changes"] = changes
		}
		if len(methodLogs) > 0 {
			details["methods"] = methodLogs
		}
		s.record(ctx, audit.EventTargetUpdated, "target", id, "update_comprehensive", audit.SeverityMedium, details)
	}
	for _, mid := range rotations {
		s.recordRotation(ctx, id, mid)
	}
	return s.GetTargetByID(ctx, id)
}

// primaryTransitions rejects updates that would make more than one method
// primary.
func primaryTransitions(t *models.Target, patches []MethodPatch) error {
	n := 0
	for _, p := range patches {
		if p.IsPrimary == nil || !*p.IsPrimary {
			continue
		}
		if p.ID == 0 {
			n++
			continue
		}
		if m := t.Method(p.ID); m != nil && !m.IsPrimary {
			n++
		}
	}
	if n > 1 {
		return invalid("methods", "only one method may become primary per update, got %d", n)
	}
	return nil
}

// applyLegacy routes the single-method fields to the primary method, or
// adds a primary method when the target has none.
func (s *Service) applyLegacy(ctx context.Context, tx *sql.Tx, t *models.Target, p MethodPatch, now time.Time) (int64, map[string]any, bool, error) {
	primary := t.PrimaryMethod()
	if primary == nil {
		if p.Host == nil || p.MethodType == "" {
			return 0, nil, false, invalid("method_type", "target has no active method; ip_address and method_type are required")
		}
		m, err := s.addMethodTx(ctx, tx, t, p.addRequest(), now)
		if err != nil {
			return 0, nil, false, err
		}
		return m.ID, map[string]any{"added": string(m.MethodType)}, false, nil
	}
	mc, rotated, err := s.patchMethodTx(ctx, tx, t, primary.ID, p, now)
	return primary.ID, mc, rotated, err
}
