package target

import (
	"context"
	"fmt"
	"strings"

	"github.com/HerbHall/opsconductor/pkg/models"
)

// GetTargetByID returns the active target with its methods and credentials.
func (s *Service) GetTargetByID(ctx context.Context, id int64) (*models.Target, error) {
	return loadTarget(ctx, s.db, id)
}

// GetTargetByUUID returns the active target with the given UUID.
func (s *Service) GetTargetByUUID(ctx context.Context, id string) (*models.Target, error) {
	return s.getOne(ctx, "uuid", id, "WHERE t.uuid = ? AND t.is_active = 1", id)
}

// GetTargetBySerial returns the active target with the given serial.
func (s *Service) GetTargetBySerial(ctx context.Context, serial string) (*models.Target, error) {
	serial = strings.ToUpper(strings.TrimSpace(serial))
	return s.getOne(ctx, "serial", serial, "WHERE t.serial = ? AND t.is_active = 1", serial)
}

// GetTargetsByName returns every active target named name. Names are not
// unique.
func (s *Service) GetTargetsByName(ctx context.Context, name string) ([]*models.Target, error) {
	targets, err := queryTargets(ctx, s.db, "WHERE t.name = ? AND t.is_active = 1 ORDER BY t.id", name)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, &NotFoundError{Resource: "target", Key: fmt.Sprintf("named %q", name)}
	}
	return targets, nil
}

// GetTargetByHost returns the active target with an active method whose
// config host matches host, preferring targets in active status.
func (s *Service) GetTargetByHost(ctx context.Context, host string) (*models.Target, error) {
	raw := strings.TrimSpace(host)
	norm := canonicalHost("", raw)
	return s.getOne(ctx, "host", raw, `
		WHERE t.is_active = 1 AND EXISTS (
			SELECT 1 FROM communication_methods m
			WHERE m.target_id = t.id AND m.is_active = 1
				AND json_extract(m.config, '$.host') IN (?, ?))
		ORDER BY t.status = 'active' DESC, t.id
		LIMIT 1`, raw, norm)
}

func (s *Service) getOne(ctx context.Context, field, key, tail string, args ...any) (*models.Target, error) {
	targets, err := queryTargets(ctx, s.db, tail, args...)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, &NotFoundError{Resource: "target", Key: fmt.Sprintf("with %s %q", field, key)}
	}
	return targets[0], nil
}

// ListFilter narrows ListTargets. Zero fields match everything.
type ListFilter struct {
	OSType      string
	Environment string
	Status      models.TargetStatus
	MethodType  models.MethodType
	Limit       int
	Offset      int
}

// ListTargets returns active targets ordered by name.
func (s *Service) ListTargets(ctx context.Context, f ListFilter) ([]*models.Target, error) {
	where, args := filterClause(map[string]string{
		"t.os_type":     strings.ToLower(f.OSType),
		"t.environment": f.Environment,
		"t.status":      string(f.Status),
		"method_type":   string(f.MethodType),
	})
	tail := where + " ORDER BY t.name, t.id"
	if f.Limit > 0 {
		tail += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	return queryTargets(ctx, s.db, tail, args...)
}

// ListEmailTargets returns active targets that can send system email: an
// active smtp method holding an active credential.
func (s *Service) ListEmailTargets(ctx context.Context) ([]*models.Target, error) {
	return queryTargets(ctx, s.db, `
		WHERE t.is_active = 1 AND EXISTS (
			SELECT 1 FROM communication_methods m
			JOIN credentials c ON c.method_id = m.id
			WHERE m.target_id = t.id AND m.method_type = ? AND m.is_active = 1 AND c.is_active = 1)
		ORDER BY t.name, t.id`, string(models.MethodSMTP))
}
