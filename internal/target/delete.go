package target

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/HerbHall/opsconductor/internal/audit"
)

// DeleteTarget soft-deletes a target. Rows stay in place so history that
// references the target remains valid; no operation reactivates it.
func (s *Service) DeleteTarget(ctx context.Context, id int64) error {
	var details map[string]any
	err := s.inTx(ctx, "delete target", func(tx *sql.Tx) error {
		t, err := loadTarget(ctx, tx, id)
		if err != nil {
			return err
		}
		methodTypes := make([]string, 0, len(t.Methods))
		for i := range t.Methods {
			methodTypes = append(methodTypes, string(t.Methods[i].MethodType))
		}
		details = map[string]any{
			"name":         t.Name,
			"uuid":         t.UUID,
			"serial":       t.Serial,
			"os_type":      t.OSType,
			"environment":  t.Environment,
			"status":       string(t.Status),
			"method_types": methodTypes,
		}
		if pm := t.PrimaryMethod(); pm != nil {
			details["ip_address"] = pm.Host()
		}
		return deactivateTarget(ctx, tx, id, s.now())
	})
	if err != nil {
		return err
	}

	s.logger.Info("target deleted", zap.Int64("target_id", id))
	s.record(ctx, audit.EventTargetDeleted, "target", id, "delete", audit.SeverityHigh, details)
	return nil
}
