package target

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/opsconductor/internal/store"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// Row-level persistence for the target tree. Every function takes a
// store.Querier so it runs unchanged inside or outside a transaction.
// Result sets are always fully read and closed before the next query:
// the store holds a single connection.

const targetColumns = `t.id, t.uuid, COALESCE(t.serial, ''), t.name, t.target_type, t.description,
	t.os_type, t.environment, t.location, t.data_center, t.region, t.status, t.health_status,
	t.is_active, t.created_at, t.updated_at`

const methodColumns = `id, target_id, method_type, method_name, is_primary, is_active, priority,
	config, created_at, updated_at`

const credentialColumns = `id, method_id, credential_type, credential_name, is_primary, is_active,
	encrypted_credentials, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(row scanner) (*models.Target, error) {
	var (
		t      models.Target
		status string
		health string
	)
	err := row.Scan(&t.ID, &t.UUID, &t.Serial, &t.Name, &t.TargetType, &t.Description,
		&t.OSType, &t.Environment, &t.Location, &t.DataCenter, &t.Region, &status, &health,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = models.TargetStatus(status)
	t.HealthStatus = models.HealthStatus(health)
	return &t, nil
}

// queryTargets runs a SELECT over targets aliased as t and eager-loads the
// method and credential tree of every row.
func queryTargets(ctx context.Context, q store.Querier, tail string, args ...any) ([]*models.Target, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+targetColumns+" FROM targets t "+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	var targets []*models.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, t := range targets {
		if err := loadMethods(ctx, q, t); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

// loadTarget returns the active target with the given id.
func loadTarget(ctx context.Context, q store.Querier, id int64) (*models.Target, error) {
	targets, err := queryTargets(ctx, q, "WHERE t.id = ? AND t.is_active = 1", id)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, &NotFoundError{Resource: "target", Key: fmt.Sprint(id)}
	}
	return targets[0], nil
}

func loadMethods(ctx context.Context, q store.Querier, t *models.Target) error {
	rows, err := q.QueryContext(ctx,
		"SELECT "+methodColumns+" FROM communication_methods WHERE target_id = ? ORDER BY is_primary DESC, priority, id",
		t.ID)
	if err != nil {
		return fmt.Errorf("query communication methods: %w", err)
	}
	t.Methods = nil
	for rows.Next() {
		var (
			m      models.CommunicationMethod
			mt     string
			config string
		)
		if err := rows.Scan(&m.ID, &m.TargetID, &mt, &m.MethodName, &m.IsPrimary, &m.IsActive,
			&m.Priority, &config, &m.CreatedAt, &m.UpdatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan communication method: %w", err)
		}
		m.MethodType = models.MethodType(mt)
		if err := json.Unmarshal([]byte(config), &m.Config); err != nil {
			rows.Close()
			return fmt.Errorf("decode config of method %d: %w", m.ID, err)
		}
		if m.Config == nil {
			m.Config = map[string]any{}
		}
		t.Methods = append(t.Methods, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if len(t.Methods) == 0 {
		return nil
	}

	rows, err = q.QueryContext(ctx, `SELECT `+credentialColumns+` FROM credentials
		WHERE method_id IN (SELECT id FROM communication_methods WHERE target_id = ?)
		ORDER BY is_primary DESC, id`, t.ID)
	if err != nil {
		return fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	byMethod := make(map[int64]int, len(t.Methods))
	for i := range t.Methods {
		byMethod[t.Methods[i].ID] = i
	}
	for rows.Next() {
		var (
			c  models.Credential
			ct string
		)
		if err := rows.Scan(&c.ID, &c.MethodID, &ct, &c.CredentialName, &c.IsPrimary, &c.IsActive,
			&c.EncryptedCredentials, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return fmt.Errorf("scan credential: %w", err)
		}
		c.CredentialType = models.CredentialType(ct)
		if i, ok := byMethod[c.MethodID]; ok {
			t.Methods[i].Credentials = append(t.Methods[i].Credentials, c)
		}
	}
	return rows.Err()
}

func insertTarget(ctx context.Context, q store.Querier, t *models.Target) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO targets (uuid, name, target_type, description, os_type, environment,
			location, data_center, region, status, health_status, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UUID, t.Name, t.TargetType, t.Description, t.OSType, t.Environment,
		t.Location, t.DataCenter, t.Region, string(t.Status), string(t.HealthStatus), t.IsActive,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	if err := q.QueryRowContext(ctx, "SELECT serial FROM targets WHERE id = ?", t.ID).Scan(&t.Serial); err != nil {
		return fmt.Errorf("read target serial: %w", err)
	}
	return nil
}

func updateTargetRow(ctx context.Context, q store.Querier, t *models.Target) error {
	_, err := q.ExecContext(ctx, `
		UPDATE targets SET name = ?, description = ?, os_type = ?, environment = ?, location = ?,
			data_center = ?, region = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Description, t.OSType, t.Environment, t.Location,
		t.DataCenter, t.Region, string(t.Status), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update target %d: %w", t.ID, err)
	}
	return nil
}

func deactivateTarget(ctx context.Context, q store.Querier, id int64, now time.Time) error {
	if _, err := q.ExecContext(ctx,
		"UPDATE targets SET is_active = 0, updated_at = ? WHERE id = ?", now, id); err != nil {
		return fmt.Errorf("deactivate target %d: %w", id, err)
	}
	return nil
}

func setHealthStatus(ctx context.Context, q store.Querier, id int64, status models.HealthStatus, now time.Time) error {
	if _, err := q.ExecContext(ctx,
		"UPDATE targets SET health_status = ?, updated_at = ? WHERE id = ?", string(status), now, id); err != nil {
		return fmt.Errorf("set health status of target %d: %w", id, err)
	}
	return nil
}

func encodeConfig(cfg map[string]any) (string, error) {
	if cfg == nil {
		return "{}", nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode method config: %w", err)
	}
	return string(b), nil
}

func insertMethod(ctx context.Context, q store.Querier, m *models.CommunicationMethod) error {
	config, err := encodeConfig(m.Config)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO communication_methods (target_id, method_type, method_name, is_primary, is_active,
			priority, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TargetID, string(m.MethodType), m.MethodName, m.IsPrimary, m.IsActive,
		m.Priority, config, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert communication method: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

func updateMethodRow(ctx context.Context, q store.Querier, m *models.CommunicationMethod) error {
	config, err := encodeConfig(m.Config)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		UPDATE communication_methods SET method_type = ?, is_primary = ?, is_active = ?, priority = ?,
			config = ?, updated_at = ?
		WHERE id = ?`,
		string(m.MethodType), m.IsPrimary, m.IsActive, m.Priority, config, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update communication method %d: %w", m.ID, err)
	}
	return nil
}

// clearPrimary unsets is_primary on every method of targetID except keepID.
func clearPrimary(ctx context.Context, q store.Querier, targetID, keepID int64, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE communication_methods SET is_primary = 0, updated_at = ?
		WHERE target_id = ? AND id != ? AND is_primary = 1`,
		now, targetID, keepID,
	)
	if err != nil {
		return fmt.Errorf("clear primary methods of target %d: %w", targetID, err)
	}
	return nil
}

func deleteMethodRow(ctx context.Context, q store.Querier, id int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM communication_methods WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete communication method %d: %w", id, err)
	}
	return nil
}

func insertCredential(ctx context.Context, q store.Querier, c *models.Credential) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO credentials (method_id, credential_type, credential_name, is_primary, is_active,
			encrypted_credentials, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.MethodID, string(c.CredentialType), c.CredentialName, c.IsPrimary, c.IsActive,
		c.EncryptedCredentials, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func updateCredentialRow(ctx context.Context, q store.Querier, c *models.Credential) error {
	_, err := q.ExecContext(ctx, `
		UPDATE credentials SET credential_type = ?, credential_name = ?, encrypted_credentials = ?,
			updated_at = ?
		WHERE id = ?`,
		string(c.CredentialType), c.CredentialName, c.EncryptedCredentials, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update credential %d: %w", c.ID, err)
	}
	return nil
}

// ipConflict names the active target already using a host.
type ipConflict struct {
	TargetID int64
	Name     string
}

// findIPConflict looks for an active method of another active target whose
// config host equals host.
func findIPConflict(ctx context.Context, q store.Querier, host string, excludeTargetID int64) (*ipConflict, error) {
	var c ipConflict
	err := q.QueryRowContext(ctx, `
		SELECT t.id, t.name FROM targets t
		JOIN communication_methods m ON m.target_id = t.id
		WHERE t.is_active = 1 AND t.status = 'active' AND m.is_active = 1
			AND json_extract(m.config, '$.host') = ? AND t.id != ?
		ORDER BY t.id LIMIT 1`,
		host, excludeTargetID,
	).Scan(&c.TargetID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check host %s: %w", host, err)
	}
	return &c, nil
}

// filterClause builds a WHERE clause from equality conditions. Keys are
// trusted column expressions; values are bound.
func filterClause(conds map[string]string) (string, []any) {
	var (
		parts []string
		args  []any
	)
	for _, col := range []string{"t.os_type", "t.environment", "t.status"} {
		if v, ok := conds[col]; ok && v != "" {
			parts = append(parts, col+" = ?")
			args = append(args, v)
		}
	}
	if v, ok := conds["method_type"]; ok && v != "" {
		parts = append(parts, "EXISTS (SELECT 1 FROM communication_methods m WHERE m.target_id = t.id AND m.method_type = ? AND m.is_active = 1)")
		args = append(args, v)
	}
	parts = append([]string{"t.is_active = 1"}, parts...)
	return "WHERE " + strings.Join(parts, " AND "), args
}
