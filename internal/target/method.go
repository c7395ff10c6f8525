package target

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/opsconductor/internal/audit"
	"github.com/HerbHall/opsconductor/internal/methods"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// AddMethodRequest describes a new communication method on an existing target.
type AddMethodRequest struct {
	MethodType string         `json:"method_type"`
	Host       string         `json:"host"`
	Port       int            `json:"port,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
	IsPrimary  bool           `json:"is_primary,omitempty"`
	// Priority orders active methods, lower first. 0 appends after the
	// existing methods.
	Priority int `json:"priority,omitempty"`

	Username      string `json:"username"`
	Password      string `json:"password,omitempty"`
	SSHKey        string `json:"ssh_key,omitempty"`
	SSHPassphrase string `json:"ssh_passphrase,omitempty"`
}

// MethodPatch changes an existing method. Nil pointers and a nil Config
// leave the corresponding value untouched. In a comprehensive update a
// patch with ID 0 adds a new method instead.
type MethodPatch struct {
	ID         int64
	MethodType string // changes the protocol; config is reset to its defaults
	Host       *string
	Port       *int
	Config     map[string]any
	IsPrimary  *bool
	IsActive   *bool
	Priority   *int

	Username      *string
	Password      SecretField
	SSHKey        SecretField
	SSHPassphrase SecretField
}

func (p MethodPatch) touchesCredential() bool {
	return p.Username != nil || p.Password.state != secretKeep ||
		p.SSHKey.state != secretKeep || p.SSHPassphrase.state != secretKeep
}

// addRequest converts an ID-0 patch into an AddMethodRequest.
func (p MethodPatch) addRequest() AddMethodRequest {
	req := AddMethodRequest{
		MethodType:    p.MethodType,
		Config:        p.Config,
		Password:      p.Password.Value(),
		SSHKey:        p.SSHKey.Value(),
		SSHPassphrase: p.SSHPassphrase.Value(),
	}
	if p.Host != nil {
		req.Host = *p.Host
	} else {
		req.Host = models.ConfigString(p.Config, "host")
	}
	if p.Port != nil {
		req.Port = *p.Port
	}
	if p.IsPrimary != nil {
		req.IsPrimary = *p.IsPrimary
	}
	if p.Priority != nil {
		req.Priority = *p.Priority
	}
	if p.Username != nil {
		req.Username = *p.Username
	}
	return req
}

// AddCommunicationMethod adds a method and its credential to a target.
// Setting it primary clears every sibling first.
func (s *Service) AddCommunicationMethod(ctx context.Context, targetID int64, req AddMethodRequest) (*models.CommunicationMethod, error) {
	mt, _ := methods.Normalize(req.MethodType)
	unlock := s.hosts.Lock(canonicalHost(mt, req.Host))
	defer unlock()

	var added *models.CommunicationMethod
	err := s.inTx(ctx, "add communication method", func(tx *sql.Tx) error {
		t, err := loadTarget(ctx, tx, targetID)
		if err != nil {
			return err
		}
		m, err := s.addMethodTx(ctx, tx, t, req, s.now())
		if err != nil {
			return err
		}
		added = m
		return checkHosts(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.EventMethodAdded, "target", targetID, "add_communication_method", audit.SeverityMedium, map[string]any{
		"method_id":   added.ID,
		"method_type": string(added.MethodType),
		"host":        added.Host(),
		"is_primary":  added.IsPrimary,
	})
	return s.reloadMethod(ctx, targetID, added.ID)
}

// UpdateCommunicationMethod applies patch to one method of a target.
func (s *Service) UpdateCommunicationMethod(ctx context.Context, targetID, methodID int64, patch MethodPatch) (*models.CommunicationMethod, error) {
	pre, err := s.preload(ctx, targetID)
	if err != nil {
		return nil, err
	}
	locked := hostsOf(pre)
	if patch.Host != nil {
		locked = append(locked, canonicalHost(models.MethodType(patch.MethodType), *patch.Host))
	}
	if h := models.ConfigString(patch.Config, "host"); h != "" {
		locked = append(locked, canonicalHost(models.MethodType(patch.MethodType), h))
	}
	unlock := s.hosts.Lock(locked...)
	defer unlock()

	var (
		changes map[string]any
		rotated bool
	)
	err = s.inTx(ctx, "update communication method", func(tx *sql.Tx) error {
		t, err := loadTarget(ctx, tx, targetID)
		if err != nil {
			return err
		}
		changes, rotated, err = s.patchMethodTx(ctx, tx, t, methodID, patch, s.now())
		if err != nil {
			return err
		}
		return checkHosts(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		changes["method_id"] = methodID
		s.record(ctx, audit.EventMethodUpdated, "target", targetID, "update_communication_method", audit.SeverityMedium, changes)
	}
	if rotated {
		s.recordRotation(ctx, targetID, methodID)
	}
	return s.reloadMethod(ctx, targetID, methodID)
}

// DeleteCommunicationMethod removes a method and its credentials. A target's
// only method cannot be deleted; deleting the primary promotes the best
// remaining active method in the same transaction.
func (s *Service) DeleteCommunicationMethod(ctx context.Context, targetID, methodID int64) error {
	var (
		deleted  models.CommunicationMethod
		promoted int64
	)
	err := s.inTx(ctx, "delete communication method", func(tx *sql.Tx) error {
		t, err := loadTarget(ctx, tx, targetID)
		if err != nil {
			return err
		}
		m := t.Method(methodID)
		if m == nil {
			return &NotFoundError{Resource: "communication method", Key: fmt.Sprint(methodID)}
		}
		if len(t.Methods) == 1 {
			return invalid("method_id", "cannot delete the only communication method of target %q", t.Name)
		}
		deleted = *m

		var next *models.CommunicationMethod
		if m.IsPrimary {
			next = promotionCandidate(t, m.ID)
			if next == nil {
				return invalid("method_id", "cannot delete the primary method of target %q: no other active method to promote", t.Name)
			}
		}

		if err := deleteMethodRow(ctx, tx, m.ID); err != nil {
			return err
		}
		if next != nil {
			next.IsPrimary = true
			next.UpdatedAt = s.now()
			if err := updateMethodRow(ctx, tx, next); err != nil {
				return err
			}
			promoted = next.ID
		}
		return nil
	})
	if err != nil {
		return err
	}

	details := map[string]any{
		"method_id":   deleted.ID,
		"method_type": string(deleted.MethodType),
		"host":        deleted.Host(),
		"was_primary": deleted.IsPrimary,
	}
	if promoted != 0 {
		details["promoted_method_id"] = promoted
		s.logger.Info("promoted communication method to primary",
			zap.Int64("target_id", targetID), zap.Int64("method_id", promoted))
	}
	s.record(ctx, audit.EventMethodDeleted, "target", targetID, "delete_communication_method", audit.SeverityHigh, details)
	return nil
}

// addMethodTx inserts a method and credential into t and appends the
// method to t.Methods.
func (s *Service) addMethodTx(ctx context.Context, tx *sql.Tx, t *models.Target, req AddMethodRequest, now time.Time) (*models.CommunicationMethod, error) {
	mt, ok := methods.Normalize(req.MethodType)
	if !ok {
		return nil, invalid("method_type", "unsupported method type %q", req.MethodType)
	}
	if !methods.IsValidForOS(mt, t.OSType) {
		return nil, invalid("method_type", "method type %q is not supported for os_type %q", mt, t.OSType)
	}
	host := canonicalHost(mt, req.Host)
	if host == "" {
		return nil, invalid("host", "host is required")
	}
	if req.Priority < 0 {
		return nil, invalid("priority", "priority must not be negative")
	}
	cfg, err := buildConfig(mt, host, req.Port, req.Config)
	if err != nil {
		return nil, err
	}
	if err := liftIntoRequest(mt, cfg, &req.Password, &req.SSHPassphrase); err != nil {
		return nil, err
	}
	cred, err := s.newCredential(mt, credentialInput{
		Username:   req.Username,
		Password:   req.Password,
		PrivateKey: req.SSHKey,
		Passphrase: req.SSHPassphrase,
	}, now)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == 0 {
		for i := range t.Methods {
			priority = max(priority, t.Methods[i].Priority)
		}
		priority++
	}

	m := models.CommunicationMethod{
		TargetID:   t.ID,
		MethodType: mt,
		MethodName: methods.GenerateMethodName(mt, now),
		IsPrimary:  req.IsPrimary || !hasPrimary(t),
		IsActive:   true,
		Priority:   priority,
		Config:     cfg,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if m.IsPrimary {
		if err := clearPrimary(ctx, tx, t.ID, 0, now); err != nil {
			return nil, err
		}
		for i := range t.Methods {
			t.Methods[i].IsPrimary = false
		}
	}
	if err := insertMethod(ctx, tx, &m); err != nil {
		return nil, err
	}
	cred.MethodID = m.ID
	if err := insertCredential(ctx, tx, cred); err != nil {
		return nil, err
	}
	m.Credentials = []models.Credential{*cred}

	t.Methods = append(t.Methods, m)
	return &t.Methods[len(t.Methods)-1], nil
}

// patchMethodTx applies patch to the method of t with the given id and
// writes it. It returns the changed fields and whether the credential was
// rotated.
func (s *Service) patchMethodTx(ctx context.Context, tx *sql.Tx, t *models.Target, id int64, patch MethodPatch, now time.Time) (map[string]any, bool, error) {
	m := t.Method(id)
	if m == nil {
		return nil, false, &NotFoundError{Resource: "communication method", Key: fmt.Sprint(id)}
	}
	changes := map[string]any{}
	prevHost := m.Host()

	typeChanged := false
	if patch.MethodType != "" {
		mt, ok := methods.Normalize(patch.MethodType)
		if !ok {
			return nil, false, invalid("method_type", "unsupported method type %q", patch.MethodType)
		}
		if mt != m.MethodType {
			cfg, err := methods.DefaultConfig(mt, m.Host())
			if err != nil {
				return nil, false, invalid("method_type", "%v", err)
			}
			changes["method_type"] = map[string]any{"old": string(m.MethodType), "new": string(mt)}
			m.MethodType = mt
			m.Config = cfg
			typeChanged = true
		}
	}

	if patch.Config != nil {
		m.Config = methods.MergeConfig(m.Config, patch.Config)
		keys := make([]string, 0, len(patch.Config))
		for k := range patch.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		changes["config"] = keys
	}
	authKey, privKey, err := liftConfigSecrets(m.MethodType, m.Config)
	if err != nil {
		return nil, false, err
	}
	if err := fillSecret(&patch.Password, authKey, configAuthKey); err != nil {
		return nil, false, err
	}
	if err := fillSecret(&patch.SSHPassphrase, privKey, configPrivKey); err != nil {
		return nil, false, err
	}

	if patch.Host != nil {
		m.Config["host"] = *patch.Host
	}
	host := canonicalHost(m.MethodType, m.Host())
	if host == "" {
		return nil, false, invalid("host", "host is required")
	}
	if host != models.ConfigString(m.Config, "host") || host != prevHost || patch.Host != nil {
		m.Config["host"] = host
		if m.MethodType == models.MethodSQLite {
			m.Config["database_path"] = host
		}
		changes["host"] = host
	}
	if patch.Port != nil {
		if *patch.Port < 1 || *patch.Port > 65535 {
			return nil, false, invalid("port", "port %d is out of range", *patch.Port)
		}
		m.Config["port"] = *patch.Port
		changes["port"] = *patch.Port
	}
	if patch.Priority != nil {
		if *patch.Priority < 1 {
			return nil, false, invalid("priority", "priority must be at least 1")
		}
		m.Priority = *patch.Priority
		changes["priority"] = *patch.Priority
	}

	becomePrimary := patch.IsPrimary != nil && *patch.IsPrimary && !m.IsPrimary
	if patch.IsPrimary != nil && !*patch.IsPrimary && m.IsPrimary {
		return nil, false, invalid("is_primary", "a target needs a primary method; make another method primary instead")
	}

	var promote *models.CommunicationMethod
	if patch.IsActive != nil && *patch.IsActive != m.IsActive {
		m.IsActive = *patch.IsActive
		changes["is_active"] = m.IsActive
		if !m.IsActive && m.IsPrimary {
			promote = promotionCandidate(t, m.ID)
			if promote == nil {
				return nil, false, invalid("is_active", "cannot deactivate the only active method of target %q", t.Name)
			}
			m.IsPrimary = false
		}
	}
	if becomePrimary {
		if !m.IsActive {
			return nil, false, invalid("is_primary", "an inactive method cannot be primary")
		}
		if err := clearPrimary(ctx, tx, t.ID, m.ID, now); err != nil {
			return nil, false, err
		}
		for i := range t.Methods {
			if t.Methods[i].ID != m.ID {
				t.Methods[i].IsPrimary = false
			}
		}
		m.IsPrimary = true
		changes["is_primary"] = true
	}

	if m.IsActive && !methods.IsValidForOS(m.MethodType, t.OSType) {
		return nil, false, invalid("method_type", "method type %q is not supported for os_type %q", m.MethodType, t.OSType)
	}
	if p := models.ConfigInt(m.Config, "port"); p < 0 || p > 65535 {
		return nil, false, invalid("port", "port %d is out of range", p)
	}
	if err := methods.NormalizeConfig(m.MethodType, m.Config); err != nil {
		return nil, false, invalid("config", "%v", err)
	}

	rotated := false
	if typeChanged || patch.touchesCredential() {
		rotated, err = s.rotateCredentialTx(ctx, tx, m, patch, typeChanged, now)
		if err != nil {
			return nil, false, err
		}
	}

	m.UpdatedAt = now
	if err := updateMethodRow(ctx, tx, m); err != nil {
		return nil, false, err
	}
	if promote != nil {
		promote.IsPrimary = true
		promote.UpdatedAt = now
		if err := updateMethodRow(ctx, tx, promote); err != nil {
			return nil, false, err
		}
		changes["promoted_method_id"] = promote.ID
	}
	return changes, rotated, nil
}

// promotionCandidate picks the active method of t other than excludeID with
// the lowest priority, then the lowest id.
func promotionCandidate(t *models.Target, excludeID int64) *models.CommunicationMethod {
	var best *models.CommunicationMethod
	for i := range t.Methods {
		m := &t.Methods[i]
		if m.ID == excludeID || !m.IsActive {
			continue
		}
		if best == nil || m.Priority < best.Priority || (m.Priority == best.Priority && m.ID < best.ID) {
			best = m
		}
	}
	return best
}

func hasPrimary(t *models.Target) bool {
	for i := range t.Methods {
		if t.Methods[i].IsPrimary {
			return true
		}
	}
	return false
}

func (s *Service) reloadMethod(ctx context.Context, targetID, methodID int64) (*models.CommunicationMethod, error) {
	t, err := s.GetTargetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	m := t.Method(methodID)
	if m == nil {
		return nil, &NotFoundError{Resource: "communication method", Key: fmt.Sprint(methodID)}
	}
	return m, nil
}

func (s *Service) recordRotation(ctx context.Context, targetID, methodID int64) {
	s.record(ctx, audit.EventCredentialRotated, "target", targetID, "rotate_credential", audit.SeverityHigh, map[string]any{
		"method_id": methodID,
	})
}

// fallbackUsername recovers the username from a "{username}_{type}"
// credential name when the stored payload cannot be read.
func fallbackUsername(c *models.Credential) string {
	return strings.TrimSuffix(c.CredentialName, "_"+string(c.CredentialType))
}
