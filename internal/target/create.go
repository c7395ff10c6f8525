package target

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/opsconductor/internal/audit"
	"github.com/HerbHall/opsconductor/internal/methods"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// CreateTargetRequest describes a new target and its initial method.
type CreateTargetRequest struct {
	Name       string `json:"name"`
	OSType     string `json:"os_type"`
	IPAddress  string `json:"ip_address"`
	MethodType string `json:"method_type"`

	Username      string `json:"username"`
	Password      string `json:"password,omitempty"`
	SSHKey        string `json:"ssh_key,omitempty"`
	SSHPassphrase string `json:"ssh_passphrase,omitempty"`

	Description string `json:"description,omitempty"`
	Environment string `json:"environment,omitempty"`
	Location    string `json:"location,omitempty"`
	DataCenter  string `json:"data_center,omitempty"`
	Region      string `json:"region,omitempty"`

	// Port overrides the protocol default when positive.
	Port int `json:"port,omitempty"`
	// Config carries protocol-specific overrides merged over the defaults
	// (snmp version, smtp encryption, rest base_path, ...).
	Config map[string]any `json:"config,omitempty"`
}

// CreateTarget registers a target with exactly one primary communication
// method and its credential, all in one transaction.
func (s *Service) CreateTarget(ctx context.Context, req CreateTargetRequest) (*models.Target, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name", "name is required")
	}
	osType := strings.ToLower(strings.TrimSpace(req.OSType))
	if osType == "" {
		return nil, invalid("os_type", "os_type is required")
	}
	if strings.TrimSpace(req.IPAddress) == "" {
		return nil, invalid("ip_address", "ip_address is required")
	}
	if !validEnvironment(req.Environment) {
		return nil, invalid("environment", "unknown environment %q", req.Environment)
	}
	mt, ok := methods.Normalize(req.MethodType)
	if !ok {
		return nil, invalid("method_type", "unsupported method type %q", req.MethodType)
	}
	if !methods.IsValidForOS(mt, osType) {
		return nil, invalid("method_type", "method type %q is not supported for os_type %q", mt, osType)
	}
	host := canonicalHost(mt, req.IPAddress)
	cfg, err := buildConfig(mt, host, req.Port, req.Config)
	if err != nil {
		return nil, err
	}
	if err := liftIntoRequest(mt, cfg, &req.Password, &req.SSHPassphrase); err != nil {
		return nil, err
	}
	if _, err := methods.ClassifyCredential(mt, req.Password != "", req.SSHKey != ""); err != nil {
		return nil, invalid("credentials", "%v", err)
	}

	unlock := s.hosts.Lock(host)
	defer unlock()

	now := s.now()
	t := &models.Target{
		UUID:         uuid.New().String(),
		Name:         name,
		TargetType:   models.TargetTypeSystem,
		Description:  req.Description,
		OSType:       osType,
		Environment:  req.Environment,
		Location:     req.Location,
		DataCenter:   req.DataCenter,
		Region:       req.Region,
		Status:       models.TargetStatusActive,
		HealthStatus: models.HealthUnknown,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var (
		method *models.CommunicationMethod
		cred   *models.Credential
	)

	err = s.inTx(ctx, "create target", func(tx *sql.Tx) error {
		conflict, err := findIPConflict(ctx, tx, host, 0)
		if err != nil {
			return err
		}
		if conflict != nil {
			return invalid("ip_address", "IP address %s is already used by active target %q (id %d)",
				host, conflict.Name, conflict.TargetID)
		}

		if err := insertTarget(ctx, tx, t); err != nil {
			return err
		}

		method = &models.CommunicationMethod{
			TargetID:   t.ID,
			MethodType: mt,
			MethodName: methods.GenerateMethodName(mt, now),
			IsPrimary:  true,
			IsActive:   true,
			Priority:   1,
			Config:     cfg,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := insertMethod(ctx, tx, method); err != nil {
			return err
		}

		cred, err = s.newCredential(mt, credentialInput{
			Username:   req.Username,
			Password:   req.Password,
			PrivateKey: req.SSHKey,
			Passphrase: req.SSHPassphrase,
		}, now)
		if err != nil {
			return err
		}
		cred.MethodID = method.ID
		return insertCredential(ctx, tx, cred)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("target created",
		zap.Int64("target_id", t.ID),
		zap.String("serial", t.Serial),
		zap.String("method_type", string(mt)),
	)
	s.record(ctx, audit.EventTargetCreated, "target", t.ID, "create", audit.SeverityMedium, map[string]any{
		"name":            t.Name,
		"serial":          t.Serial,
		"os_type":         t.OSType,
		"ip_address":      host,
		"method_id":       method.ID,
		"method_type":     string(mt),
		"credential_id":   cred.ID,
		"credential_type": string(cred.CredentialType),
	})

	return s.GetTargetByID(ctx, t.ID)
}

// buildConfig merges overrides over the protocol defaults. host and a
// positive port always win over the overrides.
func buildConfig(mt models.MethodType, host string, port int, overrides map[string]any) (map[string]any, error) {
	base, err := methods.DefaultConfig(mt, host)
	if err != nil {
		return nil, invalid("method_type", "%v", err)
	}
	cfg := methods.MergeConfig(base, overrides)
	cfg["host"] = host
	if port > 0 {
		cfg["port"] = port
	}
	if p := models.ConfigInt(cfg, "port"); p < 0 || p > 65535 {
		return nil, invalid("port", "port %d is out of range", p)
	}
	if err := methods.NormalizeConfig(mt, cfg); err != nil {
		return nil, invalid("config", "%v", err)
	}
	return cfg, nil
}
