package models

import (
	"strconv"
	"time"
)

// MethodType identifies the protocol a CommunicationMethod speaks.
type MethodType string

const (
	MethodSSH           MethodType = "ssh"
	MethodWinRM         MethodType = "winrm"
	MethodSNMP          MethodType = "snmp"
	MethodTelnet        MethodType = "telnet"
	MethodRESTAPI       MethodType = "rest_api"
	MethodSMTP          MethodType = "smtp"
	MethodMySQL         MethodType = "mysql"
	MethodPostgreSQL    MethodType = "postgresql"
	MethodMSSQL         MethodType = "mssql"
	MethodOracle        MethodType = "oracle"
	MethodSQLite        MethodType = "sqlite"
	MethodMongoDB       MethodType = "mongodb"
	MethodRedis         MethodType = "redis"
	MethodElasticsearch MethodType = "elasticsearch"
)

// CredentialType describes the shape of the secret stored for a method.
type CredentialType string

const (
	CredentialPassword      CredentialType = "password"
	CredentialSSHKey        CredentialType = "ssh_key"
	CredentialSNMPCommunity CredentialType = "snmp_community"
	CredentialAPIKey        CredentialType = "api_key"
	CredentialAPIToken      CredentialType = "api_token"
)

// UsesKeySlot reports whether the credential's secret lives in the
// private_key slot of the encrypted payload rather than the password slot.
func (c CredentialType) UsesKeySlot() bool {
	return c == CredentialSSHKey || c == CredentialAPIToken
}

// CarriesPassphrase reports whether the payload keeps a passphrase: the key
// passphrase for key credentials, the SNMPv3 privacy key for community
// credentials.
func (c CredentialType) CarriesPassphrase() bool {
	return c.UsesKeySlot() || c == CredentialSNMPCommunity
}

// TargetStatus is the operator-controlled lifecycle state of a target.
type TargetStatus string

const (
	TargetStatusActive      TargetStatus = "active"
	TargetStatusInactive    TargetStatus = "inactive"
	TargetStatusMaintenance TargetStatus = "maintenance"
)

// HealthStatus is derived from health checks.
type HealthStatus string

const (
	HealthUnknown  HealthStatus = "unknown"
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// Environment values accepted for a target. Empty is allowed.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// TargetTypeSystem is the only target type in this release.
const TargetTypeSystem = "system"

// Target is a managed remote system reachable through one or more
// communication methods.
type Target struct {
	ID           int64                 `json:"id" example:"42"`
	UUID         string                `json:"uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	Serial       string                `json:"serial" example:"TGT-000042"`
	Name         string                `json:"name" example:"web01"`
	TargetType   string                `json:"target_type" example:"system"`
	Description  string                `json:"description,omitempty"`
	OSType       string                `json:"os_type" example:"linux"`
	Environment  string                `json:"environment,omitempty" example:"production"`
	Location     string                `json:"location,omitempty"`
	DataCenter   string                `json:"data_center,omitempty"`
	Region       string                `json:"region,omitempty"`
	Status       TargetStatus          `json:"status" example:"active"`
	HealthStatus HealthStatus          `json:"health_status" example:"unknown"`
	IsActive     bool                  `json:"is_active"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	Methods      []CommunicationMethod `json:"communication_methods"`
}

// PrimaryMethod returns the primary method, or the first active one when
// no method is flagged primary. Returns nil when the target has no active method.
func (t *Target) PrimaryMethod() *CommunicationMethod {
	for i := range t.Methods {
		if t.Methods[i].IsPrimary && t.Methods[i].IsActive {
			return &t.Methods[i]
		}
	}
	for i := range t.Methods {
		if t.Methods[i].IsActive {
			return &t.Methods[i]
		}
	}
	return nil
}

// Method returns the method with the given id, or nil.
func (t *Target) Method(id int64) *CommunicationMethod {
	for i := range t.Methods {
		if t.Methods[i].ID == id {
			return &t.Methods[i]
		}
	}
	return nil
}

// CommunicationMethod is one protocol-specific way to reach a Target.
type CommunicationMethod struct {
	ID          int64          `json:"id"`
	TargetID    int64          `json:"target_id"`
	MethodType  MethodType     `json:"method_type" example:"ssh"`
	MethodName  string         `json:"method_name" example:"ssh_20260115_103000"`
	IsPrimary   bool           `json:"is_primary"`
	IsActive    bool           `json:"is_active"`
	Priority    int            `json:"priority" example:"1"`
	Config      map[string]any `json:"config"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Credentials []Credential   `json:"credentials"`
}

// Host returns config["host"] as a string.
func (m *CommunicationMethod) Host() string {
	return ConfigString(m.Config, "host")
}

// Port returns config["port"] as an int, or 0 when absent or malformed.
func (m *CommunicationMethod) Port() int {
	return ConfigInt(m.Config, "port")
}

// ActiveCredential returns the primary active credential, falling back to
// the first active one.
func (m *CommunicationMethod) ActiveCredential() *Credential {
	for i := range m.Credentials {
		if m.Credentials[i].IsPrimary && m.Credentials[i].IsActive {
			return &m.Credentials[i]
		}
	}
	for i := range m.Credentials {
		if m.Credentials[i].IsActive {
			return &m.Credentials[i]
		}
	}
	return nil
}

// Credential is encrypted authentication material bound to one method.
type Credential struct {
	ID                   int64          `json:"id"`
	MethodID             int64          `json:"communication_method_id"`
	CredentialType       CredentialType `json:"credential_type" example:"password"`
	CredentialName       string         `json:"credential_name" example:"admin_password"`
	IsPrimary            bool           `json:"is_primary"`
	IsActive             bool           `json:"is_active"`
	EncryptedCredentials string         `json:"-"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// ConfigString reads a string value from a method config map.
func ConfigString(cfg map[string]any, key string) string {
	s, _ := cfg[key].(string)
	return s
}

// ConfigInt reads an integer from a method config map. JSON round-trips turn
// numbers into float64, and CLI input may leave them as strings.
func ConfigInt(cfg map[string]any, key string) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// ConfigBool reads a boolean from a method config map, returning def when
// the key is absent or not a recognizable boolean.
func ConfigBool(cfg map[string]any, key string, def bool) bool {
	switch v := cfg[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}
