package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/opsconductor/pkg/models"
)

// NewTarget returns a Target with one primary ssh method and a password
// credential, suitable for test fixtures. Override fields with options.
func NewTarget(opts ...func(*models.Target)) models.Target {
	now := time.Now().UTC()
	t := models.Target{
		ID:           1,
		UUID:         uuid.New().String(),
		Serial:       "TGT-000001",
		Name:         "test-target",
		TargetType:   models.TargetTypeSystem,
		OSType:       "linux",
		Status:       models.TargetStatusActive,
		HealthStatus: models.HealthUnknown,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
		Methods:      []models.CommunicationMethod{NewMethod(1)},
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// NewMethod returns an active primary ssh method of targetID.
func NewMethod(targetID int64, opts ...func(*models.CommunicationMethod)) models.CommunicationMethod {
	now := time.Now().UTC()
	m := models.CommunicationMethod{
		ID:         1,
		TargetID:   targetID,
		MethodType: models.MethodSSH,
		MethodName: "ssh_" + now.Format("20060102_150405"),
		IsPrimary:  true,
		IsActive:   true,
		Priority:   1,
		Config:     map[string]any{"host": "192.168.1.100", "port": 22},
		CreatedAt:  now,
		UpdatedAt:  now,
		Credentials: []models.Credential{{
			ID:             1,
			MethodID:       1,
			CredentialType: models.CredentialPassword,
			CredentialName: "admin_password",
			IsPrimary:      true,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}},
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// WithName sets the target name.
func WithName(name string) func(*models.Target) {
	return func(t *models.Target) { t.Name = name }
}

// WithID sets the target id and re-parents its methods.
func WithID(id int64) func(*models.Target) {
	return func(t *models.Target) {
		t.ID = id
		for i := range t.Methods {
			t.Methods[i].TargetID = id
		}
	}
}

// WithOS sets the target OS type.
func WithOS(osType string) func(*models.Target) {
	return func(t *models.Target) { t.OSType = osType }
}

// WithStatus sets the target status.
func WithStatus(s models.TargetStatus) func(*models.Target) {
	return func(t *models.Target) { t.Status = s }
}

// WithMethods replaces the target's methods.
func WithMethods(ms ...models.CommunicationMethod) func(*models.Target) {
	return func(t *models.Target) { t.Methods = ms }
}

// WithMethodType sets the method type.
func WithMethodType(mt models.MethodType) func(*models.CommunicationMethod) {
	return func(m *models.CommunicationMethod) { m.MethodType = mt }
}

// WithHost sets config["host"].
func WithHost(host string) func(*models.CommunicationMethod) {
	return func(m *models.CommunicationMethod) { m.Config["host"] = host }
}

// WithPrimary sets is_primary.
func WithPrimary(primary bool) func(*models.CommunicationMethod) {
	return func(m *models.CommunicationMethod) { m.IsPrimary = primary }
}

// WithActive sets is_active.
func WithActive(active bool) func(*models.CommunicationMethod) {
	return func(m *models.CommunicationMethod) { m.IsActive = active }
}
