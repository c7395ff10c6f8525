package target

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/opsconductor/internal/audit"
	"github.com/HerbHall/opsconductor/internal/vault"
	"github.com/HerbHall/opsconductor/pkg/models"
)

func (f *fixture) payload(t *testing.T, m *models.CommunicationMethod) *vault.Payload {
	t.Helper()
	c := m.ActiveCredential()
	require.NotNil(t, c)
	p, err := f.cipher.DecryptPayload(c.EncryptedCredentials)
	require.NoError(t, err)
	return p
}

func TestLegacySecret(t *testing.T) {
	tests := []struct {
		raw   string
		isSet bool
	}{
		{"", false},
		{"   ", false},
		{"[Current Password - Hidden for Security]", false},
		{" [Current SSH Key - Hidden for Security] ", false},
		{"********", false},
		{"new-password", true},
		{"my[Current Password - Hidden for Security]suffix", true},
	}
	for _, tt := range tests {
		f := LegacySecret(tt.raw)
		if f.IsSet() != tt.isSet {
			t.Errorf("LegacySecret(%q).IsSet() = %v, want %v", tt.raw, f.IsSet(), tt.isSet)
		}
		if tt.isSet && f.Value() != tt.raw {
			t.Errorf("LegacySecret(%q).Value() = %q", tt.raw, f.Value())
		}
	}
	if s := NewSecret("hunter2").String(); s != "[set]" {
		t.Errorf("String() = %q, leaks or is wrong", s)
	}
}

func TestComprehensive_PlaceholderKeepsSecret(t *testing.T) {
	f := newFixture(t)
	tgt := f.create(t, web01())

	got, err := f.svc.UpdateTargetComprehensive(context.Background(), tgt.ID, ComprehensiveUpdate{
		Password: LegacySecret("[Current Password - Hidden for Security]"),
	})
	require.NoError(t, err)

	p := f.payload(t, &got.Methods[0])
	assert.Equal(t, "p@ss", p.Password)
	assert.Equal(t, tgt.Methods[0].Credentials[0].EncryptedCredentials,
		got.Methods[0].Credentials[0].EncryptedCredentials, "credential was rewritten")
	assert.Empty(t, f.auditor.ofType(audit.EventCredentialRotated))
}

func TestComprehensive_PasswordRotation(t *testing.T) {
	f := newFixture(t)
	tgt := f.create(t, web01())

	got, err := f.svc.UpdateTargetComprehensive(context.Background(), tgt.ID, ComprehensiveUpdate{
		Password: LegacySecret("n3w-pass"),
	})
	require.NoError(t, err)

	p := f.payload(t, &got.Methods[0])
	assert.Equal(t, "n3w-pass", p.Password)
	assert.Equal(t, "admin", p.Username, "username falls back to the stored one")
	assert.Len(t, f.auditor.ofType(audit.EventCredentialRotated), 1)
}

func TestComprehensive_UsernameOnlyChange(t *testing.T) {
	f := newFixture(t)
	tgt := f.create(t, web01())

	got, err := f.svc.UpdateTargetComprehensive(context.Background(), tgt.ID, ComprehensiveUpdate{
		Username: ptr("root"),
	})
	require.NoError(t, err)

	p := f.payload(t, &got.Methods[0])
	assert.Equal(t, "root", p.Username)
	assert.Equal(t, "p@ss", p.Password)
	assert.Equal(t, "root_password", got.Methods[0].Credentials[0].CredentialName)
}

func TestComprehensive_SwitchToKey(t *testing.T) {
	f := newFixture(t)
	tgt := f.create(t, web01())

	got, err := f.svc.UpdateTargetComprehensive(context.Background(), tgt.ID, ComprehensiveUpdate{
		SSHKey:        NewSecret("KEY-MATERIAL"),
		SSHPassphrase: NewSecret("phrase"),
	})
	require.NoError(t, err)

	c := got.Methods[0].Credentials[0]
	assert.Equal(t, models.CredentialSSHKey, c.CredentialType)
	assert.Equal(t, "admin_ssh_key", c.CredentialName)
	p := f.payload(t, &got.Methods[0])
	assert.Equal(t, "KEY-MATERIAL", p.PrivateKey)
	assert.Equal(t, "phrase", p.Passphrase)
	assert.Empty(t, p.Password)
}

func TestComprehensive_RotationWithUndecryptableCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tgt := f.create(t, web01())
	_, err := f.db.Exec("UPDATE credentials SET encrypted_credentials = 'garbage'")
	require.NoError(t, err)

	_, err = f.svc.UpdateTargetComprehensive(ctx, tgt.ID, ComprehensiveUpdate{Username: ptr("root")})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "credentials", ve.Field)

	// A full new secret does not need the old payload; the username comes
	// from the credential name.
	got, err := f.svc.UpdateTargetComprehensive(ctx, tgt.ID, ComprehensiveUpdate{Password: NewSecret("fresh")})
	require.NoError(t, err)
	p := f.payload(t, &got.Methods[0])
	assert.Equal(t, "admin", p.Username)
	assert.Equal(t, "fresh", p.Password)
}

func TestComprehensive_MultipleMethods(t *testing.T) {
	f := newFixture(t)
	tgt := f.create(t, web01())
	sshID := tgt.Methods[0].ID

	got, err := f.svc.UpdateTargetComprehensive(context.Background(), tgt.ID, ComprehensiveUpdate{
		TargetUpdate: TargetUpdate{Description: ptr("db and shell")},
		Methods: []MethodPatch{
			{ID: sshID, Config: map[string]any{"port": 2222}},
			{
				MethodType: "postgresql",
				Host:       ptr("10.0.0.5"),
				IsPrimary:  ptr(true),
				Username:   ptr("postgres"),
				Password:   NewSecret("pg"),
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "db and shell", got.Description)
	require.Len(t, got.Methods, 2)
	assert.Equal(t, 1, primaryCount(got))
	pm := got.PrimaryMethod()
	assert.Equal(t, models.MethodPostgreSQL, pm.MethodType)
	assert.Equal(t, "postgres", models.ConfigString(pm.Config, "database"))
	assert.Equal(t, 2222, got.Method(sshID).Port())

	events := f.auditor.ofType(audit.EventTargetUpdated)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Details, "methods")
}

func TestComprehensive_OnePrimaryTransitionPerCall(t *testing.T) {
	f := newFixture(t)
	tgt := f.create(t, web01())
	a := f.addSNMP(t, tgt.ID, false)
	b := f.addSNMP(t, tgt.ID, false)

	_, err := f.svc.UpdateTargetComprehensive(context.Background(), tgt.ID, ComprehensiveUpdate{
		Methods: []MethodPatch{
			{ID: a.ID, IsPrimary: ptr(true)},
			{ID: b.ID, IsPrimary: ptr(true)},
		},
	})
	assert.True(t, IsValidation(err), "error = %v", err)
	assert.Equal(t, tgt.Methods[0].ID, f.reload(t, tgt.ID).PrimaryMethod().ID)
}

func TestComprehensive_AtomicOnFailure(t *testing.T) {
	f := newFixture(t)
	tgt := f.create(t, web01())
	sshID := tgt.Methods[0].ID

	_, err := f.svc.UpdateTargetComprehensive(context.Background(), tgt.ID, ComprehensiveUpdate{
		TargetUpdate: TargetUpdate{Name: ptr("renamed")},
		Methods: []MethodPatch{
			{ID: sshID, Port: ptr(2200)},
			{ID: 424242, Port: ptr(1)},
		},
	})
	assert.True(t, IsNotFound(err), "error = %v", err)

	got := f.reload(t, tgt.ID)
	assert.Equal(t, "web01", got.Name)
	assert.Equal(t, 22, got.Methods[0].Port())
}

func TestComprehensive_LegacyIPChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tgt := f.create(t, web01())

	other := web01()
	other.Name = "web02"
	other.IPAddress = "10.0.0.6"
	f.create(t, other)

	_, err := f.svc.UpdateTargetComprehensive(ctx, tgt.ID, ComprehensiveUpdate{IPAddress: ptr("10.0.0.6")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "web02")

	got, err := f.svc.UpdateTargetComprehensive(ctx, tgt.ID, ComprehensiveUpdate{
		IPAddress: ptr("10.0.0.7"),
		Port:      ptr(2022),
	})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", got.Methods[0].Host())
	assert.Equal(t, 2022, got.Methods[0].Port())
}

func TestComprehensive_LegacyMethodTypeChangeReclassifies(t *testing.T) {
	f := newFixture(t)
	tgt := f.create(t, web01())

	got, err := f.svc.UpdateTargetComprehensive(context.Background(), tgt.ID, ComprehensiveUpdate{
		MethodType: ptr("rest_api"),
	})
	require.NoError(t, err)

	m := got.Methods[0]
	assert.Equal(t, models.MethodRESTAPI, m.MethodType)
	assert.Equal(t, 443, m.Port())
	assert.Equal(t, "10.0.0.5", m.Host())
	assert.Equal(t, models.CredentialAPIKey, m.Credentials[0].CredentialType)
	assert.Equal(t, "p@ss", f.payload(t, &m).Password)
}
