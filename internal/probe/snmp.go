package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/HerbHall/opsconductor/internal/methods"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// sysDescrOID is SNMPv2-MIB::sysDescr.0.
const sysDescrOID = "1.3.6.1.2.1.1.1.0"

func (p *Prober) probeSNMP(ctx context.Context, req *Request, _ Mode) *Result {
	g, res := newGoSNMP(ctx, req)
	if res != nil {
		return res
	}

	start := time.Now()
	if err := g.Connect(); err != nil {
		return netFailure("SNMP connect failed", err).withLatency(start)
	}
	defer g.Conn.Close()

	pkt, err := g.Get([]string{sysDescrOID})
	if err != nil {
		return classifySNMPError(err).withLatency(start)
	}
	if pkt.Error != gosnmp.NoError {
		return failure(KindProtocol, "SNMP agent returned error status %v", pkt.Error).withLatency(start)
	}
	if len(pkt.Variables) == 0 {
		return failure(KindProtocol, "SNMP agent returned no sysDescr value").withLatency(start)
	}

	descr := snmpString(pkt.Variables[0])
	if descr == "" {
		return failure(KindProtocol, "SNMP agent returned an empty sysDescr").withLatency(start)
	}
	return success("SNMP %s query successful", snmpVersionLabel(g.Version)).
		withLatency(start).
		with("sys_descr", truncate(descr, 256))
}

// newGoSNMP builds a client from the method config and credential. For v1
// and v2c the community comes from the credential password slot, falling
// back to config. For v3 the password slot holds the auth key and the
// passphrase slot the privacy key.
func newGoSNMP(ctx context.Context, req *Request) (*gosnmp.GoSNMP, *Result) {
	cfg := req.Config
	g := &gosnmp.GoSNMP{
		Target:  req.Host,
		Port:    uint16(req.Port),
		Timeout: req.Timeout,
		Retries: 0,
		Context: ctx,
	}

	version, err := methods.SNMPVersion(cfg)
	if err != nil {
		return nil, failure(KindConfig, "%v", err)
	}
	switch version {
	case "1":
		g.Version = gosnmp.Version1
		g.Community = snmpCommunity(req)
	case "2c":
		g.Version = gosnmp.Version2c
		g.Community = snmpCommunity(req)
	default:
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		if res := applyUSM(g, req); res != nil {
			return nil, res
		}
	}

	if g.Version != gosnmp.Version3 && g.Community == "" {
		return nil, failure(KindConfig, "SNMP community string is required")
	}
	return g, nil
}

func snmpCommunity(req *Request) string {
	if req.Credential != nil && req.Credential.Password != "" {
		return req.Credential.Password
	}
	return models.ConfigString(req.Config, "community")
}

func applyUSM(g *gosnmp.GoSNMP, req *Request) *Result {
	cfg := req.Config
	username := models.ConfigString(cfg, "username")
	if req.Credential != nil && req.Credential.Username != "" {
		username = req.Credential.Username
	}
	if username == "" {
		return failure(KindConfig, "SNMPv3 requires a username")
	}

	var authKey, privKey string
	if req.Credential != nil {
		authKey = req.Credential.Password
		privKey = req.Credential.Passphrase
	}

	level := models.ConfigString(cfg, "security_level")
	if level == "" {
		switch {
		case authKey != "" && privKey != "":
			level = "authPriv"
		case authKey != "":
			level = "authNoPriv"
		default:
			level = "noAuthNoPriv"
		}
	}

	switch strings.ToLower(level) {
	case "noauthnopriv":
		g.MsgFlags = gosnmp.NoAuthNoPriv
	case "authnopriv":
		g.MsgFlags = gosnmp.AuthNoPriv
		if authKey == "" {
			return failure(KindConfig, "SNMPv3 security level authNoPriv requires an auth key")
		}
	case "authpriv":
		g.MsgFlags = gosnmp.AuthPriv
		if authKey == "" || privKey == "" {
			return failure(KindConfig, "SNMPv3 security level authPriv requires an auth key and a privacy key")
		}
	default:
		return failure(KindConfig, "unknown SNMPv3 security level %q", level)
	}

	usm := &gosnmp.UsmSecurityParameters{UserName: username}
	if g.MsgFlags != gosnmp.NoAuthNoPriv {
		usm.AuthenticationProtocol = mapAuthProtocol(models.ConfigString(cfg, "auth_protocol"))
		usm.AuthenticationPassphrase = authKey
	}
	if g.MsgFlags == gosnmp.AuthPriv {
		usm.PrivacyProtocol = mapPrivProtocol(models.ConfigString(cfg, "priv_protocol"))
		usm.PrivacyPassphrase = privKey
	}
	g.SecurityParameters = usm
	if name := models.ConfigString(cfg, "context_name"); name != "" {
		g.ContextName = name
	}
	return nil
}

func snmpVersionLabel(v gosnmp.SnmpVersion) string {
	switch v {
	case gosnmp.Version1:
		return "v1"
	case gosnmp.Version3:
		return "v3"
	default:
		return "v2c"
	}
}

// mapAuthProtocol converts an auth protocol string to the gosnmp constant.
func mapAuthProtocol(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(s) {
	case "MD5":
		return gosnmp.MD5
	case "SHA-224", "SHA224":
		return gosnmp.SHA224
	case "SHA-256", "SHA256":
		return gosnmp.SHA256
	case "SHA-384", "SHA384":
		return gosnmp.SHA384
	case "SHA-512", "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.SHA
	}
}

// mapPrivProtocol converts a privacy protocol string to the gosnmp constant.
func mapPrivProtocol(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(s) {
	case "DES":
		return gosnmp.DES
	case "AES-192", "AES192":
		return gosnmp.AES192
	case "AES-256", "AES256":
		return gosnmp.AES256
	case "AES-192C", "AES192C":
		return gosnmp.AES192C
	case "AES-256C", "AES256C":
		return gosnmp.AES256C
	default:
		return gosnmp.AES
	}
}

func snmpString(v gosnmp.SnmpPDU) string {
	switch v.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return ""
	}
	switch val := v.Value.(type) {
	case []byte:
		return strings.TrimSpace(string(val))
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

func classifySNMPError(err error) *Result {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unknown user"):
		return failure(KindAuth, "SNMPv3 unknown user name")
	case strings.Contains(msg, "wrong digest"), strings.Contains(msg, "authentication"):
		return failure(KindAuth, "SNMPv3 authentication failure (wrong auth key or protocol)")
	case strings.Contains(msg, "decrypt"):
		return failure(KindAuth, "SNMPv3 decryption failure (wrong privacy key or protocol)")
	case strings.Contains(msg, "timeout"):
		return failure(KindTimeout, "SNMP request timed out (wrong community, version, or host unreachable)")
	}
	return netFailure("SNMP request failed", err)
}
