package target

import (
	"github.com/HerbHall/opsconductor/pkg/models"
)

// SNMPv3 USM keys callers may send inside method config. They never stay
// in the stored config: auth_key moves to the credential password slot and
// priv_key to the passphrase slot, both encrypted.
const (
	configAuthKey = "auth_key"
	configPrivKey = "priv_key"
)

// liftConfigSecrets removes the SNMPv3 keys from cfg and returns them.
// Other method types reject them.
func liftConfigSecrets(mt models.MethodType, cfg map[string]any) (authKey, privKey string, err error) {
	for _, key := range []string{configAuthKey, configPrivKey} {
		v, ok := cfg[key]
		if !ok {
			continue
		}
		delete(cfg, key)
		if mt != models.MethodSNMP {
			return "", "", invalid("config", "%s is only used by snmp methods", key)
		}
		s, ok := v.(string)
		if !ok {
			return "", "", invalid("config", "%s must be a string", key)
		}
		if key == configAuthKey {
			authKey = s
		} else {
			privKey = s
		}
	}
	return authKey, privKey, nil
}

// fillSlot puts a key lifted from config into an empty credential slot. A
// slot already holding a different value is a conflict.
func fillSlot(slot *string, lifted, key string) error {
	if lifted == "" {
		return nil
	}
	if *slot != "" && *slot != lifted {
		return invalid("config", "%s conflicts with the supplied credential", key)
	}
	*slot = lifted
	return nil
}

// fillSecret is fillSlot for a patch field.
func fillSecret(f *SecretField, lifted, key string) error {
	if lifted == "" {
		return nil
	}
	if f.IsSet() && f.Value() != lifted {
		return invalid("config", "%s conflicts with the supplied credential", key)
	}
	*f = NewSecret(lifted)
	return nil
}

// liftIntoRequest moves SNMPv3 keys from cfg into the password and
// passphrase of a new credential.
func liftIntoRequest(mt models.MethodType, cfg map[string]any, password, passphrase *string) error {
	authKey, privKey, err := liftConfigSecrets(mt, cfg)
	if err != nil {
		return err
	}
	if err := fillSlot(password, authKey, configAuthKey); err != nil {
		return err
	}
	return fillSlot(passphrase, privKey, configPrivKey)
}
