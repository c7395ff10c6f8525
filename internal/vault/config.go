package vault

// CipherConfig holds configuration for the credential cipher.
type CipherConfig struct {
	Secret string `mapstructure:"secret"`
	Salt   string `mapstructure:"salt"`
}

// DefaultConfig returns the default cipher configuration. Secret is left
// empty; NewCipher rejects it until one is configured.
func DefaultConfig() CipherConfig {
	return CipherConfig{
		Salt: "opsconductor-credentials-v1",
	}
}
