package session

import (
	"fmt"
	"regexp"

	"github.com/pcruz7/tgarc/internal/config"
)

// DefaultAccountName is used when no flag or config value names an account.
const DefaultAccountName = "default"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Resolve picks the account name: flag override first, then the config
// default, then the built-in default.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultAccount != "" {
		return cfg.DefaultAccount
	}
	return DefaultAccountName
}

// ValidateName rejects account names that could escape the account
// directory or collide across filesystems.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid account name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}
