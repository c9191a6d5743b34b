package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.tgarc.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgarc")
}

// Dir returns the account-specific directory.
func Dir(account string) string {
	return filepath.Join(BaseDir(), "accounts", account)
}

// TokenPath returns the opaque session token path for an account.
func TokenPath(account string) string {
	return filepath.Join(Dir(account), "session.token")
}

// ArchiveDBPath returns the app-owned archive database path.
func ArchiveDBPath(account string) string {
	return filepath.Join(Dir(account), "archive.db")
}

// MediaDir returns the downloaded-media directory for an account.
func MediaDir(account string) string {
	return filepath.Join(Dir(account), "media")
}

// LockPath returns the lock file path for an account.
func LockPath(account string) string {
	return filepath.Join(Dir(account), "LOCK")
}

// LogDir returns the log directory for an account.
func LogDir(account string) string {
	return filepath.Join(Dir(account), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(account string) string {
	return filepath.Join(LogDir(account), "tgarcd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the account directory tree with proper permissions.
func EnsureDir(account string) error {
	dirs := []string{
		Dir(account),
		LogDir(account),
		MediaDir(account),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
