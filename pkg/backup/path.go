package backup

import (
	"os"
	"path/filepath"
)

// DefaultSubdir is the integration subdirectory used when no backup path is
// given.
const DefaultSubdir = "extalife"

// ResolveDir maps a user-supplied backup path onto a concrete directory:
// empty goes to the integration subdirectory of the host config dir, a
// relative path is appended to the config dir, an absolute path is used
// verbatim.
func ResolveDir(configDir, path string) string {
	switch {
	case path == "":
		return filepath.Join(configDir, DefaultSubdir)
	case !filepath.IsAbs(path):
		return filepath.Join(configDir, path)
	default:
		return path
	}
}

// EnsureDir resolves the backup directory and creates it if missing.
func EnsureDir(configDir, path string) (string, error) {
	dir := ResolveDir(configDir, path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
