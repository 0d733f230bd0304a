package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDirName marks a project-local note storage directory.
const DataDirName = ".stickies"

// FindDataDir looks upwards from startDir for a DataDirName directory and
// returns its absolute path.
func FindDataDir(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if isDir(filepath.Join(dir, DataDirName)) {
			return filepath.Join(dir, DataDirName), nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%s not found", DataDirName)
}

// ResolveDataDir returns dir when set, else the nearest project-local data
// directory above the working directory, else the user config directory.
func ResolveDataDir(dir string) string {
	if dir != "" {
		return dir
	}
	if wd, err := os.Getwd(); err == nil {
		if found, err := FindDataDir(wd); err == nil {
			return found
		}
	}
	if cfg, err := os.UserConfigDir(); err == nil {
		return filepath.Join(cfg, "stickies")
	}
	return DataDirName
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
