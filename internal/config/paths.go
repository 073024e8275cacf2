package config

import (
	"os"
	"path/filepath"
)

const (
	// InstanceProduction is the default storage namespace.
	InstanceProduction = "production"
	// InstanceDevelopment keeps development state apart from a parallel
	// production install.
	InstanceDevelopment = "development"
)

// InstancePaths contains all paths for a Parley instance.
type InstancePaths struct {
	Home          string // Instance home directory
	ConfigDB      string // SQLite configuration store path
	LegacyServers string // servers.json left behind by older releases
	UpdatePrefs   string // User-tier update preferences path
	Socket        string // Unix socket path for the surface gateway
	Lock          string // PID file guarding single-daemon-per-instance
	Logs          string // Logs directory
	TempDir       string // Temporary files directory
}

// GetInstancePaths returns all paths for a given instance.
// Empty instance name defaults to production.
func GetInstancePaths(instanceName string) InstancePaths {
	if instanceName == "" {
		instanceName = InstanceProduction
	}

	instanceDir := filepath.Join(GetParleyHome(), "instances", instanceName)

	return InstancePaths{
		Home:          instanceDir,
		ConfigDB:      filepath.Join(instanceDir, "config.db"),
		LegacyServers: filepath.Join(instanceDir, "servers.json"),
		UpdatePrefs:   filepath.Join(instanceDir, "update.json"),
		Socket:        filepath.Join(instanceDir, "parley.sock"),
		Lock:          filepath.Join(instanceDir, "parleyd.pid"),
		Logs:          filepath.Join(instanceDir, "logs"),
		TempDir:       filepath.Join(instanceDir, "tmp"),
	}
}

// GetParleyHome returns the Parley home directory (~/.parley).
func GetParleyHome() string {
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".parley")
}

// EnsureInstanceDirs creates the directory structure for the given instance
// if it does not exist.
func EnsureInstanceDirs(instanceName string) (InstancePaths, error) {
	paths := GetInstancePaths(instanceName)

	dirs := []string{
		paths.Home,
		paths.Logs,
		paths.TempDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return InstancePaths{}, err
		}
	}

	return paths, nil
}

// WipeInstance removes every file persisted for the instance. Used by the
// reset flag so a relaunch starts from first-run state.
func WipeInstance(instanceName string) error {
	paths := GetInstancePaths(instanceName)
	return os.RemoveAll(paths.Home)
}
