// Package appinfo reports build and runtime information about the binary
package appinfo

import (
	"os"
	"runtime/debug"
	"strings"
)

// Info identifies a running build
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	GoVersion   string `json:"go_version,omitempty"`
}

// Current describes this process. name and environment usually come
// from configuration.
func Current(name, environment string) Info {
	info := Info{
		Name:        name,
		Version:     GetVersion(),
		Environment: NormalizeEnvironment(environment),
	}
	if build, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = build.GoVersion
	}
	return info
}

// NormalizeEnvironment maps common aliases to canonical environment names
func NormalizeEnvironment(env string) string {
	switch strings.ToLower(env) {
	case "":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	case "dev", "development":
		return "development"
	default:
		return env
	}
}

// GetVersion returns the application version
// It checks for the following in order:
// 1. APP_VERSION environment variable
// 2. Main module version or VCS revision from the build info
// 3. Defaults to "0.0.0-unknown"
func GetVersion() string {
	if version := os.Getenv("APP_VERSION"); version != "" {
		return version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
	}

	return "0.0.0-unknown"
}
