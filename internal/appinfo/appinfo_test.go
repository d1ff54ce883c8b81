package appinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEnvironment(t *testing.T) {
	tests := map[string]string{
		"":        "development",
		"prod":    "production",
		"Staging": "staging",
		"testing": "test",
		"dev":     "development",
		"qa":      "qa",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeEnvironment(in), in)
	}
}

func TestCurrentPrefersAppVersion(t *testing.T) {
	t.Setenv("APP_VERSION", "1.4.2")
	info := Current("learnhub-progression", "prod")
	assert.Equal(t, "learnhub-progression", info.Name)
	assert.Equal(t, "1.4.2", info.Version)
	assert.Equal(t, "production", info.Environment)
}
