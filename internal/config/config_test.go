package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
	"configName": "test",
	"apiBaseEndpoint": {"address": "0.0.0.0", "port": 8000},
	"cookieServer": {"address": "127.0.0.1", "port": 3001},
	"wrapperData": [
		{
			"term": "FA24",
			"cooldown": 1.5,
			"searchQuery": [{"levels": ["u", "g"], "departments": ["CSE"]}],
			"saveDataToFile": true
		}
	],
	"verbose": false
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.ConfigName)
	assert.Equal(t, "0.0.0.0:8000", cfg.APIBaseEndpoint.String())
	assert.Equal(t, "127.0.0.1:3001", cfg.CookieServer.String())
	require.Len(t, cfg.WrapperData, 1)
	assert.Equal(t, "FA24", cfg.WrapperData[0].Term)
	assert.Equal(t, 1.5, cfg.WrapperData[0].Cooldown)
	assert.True(t, cfg.WrapperData[0].SaveDataToFile)

	// Environment defaults
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.AuthEnabled)
	assert.Equal(t, "auth.db", cfg.AuthDBPath)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_VerboseForcesDebug(t *testing.T) {
	raw := `{
		"apiBaseEndpoint": {"address": "0.0.0.0", "port": 8000},
		"cookieServer": {"address": "127.0.0.1", "port": 3001},
		"wrapperData": [{"term": "SP25", "cooldown": 1, "searchQuery": [], "saveDataToFile": false}],
		"verbose": true
	}`
	cfg, err := Load(writeConfig(t, raw))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_DB", "/var/keys.db")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.True(t, cfg.AuthEnabled)
	assert.Equal(t, "/var/keys.db", cfg.AuthDBPath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing api address", func(c *Config) { c.APIBaseEndpoint.Address = "" }, true},
		{"api port out of range", func(c *Config) { c.APIBaseEndpoint.Port = 70000 }, true},
		{"missing cookie address", func(c *Config) { c.CookieServer.Address = "" }, true},
		{"no terms", func(c *Config) { c.WrapperData = nil }, true},
		{"bad term", func(c *Config) { c.WrapperData[0].Term = "XX24" }, true},
		{"negative cooldown", func(c *Config) { c.WrapperData[0].Cooldown = -1 }, true},
		{"duplicate terms", func(c *Config) {
			c.WrapperData = append(c.WrapperData, c.WrapperData[0])
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				APIBaseEndpoint: AddressPort{Address: "0.0.0.0", Port: 8000},
				CookieServer:    AddressPort{Address: "127.0.0.1", Port: 3001},
				WrapperData: []TermDatum{{
					Term:     "FA24",
					Cooldown: 1,
				}},
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidTerm(t *testing.T) {
	valid := []string{"FA24", "WI25", "SP25", "S120", "S221", "fa24"}
	for _, term := range valid {
		assert.True(t, ValidTerm(term), term)
	}

	invalid := []string{"", "FA2", "FA245", "XX24", "FAAB", "24FA"}
	for _, term := range invalid {
		assert.False(t, ValidTerm(term), term)
	}
}
