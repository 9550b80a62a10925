package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDefaults(t *testing.T) {
	db := openDB(t)

	store, err := NewStore(db)
	require.NoError(t, err)

	cfg, err := store.GetConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.UniqueID)
	assert.Equal(t, defaultConfigPath, cfg.ConfigPath)
	assert.Equal(t, defaultExpectedDevices, cfg.ExpectedDevices)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, defaultTopicRoot, cfg.MQTT.TopicRoot)

	// Reopening keeps the unique id.
	store, err = NewStore(db)
	require.NoError(t, err)
	again, err := store.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg.UniqueID, again.UniqueID)
}

func TestStoreValidation(t *testing.T) {
	store, err := NewStore(openDB(t))
	require.NoError(t, err)

	valid, err := store.GetConfig()
	require.NoError(t, err)

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "No expected devices", modify: func(c *Config) { c.ExpectedDevices = 0 }},
		{name: "Empty host", modify: func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Host = "" }},
		{name: "Invalid port", modify: func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Port = 70000 }},
		{name: "Empty topic root", modify: func(c *Config) { c.MQTT.Enabled = true; c.MQTT.TopicRoot = "" }},
		{name: "Invalid interval", modify: func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Interval = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.modify(&cfg)
			assert.Error(t, store.SetConfig(cfg))

			stored, err := store.GetConfig()
			require.NoError(t, err)
			assert.Equal(t, valid, stored)
		})
	}

	// MQTT settings are not checked while the bridge is disabled.
	cfg := valid
	cfg.MQTT.Host = ""
	require.NoError(t, store.SetConfig(cfg))
}
