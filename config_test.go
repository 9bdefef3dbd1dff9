package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
log:
  level: debug
reader:
  type: keyboard
  device: /dev/input/event3
  digits: 10
actuator:
  port: /dev/ttyUSB0
  baud: 9600
session:
  success_delay: 4s
audit:
  legal_from: 8
  legal_to: 20
store:
  type: memory
mqtt:
  host: broker.local
  port: 1883
event_pipe:
  path: /tmp/cardgate-events
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cardgate.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "application.log", cfg.Log.File)
	require.Equal(t, "/dev/input/event3", cfg.Reader.Device)
	require.Equal(t, 10, cfg.Reader.Digits)
	require.Equal(t, "/dev/ttyUSB0", cfg.Actuator.Port)
	require.Equal(t, 4*time.Second, cfg.Session.SuccessDelay)
	require.Equal(t, 8, *cfg.Audit.LegalFrom)
	require.Equal(t, 20, *cfg.Audit.LegalTo)
	require.Equal(t, "memory", cfg.Store.Type)
	require.Empty(t, cfg.Store.URI)
	require.Equal(t, "broker.local", cfg.MQTT.Host)
	require.Equal(t, "/tmp/cardgate-events", cfg.EventPipe.Path)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CARDGATE_ACTUATOR_PORT", "/dev/ttyACM1")
	t.Setenv("CARDGATE_ERROR_DELAY", "3s")
	t.Setenv("CARDGATE_MQTT_PORT", "8883")

	cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.Equal(t, "/dev/ttyACM1", cfg.Actuator.Port)
	require.Equal(t, 3*time.Second, cfg.Session.ErrorDelay)
	require.Equal(t, 8883, cfg.MQTT.Port)
	// Untouched settings keep the file's value.
	require.Equal(t, "broker.local", cfg.MQTT.Host)
	require.Equal(t, 4*time.Second, cfg.Session.SuccessDelay)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	require.Equal(t, "mongodb://localhost:27017", cfg.Store.URI)
	require.Equal(t, "application.log", cfg.Log.File)
}

func TestLoadConfigBadYAML(t *testing.T) {
	_, err := loadConfig(writeConfig(t, "reader: [unterminated"))
	require.Error(t, err)
}

func TestLoadConfigBadEnv(t *testing.T) {
	t.Setenv("CARDGATE_ACTUATOR_BAUD", "fast")
	_, err := loadConfig(writeConfig(t, sampleConfig))
	require.Error(t, err)
}
