package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v2"

	"cardgate/actuator"
	"cardgate/audit"
	"cardgate/button"
	"cardgate/eventpipe"
	"cardgate/logger"
	"cardgate/metrics"
	"cardgate/mqtt"
	"cardgate/reader"
	"cardgate/session"
	"cardgate/store"
)

// Config is the main configuration structure for cardgate.
type Config struct {
	Log       logger.Options   `yaml:"log"`
	Reader    reader.Config    `yaml:"reader"`
	Actuator  actuator.Config  `yaml:"actuator"`
	Session   session.Config   `yaml:"session"`
	Audit     audit.Config     `yaml:"audit"`
	Store     store.Config     `yaml:"store"`
	MQTT      mqtt.Config      `yaml:"mqtt"`
	Metrics   metrics.Config   `yaml:"metrics"`
	Button    button.Config    `yaml:"button"`
	EventPipe eventpipe.Config `yaml:"event_pipe"`
}

// envConfig lists the settings that can be overridden from the environment
// (or a .env file). Unset variables keep the value from the config file.
type envConfig struct {
	LogLevel      string        `env:"CARDGATE_LOG_LEVEL, overwrite"`
	LogFile       string        `env:"CARDGATE_LOG_FILE, overwrite"`
	LogConsole    bool          `env:"CARDGATE_LOG_CONSOLE, overwrite"`
	ReaderType    string        `env:"CARDGATE_READER_TYPE, overwrite"`
	ReaderDevice  string        `env:"CARDGATE_READER_DEVICE, overwrite"`
	ActuatorPort  string        `env:"CARDGATE_ACTUATOR_PORT, overwrite"`
	ActuatorBaud  int           `env:"CARDGATE_ACTUATOR_BAUD, overwrite"`
	SuccessDelay  time.Duration `env:"CARDGATE_SUCCESS_DELAY, overwrite"`
	ErrorDelay    time.Duration `env:"CARDGATE_ERROR_DELAY, overwrite"`
	StoreType     string        `env:"CARDGATE_STORE_TYPE, overwrite"`
	StoreURI      string        `env:"CARDGATE_STORE_URI, overwrite"`
	StoreDatabase string        `env:"CARDGATE_STORE_DATABASE, overwrite"`
	MQTTHost      string        `env:"CARDGATE_MQTT_HOST, overwrite"`
	MQTTPort      int           `env:"CARDGATE_MQTT_PORT, overwrite"`
	MQTTClientID  string        `env:"CARDGATE_MQTT_CLIENT_ID, overwrite"`
	MetricsListen string        `env:"CARDGATE_METRICS_LISTEN, overwrite"`
	EventPipe     string        `env:"CARDGATE_EVENT_PIPE, overwrite"`
}

// loadConfig reads the YAML file at path and applies environment overrides.
// A missing file is not an error: every setting has a default.
func loadConfig(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	env := envConfig{
		LogLevel:      cfg.Log.Level,
		LogFile:       cfg.Log.File,
		LogConsole:    cfg.Log.Console,
		ReaderType:    cfg.Reader.Type,
		ReaderDevice:  cfg.Reader.Device,
		ActuatorPort:  cfg.Actuator.Port,
		ActuatorBaud:  cfg.Actuator.Baud,
		SuccessDelay:  cfg.Session.SuccessDelay,
		ErrorDelay:    cfg.Session.ErrorDelay,
		StoreType:     cfg.Store.Type,
		StoreURI:      cfg.Store.URI,
		StoreDatabase: cfg.Store.Database,
		MQTTHost:      cfg.MQTT.Host,
		MQTTPort:      cfg.MQTT.Port,
		MQTTClientID:  cfg.MQTT.ClientID,
		MetricsListen: cfg.Metrics.Listen,
		EventPipe:     cfg.EventPipe.Path,
	}
	if err := envconfig.Process(context.Background(), &env); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	cfg.Log.Level = env.LogLevel
	cfg.Log.File = env.LogFile
	cfg.Log.Console = env.LogConsole
	cfg.Reader.Type = env.ReaderType
	cfg.Reader.Device = env.ReaderDevice
	cfg.Actuator.Port = env.ActuatorPort
	cfg.Actuator.Baud = env.ActuatorBaud
	cfg.Session.SuccessDelay = env.SuccessDelay
	cfg.Session.ErrorDelay = env.ErrorDelay
	cfg.Store.Type = env.StoreType
	cfg.Store.URI = env.StoreURI
	cfg.Store.Database = env.StoreDatabase
	cfg.MQTT.Host = env.MQTTHost
	cfg.MQTT.Port = env.MQTTPort
	cfg.MQTT.ClientID = env.MQTTClientID
	cfg.Metrics.Listen = env.MetricsListen
	cfg.EventPipe.Path = env.EventPipe
	return nil
}

// setDefaults fills in the settings main needs before any package sees them.
// Packages default the rest of their own fields.
func (c *Config) setDefaults() {
	if c.Log.File == "" {
		c.Log.File = logger.DefaultFile
	}
	if c.Store.URI == "" && (c.Store.Type == "" || c.Store.Type == "mongo") {
		c.Store.URI = "mongodb://localhost:27017"
	}
}
