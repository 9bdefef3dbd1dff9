// Package mqtt publishes access decisions and liveness pings to an MQTT
// broker.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"cardgate/session"
)

const (
	defaultPrefix       = "cardgate"
	defaultPingInterval = 120 * time.Second
)

// Client wraps the MQTT client with application-specific functionality.
type Client struct {
	client  paho.Client
	cfg     Config
	enabled bool
	log     zerolog.Logger

	// publish delivers one message; replaced in tests.
	publish func(topic string, payload []byte)
}

// Config holds MQTT connection settings.
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	CACert       string        `yaml:"ca_cert"`
	ClientCert   string        `yaml:"client_cert"`
	ClientKey    string        `yaml:"client_key"`
	ClientID     string        `yaml:"client_id"`
	Prefix       string        `yaml:"prefix"`        // topic root, default "cardgate"
	PingInterval time.Duration `yaml:"ping_interval"` // default 2m
}

// New creates a new MQTT client. Returns a disabled no-op client if host is empty.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ClientID == "" {
		host, _ := os.Hostname()
		cfg.ClientID = host
	}
	c := &Client{cfg: cfg, log: log}

	if cfg.Host == "" {
		log.Info().Msg("MQTT disabled (no host configured)")
		return c, nil
	}
	c.enabled = true

	var broker string
	var tlsConfig *tls.Config

	if cfg.CACert != "" || cfg.ClientCert != "" {
		if cfg.Port == 0 {
			cfg.Port = 8883
		}
		broker = fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)

		var err error
		tlsConfig, err = buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
	} else {
		if cfg.Port == 0 {
			cfg.Port = 1883
		}
		broker = fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
		log.Warn().Msg("MQTT using non-TLS connection")
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetOnConnectHandler(c.handleConnect)

	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(opts)
	c.publish = func(topic string, payload []byte) {
		c.client.Publish(topic, 0, false, payload)
	}

	paho.ERROR = pahoLogger{log: log, level: zerolog.ErrorLevel}
	paho.CRITICAL = pahoLogger{log: log, level: zerolog.ErrorLevel}
	paho.WARN = pahoLogger{log: log, level: zerolog.WarnLevel}

	return c, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		caPool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = caPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Connect connects to the MQTT broker. No-op if disabled.
func (c *Client) Connect() error {
	if !c.enabled {
		return nil
	}
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}
	c.log.Info().Str("client_id", c.cfg.ClientID).Msg("MQTT connected")
	return nil
}

// Disconnect disconnects from the MQTT broker. No-op if disabled.
func (c *Client) Disconnect() {
	if !c.enabled || c.client == nil {
		return
	}
	c.client.Disconnect(250)
}

// IsEnabled returns whether MQTT is enabled.
func (c *Client) IsEnabled() bool {
	return c.enabled
}

func (c *Client) topic(leaf string) string {
	return fmt.Sprintf("%s/status/node/%s/%s", c.cfg.Prefix, c.cfg.ClientID, leaf)
}

// accessMessage is the payload of an access topic message.
type accessMessage struct {
	Decision  string `json:"decision"`
	Allowed   int    `json:"allowed"`
	Member    string `json:"member,omitempty"`
	Level     string `json:"level,omitempty"`
	Card      string `json:"card"`
	Mode      string `json:"mode"`
	Timestamp int64  `json:"timestamp"`
}

// PublishAccess implements session.Publisher.
func (c *Client) PublishAccess(ev session.Event) {
	if !c.enabled {
		return
	}
	msg := accessMessage{
		Decision:  ev.Decision.String(),
		Member:    ev.Member,
		Card:      ev.Card,
		Mode:      ev.Mode.String(),
		Timestamp: ev.Time.Unix(),
	}
	if ev.Decision == session.Granted {
		msg.Allowed = 1
	}
	if ev.Member != "" {
		msg.Level = ev.Level.String()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("Encode access message")
		return
	}
	c.publish(c.topic("access"), payload)
}

// PingSender publishes a liveness ping every PingInterval until ctx is
// cancelled.
func (c *Client) PingSender(ctx context.Context) {
	if !c.enabled {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.publish(c.topic("ping"), []byte(`{"status":"ok"}`))
		}
	}
}

func (c *Client) handleConnect(paho.Client) {
	c.log.Info().Msg("MQTT connection established")
}

func (c *Client) handleConnectionLost(_ paho.Client, err error) {
	c.log.Warn().Err(err).Msg("MQTT connection lost")
}

// pahoLogger routes the paho library's logging into zerolog.
type pahoLogger struct {
	log   zerolog.Logger
	level zerolog.Level
}

func (p pahoLogger) Println(v ...interface{}) {
	p.log.WithLevel(p.level).Str("component", "paho").Msg(fmt.Sprint(v...))
}

func (p pahoLogger) Printf(format string, v ...interface{}) {
	p.log.WithLevel(p.level).Str("component", "paho").Msgf(format, v...)
}
