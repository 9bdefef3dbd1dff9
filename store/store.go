package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cardgate/account"
)

// Config holds configuration for the account store.
type Config struct {
	Type       string        `yaml:"type"`       // "mongo" (default), "memory"
	URI        string        `yaml:"uri"`        // e.g. "mongodb://localhost:27017"
	Database   string        `yaml:"database"`   // e.g. "rfid"
	Collection string        `yaml:"collection"` // e.g. "rlab"
	Timeout    time.Duration `yaml:"timeout"`
}

// Open creates an account.Store based on the provided configuration.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (account.Store, error) {
	switch cfg.Type {
	case "memory":
		log.Warn().Msg("Using in-memory account store, accounts are lost on exit")
		return NewMemory(), nil
	case "mongo", "":
		return OpenMongo(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
