package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken      string        `envconfig:"BOT_TOKEN" required:"true"`
	DBPath        string        `envconfig:"DB_PATH" default:"./data/daychain.db"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr      string        `envconfig:"HTTP_ADDR" default:":8080"`
	AssignmentTTL time.Duration `envconfig:"ASSIGNMENT_TTL" default:"1h"`
	ChainWindow   time.Duration `envconfig:"CHAIN_WINDOW" default:"24h"`
	ValidatorURL  string        `envconfig:"VALIDATOR_URL"` // empty: content passes unvalidated
	LedgerURL     string        `envconfig:"LEDGER_URL"`    // empty: blocks are not recorded externally
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
