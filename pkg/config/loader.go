package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load fills cfg from environment variables declared with `env` struct tags:
//
//	type Config struct {
//	    HTTPPort int      `env:"LEDGER_HTTP_PORT" envDefault:"8010"`
//	    Brokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
