package config

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables that control loading itself.
const (
	EnvPrefix  = "MILEPOST_"
	EnvConfig  = "MILEPOST_CONFIG"
	EnvDotenv  = "MILEPOST_DOTENV"
	defaultEnv = ".env"
	nestingSep = "__"
)

// Load builds a Config by layering defaults, a dotenv file, an optional YAML
// file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. .env file (MILEPOST_DOTENV, or ./.env when present); never overrides
//     variables already set in the process
//  3. file (YAML) if MILEPOST_CONFIG is set
//  4. env (prefix MILEPOST_, "__" separates nested keys)
func Load(_ context.Context) (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "load %s", path), ErrLoadConfig)
		}
	}

	// MILEPOST_SCHEDULER__BATCH_SIZE -> scheduler.batch_size
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, nestingSep, ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "load environment"), ErrLoadConfig)
	}
	// The loader's own control variables are not config keys.
	k.Delete("config")
	k.Delete("dotenv")

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode config"), ErrLoadConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotenv() error {
	path := os.Getenv(EnvDotenv)
	if path == "" {
		if _, err := os.Stat(defaultEnv); err != nil {
			return nil
		}
		path = defaultEnv
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Mark(errors.Wrapf(err, "load dotenv %s", path), ErrLoadConfig)
	}
	return nil
}
