package config

import (
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// applyEnv overlays PREFIX_* environment variables onto cfg. A double
// underscore separates nesting levels, so GRAPHSEED_READINESS__INITIAL_DELAY
// maps to readiness.initial_delay. List values are comma separated.
func applyEnv(cfg *Config, prefix string) error {
	k := koanf.New(".")
	err := k.Load(env.Provider(prefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, prefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return errors.Wrap(err, "failed to read environment")
	}
	if len(k.Keys()) == 0 {
		return nil
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return errors.Wrap(err, "failed to decode environment overrides")
	}
	return nil
}
