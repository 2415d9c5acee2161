package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load config from file into the config struct, config must be a pointer to the config struct.
// The current values of config are the defaults. Environment variables override the file, with "." replaced by "_".
// An empty file loads the defaults and the environment only.
func Load(file string, config any) error {
	loadDotEnv()

	v := viper.New()
	m := make(map[string]any)

	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, m, "")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config from file %s: %v", file, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

func loadDotEnv() {
	err := godotenv.Load()
	if err == nil || stderrors.Is(err, fs.ErrNotExist) {
		return
	}
	slog.Warn("config: load .env failed", "error", err)
}

// bindEnvs registers every key of m, reading the config file drops the merged defaults
// and AutomaticEnv only applies to known keys.
func bindEnvs(v *viper.Viper, m map[string]any, prefix string) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if sub, ok := val.(map[string]any); ok {
			bindEnvs(v, sub, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}
