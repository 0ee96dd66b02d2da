// Package config loads twinpane settings.
//
// Sources, highest precedence first: runtime overrides (CLI flags),
// TWINPANE_* environment variables, a YAML config file, defaults.
package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "TWINPANE"

	// ConfigName is the base name of the config file searched for.
	ConfigName = "twinpane"
)

// EnvSpec maps an environment variable to a settings path.
type EnvSpec struct {
	Name string
	Path string
}

// aliases are short environment names accepted next to the derived ones.
var aliases = []EnvSpec{
	{Name: EnvPrefix + "_LOG_LEVEL", Path: "logging.level"},
	{Name: EnvPrefix + "_HOST", Path: "server.host"},
	{Name: EnvPrefix + "_PORT", Path: "server.port"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendS3)
	v.SetDefault("access_key", "")
	v.SetDefault("secret_key", "")
	v.SetDefault("bucket", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("region", "")
	v.SetDefault("profile", "")
	v.SetDefault("connect_timeout", "30s")
	v.SetDefault("read_timeout", "2h")
	v.SetDefault("max_attempts", 10)
	v.SetDefault("part_size_mb", 0)
	v.SetDefault("max_concurrency", 4)
	v.SetDefault("upload_use_threads", true)
	v.SetDefault("upload_fallback_bump", false)
	v.SetDefault("list_page_size", 1000)
	v.SetDefault("list_rate_limit", 0)
	v.SetDefault("local_root", "")

	v.SetDefault("logging.level", "info")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
}

// keys lists every settings path, force_path_style included even though
// it has no default.
func keys(v *viper.Viper) []string {
	all := v.AllKeys()
	for _, k := range all {
		if k == "force_path_style" {
			return all
		}
	}
	return append(all, "force_path_style")
}

// EnvSpecs returns every environment variable Load reads.
func EnvSpecs() []EnvSpec {
	v := viper.New()
	setDefaults(v)
	return envSpecs(v)
}

func envSpecs(v *viper.Viper) []EnvSpec {
	specs := make([]EnvSpec, 0, len(aliases)+16)
	for _, k := range keys(v) {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_"))
		specs = append(specs, EnvSpec{Name: name, Path: k})
	}
	return append(specs, aliases...)
}

// Load builds Settings. configFile may be empty, in which case
// twinpane.yaml is looked up in the working directory and in
// $HOME/.config/twinpane; a missing file is not an error. Overrides are
// nested maps keyed like the config file.
func Load(ctx context.Context, configFile string, overrides ...map[string]any) (*Settings, error) {
	_ = ctx
	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	// Bind every key explicitly so Unmarshal sees env values for keys that
	// appear nowhere else. The derived name is checked before any alias.
	names := map[string][]string{}
	for _, spec := range envSpecs(v) {
		names[spec.Path] = append(names[spec.Path], spec.Name)
	}
	for path, envs := range names {
		if err := v.BindEnv(append([]string{path}, envs...)...); err != nil {
			return nil, &ConfigError{Key: path, Message: "bind environment", Err: err}
		}
	}

	for _, o := range overrides {
		for k, val := range flatten("", o) {
			v.Set(k, val)
		}
	}

	var s Settings
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&s, viper.DecodeHook(hook)); err != nil {
		return nil, &ConfigError{Message: "decode settings", Err: err}
	}

	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	s.Logging.Level = strings.ToLower(s.Logging.Level)
	if !v.IsSet("force_path_style") && s.Endpoint != "" {
		s.ForcePathStyle = true
	}
	if s.LocalRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, &ConfigError{Key: "local_root", Message: "resolve working directory", Err: err}
		}
		s.LocalRoot = wd
	}
	s.ConfigFile = v.ConfigFileUsed()
	return &s, nil
}

func readConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return &ConfigError{Key: "config", Message: "read " + configFile, Err: err}
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return &ConfigError{Key: "config", Message: "read config file", Err: err}
	}
	return nil
}

// flatten turns nested override maps into dotted keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
