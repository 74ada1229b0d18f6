package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Addr is the address the TCP listener binds to.
	Addr string `koanf:"addr" validate:"required,ip_addr"`

	// BlocklistPath optionally names a file of blocked path rules.
	// Empty disables the blocklist entirely.
	BlocklistPath string `koanf:"blocklist_path"`

	// DelayMS is the simulated expensive-operation duration in
	// milliseconds, paid once per previously-unseen path.
	DelayMS uint `koanf:"delay_ms" validate:"required,gte=1"`

	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Port is the network port the server will bind to.
	Port int `koanf:"port" validate:"required,gte=1,lt=65535"`

	// Workers is the fixed worker pool size. Zero means auto: one worker
	// per CPU, never fewer than two.
	Workers int `koanf:"workers" validate:"gte=0"`
}

// Delay returns the simulated work duration as a time.Duration.
func (c *AppConfig) Delay() time.Duration {
	return time.Duration(c.DelayMS) * time.Millisecond
}

// DEFAULT_APP_CONFIG defines the default application configuration. The
// defaults reproduce the reference behavior: bind 0.0.0.0:7878, one second
// of simulated work, auto-sized pool, no blocklist.
var DEFAULT_APP_CONFIG = AppConfig{
	Addr:          "0.0.0.0",
	BlocklistPath: "",
	DelayMS:       1000,
	Env:           "prod",
	LogLevel:      "info",
	Port:          7878,
	Workers:       0,
}

// validIPAddr validates that the field is a bare IP address (no port).
func validIPAddr(fl validator.FieldLevel) bool {
	return net.ParseIP(fl.Field().String()) != nil
}

// envLoader is a function that loads environment variables with the prefix "ECHO_".
// It transforms the keys to lowercase and removes the prefix,
// and can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	// Load environment variables with prefix "ECHO_".
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "ECHO_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "ECHO_"))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads default configuration values into the provided Koanf
// instance using the structs provider and the DEFAULT_APP_CONFIG struct.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "ip_addr" validation function.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ip_addr", validIPAddr)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	// Load default values using structs provider.
	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	// Load environment variables with prefix "ECHO_".
	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	// Unmarshal the loaded configuration into AppConfig struct.
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// Validate the configuration.
	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
