// Package config loads the application configuration from a YAML file and
// TRANSIT_* environment variables, and keeps it current when the file changes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/cxd309/transit-engine/internal/simerr"
)

// EnvPrefix prefixes every environment override, e.g. TRANSIT_SERVER_ADDR.
const EnvPrefix = "TRANSIT"

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// SimulationConfig sets the engine parameters. Scenario is a YAML file or a
// CSV directory.
type SimulationConfig struct {
	Scenario  string        `mapstructure:"scenario"`
	StepTime  time.Duration `mapstructure:"step_time" validate:"gt=0"`
	BaseSpeed float64       `mapstructure:"base_speed" validate:"gt=0"`
	Ticks     int           `mapstructure:"ticks" validate:"gte=0"`
}

// ServerConfig controls the live server. TickInterval is the wall-clock time
// between automatic steps; zero pauses the simulation.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required"`
	TickInterval   time.Duration `mapstructure:"tick_interval" validate:"gte=0"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker" validate:"required_if=Enabled true"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix" validate:"required_if=Enabled true"`
}

// FeedConfig anchors the planar network to WGS84 for the GTFS-RT feed: the
// network origin maps to (OriginLat, OriginLon) and one unit is MetersPerUnit.
type FeedConfig struct {
	OriginLat     float64 `mapstructure:"origin_lat" validate:"gte=-90,lte=90"`
	OriginLon     float64 `mapstructure:"origin_lon" validate:"gte=-180,lte=180"`
	MetersPerUnit float64 `mapstructure:"meters_per_unit" validate:"gt=0"`
}

// Config holds the entire application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Server     ServerConfig     `mapstructure:"server"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Feed       FeedConfig       `mapstructure:"feed"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("simulation.scenario", "")
	v.SetDefault("simulation.step_time", "60s")
	v.SetDefault("simulation.base_speed", 1.0)
	v.SetDefault("simulation.ticks", 0)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.tick_interval", "1s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "transit-engine")
	v.SetDefault("mqtt.topic_prefix", "transit")
	v.SetDefault("feed.origin_lat", 0.0)
	v.SetDefault("feed.origin_lon", 0.0)
	v.SetDefault("feed.meters_per_unit", 1.0)
}

// Loader owns a viper instance and the last valid configuration read from it.
type Loader struct {
	v        *viper.Viper
	validate *validator.Validate
	log      *log.Entry

	mu      sync.RWMutex
	current Config
}

// Load reads path, or ./config.yaml when path is empty. A missing default
// file is not an error; defaults and environment overrides apply.
func Load(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	l := &Loader{
		v:        v,
		validate: validator.New(),
		log:      log.WithField("component", "config"),
	}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

func (l *Loader) decode() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %v: %w", err, simerr.ErrInvalidInput)
	}
	if err := l.validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validating config: %v: %w", err, simerr.ErrInvalidInput)
	}
	return cfg, nil
}

// Current returns the last valid configuration.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string { return l.v.ConfigFileUsed() }

// Watch re-reads the config file whenever it changes and calls onChange with
// each new valid configuration. Invalid edits are logged and ignored.
func (l *Loader) Watch(onChange func(Config)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if cfg, ok := l.reload(e); ok && onChange != nil {
			onChange(cfg)
		}
	})
	l.v.WatchConfig()
}

func (l *Loader) reload(e fsnotify.Event) (Config, bool) {
	cfg, err := l.decode()
	if err != nil {
		l.log.WithError(err).WithField("file", e.Name).Warn("ignoring invalid config change")
		return Config{}, false
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	l.log.WithFields(log.Fields{"file": e.Name, "op": e.Op.String()}).Info("config reloaded")
	return cfg, true
}
