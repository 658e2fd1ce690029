package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// Flags holds command-line overrides. Only flags that were set on the
// command line are applied, so they win over file and environment values
// without clobbering them with defaults.
type Flags struct {
	ConfigFile string

	fs   *pflag.FlagSet
	vals Config
}

var flagFields = map[string]func(dst, src *Config){
	"addr":      func(d, s *Config) { d.Addr = s.Addr },
	"store":     func(d, s *Config) { d.Store = s.Store },
	"redis":     func(d, s *Config) { d.RedisAddr = s.RedisAddr },
	"badger":    func(d, s *Config) { d.BadgerPath = s.BadgerPath },
	"mongo-uri": func(d, s *Config) { d.MongoURI = s.MongoURI },
	"mongo-db":  func(d, s *Config) { d.MongoDatabase = s.MongoDatabase },
	"blob":      func(d, s *Config) { d.Blob = s.Blob },
	"uploads":   func(d, s *Config) { d.UploadDir = s.UploadDir },
	"schedule":  func(d, s *Config) { d.SweepSchedule = s.SweepSchedule },
	"timezone":  func(d, s *Config) { d.Timezone = s.Timezone },
	"log-level": func(d, s *Config) { d.LogLevel = s.LogLevel },
	"dev":       func(d, s *Config) { d.LogDevelopment = s.LogDevelopment },
}

// RegisterFlags adds the config flags to fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	f.vals.LoadDefaults()
	v := &f.vals

	fs.StringVarP(&f.ConfigFile, "config", "c", "", "Path to a YAML config file")
	fs.StringVar(&v.Addr, "addr", v.Addr, "HTTP listen address")
	fs.StringVar(&v.Store, "store", v.Store, "Article store backend (hybrid or mongo)")
	fs.StringVar(&v.RedisAddr, "redis", v.RedisAddr, "Address of Redis server")
	fs.StringVar(&v.BadgerPath, "badger", v.BadgerPath, "Path to BadgerDB data directory")
	fs.StringVar(&v.MongoURI, "mongo-uri", v.MongoURI, "MongoDB connection URI")
	fs.StringVar(&v.MongoDatabase, "mongo-db", v.MongoDatabase, "MongoDB database name")
	fs.StringVar(&v.Blob, "blob", v.Blob, "Attachment storage (disk or s3)")
	fs.StringVar(&v.UploadDir, "uploads", v.UploadDir, "Directory for locally stored attachments")
	fs.StringVar(&v.SweepSchedule, "schedule", v.SweepSchedule, "Cron schedule of the publication sweep")
	fs.StringVar(&v.Timezone, "timezone", v.Timezone, "Timezone for the sweep schedule and local publish dates")
	fs.StringVar(&v.LogLevel, "log-level", v.LogLevel, "Log level")
	fs.BoolVar(&v.LogDevelopment, "dev", v.LogDevelopment, "Human readable development logging")

	return f
}

func (f *Flags) apply(c *Config) {
	f.fs.Visit(func(fl *pflag.Flag) {
		if set, ok := flagFields[fl.Name]; ok {
			set(c, &f.vals)
		}
	})
}

// Load builds a Config from defaults, the config file named by flags, the
// process environment and finally the flags that were set.
func Load(f *Flags) (*Config, error) {
	return load(f, env.ToMap(os.Environ()))
}

func load(f *Flags, environ map[string]string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if f != nil && f.ConfigFile != "" {
		if err := cfg.LoadFile(f.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(environ); err != nil {
		return nil, err
	}
	if f != nil {
		f.apply(cfg)
	}
	if cfg.SecretKey == "" && cfg.LogDevelopment {
		cfg.SecretKey = DevSecretKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
