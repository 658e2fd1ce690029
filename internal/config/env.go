package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envPrefix is prepended to every env tag on Config.
const envPrefix = "NEWSDESK_"

// legacyEnv maps unprefixed names kept for existing deployments. They are
// applied before the NEWSDESK_ variables, so the prefixed names win.
var legacyEnv = []struct {
	key string
	set func(c *Config, v string)
}{
	{"PORT", func(c *Config, v string) { c.Addr = ":" + v }},
	{"REDIS_ADDR", func(c *Config, v string) { c.RedisAddr = v }},
	{"DATABASE_URL", func(c *Config, v string) { c.MongoURI = v }},
	{"SECRET_KEY", func(c *Config, v string) { c.SecretKey = v }},
}

// LoadEnv overlays values from environ, a KEY=value map such as
// env.ToMap(os.Environ()). Variables that are unset or empty leave the
// current value alone.
func (c *Config) LoadEnv(environ map[string]string) error {
	if environ == nil {
		// env falls back to the process environment for a nil map.
		environ = map[string]string{}
	}
	for _, l := range legacyEnv {
		if v := environ[l.key]; v != "" {
			l.set(c, v)
		}
	}

	err := env.ParseWithOptions(c, env.Options{
		Environment: environ,
		Prefix:      envPrefix,
	})
	if err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	return nil
}
