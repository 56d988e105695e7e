package auth

import "propsync/pkg/config"

// caller role
type Role int

const (
	RoleUnauth Role = iota
	RoleProducer
	RoleAdmin
)

// security config
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	ProducerKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

// Open reports whether no API keys are configured. An open gateway admits
// every caller as a producer; the banner flags this at startup.
func (c SecConfig) Open() bool {
	return len(c.ProducerKeys) == 0 && len(c.AdminKeys) == 0
}

// FromConfig builds the gateway config from the effective daemon config,
// folding in keys resolved from the environment.
func FromConfig(cfg *config.Config, env config.EnvResult) SecConfig {
	sec := SecConfig{
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
		IPWhitelist:    cfg.Security.IPWhitelist,
		ProducerKeys:   make(map[string]struct{}),
		AdminKeys:      make(map[string]struct{}),
	}
	for _, k := range cfg.Security.APIKeys.Producer {
		sec.ProducerKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		sec.AdminKeys[k] = struct{}{}
	}
	for k := range env.ProducerKeys {
		sec.ProducerKeys[k] = struct{}{}
	}
	for k := range env.AdminKeys {
		sec.AdminKeys[k] = struct{}{}
	}
	return sec
}
