package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

// Config holds all process configuration. Values come from the environment
// (optionally seeded from a .env file); compliance and cost policy come from
// an optional YAML file.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Database DatabaseConfig
	Queue    QueueConfig
	Sweeper  SweeperConfig
	Channels ChannelDefaults

	PolicyPath string `env:"POLICY_PATH"`
	Policy     Policy
}

type DatabaseConfig struct {
	URL          string `env:"DATABASE_URL"`
	User         string `env:"DB_USER"`
	Password     string `env:"DB_PASSWORD"`
	Host         string `env:"DB_HOST" envDefault:"localhost"`
	Port         string `env:"DB_PORT" envDefault:"5432"`
	Name         string `env:"DB_NAME"`
	SSLMode      string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
}

// DSN returns DATABASE_URL when set, otherwise builds one from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type QueueConfig struct {
	AMQPURL  string `env:"AMQP_URL"`
	Prefetch int    `env:"AMQP_PREFETCH" envDefault:"10"`
}

type SweeperConfig struct {
	RedisURL   string        `env:"REDIS_URL"`
	Interval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	BatchSize  int           `env:"SWEEP_BATCH_SIZE" envDefault:"200"`
	StaleAfter time.Duration `env:"SWEEP_STALE_AFTER" envDefault:"15m"`
	LockTTL    time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"2m"`
}

// ChannelDefaults are the process-wide provider settings used when an
// organization has no credentials of its own.
type ChannelDefaults struct {
	MessagingBaseURL   string        `env:"MESSAGING_BASE_URL" envDefault:"https://api.twilio.com/2010-04-01"`
	MessagingAccountID string        `env:"MESSAGING_ACCOUNT_ID"`
	MessagingSecret    string        `env:"MESSAGING_SECRET"`
	MessagingSender    string        `env:"MESSAGING_SENDER"`
	EmailAPIKey        string        `env:"EMAIL_API_KEY"`
	EmailAPISecret     string        `env:"EMAIL_API_SECRET"`
	EmailRegion        string        `env:"EMAIL_REGION" envDefault:"us-east-1"`
	EmailFrom          string        `env:"EMAIL_FROM"`
	VoiceBaseURL       string        `env:"VOICE_BASE_URL"`
	VoiceAPIKey        string        `env:"VOICE_API_KEY"`
	VoiceCallerID      string        `env:"VOICE_CALLER_ID"`
	ProviderTimeout    time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
	ProviderRetries    int           `env:"PROVIDER_RETRIES" envDefault:"0"`
}

// Credentials converts the defaults into the fallback credential set.
func (c ChannelDefaults) Credentials() model.ChannelCredentials {
	return model.ChannelCredentials{
		MessagingAccountID: c.MessagingAccountID,
		MessagingSecret:    c.MessagingSecret,
		MessagingSender:    c.MessagingSender,
		EmailAPIKey:        c.EmailAPIKey,
		EmailAPISecret:     c.EmailAPISecret,
		EmailRegion:        c.EmailRegion,
		EmailFrom:          c.EmailFrom,
		VoiceAPIKey:        c.VoiceAPIKey,
		VoiceCallerID:      c.VoiceCallerID,
	}
}

// Policy is the YAML-configured compliance and cost policy.
type Policy struct {
	Compliance CompliancePolicy    `yaml:"compliance"`
	Costs      map[string]UnitCost `yaml:"costs"`
}

type CompliancePolicy struct {
	DefaultTimezone string `yaml:"default_timezone"`
	// ContactHours is keyed by channel. Channels without an entry may be
	// contacted at any hour.
	ContactHours   map[string]ContactWindow `yaml:"contact_hours"`
	ExemptPurposes []string                 `yaml:"quiet_hours_exempt_purposes"`
}

// ContactWindow is [StartHour, EndHour) in the lead's local time.
type ContactWindow struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

type UnitCost struct {
	Service  string  `yaml:"service"`
	Unit     string  `yaml:"unit"`
	UnitCost float64 `yaml:"unit_cost"`
}

// DefaultPolicy is used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		Compliance: CompliancePolicy{
			DefaultTimezone: "America/New_York",
			ContactHours: map[string]ContactWindow{
				string(model.ChannelSMS):   {StartHour: 8, EndHour: 21},
				string(model.ChannelVoice): {StartHour: 8, EndHour: 21},
			},
		},
		Costs: map[string]UnitCost{
			string(model.ChannelSMS):   {Service: "twilio_sms", Unit: "segment", UnitCost: 0.0079},
			string(model.ChannelEmail): {Service: "ses_email", Unit: "message", UnitCost: 0.0001},
			string(model.ChannelVoice): {Service: "voice_agent", Unit: "call", UnitCost: 0.14},
		},
	}
}

// Load reads .env (if present), the environment, and the policy file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on OS environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Policy = DefaultPolicy()
	if cfg.PolicyPath != "" {
		p, err := LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return nil, err
		}
		cfg.Policy = p
	}
	return cfg, nil
}

// LoadPolicy reads a YAML policy file. Sections missing from the file keep
// their defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	p := DefaultPolicy()
	var file Policy
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if file.Compliance.DefaultTimezone != "" {
		p.Compliance.DefaultTimezone = file.Compliance.DefaultTimezone
	}
	if file.Compliance.ContactHours != nil {
		p.Compliance.ContactHours = make(map[string]ContactWindow, len(file.Compliance.ContactHours))
		for key, w := range file.Compliance.ContactHours {
			ch, err := channelKey(key)
			if err != nil {
				return Policy{}, fmt.Errorf("policy %s: contact_hours: %w", path, err)
			}
			p.Compliance.ContactHours[ch] = w
		}
	}
	if file.Compliance.ExemptPurposes != nil {
		p.Compliance.ExemptPurposes = file.Compliance.ExemptPurposes
	}
	for key, c := range file.Costs {
		ch, err := channelKey(key)
		if err != nil {
			return Policy{}, fmt.Errorf("policy %s: costs: %w", path, err)
		}
		p.Costs[ch] = c
	}
	for ch, w := range p.Compliance.ContactHours {
		if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
			return Policy{}, fmt.Errorf("policy %s: invalid contact window for %s", path, ch)
		}
	}
	return p, nil
}

// channelKey maps a policy key to its channel. Operators name the voice
// channel after the task action, so "call" is accepted for it.
func channelKey(key string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == string(model.ActionCall) {
		return string(model.ChannelVoice), nil
	}
	switch model.Channel(k) {
	case model.ChannelSMS, model.ChannelEmail, model.ChannelVoice:
		return k, nil
	}
	return "", fmt.Errorf("unknown channel %q", key)
}
