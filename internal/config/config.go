// Package config loads service configuration from an optional YAML file
// with environment overrides for secrets and deployment values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store and rule backends.
const (
	StoreMemory   = "memory"
	StoreBigQuery = "bigquery"

	RulesStore  = "store"
	RulesNotion = "notion"
)

// Config represents the top-level config.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Rules     RulesConfig     `yaml:"rules"`
	Sheet     SheetConfig     `yaml:"sheet"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tokens    []APIToken      `yaml:"tokens,omitempty"`
}

type ServerConfig struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

type LogConfig struct {
	Format string `yaml:"format"` // "console" or "json"
	Level  string `yaml:"level"`
}

// StoreConfig selects where transactions and ingestion logs live.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
}

// RulesConfig selects where classification rules are read from. "store"
// uses the transaction store backend.
type RulesConfig struct {
	Backend          string `yaml:"backend"`
	NotionToken      string `yaml:"notion_token"`
	NotionDatabaseID string `yaml:"notion_database_id"`
}

type SheetConfig struct {
	ID              string `yaml:"id"`
	Range           string `yaml:"range"`
	CredentialsFile string `yaml:"credentials_file"`
}

type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// UploadsConfig names the bucket raw CSV uploads are archived to. Empty
// disables archiving.
type UploadsConfig struct {
	Bucket string `yaml:"bucket"`
}

type JobsConfig struct {
	BufferSize int `yaml:"buffer_size"`
	Workers    int `yaml:"workers"`
	MaxRetries int `yaml:"max_retries"`
}

type SchedulerConfig struct {
	Timezone  string           `yaml:"timezone"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`
}

// ScheduleConfig publishes Job on a five-field cron Spec.
type ScheduleConfig struct {
	Name string `yaml:"name"`
	Spec string `yaml:"spec"`
	Job  string `yaml:"job"`
}

// Token roles.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// APIToken maps a bearer token to a caller. An empty Role means admin.
type APIToken struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
	Role  string `yaml:"role,omitempty"`
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Port: "8080", CORSOrigin: "*"},
		Log:       LogConfig{Format: "console", Level: "info"},
		Store:     StoreConfig{Backend: StoreMemory, Dataset: "finance"},
		Rules:     RulesConfig{Backend: RulesStore},
		Sheet:     SheetConfig{Range: "Transactions!A1:Z"},
		Jobs:      JobsConfig{BufferSize: 100, Workers: 1},
		Scheduler: SchedulerConfig{Timezone: "UTC"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&c.Server.Port, "PORT")
	set(&c.Log.Format, "LOG_FORMAT")
	set(&c.Log.Level, "LOG_LEVEL")
	set(&c.Store.Backend, "STORE_BACKEND")
	set(&c.Store.Project, "GCP_PROJECT")
	set(&c.Store.Dataset, "BQ_DATASET")
	set(&c.Uploads.Bucket, "GCS_BUCKET")
	set(&c.Webhook.Secret, "WEBHOOK_SECRET")
	set(&c.Rules.Backend, "RULES_BACKEND")
	set(&c.Rules.NotionToken, "NOTION_TOKEN")
	set(&c.Rules.NotionDatabaseID, "NOTION_RULES_DB_ID")
	set(&c.Sheet.ID, "SHEET_ID")
	set(&c.Sheet.Range, "SHEET_RANGE")
	set(&c.Sheet.CredentialsFile, "GOOGLE_CREDENTIALS_FILE")
	set(&c.Scheduler.Timezone, "SCHEDULER_TIMEZONE")

	if v := strings.TrimSpace(getenv("JOB_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JOB_WORKERS: %w", err)
		}
		c.Jobs.Workers = n
	}

	if v := strings.TrimSpace(getenv("ADMIN_TOKENS")); v != "" {
		admins, err := ParseAdminTokens(v)
		if err != nil {
			return fmt.Errorf("ADMIN_TOKENS: %w", err)
		}
		c.Tokens = append(c.Tokens, admins...)
	}
	return nil
}

// ParseAdminTokens parses "name:token,name:token" into admin tokens.
func ParseAdminTokens(s string) ([]APIToken, error) {
	var admins []APIToken
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, token, ok := strings.Cut(pair, ":")
		name, token = strings.TrimSpace(name), strings.TrimSpace(token)
		if !ok || name == "" || token == "" {
			return nil, fmt.Errorf("malformed entry %q, want name:token", pair)
		}
		admins = append(admins, APIToken{Name: name, Token: token, Role: RoleAdmin})
	}
	return admins, nil
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case StoreMemory:
	case StoreBigQuery:
		if c.Store.Project == "" {
			errs = append(errs, errors.New("store.project is required for the bigquery backend"))
		}
		if c.Store.Dataset == "" {
			errs = append(errs, errors.New("store.dataset is required for the bigquery backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	switch c.Rules.Backend {
	case RulesStore:
	case RulesNotion:
		if c.Rules.NotionToken == "" || c.Rules.NotionDatabaseID == "" {
			errs = append(errs, errors.New("rules.notion_token and rules.notion_database_id are required for the notion backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rules backend %q", c.Rules.Backend))
	}

	if c.Jobs.Workers < 0 || c.Jobs.MaxRetries < 0 || c.Jobs.BufferSize < 0 {
		errs = append(errs, errors.New("jobs settings must not be negative"))
	}

	seen := make(map[string]bool)
	for _, t := range c.Tokens {
		if t.Name == "" || t.Token == "" {
			errs = append(errs, errors.New("token entries need a name and a token"))
			continue
		}
		if t.Role != "" && t.Role != RoleAdmin && t.Role != RoleViewer {
			errs = append(errs, fmt.Errorf("token %q has unknown role %q", t.Name, t.Role))
		}
		if seen[t.Token] {
			errs = append(errs, fmt.Errorf("token %q reuses another entry's token", t.Name))
		}
		seen[t.Token] = true
	}

	for _, s := range c.Scheduler.Schedules {
		if s.Name == "" || s.Spec == "" || s.Job == "" {
			errs = append(errs, fmt.Errorf("schedule %q needs name, spec and job", s.Name))
		}
	}

	return errors.Join(errs...)
}

// TokenRoles maps each bearer token to its caller name and role.
func (c *Config) TokenRoles() map[string]APIToken {
	ids := make(map[string]APIToken, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Role == "" {
			t.Role = RoleAdmin
		}
		ids[t.Token] = t
	}
	return ids
}
