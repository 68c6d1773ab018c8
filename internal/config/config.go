package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"flowseed/internal/apperr"
	"flowseed/internal/rbac"
)

const envPrefix = "SEED"

type Config struct {
	Database    DatabaseConfig
	Org         OrgConfig
	Users       map[rbac.Role]UserConfig
	TemplateIDs []string
	Credentials CredentialKeys
	Auth        AuthConfig
	Identity    IdentityConfig
	Fixtures    FixturesConfig
	LogLevel    string
}

type DatabaseConfig struct {
	Type          string
	URL           string
	MigrateOnOpen bool
}

type OrgConfig struct {
	Auth0ID string
	Name    string
}

type UserConfig struct {
	Email    string
	Auth0ID  string
	Name     string
	Password string
}

// CredentialKeys carries the raw secret values each credential definition draws its
// default field values from.
type CredentialKeys struct {
	Secret             string
	OpenAIAPIKey       string
	ExaAPIKey          string
	SlackBotToken      string
	SlackSigningSecret string
	GitHubToken        string
	JiraUsername       string
	JiraAccessToken    string
	JiraHost           string
}

type AuthConfig struct {
	Domain       string
	ClientID     string
	ClientSecret string
	Scope        string
}

type IdentityConfig struct {
	Cache    string
	RedisURL string
	TTL      time.Duration
}

type FixturesConfig struct {
	Source    string
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// RepoPath and Branch select the local repository read by the git source.
	RepoPath string
	Branch   string
}

var requiredKeys = []string{
	"org.auth0_id",
	"org.name",
	"users.admin.email",
	"users.admin.auth0_id",
	"templates.ids",
	"credentials.secret",
	"credentials.openai_api_key",
	"credentials.exa_api_key",
	"credentials.slack_bot_token",
}

// Load reads the optional YAML file at path (or ./seed.yaml when path is empty) and
// overlays SEED_* environment variables. The result is validated before it is returned.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("log.level", "info")
	v.SetDefault("identity.cache", "memory")
	v.SetDefault("fixtures.source", "embedded")
	v.SetDefault("fixtures.region", "us-east-1")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("seed")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return FromViper(v)
}

// FromViper builds and validates a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	var missing []string
	for _, key := range requiredKeys {
		if key == "templates.ids" {
			if len(stringList(v, key)) == 0 {
				missing = append(missing, EnvName(key))
			}
			continue
		}
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, EnvName(key))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, apperr.Configuration(missing)
	}

	cfg := Config{
		Database: DatabaseConfig{
			Type:          v.GetString("database.type"),
			URL:           v.GetString("database.url"),
			MigrateOnOpen: v.GetBool("database.migrate"),
		},
		Org: OrgConfig{
			Auth0ID: v.GetString("org.auth0_id"),
			Name:    v.GetString("org.name"),
		},
		Users:       make(map[rbac.Role]UserConfig),
		TemplateIDs: stringList(v, "templates.ids"),
		Credentials: CredentialKeys{
			Secret:             v.GetString("credentials.secret"),
			OpenAIAPIKey:       v.GetString("credentials.openai_api_key"),
			ExaAPIKey:          v.GetString("credentials.exa_api_key"),
			SlackBotToken:      v.GetString("credentials.slack_bot_token"),
			SlackSigningSecret: v.GetString("credentials.slack_signing_secret"),
			GitHubToken:        v.GetString("credentials.github_token"),
			JiraUsername:       v.GetString("credentials.jira_username"),
			JiraAccessToken:    v.GetString("credentials.jira_access_token"),
			JiraHost:           v.GetString("credentials.jira_host"),
		},
		Auth: AuthConfig{
			Domain:       v.GetString("auth.domain"),
			ClientID:     v.GetString("auth.client_id"),
			ClientSecret: v.GetString("auth.client_secret"),
			Scope:        v.GetString("auth.scope"),
		},
		Identity: IdentityConfig{
			Cache:    v.GetString("identity.cache"),
			RedisURL: v.GetString("identity.redis_url"),
			TTL:      v.GetDuration("identity.ttl"),
		},
		Fixtures: FixturesConfig{
			Source:    v.GetString("fixtures.source"),
			Endpoint:  v.GetString("fixtures.endpoint"),
			Region:    v.GetString("fixtures.region"),
			Bucket:    v.GetString("fixtures.bucket"),
			Prefix:    v.GetString("fixtures.prefix"),
			AccessKey: v.GetString("fixtures.access_key"),
			SecretKey: v.GetString("fixtures.secret_key"),
			UseSSL:    v.GetBool("fixtures.use_ssl"),
			RepoPath:  v.GetString("fixtures.repo_path"),
			Branch:    v.GetString("fixtures.branch"),
		},
		LogLevel: v.GetString("log.level"),
	}

	for _, role := range rbac.Roles() {
		prefix := "users." + string(role) + "."
		user := UserConfig{
			Email:    strings.TrimSpace(v.GetString(prefix + "email")),
			Auth0ID:  strings.TrimSpace(v.GetString(prefix + "auth0_id")),
			Name:     v.GetString(prefix + "name"),
			Password: v.GetString(prefix + "password"),
		}
		if user.Email == "" {
			continue
		}
		cfg.Users[role] = user
	}

	return cfg, nil
}

// RequireDatabase reports missing connection settings; only callers that open their
// own database handle need them.
func (c Config) RequireDatabase() error {
	var missing []string
	if strings.TrimSpace(c.Database.Type) == "" {
		missing = append(missing, EnvName("database.type"))
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		missing = append(missing, EnvName("database.url"))
	}
	if len(missing) > 0 {
		return apperr.Configuration(missing)
	}
	return nil
}

// DefaultTemplateID is the template cloned when a seed request names none.
func (c Config) DefaultTemplateID() string {
	if len(c.TemplateIDs) == 0 {
		return ""
	}
	return c.TemplateIDs[0]
}

func (c Config) HasTemplate(id string) bool {
	for _, candidate := range c.TemplateIDs {
		if candidate == id {
			return true
		}
	}
	return false
}

// UserByEmail returns the configured role user with the given email, case-insensitively.
func (c Config) UserByEmail(email string) (rbac.Role, UserConfig, bool) {
	for _, role := range rbac.Roles() {
		user, ok := c.Users[role]
		if ok && strings.EqualFold(user.Email, email) {
			return role, user, true
		}
	}
	return "", UserConfig{}, false
}

// EnvName maps a dotted config key to its environment variable.
func EnvName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func stringList(v *viper.Viper, key string) []string {
	var raw []string
	switch value := v.Get(key).(type) {
	case string:
		raw = strings.Split(value, ",")
	case []string:
		raw = value
	case []any:
		for _, item := range value {
			raw = append(raw, fmt.Sprint(item))
		}
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
