package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"flowseed/internal/apperr"
	"flowseed/internal/credentials"
	"flowseed/internal/rbac"
	"flowseed/internal/store"
)

//go:embed scenarios.yaml
var scenarioFile []byte

const BaselineScenario = "baseline"

// Scenario is a named, fixed seed request.
type Scenario struct {
	Name        string                           `yaml:"name"`
	Description string                           `yaml:"description"`
	Baseline    bool                             `yaml:"baseline"`
	All         *credentials.Entry               `yaml:"all"`
	Credentials map[string]credentials.EntryList `yaml:"credentials"`
}

var scenarios = mustLoadScenarios(scenarioFile)

func mustLoadScenarios(raw []byte) []Scenario {
	list, err := ParseScenarios(raw)
	if err != nil {
		panic(err)
	}
	return list
}

func ParseScenarios(raw []byte) ([]Scenario, error) {
	var file struct {
		Scenarios []Scenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	seen := make(map[string]bool)
	for _, sc := range file.Scenarios {
		if sc.Name == "" || seen[sc.Name] {
			return nil, fmt.Errorf("scenario names must be unique and non-empty: %q", sc.Name)
		}
		seen[sc.Name] = true
	}
	return file.Scenarios, nil
}

// Scenarios lists the built-in scenarios in declaration order.
func Scenarios() []Scenario {
	return append([]Scenario(nil), scenarios...)
}

func LookupScenario(name string) (Scenario, error) {
	for _, sc := range scenarios {
		if sc.Name == name {
			return sc, nil
		}
	}
	return Scenario{}, apperr.Validation("unknown scenario", []string{name})
}

// Expand turns the scenario into a credential request keyed by canonical type.
func (sc Scenario) Expand(registry *credentials.Registry) (map[string]credentials.EntryList, error) {
	aliases := make([]string, 0, len(sc.Credentials))
	for alias := range sc.Credentials {
		aliases = append(aliases, alias)
	}
	if err := registry.ValidateAliases(aliases); err != nil {
		return nil, err
	}

	out := make(map[string]credentials.EntryList)
	if sc.All != nil {
		for _, name := range registry.CanonicalNames() {
			out[name] = credentials.EntryList{*sc.All}
		}
	}
	for alias, entries := range sc.Credentials {
		def, _ := registry.Resolve(alias)
		out[def.Name] = entries
	}
	return out, nil
}

// SeedScenario applies a named scenario. Scenarios other than baseline seed the user
// with opts.UserEmail, or the configured user of opts.Role (admin by default), and need
// that user to exist either in the database or in the configuration.
func (e *Engine) SeedScenario(ctx context.Context, name string, opts ScenarioOptions) (*Result, error) {
	sc, err := LookupScenario(name)
	if err != nil {
		return nil, err
	}
	if sc.Baseline {
		return e.SeedBaseline(ctx)
	}

	requested, err := sc.Expand(e.registry)
	if err != nil {
		return nil, err
	}
	user, err := e.scenarioUser(ctx, opts)
	if err != nil {
		return nil, err
	}

	e.logger.Info("seeding scenario", zap.String("scenario", sc.Name), zap.String("email", user.Email))
	return e.SeedTestData(ctx, TestConfig{
		User:        user,
		Credentials: requested,
		Chatflow:    ChatflowSpec{TemplateID: e.cfg.DefaultTemplateID()},
	})
}

func (e *Engine) scenarioUser(ctx context.Context, opts ScenarioOptions) (UserSpec, error) {
	email := opts.UserEmail
	if email == "" {
		role := opts.Role
		if role == "" {
			role = rbac.RoleAdmin
		}
		configured, ok := e.cfg.Users[role]
		if !ok {
			return UserSpec{}, apperr.NotFound("configured user for role", string(role))
		}
		email = configured.Email
	}
	org := OrganizationSpec{Auth0ID: e.cfg.Org.Auth0ID, Name: e.cfg.Org.Name}

	existing, err := e.db.Store().GetUserByEmail(ctx, email)
	if err == nil {
		return UserSpec{Auth0ID: existing.Auth0ID, Email: existing.Email, Name: existing.Name, Organization: org}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return UserSpec{}, err
	}

	if _, configured, ok := e.cfg.UserByEmail(email); ok {
		return UserSpec{Auth0ID: configured.Auth0ID, Email: configured.Email, Name: configured.Name, Organization: org}, nil
	}
	return UserSpec{}, apperr.NotFound("user", email)
}
