// Package seed provisions deterministic organizations, users, credentials and
// chatflows for integration tests.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"flowseed/internal/apperr"
	"flowseed/internal/config"
	"flowseed/internal/credentials"
	"flowseed/internal/fixtures"
	"flowseed/internal/flowgraph"
	"flowseed/internal/store"
)

// IdentityResolver looks up the identity-provider id of a seeded account.
type IdentityResolver interface {
	Resolve(ctx context.Context, email, password string) (string, error)
}

// Engine seeds one database according to one configuration. It holds no per-call state;
// calls are expected to run one at a time.
type Engine struct {
	db       *store.DB
	cfg      config.Config
	registry *credentials.Registry
	cipher   *credentials.Cipher
	fixtures fixtures.Source
	resolver IdentityResolver
	logger   *zap.Logger
	closers  []io.Closer
}

// Option customizes an Engine built by New.
type Option func(*Engine)

// WithLogger sets the logger; a nil logger keeps the no-op default.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithFixtures replaces the embedded template fixtures.
func WithFixtures(src fixtures.Source) Option {
	return func(e *Engine) {
		if src != nil {
			e.fixtures = src
		}
	}
}

// WithIdentityResolver enables identity-provider lookups for users without an auth0 id.
func WithIdentityResolver(resolver IdentityResolver) Option {
	return func(e *Engine) {
		e.resolver = resolver
	}
}

// WithRegistry replaces the credential registry built from the configured secrets.
func WithRegistry(registry *credentials.Registry) Option {
	return func(e *Engine) {
		if registry != nil {
			e.registry = registry
		}
	}
}

// New creates an engine over an open database. The credential cipher key is derived
// from cfg.Credentials.Secret.
func New(db *store.DB, cfg config.Config, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, errors.New("seed engine needs a database")
	}
	cipher, err := credentials.NewCipher(cfg.Credentials.Secret)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		db:       db,
		cfg:      cfg,
		registry: credentials.NewRegistry(cfg.Credentials),
		cipher:   cipher,
		fixtures: fixtures.NewEmbedded(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DB returns the database the engine writes to.
func (e *Engine) DB() *store.DB {
	return e.db
}

// Registry returns the credential types this engine knows.
func (e *Engine) Registry() *credentials.Registry {
	return e.registry
}

// Cipher returns the cipher used for credential blobs.
func (e *Engine) Cipher() *credentials.Cipher {
	return e.cipher
}

// Close releases resources the engine opened itself.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// ResetDatabase empties every user table.
func (e *Engine) ResetDatabase(ctx context.Context) error {
	if err := store.ResetDatabase(ctx, e.db); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	e.logger.Info("database reset", zap.String("dialect", string(e.db.Dialect())))
	return nil
}

// baselineTypes are seeded without an owner by SeedBaseline.
var baselineTypes = []string{"openAIApi", "exaSearchApi"}

// SeedBaseline provisions the organization, the default template and the ownerless
// baseline credentials. No user rows are written.
func (e *Engine) SeedBaseline(ctx context.Context) (*Result, error) {
	templateID := e.cfg.DefaultTemplateID()
	if templateID == "" {
		return nil, apperr.Configuration([]string{config.EnvName("templates.ids")})
	}

	var plans []credentialPlan
	for _, name := range baselineTypes {
		def, ok := e.registry.Resolve(name)
		if !ok {
			return nil, apperr.Validation("baseline credential type is not configured", []string{name})
		}
		plans = append(plans, credentialPlan{def: def, entries: []credentials.Entry{{}}})
	}

	result := &Result{}
	err := e.db.WithTx(ctx, func(s *store.Store) error {
		org, err := s.UpsertOrganization(ctx, e.cfg.Org.Auth0ID, e.cfg.Org.Name)
		if err != nil {
			return err
		}
		result.OrganizationID = org.ID

		template, err := e.ensureTemplate(ctx, s, templateID)
		if err != nil {
			return err
		}
		result.ChatflowID = template.ID

		reconciled, err := e.reconcileCredentials(ctx, s, nil, &org.ID, plans, nil)
		if err != nil {
			return err
		}
		result.Credentials = reconciled.seeded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed baseline: %w", err)
	}

	e.logger.Info("seeded baseline",
		zap.String("organization_id", result.OrganizationID),
		zap.String("template_id", result.ChatflowID),
		zap.Int("credentials", len(result.CredentialIDs())),
	)
	return result, nil
}

// SeedTestData applies one seed request. Everything that can be checked without the
// database is validated first; the writes then happen in a single transaction.
func (e *Engine) SeedTestData(ctx context.Context, req TestConfig) (*Result, error) {
	req, plans, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	templateID := req.Chatflow.TemplateID

	result := &Result{}
	err = e.db.WithTx(ctx, func(s *store.Store) error {
		org, err := s.UpsertOrganization(ctx, req.User.Organization.Auth0ID, req.User.Organization.Name)
		if err != nil {
			return err
		}
		result.OrganizationID = org.ID

		user, err := s.UpsertUser(ctx, store.User{
			Auth0ID:        req.User.Auth0ID,
			Email:          req.User.Email,
			Name:           displayName(req.User.Name, req.User.Email),
			OrganizationID: &org.ID,
		})
		if err != nil {
			return err
		}
		result.UserID = user.ID

		if _, err := e.ensureTemplate(ctx, s, templateID); err != nil {
			return err
		}
		template, err := s.GetChatflow(ctx, templateID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("template chatflow", templateID)
		}
		if err != nil {
			return err
		}

		var pruneTypes []string
		if !req.Options.PreserveExistingChatflow {
			pruneTypes = e.registry.CanonicalNames()
		}
		reconciled, err := e.reconcileCredentials(ctx, s, &user.ID, &org.ID, plans, pruneTypes)
		if err != nil {
			return err
		}
		result.Credentials = reconciled.seeded
		result.Assigned = reconciled.assigned
		result.Pruned = reconciled.pruned

		flow, created, err := e.targetChatflow(ctx, s, user, org, template, req)
		if err != nil {
			return err
		}
		if err := e.bindChatflow(&flow, reconciled.assigned); err != nil {
			return err
		}
		if err := s.UpdateChatflow(ctx, flow); err != nil {
			return err
		}
		result.ChatflowID = flow.ID

		repoint, err := needsDefaultChatflow(ctx, s, user, created)
		if err != nil {
			return err
		}
		if repoint {
			if err := s.SetDefaultChatflow(ctx, user.ID, &flow.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed test data for %s: %w", req.User.Email, err)
	}

	e.logger.Info("seeded test data",
		zap.String("email", req.User.Email),
		zap.String("user_id", result.UserID),
		zap.String("chatflow_id", result.ChatflowID),
		zap.Strings("assigned", sortedKeys(result.Assigned)),
		zap.Int64("pruned", result.Pruned),
	)
	return result, nil
}

// prepare fills defaults, validates aliases and assignment flags, and resolves a
// missing identity-provider id. Nothing is written.
func (e *Engine) prepare(ctx context.Context, req TestConfig) (TestConfig, []credentialPlan, error) {
	req.User.Email = strings.TrimSpace(req.User.Email)
	if req.User.Email == "" {
		return req, nil, apperr.Validation("user email is required", nil)
	}
	if req.User.Organization.Auth0ID == "" && req.User.Organization.Name == "" {
		req.User.Organization = OrganizationSpec{Auth0ID: e.cfg.Org.Auth0ID, Name: e.cfg.Org.Name}
	}
	if req.User.Organization.Auth0ID == "" {
		return req, nil, apperr.Validation("organization auth0Id is required", nil)
	}
	if req.User.Organization.Name == "" {
		if req.User.Organization.Auth0ID != e.cfg.Org.Auth0ID {
			return req, nil, apperr.Validation("organization name is required", []string{req.User.Organization.Auth0ID})
		}
		req.User.Organization.Name = e.cfg.Org.Name
	}

	if req.Chatflow.TemplateID == "" {
		req.Chatflow.TemplateID = e.cfg.DefaultTemplateID()
	}
	if !e.cfg.HasTemplate(req.Chatflow.TemplateID) {
		return req, nil, apperr.Validation("unknown template id", []string{req.Chatflow.TemplateID})
	}

	plans, err := e.plan(req.Credentials)
	if err != nil {
		return req, nil, err
	}

	if req.User.Auth0ID == "" {
		auth0ID, err := e.resolveAuth0ID(ctx, req.User.Email)
		if err != nil {
			return req, nil, err
		}
		req.User.Auth0ID = auth0ID
	}
	return req, plans, nil
}

// resolveAuth0ID asks the identity provider when a password is configured for the
// email, then falls back to an existing user row.
func (e *Engine) resolveAuth0ID(ctx context.Context, email string) (string, error) {
	if _, user, ok := e.cfg.UserByEmail(email); ok {
		if user.Auth0ID != "" {
			return user.Auth0ID, nil
		}
		if e.resolver != nil && user.Password != "" {
			subject, err := e.resolver.Resolve(ctx, email, user.Password)
			if err != nil {
				return "", fmt.Errorf("resolve identity for %s: %w", email, err)
			}
			return subject, nil
		}
	}

	existing, err := e.db.Store().GetUserByEmail(ctx, email)
	if err == nil {
		return existing.Auth0ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	return "", apperr.Validation("user auth0Id is required and could not be resolved", []string{email})
}

// needsDefaultChatflow reports whether the user's default chatflow should point at the
// seeded one: when that chatflow was just created, or the user has no usable default.
func needsDefaultChatflow(ctx context.Context, s *store.Store, user store.User, created bool) (bool, error) {
	if created || user.DefaultChatflowID == nil {
		return true, nil
	}
	_, err := s.GetChatflow(ctx, *user.DefaultChatflowID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	return false, err
}

// targetChatflow picks the chatflow the credentials are bound into. With
// PreserveExistingChatflow that is the user's default chatflow as it stands;
// otherwise the user's copy of the template, reset to the template content, with any
// further copies removed. created is true when a new copy was inserted.
func (e *Engine) targetChatflow(ctx context.Context, s *store.Store, user store.User, org store.Organization, template store.Chatflow, req TestConfig) (store.Chatflow, bool, error) {
	if req.Options.PreserveExistingChatflow && user.DefaultChatflowID != nil {
		flow, err := s.GetChatflow(ctx, *user.DefaultChatflowID)
		switch {
		case err == nil && store.Deref(flow.UserID) == user.ID:
			return flow, false, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return store.Chatflow{}, false, err
		}
		e.logger.Warn("default chatflow is not preservable, cloning the template",
			zap.String("user_id", user.ID),
			zap.String("chatflow_id", *user.DefaultChatflowID),
		)
	}

	clones, err := s.ListChatflows(ctx, user.ID, template.ID)
	if err != nil {
		return store.Chatflow{}, false, err
	}
	keep := -1
	for i, clone := range clones {
		if clone.ID == store.Deref(user.DefaultChatflowID) {
			keep = i
			break
		}
	}
	if keep < 0 && len(clones) > 0 {
		keep = 0
	}
	for i, clone := range clones {
		if i == keep {
			continue
		}
		if err := s.DeleteChatflow(ctx, clone.ID); err != nil {
			return store.Chatflow{}, false, err
		}
	}

	flow := store.Chatflow{}
	if keep >= 0 {
		flow = clones[keep]
	}
	flow.Name = req.Chatflow.Name
	if flow.Name == "" {
		flow.Name = template.Name
	}
	flow.Description = req.Chatflow.Description
	if flow.Description == "" {
		flow.Description = template.Description
	}
	flow.FlowData = template.FlowData
	flow.Deployed = false
	flow.IsPublic = false
	flow.Visibility = store.Tags{"Private", "Organization"}
	flow.Version = template.Version
	flow.Category = template.Category
	flow.Type = template.Type
	flow.UserID = &user.ID
	flow.OrganizationID = &org.ID
	flow.ParentChatflowID = &template.ID

	if keep >= 0 {
		return flow, false, nil
	}
	inserted, err := s.InsertChatflow(ctx, flow)
	return inserted, err == nil, err
}

// bindChatflow clears every known credential type from the graph, then binds the
// assigned ones.
func (e *Engine) bindChatflow(flow *store.Chatflow, assigned map[string]string) error {
	graph, err := flowgraph.Parse(flow.FlowData)
	if err != nil {
		return fmt.Errorf("chatflow %s: %w", flow.ID, err)
	}
	for _, credentialType := range e.registry.CanonicalNames() {
		graph.ClearBinding(credentialType)
	}
	for _, credentialType := range sortedKeys(assigned) {
		if bound := graph.BindCredential(credentialType, assigned[credentialType]); bound == 0 {
			e.logger.Debug("no parameter accepts credential type",
				zap.String("chatflow_id", flow.ID),
				zap.String("credential_type", credentialType),
			)
		}
	}
	encoded, err := graph.String()
	if err != nil {
		return fmt.Errorf("chatflow %s: %w", flow.ID, err)
	}
	flow.FlowData = encoded
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
