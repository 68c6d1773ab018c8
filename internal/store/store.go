package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is wrapped by every lookup that matched no row.
var ErrNotFound = errors.New("record not found")

// Store is the repository for organizations, users, credentials and chatflows. It runs
// on either a pool or a transaction; queries are written with ? placeholders and rebound
// for the dialect.
type Store struct {
	q sqlx.ExtContext
}

// NewStore creates a repository over a pool, connection or transaction.
func NewStore(q sqlx.ExtContext) *Store {
	return &Store{q: q}
}

const (
	organizationColumns = `id, auth0_id, name`
	userColumns         = `id, auth0_id, email, name, organization_id, default_chatflow_id`
	credentialColumns   = `id, name, credential_name, encrypted_data, visibility, user_id, organization_id`
	chatflowColumns     = `id, name, description, flow_data, deployed, is_public, visibility, version, category, type, user_id, organization_id, parent_chatflow_id`
)

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.q.Rebind(query), args...)
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, s.q, dest, s.q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Store) list(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

// GetOrganization loads an organization by id.
func (s *Store) GetOrganization(ctx context.Context, id string) (Organization, error) {
	var org Organization
	if err := s.get(ctx, &org, `SELECT `+organizationColumns+` FROM organizations WHERE id = ?`, id); err != nil {
		return Organization{}, fmt.Errorf("get organization %s: %w", id, err)
	}
	return org, nil
}

func (s *Store) GetOrganizationByAuth0ID(ctx context.Context, auth0ID string) (Organization, error) {
	var org Organization
	if err := s.get(ctx, &org, `SELECT `+organizationColumns+` FROM organizations WHERE auth0_id = ?`, auth0ID); err != nil {
		return Organization{}, fmt.Errorf("get organization by auth0 id: %w", err)
	}
	return org, nil
}

// UpsertOrganization finds the organization by its identity-provider id, renaming it
// when the name changed, or creates it.
func (s *Store) UpsertOrganization(ctx context.Context, auth0ID, name string) (Organization, error) {
	org, err := s.GetOrganizationByAuth0ID(ctx, auth0ID)
	if err == nil {
		if org.Name != name {
			if _, err := s.exec(ctx, `UPDATE organizations SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, name, org.ID); err != nil {
				return Organization{}, fmt.Errorf("update organization: %w", err)
			}
			org.Name = name
		}
		return org, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Organization{}, err
	}

	org = Organization{ID: uuid.NewString(), Auth0ID: auth0ID, Name: name}
	if _, err := s.exec(ctx, `INSERT INTO organizations (id, auth0_id, name) VALUES (?, ?, ?)`, org.ID, org.Auth0ID, org.Name); err != nil {
		return Organization{}, fmt.Errorf("insert organization: %w", err)
	}
	return org, nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	var user User
	if err := s.get(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return user, nil
}

// GetUserByAuth0ID loads the user with the given identity-provider id.
func (s *Store) GetUserByAuth0ID(ctx context.Context, auth0ID string) (User, error) {
	var user User
	if err := s.get(ctx, &user, `SELECT `+userColumns+` FROM users WHERE auth0_id = ?`, auth0ID); err != nil {
		return User{}, fmt.Errorf("get user by auth0 id: %w", err)
	}
	return user, nil
}

// GetUserByEmail matches case-insensitively and returns the oldest id on ties.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.get(ctx, &user, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER(?) ORDER BY created_at, id LIMIT 1`, email)
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// UpsertUser creates the user or overwrites email, name and organization of the row
// with the same Auth0ID. The default chatflow reference is never touched here.
func (s *Store) UpsertUser(ctx context.Context, user User) (User, error) {
	existing, err := s.GetUserByAuth0ID(ctx, user.Auth0ID)
	if err == nil {
		_, err := s.exec(ctx, `
			UPDATE users SET email = ?, name = ?, organization_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, user.Email, user.Name, user.OrganizationID, existing.ID)
		if err != nil {
			return User{}, fmt.Errorf("update user: %w", err)
		}
		existing.Email = user.Email
		existing.Name = user.Name
		existing.OrganizationID = user.OrganizationID
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	user.ID = uuid.NewString()
	user.DefaultChatflowID = nil
	_, err = s.exec(ctx, `
		INSERT INTO users (id, auth0_id, email, name, organization_id)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Auth0ID, user.Email, user.Name, user.OrganizationID)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// SetDefaultChatflow points the user's default chatflow at chatflowID, or clears it
// when chatflowID is nil.
func (s *Store) SetDefaultChatflow(ctx context.Context, userID string, chatflowID *string) error {
	res, err := s.exec(ctx, `UPDATE users SET default_chatflow_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, chatflowID, userID)
	if err != nil {
		return fmt.Errorf("set default chatflow: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set default chatflow for user %s: %w", userID, ErrNotFound)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, id string) (Credential, error) {
	var cred Credential
	if err := s.get(ctx, &cred, `SELECT `+credentialColumns+` FROM credentials WHERE id = ?`, id); err != nil {
		return Credential{}, fmt.Errorf("get credential %s: %w", id, err)
	}
	return cred, nil
}

// ListCredentials returns credentials owned by userID (ownerless ones when nil),
// optionally narrowed to one credential type, ordered by display name.
func (s *Store) ListCredentials(ctx context.Context, userID *string, credentialName string) ([]Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE `
	var args []any
	if userID == nil {
		query += `user_id IS NULL`
	} else {
		query += `user_id = ?`
		args = append(args, *userID)
	}
	if credentialName != "" {
		query += ` AND credential_name = ?`
		args = append(args, credentialName)
	}
	query += ` ORDER BY name, id`

	creds := []Credential{}
	if err := s.list(ctx, &creds, query, args...); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

// InsertCredential stores a new credential, generating an id when none is set.
func (s *Store) InsertCredential(ctx context.Context, cred Credential) (Credential, error) {
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	_, err := s.exec(ctx, `
		INSERT INTO credentials (id, name, credential_name, encrypted_data, visibility, user_id, organization_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, cred.ID, cred.Name, cred.CredentialName, cred.EncryptedData, cred.Visibility, cred.UserID, cred.OrganizationID)
	if err != nil {
		return Credential{}, fmt.Errorf("insert credential %s: %w", cred.CredentialName, err)
	}
	return cred, nil
}

// UpdateCredential rewrites the mutable columns of an existing row, keeping its id.
func (s *Store) UpdateCredential(ctx context.Context, cred Credential) error {
	res, err := s.exec(ctx, `
		UPDATE credentials
		SET name = ?, encrypted_data = ?, visibility = ?, organization_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, cred.Name, cred.EncryptedData, cred.Visibility, cred.OrganizationID, cred.ID)
	if err != nil {
		return fmt.Errorf("update credential %s: %w", cred.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update credential %s: %w", cred.ID, ErrNotFound)
	}
	return nil
}

// DeleteCredentials removes the credentials with the given ids and reports how many
// rows went away.
func (s *Store) DeleteCredentials(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM credentials WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build credential delete: %w", err)
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete credentials: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetChatflow loads a chatflow by id.
func (s *Store) GetChatflow(ctx context.Context, id string) (Chatflow, error) {
	var flow Chatflow
	if err := s.get(ctx, &flow, `SELECT `+chatflowColumns+` FROM chat_flows WHERE id = ?`, id); err != nil {
		return Chatflow{}, fmt.Errorf("get chatflow %s: %w", id, err)
	}
	return flow, nil
}

// ListChatflows returns the chatflows owned by userID that were cloned from parentID.
func (s *Store) ListChatflows(ctx context.Context, userID string, parentID string) ([]Chatflow, error) {
	flows := []Chatflow{}
	err := s.list(ctx, &flows, `
		SELECT `+chatflowColumns+` FROM chat_flows
		WHERE user_id = ? AND parent_chatflow_id = ?
		ORDER BY created_at, id
	`, userID, parentID)
	if err != nil {
		return nil, fmt.Errorf("list chatflows: %w", err)
	}
	return flows, nil
}

// InsertChatflow stores a new chatflow, generating an id when none is set.
func (s *Store) InsertChatflow(ctx context.Context, flow Chatflow) (Chatflow, error) {
	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}
	_, err := s.exec(ctx, `
		INSERT INTO chat_flows (id, name, description, flow_data, deployed, is_public, visibility, version, category, type, user_id, organization_id, parent_chatflow_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, flow.ID, flow.Name, flow.Description, flow.FlowData, flow.Deployed, flow.IsPublic, flow.Visibility,
		flow.Version, flow.Category, flow.Type, flow.UserID, flow.OrganizationID, flow.ParentChatflowID)
	if err != nil {
		return Chatflow{}, fmt.Errorf("insert chatflow %s: %w", flow.ID, err)
	}
	return flow, nil
}

// UpdateChatflow rewrites every mutable column of an existing chatflow.
func (s *Store) UpdateChatflow(ctx context.Context, flow Chatflow) error {
	res, err := s.exec(ctx, `
		UPDATE chat_flows
		SET name = ?, description = ?, flow_data = ?, deployed = ?, is_public = ?, visibility = ?, version = ?,
			category = ?, type = ?, user_id = ?, organization_id = ?, parent_chatflow_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, flow.Name, flow.Description, flow.FlowData, flow.Deployed, flow.IsPublic, flow.Visibility, flow.Version,
		flow.Category, flow.Type, flow.UserID, flow.OrganizationID, flow.ParentChatflowID, flow.ID)
	if err != nil {
		return fmt.Errorf("update chatflow %s: %w", flow.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update chatflow %s: %w", flow.ID, ErrNotFound)
	}
	return nil
}

// DeleteChatflow removes a chatflow; a missing row is not an error.
func (s *Store) DeleteChatflow(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM chat_flows WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete chatflow %s: %w", id, err)
	}
	return nil
}
