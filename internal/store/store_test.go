package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertOrganizationIsKeyedByAuth0ID(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).Store()

	first, err := s.UpsertOrganization(ctx, "org|1", "Acme")
	require.NoError(t, err)
	second, err := s.UpsertOrganization(ctx, "org|1", "Acme Renamed")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	got, err := s.GetOrganization(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Renamed", got.Name)

	_, err = s.GetOrganizationByAuth0ID(ctx, "org|missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpsertUserOverwritesProfileAndKeepsDefaultChatflow(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := db.Store()

	org, err := s.UpsertOrganization(ctx, "org|1", "Acme")
	require.NoError(t, err)
	user, err := s.UpsertUser(ctx, User{Auth0ID: "auth0|u1", Email: "first@example.com", Name: "First", OrganizationID: &org.ID})
	require.NoError(t, err)

	flow, err := s.InsertChatflow(ctx, Chatflow{Name: "Mine", FlowData: `{"nodes":[]}`, Version: 1, Type: "CHATFLOW", UserID: &user.ID})
	require.NoError(t, err)
	require.NoError(t, s.SetDefaultChatflow(ctx, user.ID, &flow.ID))

	again, err := s.UpsertUser(ctx, User{Auth0ID: "auth0|u1", Email: "second@example.com", Name: "Second", OrganizationID: &org.ID})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	stored, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "second@example.com", stored.Email)
	assert.Equal(t, "Second", stored.Name)
	require.NotNil(t, stored.DefaultChatflowID)
	assert.Equal(t, flow.ID, *stored.DefaultChatflowID)

	byEmail, err := s.GetUserByEmail(ctx, "SECOND@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	users, err := CountRows(ctx, db, "users")
	require.NoError(t, err)
	assert.Equal(t, 1, users)
}

func TestSetDefaultChatflowUnknownUser(t *testing.T) {
	s := openTestDB(t).Store()
	err := s.SetDefaultChatflow(context.Background(), "nobody", nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCredentialLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).Store()

	user, err := s.UpsertUser(ctx, User{Auth0ID: "auth0|u1", Email: "u1@example.com"})
	require.NoError(t, err)

	owned, err := s.InsertCredential(ctx, Credential{
		Name:           "Key B",
		CredentialName: "openAIApi",
		EncryptedData:  "blob-1",
		Visibility:     Tags{"Private", "Organization"},
		UserID:         &user.ID,
	})
	require.NoError(t, err)
	_, err = s.InsertCredential(ctx, Credential{Name: "Key A", CredentialName: "openAIApi", EncryptedData: "blob-2", UserID: &user.ID})
	require.NoError(t, err)
	_, err = s.InsertCredential(ctx, Credential{Name: "Exa", CredentialName: "exaSearchApi", EncryptedData: "blob-3", UserID: &user.ID})
	require.NoError(t, err)
	global, err := s.InsertCredential(ctx, Credential{Name: "Shared", CredentialName: "openAIApi", EncryptedData: "blob-4"})
	require.NoError(t, err)

	openai, err := s.ListCredentials(ctx, &user.ID, "openAIApi")
	require.NoError(t, err)
	require.Len(t, openai, 2)
	assert.Equal(t, "Key A", openai[0].Name)
	assert.Equal(t, Tags{"Private", "Organization"}, openai[1].Visibility)

	all, err := s.ListCredentials(ctx, &user.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ownerless, err := s.ListCredentials(ctx, nil, "openAIApi")
	require.NoError(t, err)
	require.Len(t, ownerless, 1)
	assert.Equal(t, global.ID, ownerless[0].ID)
	assert.Nil(t, ownerless[0].UserID)

	owned.Name = "Key C"
	owned.EncryptedData = "blob-5"
	owned.Visibility = Tags{"Private"}
	require.NoError(t, s.UpdateCredential(ctx, owned))
	stored, err := s.GetCredential(ctx, owned.ID)
	require.NoError(t, err)
	assert.Equal(t, "Key C", stored.Name)
	assert.Equal(t, "blob-5", stored.EncryptedData)
	assert.True(t, stored.Visibility.Contains("Private"))
	assert.False(t, stored.Visibility.Contains("Organization"))

	deleted, err := s.DeleteCredentials(ctx, []string{owned.ID, global.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	_, err = s.GetCredential(ctx, owned.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	deleted, err = s.DeleteCredentials(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	err = s.UpdateCredential(ctx, Credential{ID: "missing"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestChatflowLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).Store()

	template, err := s.InsertChatflow(ctx, Chatflow{
		ID:         "tpl-1",
		Name:       "Template",
		FlowData:   `{"nodes":[]}`,
		Visibility: Tags{"Private", "Organization"},
		Version:    3,
		Type:       "CHATFLOW",
	})
	require.NoError(t, err)

	stored, err := s.GetChatflow(ctx, template.ID)
	require.NoError(t, err)
	assert.True(t, stored.Ownerless())
	assert.False(t, stored.Deployed)
	assert.Equal(t, 3, stored.Version)

	user, err := s.UpsertUser(ctx, User{Auth0ID: "auth0|u1", Email: "u1@example.com"})
	require.NoError(t, err)
	clone, err := s.InsertChatflow(ctx, Chatflow{
		Name:             "Clone",
		FlowData:         template.FlowData,
		Version:          1,
		Type:             "CHATFLOW",
		UserID:           &user.ID,
		ParentChatflowID: &template.ID,
	})
	require.NoError(t, err)

	clones, err := s.ListChatflows(ctx, user.ID, template.ID)
	require.NoError(t, err)
	require.Len(t, clones, 1)
	assert.Equal(t, clone.ID, clones[0].ID)

	clone.IsPublic = true
	clone.FlowData = `{"nodes":[],"edges":[]}`
	require.NoError(t, s.UpdateChatflow(ctx, clone))
	stored, err = s.GetChatflow(ctx, clone.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPublic)
	assert.Equal(t, clone.FlowData, stored.FlowData)

	require.NoError(t, s.DeleteChatflow(ctx, clone.ID))
	_, err = s.GetChatflow(ctx, clone.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(s *Store) error {
		if _, err := s.UpsertOrganization(ctx, "org|tx", "Tx"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := CountRows(ctx, db, "organizations")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, db.WithTx(ctx, func(s *Store) error {
		_, err := s.UpsertOrganization(ctx, "org|tx", "Tx")
		return err
	}))
	count, err = CountRows(ctx, db, "organizations")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTagsScan(t *testing.T) {
	var tags Tags
	require.NoError(t, tags.Scan([]byte("Private, Organization,")))
	assert.Equal(t, Tags{"Private", "Organization"}, tags)

	require.NoError(t, tags.Scan(nil))
	assert.Nil(t, tags)

	assert.Error(t, tags.Scan(42))
}

func TestDialectDSNs(t *testing.T) {
	dsn, err := mysqlDSN("seed:pw@tcp(localhost:3306)/seed")
	require.NoError(t, err)
	assert.Contains(t, dsn, "clientFoundRows=true")
	assert.Contains(t, dsn, "parseTime=true")

	_, err = mysqlDSN("not a dsn")
	assert.Error(t, err)

	assert.Equal(t, "file:a.db?_pragma=foreign_keys(ON)", sqliteDSN("file:a.db?_pragma=foreign_keys(ON)"))
	assert.Contains(t, sqliteDSN("file:a.db?mode=rwc"), "mode=rwc&_pragma=journal_mode(WAL)")
}
