package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"flowseed/internal/apperr"
)

const testConfigYAML = `
database:
  type: sqlite
  url: file:%s
  migrate: true
org:
  auth0_id: org|cli
  name: CLI Org
users:
  admin:
    email: admin@cli.test
    auth0_id: auth0|cli-admin
templates:
  ids: tpl-cli
credentials:
  secret: cli-secret
  openai_api_key: sk-cli
  exa_api_key: exa-cli
  slack_bot_token: xoxb-cli
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	contents := []byte(fmt.Sprintf(testConfigYAML, filepath.Join(dir, "cli.db")))
	require.NoError(t, os.WriteFile(path, contents, 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := &App{newLogger: func(zapcore.Level) (*zap.Logger, error) { return zap.NewNop(), nil }}
	cmd := newRootCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScenariosCommandNeedsNoConfig(t *testing.T) {
	out, err := run(t, "scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "user-with-openai")
	assert.Contains(t, out, "user-with-all-but-slack-assigned")
}

func TestSeedWorkflow(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := run(t, "--config", configPath, "migrate")
	require.NoError(t, err)

	out, err := run(t, "--config", configPath, "tables")
	require.NoError(t, err)
	var tables struct {
		Dialect string   `json:"dialect"`
		Tables  []string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &tables))
	assert.Equal(t, "sqlite", tables.Dialect)
	assert.Equal(t, []string{"chat_flows", "credentials", "organizations", "users"}, tables.Tables)

	out, err = run(t, "--config", configPath, "scenario", "user-with-openai")
	require.NoError(t, err)
	var result struct {
		ChatflowID string            `json:"chatflowId"`
		Assigned   map[string]string `json:"assigned"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.NotEmpty(t, result.Assigned["openAIApi"])

	out, err = run(t, "--config", configPath, "bindings", result.ChatflowID)
	require.NoError(t, err)
	var bindings struct {
		Bindings map[string][]string `json:"bindings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &bindings))
	assert.Equal(t, []string{result.Assigned["openAIApi"]}, bindings.Bindings["openAIApi"])
	assert.Empty(t, bindings.Bindings["exaSearchApi"])

	requestPath := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(requestPath, []byte(`{
		"user": {"auth0Id": "auth0|cli-admin", "email": "admin@cli.test"},
		"credentials": {"exa": {"name": "Search", "assigned": true}}
	}`), 0o600))
	out, err = run(t, "--config", configPath, "seed", "-f", requestPath)
	require.NoError(t, err)
	var seeded struct {
		ChatflowID string `json:"chatflowId"`
		Pruned     int64  `json:"pruned"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &seeded))
	assert.Equal(t, result.ChatflowID, seeded.ChatflowID)
	assert.Equal(t, int64(1), seeded.Pruned)

	out, err = run(t, "--config", configPath, "types")
	require.NoError(t, err)
	var types []struct {
		Name   string   `json:"name"`
		Fields []string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &types))
	require.Len(t, types, 3)
	assert.Equal(t, "openAIApi", types[0].Name)
	assert.Equal(t, []string{"openAIApiKey"}, types[0].Fields)
	assert.NotContains(t, out, "sk-cli")

	_, err = run(t, "--config", configPath, "scenario", "user-with-exa", "--role", "member")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = run(t, "--config", configPath, "reset")
	require.NoError(t, err)
}

func TestScenarioCommandRejectsUnknownRole(t *testing.T) {
	_, err := run(t, "scenario", "user-with-openai", "--role", "owner")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestScenarioCommandRejectsUnknownName(t *testing.T) {
	_, err := run(t, "scenario", "user-with-nothing")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestSeedCommandRequiresFile(t *testing.T) {
	_, err := run(t, "seed")
	assert.Error(t, err)
}

func TestReadRequestYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
user:
  email: someone@cli.test
  organization:
    auth0Id: org|cli
    name: CLI Org
credentials:
  openai:
    - name: One
      assigned: true
    - name: Two
chatflow:
  name: Mine
options:
  preserveExistingChatflow: true
`), 0o600))

	req, err := readRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "someone@cli.test", req.User.Email)
	assert.Len(t, req.Credentials["openai"], 2)
	assert.True(t, req.Credentials["openai"][0].Assigned)
	assert.Equal(t, "Mine", req.Chatflow.Name)
	assert.True(t, req.Options.PreserveExistingChatflow)
}
