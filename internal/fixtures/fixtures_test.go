package fixtures

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowseed/internal/flowgraph"
)

func TestEmbeddedDefaultTemplate(t *testing.T) {
	tpl, err := NewEmbedded().Load(context.Background(), "any-template-id")
	require.NoError(t, err)

	assert.Equal(t, "Seeded Research Assistant", tpl.Name)
	assert.Equal(t, 1, tpl.Version)
	assert.Equal(t, "CHATFLOW", tpl.Type)

	g, err := flowgraph.Parse(tpl.FlowData)
	require.NoError(t, err)
	assert.Equal(t, []string{"exaSearchApi", "githubApi", "jiraApi", "openAIApi", "slackApi"}, g.AcceptedTypes())
	assert.Len(t, g.NodesAccepting("openAIApi"), 3)
}

func TestFSPrefersTemplateSpecificFile(t *testing.T) {
	fsys := fstest.MapFS{
		"default.json": {Data: []byte(`{"name": "Default", "flowData": {"nodes": []}}`)},
		"tpl-2.json":   {Data: []byte(`{"name": "Second", "version": 4, "flowData": "{\"nodes\": []}"}`)},
	}
	src := NewFS(fsys)

	tpl, err := src.Load(context.Background(), "tpl-2")
	require.NoError(t, err)
	assert.Equal(t, "Second", tpl.Name)
	assert.Equal(t, 4, tpl.Version)
	assert.Equal(t, `{"nodes": []}`, tpl.FlowData)

	tpl, err = src.Load(context.Background(), "tpl-3")
	require.NoError(t, err)
	assert.Equal(t, "Default", tpl.Name)
	assert.Equal(t, 1, tpl.Version)
}

func TestFSMissingFixture(t *testing.T) {
	_, err := NewFS(fstest.MapFS{}).Load(context.Background(), "tpl")
	assert.True(t, errors.Is(err, ErrFixtureNotFound))
}

func TestDecodeRejectsMissingFlowData(t *testing.T) {
	_, err := Decode([]byte(`{"name": "No flow"}`))
	assert.Error(t, err)
}

func TestObjectStoreLoad(t *testing.T) {
	body := `{"name": "Remote", "version": 2, "flowData": {"nodes": []}}`
	var (
		mu        sync.Mutex
		requested []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path)
		mu.Unlock()
		if r.URL.Path != "/fixtures/templates/default.json" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("ETag", `"abc123"`)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	src, err := NewObjectStore(ObjectStoreOptions{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Region:    "us-east-1",
		Bucket:    "fixtures",
		Prefix:    "templates",
		AccessKey: "access",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	tpl, err := src.Load(context.Background(), "tpl-9")
	require.NoError(t, err)
	assert.Equal(t, "Remote", tpl.Name)
	assert.Equal(t, 2, tpl.Version)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, requested, "/fixtures/templates/tpl-9.json")
}

func TestNewObjectStoreRequiresBucket(t *testing.T) {
	_, err := NewObjectStore(ObjectStoreOptions{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}
