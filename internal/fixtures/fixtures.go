// Package fixtures loads canonical template documents used to provision template
// chatflows.
package fixtures

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
)

//go:embed templates/*.json
var embedded embed.FS

const defaultFixture = "default.json"

var ErrFixtureNotFound = errors.New("template fixture not found")

// Template is the canonical content of a template chatflow.
type Template struct {
	Name        string
	Description string
	Category    string
	Type        string
	Version     int
	FlowData    string
}

// Source loads the template content for a template id.
type Source interface {
	Load(ctx context.Context, templateID string) (Template, error)
}

type templateFile struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Type        string          `json:"type"`
	Version     int             `json:"version"`
	FlowData    json.RawMessage `json:"flowData"`
}

// Decode parses a fixture file. flowData may be an inline object or a JSON string.
func Decode(raw []byte) (Template, error) {
	var file templateFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return Template{}, fmt.Errorf("decode template fixture: %w", err)
	}

	flowData := bytes.TrimSpace(file.FlowData)
	if len(flowData) == 0 || bytes.Equal(flowData, []byte("null")) {
		return Template{}, errors.New("template fixture has no flowData")
	}
	tpl := Template{
		Name:        file.Name,
		Description: file.Description,
		Category:    file.Category,
		Type:        file.Type,
		Version:     file.Version,
		FlowData:    string(flowData),
	}
	if flowData[0] == '"' {
		if err := json.Unmarshal(flowData, &tpl.FlowData); err != nil {
			return Template{}, fmt.Errorf("decode template flowData: %w", err)
		}
	}
	if tpl.Version <= 0 {
		tpl.Version = 1
	}
	if tpl.Type == "" {
		tpl.Type = "CHATFLOW"
	}
	return tpl, nil
}

// Embedded serves fixtures compiled into the binary: templates/<id>.json when
// present, templates/default.json otherwise.
type Embedded struct {
	fsys fs.FS
}

// NewEmbedded serves the fixtures compiled into the binary.
func NewEmbedded() *Embedded {
	sub, _ := fs.Sub(embedded, "templates")
	return &Embedded{fsys: sub}
}

// NewFS serves fixtures from an arbitrary directory tree with the same lookup rules.
func NewFS(fsys fs.FS) *Embedded {
	return &Embedded{fsys: fsys}
}

func (e *Embedded) Load(_ context.Context, templateID string) (Template, error) {
	for _, name := range []string{templateID + ".json", defaultFixture} {
		raw, err := fs.ReadFile(e.fsys, path.Clean(name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Template{}, fmt.Errorf("read fixture %s: %w", name, err)
		}
		return Decode(raw)
	}
	return Template{}, fmt.Errorf("%w: %s", ErrFixtureNotFound, templateID)
}
