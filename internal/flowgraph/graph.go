package flowgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

type paramRef struct {
	node  *Node
	param string
}

// Graph is a parsed document plus an index from canonical credential type to every
// node parameter that accepts it.
type Graph struct {
	doc   Document
	index map[string][]paramRef
}

// Parse decodes serialized flow data. Empty input yields an empty graph.
func Parse(flowData string) (*Graph, error) {
	var doc Document
	if trimmed := bytes.TrimSpace([]byte(flowData)); len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("parse flow data: %w", err)
		}
	}
	return NewGraph(doc), nil
}

func NewGraph(doc Document) *Graph {
	g := &Graph{doc: doc, index: make(map[string][]paramRef)}
	for _, node := range doc.Nodes {
		if node == nil {
			continue
		}
		for _, param := range node.Data.InputParams {
			if param.Type != ParamKindCredential {
				continue
			}
			for _, credentialType := range param.CredentialNames {
				g.index[credentialType] = append(g.index[credentialType], paramRef{node: node, param: param.Name})
			}
		}
	}
	return g
}

func (g *Graph) Document() Document {
	return g.doc
}

// String serializes the graph back into flow data.
func (g *Graph) String() (string, error) {
	raw, err := json.Marshal(g.doc)
	if err != nil {
		return "", fmt.Errorf("encode flow data: %w", err)
	}
	return string(raw), nil
}

// AcceptedTypes lists every credential type some parameter in the graph accepts.
func (g *Graph) AcceptedTypes() []string {
	types := make([]string, 0, len(g.index))
	for credentialType := range g.index {
		types = append(types, credentialType)
	}
	sort.Strings(types)
	return types
}

// ClearBinding removes the named input field from every node parameter accepting
// credentialType, and the node's generic credential slot unless another credential
// parameter of that node still holds the same id. It returns the number of parameters
// visited.
func (g *Graph) ClearBinding(credentialType string) int {
	refs := g.index[credentialType]
	for _, ref := range refs {
		if ref.param != "" {
			delete(ref.node.Data.Inputs, ref.param)
		}
	}
	for _, ref := range refs {
		slot := ref.node.Data.Credential
		if slot != nil && !holdsCredential(ref.node, *slot) {
			ref.node.Data.Credential = nil
		}
	}
	return len(refs)
}

func holdsCredential(node *Node, credentialID string) bool {
	for _, param := range node.Data.InputParams {
		if param.Type != ParamKindCredential {
			continue
		}
		if value, ok := node.Data.InputString(param.Name); ok && value == credentialID {
			return true
		}
	}
	return false
}

// BindCredential writes credentialID into the generic credential slot and the named
// input field of every node parameter accepting credentialType.
func (g *Graph) BindCredential(credentialType, credentialID string) int {
	refs := g.index[credentialType]
	if len(refs) == 0 {
		return 0
	}
	encoded, _ := json.Marshal(credentialID)
	for _, ref := range refs {
		id := credentialID
		ref.node.Data.Credential = &id
		if ref.param == "" {
			continue
		}
		if ref.node.Data.Inputs == nil {
			ref.node.Data.Inputs = make(map[string]json.RawMessage)
		}
		ref.node.Data.Inputs[ref.param] = json.RawMessage(encoded)
	}
	return len(refs)
}

// Bindings returns the distinct credential ids currently held by the named input
// fields of parameters accepting credentialType.
func (g *Graph) Bindings(credentialType string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, ref := range g.index[credentialType] {
		value, ok := ref.node.Data.InputString(ref.param)
		if !ok || value == "" || seen[value] {
			continue
		}
		seen[value] = true
		ids = append(ids, value)
	}
	sort.Strings(ids)
	return ids
}

// NodesAccepting returns the nodes with at least one parameter accepting credentialType.
func (g *Graph) NodesAccepting(credentialType string) []*Node {
	seen := make(map[*Node]bool)
	var nodes []*Node
	for _, ref := range g.index[credentialType] {
		if seen[ref.node] {
			continue
		}
		seen[ref.node] = true
		nodes = append(nodes, ref.node)
	}
	return nodes
}
