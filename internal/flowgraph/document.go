// Package flowgraph models the workflow node graph stored in a chatflow's flow data and
// binds credential ids into the node parameters that accept them.
package flowgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParamKindCredential is the parameter type that declares accepted credential types.
const ParamKindCredential = "credential"

type Document struct {
	Nodes []*Node
	extra object
}

type Node struct {
	ID    string
	Data  NodeData
	extra object
}

type NodeData struct {
	ID          string
	Name        string
	Label       string
	Credential  *string
	InputParams []Param
	Inputs      map[string]json.RawMessage
	extra       object
}

type Param struct {
	Name            string
	Label           string
	Type            string
	CredentialNames []string
	extra           object
}

// Accepts reports whether the parameter is a credential parameter listing credentialType.
func (p Param) Accepts(credentialType string) bool {
	if p.Type != ParamKindCredential {
		return false
	}
	for _, name := range p.CredentialNames {
		if name == credentialType {
			return true
		}
	}
	return false
}

// InputString returns a string-valued input field.
func (d NodeData) InputString(name string) (string, bool) {
	raw, ok := d.Inputs[name]
	if !ok {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

func (d *Document) UnmarshalJSON(data []byte) error {
	obj, err := decodeObject(data)
	if err != nil {
		return err
	}
	if err := obj.take("nodes", &d.Nodes); err != nil {
		return fmt.Errorf("decode nodes: %w", err)
	}
	d.extra = obj
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	obj := d.extra.clone()
	nodes := d.Nodes
	if nodes == nil {
		nodes = []*Node{}
	}
	if err := obj.put("nodes", nodes); err != nil {
		return nil, err
	}
	if _, ok := obj["edges"]; !ok {
		obj["edges"] = json.RawMessage("[]")
	}
	return json.Marshal(map[string]json.RawMessage(obj))
}

func (n *Node) UnmarshalJSON(data []byte) error {
	obj, err := decodeObject(data)
	if err != nil {
		return err
	}
	if err := obj.take("id", &n.ID); err != nil {
		return fmt.Errorf("decode node id: %w", err)
	}
	if err := obj.take("data", &n.Data); err != nil {
		return fmt.Errorf("decode node %s data: %w", n.ID, err)
	}
	n.extra = obj
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	obj := n.extra.clone()
	if err := obj.put("id", n.ID); err != nil {
		return nil, err
	}
	if err := obj.put("data", n.Data); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage(obj))
}

func (d *NodeData) UnmarshalJSON(data []byte) error {
	obj, err := decodeObject(data)
	if err != nil {
		return err
	}
	for key, dst := range map[string]any{
		"id":          &d.ID,
		"name":        &d.Name,
		"label":       &d.Label,
		"credential":  &d.Credential,
		"inputParams": &d.InputParams,
		"inputs":      &d.Inputs,
	} {
		if err := obj.take(key, dst); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
	}
	d.extra = obj
	return nil
}

func (d NodeData) MarshalJSON() ([]byte, error) {
	obj := d.extra.clone()
	fields := []struct {
		key   string
		value any
		skip  bool
	}{
		{key: "id", value: d.ID},
		{key: "name", value: d.Name},
		{key: "label", value: d.Label},
		{key: "credential", value: d.Credential, skip: d.Credential == nil},
		{key: "inputParams", value: d.InputParams, skip: d.InputParams == nil},
		{key: "inputs", value: d.Inputs, skip: d.Inputs == nil},
	}
	for _, field := range fields {
		if field.skip {
			continue
		}
		if err := obj.put(field.key, field.value); err != nil {
			return nil, err
		}
	}
	return json.Marshal(map[string]json.RawMessage(obj))
}

func (p *Param) UnmarshalJSON(data []byte) error {
	obj, err := decodeObject(data)
	if err != nil {
		return err
	}
	for key, dst := range map[string]any{
		"name":            &p.Name,
		"label":           &p.Label,
		"type":            &p.Type,
		"credentialNames": &p.CredentialNames,
	} {
		if err := obj.take(key, dst); err != nil {
			return fmt.Errorf("decode param %s: %w", key, err)
		}
	}
	p.extra = obj
	return nil
}

func (p Param) MarshalJSON() ([]byte, error) {
	obj := p.extra.clone()
	if err := obj.put("name", p.Name); err != nil {
		return nil, err
	}
	if err := obj.put("label", p.Label); err != nil {
		return nil, err
	}
	if err := obj.put("type", p.Type); err != nil {
		return nil, err
	}
	if p.CredentialNames != nil {
		if err := obj.put("credentialNames", p.CredentialNames); err != nil {
			return nil, err
		}
	}
	return json.Marshal(map[string]json.RawMessage(obj))
}

// object keeps JSON members the typed model does not know about so they survive a
// decode/encode cycle.
type object map[string]json.RawMessage

func decodeObject(data []byte) (object, error) {
	obj := make(object)
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (o object) take(key string, dst any) error {
	raw, ok := o[key]
	if !ok {
		return nil
	}
	delete(o, key)
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func (o object) put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	o[key] = raw
	return nil
}

func (o object) clone() object {
	out := make(object, len(o)+4)
	for key, value := range o {
		out[key] = value
	}
	return out
}
