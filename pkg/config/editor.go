package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Editor edits a YAML config file in place, keeping key order and comments.
// Keys are dotted paths such as "redis.addr".
type Editor struct {
	path string
	root *yaml.Node
}

// NewEditor loads path. A missing file starts an empty document.
func NewEditor(path string) (*Editor, error) {
	log.Debug().Str("path", path).Msg("creating config editor")
	e := &Editor{path: path}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		b = nil
	case err != nil:
		return nil, errors.Wrapf(err, "read %s", path)
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(b)) > 0 {
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.Errorf("%s: top level is not a mapping", path)
	}
	e.root = doc.Content[0]
	return e, nil
}

func (e *Editor) Path() string { return e.path }

func splitKey(key string) ([]string, error) {
	parts := strings.Split(strings.TrimSpace(key), ".")
	for _, p := range parts {
		if p == "" {
			return nil, errors.Errorf("invalid key %q", key)
		}
	}
	return parts, nil
}

func lookup(m *yaml.Node, name string) (int, *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == name {
			return i, m.Content[i+1]
		}
	}
	return -1, nil
}

// Get returns the scalar value at key.
func (e *Editor) Get(key string) (string, bool, error) {
	parts, err := splitKey(key)
	if err != nil {
		return "", false, err
	}
	node := e.root
	for _, p := range parts {
		if node.Kind != yaml.MappingNode {
			return "", false, nil
		}
		_, next := lookup(node, p)
		if next == nil {
			return "", false, nil
		}
		node = next
	}
	if node.Kind != yaml.ScalarNode {
		return "", false, errors.Errorf("%s is not a scalar", key)
	}
	return node.Value, true, nil
}

// Set writes a scalar value, creating intermediate mappings.
func (e *Editor) Set(key, value string) error {
	parts, err := splitKey(key)
	if err != nil {
		return err
	}
	node := e.root
	for _, p := range parts[:len(parts)-1] {
		_, next := lookup(node, p)
		if next == nil {
			next = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: p}, next)
		}
		if next.Kind != yaml.MappingNode {
			return errors.Errorf("%s is not a mapping", p)
		}
		node = next
	}

	leaf := parts[len(parts)-1]
	valueNode := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	if i, existing := lookup(node, leaf); existing != nil {
		valueNode.HeadComment = existing.HeadComment
		valueNode.LineComment = existing.LineComment
		node.Content[i+1] = valueNode
		return nil
	}
	node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: leaf}, valueNode)
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (e *Editor) Delete(key string) error {
	parts, err := splitKey(key)
	if err != nil {
		return err
	}
	node := e.root
	for _, p := range parts[:len(parts)-1] {
		_, next := lookup(node, p)
		if next == nil || next.Kind != yaml.MappingNode {
			return nil
		}
		node = next
	}
	if i, _ := lookup(node, parts[len(parts)-1]); i >= 0 {
		node.Content = append(node.Content[:i], node.Content[i+2:]...)
	}
	return nil
}

// List flattens all scalar values in file order.
func (e *Editor) List() *orderedmap.OrderedMap[string, string] {
	out := orderedmap.New[string, string]()
	var walk func(prefix string, m *yaml.Node)
	walk = func(prefix string, m *yaml.Node) {
		for i := 0; i+1 < len(m.Content); i += 2 {
			k := m.Content[i].Value
			if prefix != "" {
				k = prefix + "." + k
			}
			v := m.Content[i+1]
			switch v.Kind {
			case yaml.MappingNode:
				walk(k, v)
			case yaml.ScalarNode:
				out.Set(k, v.Value)
			case yaml.DocumentNode, yaml.SequenceNode, yaml.AliasNode:
				b, err := yaml.Marshal(v)
				if err == nil {
					out.Set(k, strings.TrimSpace(string(b)))
				}
			}
		}
	}
	walk("", e.root)
	return out
}

func (e *Editor) Save() error {
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{e.root}}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	return errors.Wrapf(os.WriteFile(e.path, buf.Bytes(), 0o600), "write %s", e.path)
}
