// Package frontmatter parses and writes the YAML-style header block
// prepended to markdown notes (spec §4.A). Parsing never fails the
// caller: malformed YAML returns a soft result with no mapping and the
// entire input as body, per the spec's Open Question #1 resolution.
package frontmatter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// knownKeyOrder is the fixed order known keys are written in. Unknown
// keys (kept in Extra) follow, sorted lexicographically.
var knownKeyOrder = []string{"id", "title", "aliases", "tags", "created_at", "updated_at", "tasks"}

// TaskProperties is the canonical, front-matter-owned representation of a
// task's structured properties (spec §3 Task Record invariant iii).
type TaskProperties struct {
	Status     string   `yaml:"status"`
	Text       string   `yaml:"text"`
	Project    string   `yaml:"project,omitempty"`
	Due        string   `yaml:"due,omitempty"` // calendar date, YYYY-MM-DD
	Priority   string   `yaml:"priority,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
	Created    string   `yaml:"created,omitempty"`
	Updated    string   `yaml:"updated,omitempty"`
	Completed  string   `yaml:"completed,omitempty"`
}

// Document is the in-memory representation of a note's front-matter.
// Known fields the core reasons about (id, tasks) are typed; everything
// else the host does not understand is preserved verbatim in Extra so
// round-tripping never loses data.
type Document struct {
	ID    string                    `yaml:"-"`
	Tasks map[string]TaskProperties `yaml:"-"`

	// Extra holds every key not in knownKeyOrder, keyed by name, value
	// preserved as a generic yaml.Node so arbitrary scalars, sequences,
	// and nested mappings round-trip losslessly.
	Extra map[string]yaml.Node `yaml:"-"`
}

// Parse splits text into an optional front-matter mapping and the
// remaining body. A missing or malformed front-matter block is not an
// error: the returned mapping is nil and body is the entire input.
func Parse(text string) (doc *Document, body string) {
	if !strings.HasPrefix(text, delimiter) {
		return nil, text
	}
	// The opening delimiter must be alone on the first line.
	firstNL := strings.IndexByte(text, '\n')
	first := text
	if firstNL >= 0 {
		first = text[:firstNL]
	}
	if strings.TrimSpace(first) != delimiter {
		return nil, text
	}

	rest := text
	if firstNL >= 0 {
		rest = text[firstNL+1:]
	} else {
		rest = ""
	}

	end := findClosingDelimiter(rest)
	if end < 0 {
		return nil, text
	}

	yamlBlock := rest[:end]
	afterIdx := end + len(delimiter)
	// Skip the line containing the closing delimiter.
	if nl := strings.IndexByte(rest[afterIdx:], '\n'); nl >= 0 {
		body = rest[afterIdx+nl+1:]
	} else {
		body = ""
	}

	var raw yaml.Node
	if err := yaml.Unmarshal([]byte(yamlBlock), &raw); err != nil {
		return nil, text
	}
	if len(raw.Content) == 0 {
		// Empty front-matter block: treat as present but empty.
		return &Document{Extra: map[string]yaml.Node{}}, body
	}
	mapping := raw.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, text
	}

	doc = &Document{Extra: map[string]yaml.Node{}}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode := mapping.Content[i]
		valNode := mapping.Content[i+1]
		switch keyNode.Value {
		case "id":
			_ = valNode.Decode(&doc.ID)
		case "tasks":
			var tasks map[string]TaskProperties
			if err := valNode.Decode(&tasks); err == nil {
				doc.Tasks = tasks
			} else {
				doc.Extra[keyNode.Value] = *valNode
			}
		default:
			doc.Extra[keyNode.Value] = *valNode
		}
	}
	return doc, body
}

// findClosingDelimiter returns the byte offset (within s) of a line that
// is exactly "---", or -1 if none exists.
func findClosingDelimiter(s string) int {
	offset := 0
	for {
		nl := strings.IndexByte(s[offset:], '\n')
		var line string
		if nl < 0 {
			line = s[offset:]
		} else {
			line = s[offset : offset+nl]
		}
		if strings.TrimSpace(line) == delimiter {
			return offset
		}
		if nl < 0 {
			return -1
		}
		offset += nl + 1
	}
}

// ReadAll returns the raw front-matter block (including delimiters), or
// the empty string if none is present.
func ReadAll(text string) string {
	doc, body := Parse(text)
	if doc == nil {
		return ""
	}
	return strings.TrimSuffix(text, body)
}

// Render serializes doc and body back into note text: a delimited
// front-matter block followed by the body. Keys are written in
// knownKeyOrder first, then Extra keys sorted lexicographically.
func Render(doc *Document, body string) (string, error) {
	if doc == nil {
		return body, nil
	}

	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	add := func(key string, val *yaml.Node) {
		k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
		root.Content = append(root.Content, k, val)
	}

	if doc.ID != "" {
		var v yaml.Node
		_ = v.Encode(doc.ID)
		add("id", &v)
	}
	for _, k := range knownKeyOrder {
		if k == "id" || k == "tasks" {
			continue
		}
		if v, ok := doc.Extra[k]; ok {
			vv := v
			add(k, &vv)
		}
	}
	if len(doc.Tasks) > 0 {
		var v yaml.Node
		_ = v.Encode(doc.Tasks)
		add("tasks", &v)
	}

	var extraKeys []string
	known := make(map[string]bool, len(knownKeyOrder))
	for _, k := range knownKeyOrder {
		known[k] = true
	}
	for k := range doc.Extra {
		if !known[k] {
			extraKeys = append(extraKeys, k)
		}
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		v := doc.Extra[k]
		add(k, &v)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("encode front-matter: %w", err)
	}
	_ = enc.Close()

	var out strings.Builder
	out.WriteString(delimiter)
	out.WriteByte('\n')
	out.WriteString(buf.String())
	out.WriteString(delimiter)
	out.WriteByte('\n')
	out.WriteString(body)
	return out.String(), nil
}

// WriteAtomic serializes doc+body and writes the result to path using the
// write-temp/rename pattern (via WriteFileAtomic): write to a temp file
// named <base>.tmp-<random> beside path, fsync, then rename over
// the target so a crash never leaves a half-written file (spec Atomic
// write property in §8).
func WriteAtomic(path string, doc *Document, body string) error {
	text, err := Render(doc, body)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, []byte(text))
}

// WriteFileAtomic is the general-purpose atomic write-rename primitive
// used by every component that persists files (identity sidecars, CSV
// writes, settings files, permission files): write to a temp file in the
// same directory (so rename stays on one volume), fsync, rename over the
// target.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Best-effort cleanup; if the rename below succeeded this is a no-op.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file onto target: %w", err)
	}
	return nil
}
