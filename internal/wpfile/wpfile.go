// Package wpfile parses and rewrites the YAML frontmatter of a
// work-package markdown file (kitty-specs/<feature>/tasks/WP<nn>-<slug>.md).
// The frontmatter has a fixed key order with `dependencies` and `lane` as
// required keys, per spec §6.
package wpfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var wpIDPattern = regexp.MustCompile(`^WP[0-9]{2}$`)

// ValidID reports whether id matches ^WP[0-9]{2}$.
func ValidID(id string) bool {
	return wpIDPattern.MatchString(id)
}

// Frontmatter is the YAML header of a WP file. Field order below is the
// fixed persisted order (dependencies, then lane, then the rest).
type Frontmatter struct {
	Dependencies []string `yaml:"dependencies"`
	Lane         string   `yaml:"lane"`
	Title        string   `yaml:"title,omitempty"`
	Assignee     string   `yaml:"assignee,omitempty"`
	ImplementationRetries int `yaml:"implementation_retries,omitempty"`
	ReviewRetries         int `yaml:"review_retries,omitempty"`
	CreatedAt    string   `yaml:"created_at,omitempty"`
	UpdatedAt    string   `yaml:"updated_at,omitempty"`
}

// File is a parsed WP markdown file: frontmatter plus the raw body text
// that follows it (subtask checklist, notes, etc.), preserved verbatim.
type File struct {
	Frontmatter Frontmatter
	Body        string
}

const delimiter = "---\n"

// Parse splits raw WP markdown into its frontmatter and body.
func Parse(raw []byte) (File, error) {
	s := string(raw)
	if !strings.HasPrefix(s, delimiter) {
		return File{}, fmt.Errorf("missing frontmatter delimiter")
	}
	rest := s[len(delimiter):]
	end := strings.Index(rest, "\n"+delimiter)
	if end == -1 {
		return File{}, fmt.Errorf("unterminated frontmatter")
	}
	fmYAML := rest[:end+1]
	body := rest[end+1+len(delimiter):]

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(fmYAML), &fm); err != nil {
		return File{}, fmt.Errorf("parsing frontmatter: %w", err)
	}
	return File{Frontmatter: fm, Body: body}, nil
}

// ReadFile loads and parses a WP file from disk.
func ReadFile(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(raw)
}

// Render serializes f back into WP markdown, preserving the fixed key
// order via an explicit yaml.Node tree rather than relying on struct
// field order (which yaml.v3 does respect, but an explicit node makes
// the fixed order a documented invariant rather than an implementation
// accident).
func (f File) Render() ([]byte, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	addKV(node, "dependencies", f.Frontmatter.Dependencies)
	addKV(node, "lane", f.Frontmatter.Lane)
	if f.Frontmatter.Title != "" {
		addKV(node, "title", f.Frontmatter.Title)
	}
	if f.Frontmatter.Assignee != "" {
		addKV(node, "assignee", f.Frontmatter.Assignee)
	}
	if f.Frontmatter.ImplementationRetries != 0 {
		addKV(node, "implementation_retries", f.Frontmatter.ImplementationRetries)
	}
	if f.Frontmatter.ReviewRetries != 0 {
		addKV(node, "review_retries", f.Frontmatter.ReviewRetries)
	}
	if f.Frontmatter.CreatedAt != "" {
		addKV(node, "created_at", f.Frontmatter.CreatedAt)
	}
	if f.Frontmatter.UpdatedAt != "" {
		addKV(node, "updated_at", f.Frontmatter.UpdatedAt)
	}

	fmBytes, err := yaml.Marshal(node)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(delimiter)
	sb.Write(fmBytes)
	sb.WriteString(delimiter)
	sb.WriteString(f.Body)
	return []byte(sb.String()), nil
}

func addKV(parent *yaml.Node, key string, value any) {
	var valNode yaml.Node
	_ = valNode.Encode(value)
	parent.Content = append(parent.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		&valNode,
	)
}

// WriteLane rewrites a WP file's lane field in place, preserving every
// other field and the body, used by the event store's dual-write path
// (spec §4.B: "The WP frontmatter of the affected file is also rewritten
// to the new lane").
func WriteLane(path, newLane string) error {
	f, err := ReadFile(path)
	if err != nil {
		return err
	}
	f.Frontmatter.Lane = newLane
	out, err := f.Render()
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// FindByID locates the flat WP file for wpID within tasksDir (which may
// be named WP<nn>.md or WP<nn>-<slug>.md), returning ok=false if none
// exists yet.
func FindByID(tasksDir, wpID string) (path string, ok bool) {
	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		return "", false
	}
	for _, ent := range entries {
		name := ent.Name()
		if name == wpID+".md" || strings.HasPrefix(name, wpID+"-") {
			return filepath.Join(tasksDir, name), true
		}
	}
	return "", false
}

// ListIDs returns every WP id found in tasksDir, derived from filenames.
func ListIDs(tasksDir string) []string {
	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		return nil
	}
	var ids []string
	for _, ent := range entries {
		name := strings.TrimSuffix(ent.Name(), ".md")
		id := name
		if idx := strings.Index(name, "-"); idx != -1 {
			id = name[:idx]
		}
		if ValidID(id) {
			ids = append(ids, id)
		}
	}
	return ids
}
