package catalog

import (
	_ "embed"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"strings"

	"github.com/timmy/carousel/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtin []byte

// Template is a static visual that backs a content hint.
type Template struct {
	Name    string   `yaml:"name"`
	Hint    string   `yaml:"hint"`
	URL     string   `yaml:"url"`
	Tags    []string `yaml:"tags"`
	HasText bool     `yaml:"has_text"`
}

// Generated reports whether the template is rendered locally instead of downloaded.
func (t Template) Generated() bool {
	return t.URL == ""
}

type file struct {
	Templates []Template `yaml:"templates"`
}

// Catalog is an immutable, validated set of templates grouped by hint.
type Catalog struct {
	templates []Template
	byHint    map[string][]Template
	byName    map[string]Template
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(builtin)
}

// Load reads a catalog from path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML catalog data.
// Every known hint must be covered by at least one template.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := &Catalog{
		byHint: make(map[string][]Template),
		byName: make(map[string]Template),
	}
	for _, t := range f.Templates {
		t.Name = strings.TrimSpace(t.Name)
		t.Hint = strings.ToLower(strings.TrimSpace(t.Hint))
		if t.Name == "" {
			return nil, fmt.Errorf("catalog template without name")
		}
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate catalog template %q", t.Name)
		}
		if !knownHint(t.Hint) {
			return nil, fmt.Errorf("template %q has unknown hint %q", t.Name, t.Hint)
		}
		for i := range t.Tags {
			t.Tags[i] = strings.ToLower(strings.TrimSpace(t.Tags[i]))
		}
		c.templates = append(c.templates, t)
		c.byHint[t.Hint] = append(c.byHint[t.Hint], t)
		c.byName[t.Name] = t
	}

	for _, h := range domain.KnownHints {
		if len(c.byHint[h]) == 0 {
			return nil, fmt.Errorf("catalog has no template for hint %q", h)
		}
	}
	return c, nil
}

func knownHint(h string) bool {
	for _, k := range domain.KnownHints {
		if k == h {
			return true
		}
	}
	return false
}

// Hints returns the covered hints in sorted order.
func (c *Catalog) Hints() []string {
	hints := make([]string, 0, len(c.byHint))
	for h := range c.byHint {
		hints = append(hints, h)
	}
	sort.Strings(hints)
	return hints
}

// ByHint returns the templates of one category in catalog order.
func (c *Catalog) ByHint(hint string) []Template {
	return c.byHint[hint]
}

// Get looks a template up by name.
func (c *Catalog) Get(name string) (Template, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// All returns every template in catalog order.
func (c *Catalog) All() []Template {
	return c.templates
}

// Score counts how many of the template's tags occur in the lowercased text.
func (t Template) Score(lowerText string) int {
	n := 0
	for _, tag := range t.Tags {
		if tag != "" && strings.Contains(lowerText, tag) {
			n++
		}
	}
	return n
}

// Pick chooses the best template for text: highest tag overlap first,
// text-free templates before ones with baked-in captions, then a stable
// hash of the text so equal candidates are spread deterministically.
// Returns false when candidates is empty.
func Pick(candidates []Template, text string) (Template, bool) {
	if len(candidates) == 0 {
		return Template{}, false
	}
	lower := strings.ToLower(text)

	best := -1
	var tied []Template
	for _, t := range candidates {
		s := t.Score(lower) * 2
		if !t.HasText {
			s++
		}
		switch {
		case s > best:
			best = s
			tied = []Template{t}
		case s == best:
			tied = append(tied, t)
		}
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(lower))
	return tied[int(h.Sum32()%uint32(len(tied)))], true
}
