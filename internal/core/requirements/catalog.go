// Package requirements resolves which documents a party has to provide.
package requirements

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Statuses map[string][]requirementEntry `yaml:"statuses"`
	Roles    map[string][]requirementEntry `yaml:"roles"`
}

type requirementEntry struct {
	Type        string             `yaml:"type"`
	Label       string             `yaml:"label"`
	Required    bool               `yaml:"required"`
	Cardinality domain.Cardinality `yaml:"cardinality"`
}

// Catalog maps employment status and role to an ordered requirement list.
type Catalog struct {
	statuses map[domain.EmploymentStatus][]domain.DocumentRequirement
	roles    map[domain.Role][]domain.DocumentRequirement
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	catalog, err := Parse(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("requirements: embedded catalog: %v", err))
	}
	return catalog
})

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	return defaultCatalog()
}

// Load reads an override catalog from path, or returns Default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requirements catalog: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse requirements catalog: %w", err)
	}

	catalog := &Catalog{
		statuses: make(map[domain.EmploymentStatus][]domain.DocumentRequirement, len(file.Statuses)),
		roles:    make(map[domain.Role][]domain.DocumentRequirement, len(file.Roles)),
	}
	for name, entries := range file.Statuses {
		status := domain.EmploymentStatus(name)
		if status == domain.EmploymentUnset || !status.Valid() {
			return nil, fmt.Errorf("requirements catalog: unknown employment status %q", name)
		}
		reqs, err := convertEntries(entries)
		if err != nil {
			return nil, fmt.Errorf("requirements catalog: status %s: %w", name, err)
		}
		catalog.statuses[status] = reqs
	}
	for name, entries := range file.Roles {
		role := domain.Role(name)
		if !role.Valid() {
			return nil, fmt.Errorf("requirements catalog: unknown role %q", name)
		}
		reqs, err := convertEntries(entries)
		if err != nil {
			return nil, fmt.Errorf("requirements catalog: role %s: %w", name, err)
		}
		catalog.roles[role] = reqs
	}
	return catalog, nil
}

func convertEntries(entries []requirementEntry) ([]domain.DocumentRequirement, error) {
	out := make([]domain.DocumentRequirement, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.Type == "" {
			return nil, fmt.Errorf("document type is required")
		}
		if _, dup := seen[entry.Type]; dup {
			return nil, fmt.Errorf("duplicate document type %q", entry.Type)
		}
		seen[entry.Type] = struct{}{}

		card := entry.Cardinality
		if card.Multi {
			if card.MinFiles < 0 || card.MaxFiles < 0 {
				return nil, fmt.Errorf("%s: negative file count", entry.Type)
			}
			if card.MaxFiles > 0 && card.MinFiles > card.MaxFiles {
				return nil, fmt.Errorf("%s: min_files %d exceeds max_files %d", entry.Type, card.MinFiles, card.MaxFiles)
			}
		} else {
			card = domain.Cardinality{}
		}

		label := entry.Label
		if label == "" {
			label = entry.Type
		}
		out = append(out, domain.DocumentRequirement{
			Type:        entry.Type,
			Label:       label,
			Required:    entry.Required,
			Cardinality: card,
		})
	}
	return out, nil
}

// Resolve returns the ordered requirements for a party. An unset or unknown
// status yields an empty list so a half-filled party still renders.
func (c *Catalog) Resolve(status domain.EmploymentStatus, role domain.Role) []domain.DocumentRequirement {
	base, ok := c.statuses[status]
	if !ok {
		return []domain.DocumentRequirement{}
	}
	extra := c.roles[role]

	out := make([]domain.DocumentRequirement, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, group := range [][]domain.DocumentRequirement{base, extra} {
		for _, req := range group {
			if _, dup := seen[req.Type]; dup {
				continue
			}
			seen[req.Type] = struct{}{}
			out = append(out, req)
		}
	}
	return out
}

// Lookup finds a single requirement in the resolved list.
func (c *Catalog) Lookup(status domain.EmploymentStatus, role domain.Role, documentType string) (domain.DocumentRequirement, bool) {
	for _, req := range c.Resolve(status, role) {
		if req.Type == documentType {
			return req, true
		}
	}
	return domain.DocumentRequirement{}, false
}
