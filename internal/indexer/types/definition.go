package types

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cinephage/cinephage/internal/scoring"
)

// DefinitionFile is the on-disk YAML description of an indexer site.
// Unknown keys are rejected so definition typos surface at load time.
type DefinitionFile struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Language    string `yaml:"language"`
	Type        string `yaml:"type"`
	Protocol    string `yaml:"protocol"`

	Links       []string `yaml:"links"`
	LegacyLinks []string `yaml:"legacylinks"`

	Caps     DefinitionCaps      `yaml:"caps"`
	Settings []DefinitionSetting `yaml:"settings"`
}

// DefinitionCaps describes the search modes and category mappings a site
// supports.
type DefinitionCaps struct {
	CategoryMappings []DefinitionCategory `yaml:"categorymappings"`
	// Modes maps search mode (search, tv-search, movie-search) to its
	// supported parameters (q, imdbid, tmdbid, season, ep, ...).
	Modes map[string][]string `yaml:"modes"`
}

// DefinitionCategory maps a site category to a standard Newznab category.
type DefinitionCategory struct {
	ID      int    `yaml:"id"`
	Cat     string `yaml:"cat"`
	Desc    string `yaml:"desc"`
	Default bool   `yaml:"default"`
}

// DefinitionSetting is a user-configurable field for a site.
type DefinitionSetting struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"`
	Label   string            `yaml:"label"`
	Default string            `yaml:"default"`
	Options map[string]string `yaml:"options"`
}

// ParseDefinition reads and validates one YAML definition. Decoding is
// strict: unknown fields are errors.
func ParseDefinition(r io.Reader) (*DefinitionFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def DefinitionFile
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decoding definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition's required fields and enumerations.
func (d *DefinitionFile) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("definition has no id")
	}
	if d.Name == "" {
		return fmt.Errorf("definition %q has no name", d.ID)
	}
	if len(d.Links) == 0 {
		return fmt.Errorf("definition %q has no links", d.ID)
	}
	switch Privacy(d.Type) {
	case PrivacyPublic, PrivacySemiPrivate, PrivacyPrivate:
	default:
		return fmt.Errorf("definition %q has invalid type %q", d.ID, d.Type)
	}
	switch d.Protocol {
	case "", string(scoring.ProtocolTorrent), string(scoring.ProtocolUsenet):
	default:
		return fmt.Errorf("definition %q has invalid protocol %q", d.ID, d.Protocol)
	}
	for mode := range d.Caps.Modes {
		switch mode {
		case "search", "tv-search", "movie-search":
		default:
			return fmt.Errorf("definition %q has unknown search mode %q", d.ID, mode)
		}
	}
	return nil
}

// ProtocolOrDefault returns the declared protocol, defaulting to torrent.
func (d *DefinitionFile) ProtocolOrDefault() scoring.Protocol {
	if d.Protocol == string(scoring.ProtocolUsenet) {
		return scoring.ProtocolUsenet
	}
	return scoring.ProtocolTorrent
}

// SupportsMode reports whether the definition declares a search mode.
func (d *DefinitionFile) SupportsMode(mode string) bool {
	_, ok := d.Caps.Modes[mode]
	return ok
}

// LoadDefinitions walks a filesystem and parses every .yml/.yaml file.
// A bad file fails the whole load; partial definition sets hide errors.
func LoadDefinitions(fsys fs.FS) (map[string]*DefinitionFile, error) {
	defs := make(map[string]*DefinitionFile)
	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}
		f, err := fsys.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()

		def, err := ParseDefinition(f)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		if _, exists := defs[def.ID]; exists {
			return fmt.Errorf("duplicate definition id %q in %s", def.ID, path)
		}
		defs[def.ID] = def
		return nil
	})
	if err != nil {
		return nil, err
	}
	return defs, nil
}
