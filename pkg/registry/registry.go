// Package registry declares the raw source tables and how their headers are named
package registry

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/mlbdfs/pkg/table"
	"gopkg.in/yaml.v3"
)

var (
	// ErrColumnCount is returned when a table's header does not match its declared columns
	ErrColumnCount = errors.New("column count does not match registry")
	// ErrTableNameRequired is returned when a registry entry has no name
	ErrTableNameRequired = errors.New("table name is required")
	// ErrDuplicateTable is returned when a table is declared twice
	ErrDuplicateTable = errors.New("duplicate table")
)

// Table is one raw source as published by the scrapers
type Table struct {
	Name string `yaml:"name"`
	// URL is where the scraper fetches the table from
	URL string `yaml:"url"`
	// Filename is the object basename the table is stored under, without .csv
	Filename string `yaml:"filename"`
	// Columns renames the header positionally when set
	Columns []string `yaml:"columns"`
}

// Config lists the registered tables
type Config struct {
	Path   string  `yaml:"path"`
	Tables []Table `yaml:"tables"`
}

// Validate checks names are present and unique
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Tables))
	for i, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("%w: entry %d", ErrTableNameRequired, i)
		}

		if _, ok := seen[t.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTable, t.Name)
		}
		seen[t.Name] = struct{}{}
	}

	return nil
}

// Registry resolves stored objects to registered tables
type Registry struct {
	byFilename map[string]Table
	tables     []Table
}

// New builds a registry from inline tables plus those in the file at cfg.Path
func New(cfg *Config) (*Registry, error) {
	tables := append([]Table(nil), cfg.Tables...)

	if cfg.Path != "" {
		fromFile, err := LoadFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		tables = append(tables, fromFile...)
	}

	merged := &Config{Tables: tables}
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		byFilename: make(map[string]Table, len(tables)),
		tables:     tables,
	}

	for _, t := range tables {
		filename := t.Filename
		if filename == "" {
			filename = t.Name
		}
		r.byFilename[filename] = t
	}

	return r, nil
}

// LoadFile reads a YAML registry file
func LoadFile(path string) ([]Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set registry defaults: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}

	return cfg.Tables, nil
}

// Tables returns the registered tables sorted by name
func (r *Registry) Tables() []Table {
	out := append([]Table(nil), r.tables...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// Resolve maps an object basename to the table name it loads as. Unregistered
// files load under their own name.
func (r *Registry) Resolve(filename string) (Table, bool) {
	t, ok := r.byFilename[filename]
	if !ok {
		return Table{Name: filename, Filename: filename}, false
	}

	return t, true
}

// Apply renames the header of a loaded table to the declared columns
func (t Table) Apply(loaded *table.Table) (*table.Table, error) {
	named := loaded.WithName(t.Name)
	if len(t.Columns) == 0 {
		return named, nil
	}

	current := named.Columns()
	if len(current) != len(t.Columns) {
		return nil, fmt.Errorf("%w: table %s has %d columns, registry declares %d", ErrColumnCount, t.Name, len(current), len(t.Columns))
	}

	rows := make([]table.Row, named.Len())
	for i := range rows {
		rows[i] = named.Row(i).Values()
	}

	return table.New(t.Name, t.Columns, rows)
}
