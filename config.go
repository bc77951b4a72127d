package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// Row-selection strategies.
const (
	SelectionFullTable = "full_table"
	SelectionFirstX    = "first_x"
	SelectionLastX     = "last_x"
)

// RowSelection bounds which rows of a table are transferred. FirstX and
// LastX take a sorted window over SortColumn; ties are broken by the
// natural row order of that column.
type RowSelection struct {
	Strategy   string `toml:"strategy"` // full_table|first_x|last_x
	Limit      int64  `toml:"limit"`
	SortColumn string `toml:"sort_column"`
}

// ColumnMutation maps one column to its anonymization strategy with the
// strategy-specific option bag.
type ColumnMutation struct {
	Column   string `toml:"column"`
	Strategy string `toml:"strategy"` // keep|fake|mask|hash|null|static

	// fake
	Method string   `toml:"method"`
	Args   []string `toml:"args"`

	// mask
	VisibleChars   int    `toml:"visible_chars"`
	MaskChar       string `toml:"mask_char"`
	PreserveFormat bool   `toml:"preserve_format"`

	// hash
	Algorithm string `toml:"algorithm"`
	Salt      string `toml:"salt"`

	// static
	Value string `toml:"value"`
}

// TableOptions holds per-table anonymization, row selection and schema
// reconciliation settings. EnforceColumnTypes allows the replicator to
// alter existing column types instead of only adding new columns.
type TableOptions struct {
	Name               string           `toml:"name"`
	Mutations          []ColumnMutation `toml:"mutations"`
	RowSelection       *RowSelection    `toml:"row_selection"`
	EnforceColumnTypes bool             `toml:"enforce_column_types"`
}

// HooksConfig lists SQL files executed on the target around the data stage.
type HooksConfig struct {
	BeforeData []string `toml:"before_data"`
	AfterData  []string `toml:"after_data"`
}

// AuditConfig configures run signing and export.
type AuditConfig struct {
	Secret     string `toml:"secret"`
	ExportPath string `toml:"export_path"`
}

// CloneConfig is the full TOML-driven cloning configuration.
type CloneConfig struct {
	Source ConnectionConfig `toml:"source"`
	Target ConnectionConfig `toml:"target"`

	ChunkSize                    int  `toml:"chunk_size"`
	Workers                      int  `toml:"workers"`
	DisableForeignKeyConstraints bool `toml:"disable_foreign_key_constraints"`
	KeepUnknownTablesOnTarget    bool `toml:"keep_unknown_tables_on_target"`
	SchemaOnly                   bool `toml:"schema_only"`
	DataOnly                     bool `toml:"data_only"`

	Tables   []TableOptions  `toml:"tables"`
	Hooks    HooksConfig     `toml:"hooks"`
	Audit    AuditConfig     `toml:"audit"`
	Webhooks []WebhookConfig `toml:"webhooks"`

	// configDir is the directory containing the TOML file, used to
	// resolve relative hook and export paths.
	configDir string
}

// TableOptionsFor returns the options for a table, or nil.
func (c *CloneConfig) TableOptionsFor(table string) *TableOptions {
	for i := range c.Tables {
		if c.Tables[i].Name == table {
			return &c.Tables[i]
		}
	}
	return nil
}

// Snapshot renders the configuration as the immutable map stored in the
// audit record. Credentials are excluded.
func (c *CloneConfig) Snapshot() map[string]any {
	tables := make([]any, 0, len(c.Tables))
	for _, t := range c.Tables {
		mutations := make([]any, 0, len(t.Mutations))
		for _, m := range t.Mutations {
			mutations = append(mutations, map[string]any{
				"column":   m.Column,
				"strategy": m.Strategy,
			})
		}
		entry := map[string]any{
			"name":                 t.Name,
			"mutations":            mutations,
			"enforce_column_types": t.EnforceColumnTypes,
		}
		if t.RowSelection != nil {
			entry["row_selection"] = map[string]any{
				"strategy":    t.RowSelection.Strategy,
				"limit":       t.RowSelection.Limit,
				"sort_column": t.RowSelection.SortColumn,
			}
		}
		tables = append(tables, entry)
	}
	return map[string]any{
		"source":                          c.Source.Identity(),
		"target":                          c.Target.Identity(),
		"chunk_size":                      c.ChunkSize,
		"disable_foreign_key_constraints": c.DisableForeignKeyConstraints,
		"keep_unknown_tables_on_target":   c.KeepUnknownTablesOnTarget,
		"schema_only":                     c.SchemaOnly,
		"data_only":                       c.DataOnly,
		"tables":                          tables,
	}
}

// loadConfig reads a TOML config file and returns a CloneConfig with
// defaults applied and every field validated.
func loadConfig(path string) (*CloneConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := CloneConfig{
		ChunkSize:                 1000,
		KeepUnknownTablesOnTarget: true,
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *CloneConfig) validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers()
	}
	if c.SchemaOnly && c.DataOnly {
		return fmt.Errorf("schema_only and data_only are mutually exclusive")
	}

	if err := validateConnection("source", c.Source); err != nil {
		return err
	}
	if err := validateConnection("target", c.Target); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("tables entry is missing a name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate tables entry for %q", t.Name)
		}
		seen[t.Name] = true

		if sel := t.RowSelection; sel != nil {
			switch sel.Strategy {
			case SelectionFullTable, "":
			case SelectionFirstX, SelectionLastX:
				if sel.Limit <= 0 {
					return fmt.Errorf("table %s: row_selection.limit must be positive for %s", t.Name, sel.Strategy)
				}
				if sel.SortColumn == "" {
					return fmt.Errorf("table %s: row_selection.sort_column is required for %s", t.Name, sel.Strategy)
				}
			default:
				return fmt.Errorf("table %s: row_selection.strategy must be one of: full_table, first_x, last_x", t.Name)
			}
		}

		for _, m := range t.Mutations {
			if m.Column == "" {
				return fmt.Errorf("table %s: mutation is missing a column", t.Name)
			}
			switch m.Strategy {
			case MutationKeep, MutationMask, MutationHash, MutationNull, MutationStatic, "":
			case MutationFake:
				if m.Method == "" {
					return fmt.Errorf("table %s, column %s: fake mutation requires a method", t.Name, m.Column)
				}
				if _, ok := fakeGenerators[m.Method]; !ok {
					return fmt.Errorf("table %s, column %s: unknown fake generator %q", t.Name, m.Column, m.Method)
				}
			default:
				return fmt.Errorf("table %s, column %s: strategy must be one of: keep, fake, mask, hash, null, static", t.Name, m.Column)
			}
			if m.Strategy == MutationHash && m.Algorithm != "" && m.Algorithm != "sha256" && m.Algorithm != "sha512" {
				return fmt.Errorf("table %s, column %s: hash algorithm must be sha256 or sha512", t.Name, m.Column)
			}
		}
	}

	for _, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook entry is missing a url")
		}
		switch hook.Event {
		case "", "success", "failure":
		default:
			return fmt.Errorf("webhook %s: event must be success or failure", hook.URL)
		}
	}

	if c.Audit.Secret == "" {
		return fmt.Errorf("audit.secret is required")
	}
	return nil
}

func validateConnection(side string, c ConnectionConfig) error {
	if c.Dialect == "" {
		return fmt.Errorf("%s.dialect is required (mysql, mariadb, pgsql, sqlsrv or sqlite)", side)
	}
	if _, _, err := buildDSN(c); err != nil {
		return fmt.Errorf("%s: %w", side, err)
	}
	if Dialect(c.Dialect) != DialectSQLite {
		if c.Host == "" {
			return fmt.Errorf("%s.host is required", side)
		}
		if c.Database == "" {
			return fmt.Errorf("%s.database is required", side)
		}
	}
	return nil
}

// resolvePath resolves a path relative to the config file directory.
func (c *CloneConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}
