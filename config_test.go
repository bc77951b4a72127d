package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clone.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
chunk_size = 500
workers = 2

[source]
dialect = "mysql"
host = "db.local"
user = "app"
password = "pw"
database = "shop"

[target]
dialect = "sqlite"
database = "clone.db"

[audit]
secret = "sekrit"

[[tables]]
name = "users"
enforce_column_types = true

[tables.row_selection]
strategy = "first_x"
limit = 100
sort_column = "id"

[[tables.mutations]]
column = "email"
strategy = "mask"
preserve_format = true

[[tables.mutations]]
column = "name"
strategy = "fake"
method = "name"

[[webhooks]]
url = "https://example.com/hook"
event = "success"
secret = "whsec"
`

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ChunkSize != 500 {
		t.Errorf("ChunkSize = %d, want 500", cfg.ChunkSize)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
	if !cfg.KeepUnknownTablesOnTarget {
		t.Error("KeepUnknownTablesOnTarget must default to true")
	}

	opts := cfg.TableOptionsFor("users")
	if opts == nil {
		t.Fatal("users table options missing")
	}
	if !opts.EnforceColumnTypes {
		t.Error("EnforceColumnTypes not parsed")
	}
	if opts.RowSelection == nil || opts.RowSelection.Strategy != SelectionFirstX || opts.RowSelection.Limit != 100 {
		t.Errorf("RowSelection = %+v", opts.RowSelection)
	}
	if len(opts.Mutations) != 2 || opts.Mutations[0].Column != "email" || !opts.Mutations[0].PreserveFormat {
		t.Errorf("Mutations = %+v", opts.Mutations)
	}

	if cfg.TableOptionsFor("unknown") != nil {
		t.Error("unknown table must return nil options")
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Event != "success" {
		t.Errorf("Webhooks = %+v", cfg.Webhooks)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `
[source]
dialect = "sqlite"
database = "src.db"

[target]
dialect = "sqlite"
database = "dst.db"

[audit]
secret = "sekrit"
`))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ChunkSize != 1000 {
		t.Errorf("ChunkSize = %d, want default 1000", cfg.ChunkSize)
	}
	if cfg.Workers < 1 {
		t.Errorf("Workers = %d, want a positive default", cfg.Workers)
	}
}

func TestLoadConfig_UnknownKeysRejected(t *testing.T) {
	_, err := loadConfig(writeConfig(t, `
chunk_sizee = 500

[source]
dialect = "sqlite"
database = "src.db"

[target]
dialect = "sqlite"
database = "dst.db"

[audit]
secret = "sekrit"
`))
	if err == nil || !strings.Contains(err.Error(), "unknown config keys") {
		t.Fatalf("err = %v, want unknown key rejection", err)
	}
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	base := `
[source]
dialect = "sqlite"
database = "src.db"

[target]
dialect = "sqlite"
database = "dst.db"

[audit]
secret = "sekrit"
`
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			"missing audit secret",
			strings.Replace(base, `secret = "sekrit"`, "", 1),
			"audit.secret",
		},
		{
			"schema_only and data_only exclusive",
			"schema_only = true\ndata_only = true\n" + base,
			"mutually exclusive",
		},
		{
			"negative chunk size",
			"chunk_size = -1\n" + base,
			"chunk_size",
		},
		{
			"missing source dialect",
			strings.Replace(base, `dialect = "sqlite"`, "", 1),
			"source.dialect",
		},
		{
			"duplicate table entries",
			base + "\n[[tables]]\nname = \"users\"\n[[tables]]\nname = \"users\"\n",
			"duplicate",
		},
		{
			"row selection without sort column",
			base + "\n[[tables]]\nname = \"users\"\n[tables.row_selection]\nstrategy = \"first_x\"\nlimit = 10\n",
			"sort_column",
		},
		{
			"row selection without limit",
			base + "\n[[tables]]\nname = \"users\"\n[tables.row_selection]\nstrategy = \"last_x\"\nsort_column = \"id\"\n",
			"limit",
		},
		{
			"unknown row selection strategy",
			base + "\n[[tables]]\nname = \"users\"\n[tables.row_selection]\nstrategy = \"random\"\n",
			"strategy",
		},
		{
			"unknown mutation strategy",
			base + "\n[[tables]]\nname = \"users\"\n[[tables.mutations]]\ncolumn = \"email\"\nstrategy = \"scramble\"\n",
			"strategy",
		},
		{
			"fake without method",
			base + "\n[[tables]]\nname = \"users\"\n[[tables.mutations]]\ncolumn = \"email\"\nstrategy = \"fake\"\n",
			"method",
		},
		{
			"unknown fake generator",
			base + "\n[[tables]]\nname = \"users\"\n[[tables.mutations]]\ncolumn = \"email\"\nstrategy = \"fake\"\nmethod = \"quasar\"\n",
			"generator",
		},
		{
			"bad hash algorithm",
			base + "\n[[tables]]\nname = \"users\"\n[[tables.mutations]]\ncolumn = \"email\"\nstrategy = \"hash\"\nalgorithm = \"md5\"\n",
			"algorithm",
		},
		{
			"webhook without url",
			base + "\n[[webhooks]]\nevent = \"success\"\n",
			"url",
		},
		{
			"webhook with bad event",
			base + "\n[[webhooks]]\nurl = \"https://example.com\"\nevent = \"sometimes\"\n",
			"event",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.config))
			if err == nil {
				t.Fatal("config must be rejected")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSnapshotExcludesCredentials(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	snap := cfg.Snapshot()
	if s, ok := snap["source"].(string); !ok || strings.Contains(s, "pw") {
		t.Errorf("snapshot source = %v, must be a credential-free identity", snap["source"])
	}
	if _, ok := snap["tables"]; !ok {
		t.Error("snapshot missing tables")
	}
}
