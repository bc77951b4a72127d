package main

import (
	"fmt"
	"sort"
	"strings"
)

// schemaCompatWarnings reports schema features that may not survive a
// cross-dialect clone intact: index types the target cannot express,
// unsigned integer ranges, and case-insensitive collations whose
// comparison semantics change on the target. Warnings are advisory; the
// clone proceeds regardless.
func schemaCompatWarnings(schema *DatabaseSchema, target Dialect) []string {
	var warnings []string

	for i := range schema.Tables {
		t := &schema.Tables[i]
		for _, idx := range t.Indexes {
			if reason, unsupported := indexUnsupportedReason(idx, target); unsupported {
				warnings = append(warnings, fmt.Sprintf("%s.%s: %s", t.Name, idx.Name, reason))
			}
		}
	}

	if target != DialectMySQL && target != DialectMariaDB {
		var unsigned []string
		for i := range schema.Tables {
			t := &schema.Tables[i]
			for _, col := range t.Columns {
				if col.Unsigned {
					unsigned = append(unsigned, fmt.Sprintf("%s.%s", t.Name, col.Name))
				}
			}
		}
		if len(unsigned) > 0 {
			warnings = append(warnings, fmt.Sprintf(
				"unsigned columns are widened to the next signed type on %s: %s",
				target, strings.Join(unsigned, ", ")))
		}
	}

	if target == DialectPostgres || target == DialectSQLite {
		warnings = append(warnings, collationWarnings(schema, target)...)
	}

	return warnings
}

func indexUnsupportedReason(idx Index, target Dialect) (string, bool) {
	switch idx.Type {
	case IndexFulltext:
		if target == DialectSQLite || target == DialectSQLServer {
			return fmt.Sprintf("fulltext indexes are not supported on %s; index is skipped", target), true
		}
	case IndexSpatial:
		if target == DialectSQLite || target == DialectSQLServer {
			return fmt.Sprintf("spatial indexes are not supported on %s; index is skipped", target), true
		}
	}
	if len(idx.Columns) == 0 {
		return "index has no plain column key-parts", true
	}
	return "", false
}

// collationWarnings flags case-insensitive collations, which become
// case-sensitive comparisons on the target. Unique indexes over such
// columns may admit rows the source rejected.
func collationWarnings(schema *DatabaseSchema, target Dialect) []string {
	ciCounts := make(map[string]int)
	ciUniqueRefs := make(map[string][]string)

	for i := range schema.Tables {
		t := &schema.Tables[i]
		uniqueCols := make(map[string]bool)
		for _, idx := range t.Indexes {
			if idx.Type == IndexPrimary || idx.Type == IndexUnique {
				for _, c := range idx.Columns {
					uniqueCols[c] = true
				}
			}
		}
		for _, col := range t.Columns {
			if col.Collation == "" || !strings.HasSuffix(strings.ToLower(col.Collation), "_ci") {
				continue
			}
			ciCounts[col.Collation]++
			if uniqueCols[col.Name] {
				ciUniqueRefs[col.Collation] = append(ciUniqueRefs[col.Collation],
					fmt.Sprintf("%s.%s", t.Name, col.Name))
			}
		}
	}

	var warnings []string
	for _, coll := range sortedKeys(ciCounts) {
		warnings = append(warnings, fmt.Sprintf(
			"%d column(s) use %s (case-insensitive); %s text comparisons are case-sensitive by default",
			ciCounts[coll], coll, target))
	}
	for _, coll := range sortedKeys(ciUniqueRefs) {
		warnings = append(warnings, fmt.Sprintf(
			"unique index over %s column(s) — uniqueness semantics may differ: %s",
			coll, strings.Join(ciUniqueRefs[coll], ", ")))
	}
	return warnings
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
