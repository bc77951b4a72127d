package main

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// Mutation strategies applied to one column value during transfer.
const (
	MutationKeep   = "keep"
	MutationFake   = "fake"
	MutationMask   = "mask"
	MutationHash   = "hash"
	MutationNull   = "null"
	MutationStatic = "static"
)

const (
	defaultVisibleChars  = 2
	defaultMaskChar      = "*"
	defaultHashAlgorithm = "sha256"
)

var faker = gofakeit.New(0)

// AnonymizeRecord applies the table's per-column mutation strategies to a
// single row. A nil options value passes the record through unchanged.
// The input map is never mutated; unmapped columns are kept as-is.
func AnonymizeRecord(record map[string]any, opts *TableOptions) (map[string]any, error) {
	if opts == nil || len(opts.Mutations) == 0 {
		return record, nil
	}
	out := make(map[string]any, len(record))
	for col, val := range record {
		out[col] = val
	}
	for _, m := range opts.Mutations {
		if _, ok := record[m.Column]; !ok {
			continue
		}
		mutated, err := applyMutation(record[m.Column], m)
		if err != nil {
			return nil, fmt.Errorf("anonymize column %s: %w", m.Column, err)
		}
		out[m.Column] = mutated
	}
	return out, nil
}

func applyMutation(val any, m ColumnMutation) (any, error) {
	switch m.Strategy {
	case MutationKeep, "":
		return val, nil
	case MutationFake:
		return fakeValue(m)
	case MutationMask:
		return maskValue(val, m), nil
	case MutationHash:
		return hashValue(val, m)
	case MutationNull:
		return nil, nil
	case MutationStatic:
		return m.Value, nil
	default:
		return nil, fmt.Errorf("unknown mutation strategy %q", m.Strategy)
	}
}

// stringify renders a row value for masking/hashing.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// maskValue keeps the first N visible characters and replaces the rest
// with the mask character. Null becomes the empty string. With format
// preservation enabled, values containing '@' are treated as email
// addresses: only the local part is masked, the domain stays intact.
func maskValue(val any, m ColumnMutation) string {
	if val == nil {
		return ""
	}
	visible := m.VisibleChars
	if visible <= 0 {
		visible = defaultVisibleChars
	}
	maskChar := m.MaskChar
	if maskChar == "" {
		maskChar = defaultMaskChar
	}

	s := stringify(val)
	if m.PreserveFormat {
		if at := strings.LastIndexByte(s, '@'); at >= 0 {
			return maskRunes(s[:at], visible, maskChar) + s[at:]
		}
	}
	return maskRunes(s, visible, maskChar)
}

func maskRunes(s string, visible int, maskChar string) string {
	runes := []rune(s)
	if len(runes) <= visible {
		return strings.Repeat(maskChar, len(runes))
	}
	return string(runes[:visible]) + strings.Repeat(maskChar, len(runes)-visible)
}

// hashValue returns the hex digest of salt+value. Null becomes the
// empty string without hashing.
func hashValue(val any, m ColumnMutation) (string, error) {
	if val == nil {
		return "", nil
	}
	algorithm := m.Algorithm
	if algorithm == "" {
		algorithm = defaultHashAlgorithm
	}
	payload := []byte(m.Salt + stringify(val))
	switch algorithm {
	case "sha256":
		sum := sha256.Sum256(payload)
		return hex.EncodeToString(sum[:]), nil
	case "sha512":
		sum := sha512.Sum512(payload)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// fakeValue dispatches to a named generator. The result replaces the
// original value unconditionally.
func fakeValue(m ColumnMutation) (any, error) {
	gen, ok := fakeGenerators[m.Method]
	if !ok {
		return nil, fmt.Errorf("unknown fake generator %q", m.Method)
	}
	return gen(m.Args)
}

func intArg(args []string, i, fallback int) int {
	if i < len(args) {
		if n, err := strconv.Atoi(args[i]); err == nil {
			return n
		}
	}
	return fallback
}

var fakeGenerators = map[string]func(args []string) (any, error){
	"name":       func([]string) (any, error) { return faker.Name(), nil },
	"first_name": func([]string) (any, error) { return faker.FirstName(), nil },
	"last_name":  func([]string) (any, error) { return faker.LastName(), nil },
	"email":      func([]string) (any, error) { return faker.Email(), nil },
	"phone":      func([]string) (any, error) { return faker.Phone(), nil },
	"street":     func([]string) (any, error) { return faker.Street(), nil },
	"city":       func([]string) (any, error) { return faker.City(), nil },
	"state":      func([]string) (any, error) { return faker.State(), nil },
	"zip":        func([]string) (any, error) { return faker.Zip(), nil },
	"country":    func([]string) (any, error) { return faker.Country(), nil },
	"company":    func([]string) (any, error) { return faker.Company(), nil },
	"job_title":  func([]string) (any, error) { return faker.JobTitle(), nil },
	"username":   func([]string) (any, error) { return faker.Username(), nil },
	"url":        func([]string) (any, error) { return faker.URL(), nil },
	"domain":     func([]string) (any, error) { return faker.DomainName(), nil },
	"ipv4":       func([]string) (any, error) { return faker.IPv4Address(), nil },
	"ipv6":       func([]string) (any, error) { return faker.IPv6Address(), nil },
	"user_agent": func([]string) (any, error) { return faker.UserAgent(), nil },
	"uuid":       func([]string) (any, error) { return faker.UUID(), nil },
	"word":       func([]string) (any, error) { return faker.Word(), nil },
	"sentence": func(args []string) (any, error) {
		return faker.Sentence(intArg(args, 0, 8)), nil
	},
	"paragraph": func(args []string) (any, error) {
		return faker.Paragraph(1, intArg(args, 0, 3), intArg(args, 1, 10), " "), nil
	},
	"number": func(args []string) (any, error) {
		return faker.Number(intArg(args, 0, 0), intArg(args, 1, 1000000)), nil
	},
	"date": func([]string) (any, error) { return faker.Date(), nil },
}
