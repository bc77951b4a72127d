package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Audit verification statuses.
const (
	AuditValid    = "valid"
	AuditTampered = "tampered"
	AuditUnsigned = "unsigned"
)

// AuditService deterministically hashes and signs completed runs so that
// any later edit to the stored run or its log stream is detectable.
type AuditService struct {
	secret []byte
}

func NewAuditService(secret string) *AuditService {
	return &AuditService{secret: []byte(secret)}
}

// auditRecord is the canonical byte-for-byte input to hashing. Field
// order is fixed by the struct; map keys are sorted by encoding/json;
// HTML escaping is disabled so the same logical content always yields
// the same bytes.
type auditRecord struct {
	RunID      string         `json:"run_id"`
	Config     map[string]any `json:"config"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at"`
	Status     string         `json:"status"`
	Logs       []auditLogEntry `json:"logs"`
}

type auditLogEntry struct {
	EventType string         `json:"event_type"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

func canonicalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func buildAuditRecord(run *Run) auditRecord {
	rec := auditRecord{
		RunID:      run.ID,
		Config:     run.ConfigSnapshot,
		SourceID:   run.SourceID,
		TargetID:   run.TargetID,
		StartedAt:  canonicalTime(run.StartedAt),
		FinishedAt: canonicalTime(run.FinishedAt),
		Status:     string(run.Status),
		Logs:       []auditLogEntry{},
	}
	for _, e := range run.Log.Entries() {
		rec.Logs = append(rec.Logs, auditLogEntry{
			EventType: e.EventType,
			Level:     e.Level,
			Message:   e.Message,
			Data:      e.Data,
			Timestamp: canonicalTime(e.Timestamp),
		})
	}
	return rec
}

// canonicalJSON serializes with stable key order and without HTML escaping.
func canonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (a *AuditService) computeHash(run *Run) (string, error) {
	payload, err := canonicalJSON(buildAuditRecord(run))
	if err != nil {
		return "", fmt.Errorf("serialize audit record: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func (a *AuditService) computeSignature(hash string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(hash))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignRun hashes the canonical record and signs the hash, storing both
// alongside the signing timestamp on the run.
func (a *AuditService) SignRun(run *Run) error {
	hash, err := a.computeHash(run)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	run.AuditHash = hash
	run.AuditSignature = a.computeSignature(hash)
	run.AuditSignedAt = &now
	return nil
}

// VerificationDetails is the result of re-checking a signed run.
type VerificationDetails struct {
	Valid     bool
	Status    string // valid, tampered, unsigned
	SignedAt  *time.Time
	Signature string
	Hash      string
}

// VerifyRun recomputes the canonical record from the run's current state
// and compares hash and signature in constant time. It never mutates the
// run and never raises on mismatch.
func (a *AuditService) VerifyRun(run *Run) bool {
	return a.GetVerificationDetails(run).Valid
}

// GetVerificationDetails reports whether the stored hash and signature
// still match the run's current contents. An unsigned run verifies false.
func (a *AuditService) GetVerificationDetails(run *Run) VerificationDetails {
	details := VerificationDetails{
		SignedAt:  run.AuditSignedAt,
		Signature: run.AuditSignature,
		Hash:      run.AuditHash,
	}
	if run.AuditSignedAt == nil || run.AuditHash == "" {
		details.Status = AuditUnsigned
		return details
	}

	hash, err := a.computeHash(run)
	if err != nil {
		details.Status = AuditTampered
		return details
	}
	if !hmac.Equal([]byte(hash), []byte(run.AuditHash)) {
		details.Status = AuditTampered
		return details
	}
	expected := a.computeSignature(run.AuditHash)
	if !hmac.Equal([]byte(expected), []byte(run.AuditSignature)) {
		details.Status = AuditTampered
		return details
	}
	details.Valid = true
	details.Status = AuditValid
	return details
}

// AuditExport is the signed record document retrievable by an opaque
// public token. It carries everything needed for independent
// re-verification.
type AuditExport struct {
	PublicToken string          `json:"public_token"`
	RunID       string          `json:"run_id"`
	Config      map[string]any  `json:"config"`
	SourceID    string          `json:"source_id"`
	TargetID    string          `json:"target_id"`
	StartedAt   string          `json:"started_at"`
	FinishedAt  string          `json:"finished_at"`
	Status      string          `json:"status"`
	Logs        []auditLogEntry `json:"logs"`
	Hash        string          `json:"hash"`
	Signature   string          `json:"signature"`
	SignedAt    string          `json:"signed_at"`
}

// BuildExport assembles the export document for a signed run.
func (a *AuditService) BuildExport(run *Run) AuditExport {
	rec := buildAuditRecord(run)
	export := AuditExport{
		PublicToken: run.PublicToken,
		RunID:       rec.RunID,
		Config:      rec.Config,
		SourceID:    rec.SourceID,
		TargetID:    rec.TargetID,
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
		Status:      rec.Status,
		Logs:        rec.Logs,
		Hash:        run.AuditHash,
		Signature:   run.AuditSignature,
	}
	if run.AuditSignedAt != nil {
		export.SignedAt = canonicalTime(*run.AuditSignedAt)
	}
	return export
}

// WriteExport writes the export document as indented JSON.
func (a *AuditService) WriteExport(run *Run, path string) error {
	export := a.BuildExport(run)
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal audit export: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write audit export: %w", err)
	}
	return nil
}

// VerifyExport re-verifies a previously exported document offline by
// rebuilding the canonical record from the exported fields.
func (a *AuditService) VerifyExport(export *AuditExport) VerificationDetails {
	details := VerificationDetails{Signature: export.Signature, Hash: export.Hash}
	if export.SignedAt == "" || export.Hash == "" {
		details.Status = AuditUnsigned
		return details
	}
	rec := auditRecord{
		RunID:      export.RunID,
		Config:     export.Config,
		SourceID:   export.SourceID,
		TargetID:   export.TargetID,
		StartedAt:  export.StartedAt,
		FinishedAt: export.FinishedAt,
		Status:     export.Status,
		Logs:       export.Logs,
	}
	if rec.Logs == nil {
		rec.Logs = []auditLogEntry{}
	}
	payload, err := canonicalJSON(rec)
	if err != nil {
		details.Status = AuditTampered
		return details
	}
	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])
	if !hmac.Equal([]byte(hash), []byte(export.Hash)) {
		details.Status = AuditTampered
		return details
	}
	if !hmac.Equal([]byte(a.computeSignature(export.Hash)), []byte(export.Signature)) {
		details.Status = AuditTampered
		return details
	}
	details.Valid = true
	details.Status = AuditValid
	return details
}
