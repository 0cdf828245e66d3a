package services

import (
	"context"
	"errors"

	"github.com/username/flexfolio/src/models"
	"github.com/username/flexfolio/src/parsers/flex"
)

var ErrParsingFailed = errors.New("statement parsing failed")

// SecretStore is the external key/value store used for the shared API
// token and the fetch configuration list.
type SecretStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// ImportSummary aggregates one pipeline run over one document.
type ImportSummary struct {
	Imported       int                 `json:"imported"`
	Duplicates     int                 `json:"duplicates"`
	Skipped        int                 `json:"skipped"`
	Failed         int                 `json:"failed"`
	FailedAccounts []string            `json:"failedAccounts,omitempty"`
	Warnings       []models.RowWarning `json:"warnings,omitempty"`
	Errors         []string            `json:"errors,omitempty"`
}

// ImportService runs the reconciliation pipeline over a statement
// document and feeds the ledger.
type ImportService interface {
	ImportDocument(ctx context.Context, document []byte, accountGroup string) (*ImportSummary, error)
	ImportFiles(ctx context.Context, files []flex.File, accountGroup string) (*ImportSummary, error)
}

// SyncService drives scheduled statement fetches.
type SyncService interface {
	RunDue(ctx context.Context) ([]models.SyncResult, bool)
	LatestResults() []models.SyncResult
}
