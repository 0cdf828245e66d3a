// src/services/import_service.go
package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/username/flexfolio/src/dedup"
	"github.com/username/flexfolio/src/ledger"
	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/models"
	"github.com/username/flexfolio/src/parsers"
	"github.com/username/flexfolio/src/parsers/flex"
	"github.com/username/flexfolio/src/processors"
	"github.com/username/flexfolio/src/tickers"
	"github.com/username/flexfolio/src/utils"
)

type importServiceImpl struct {
	ledger     ledger.Client
	resolver   *tickers.Resolver
	classifier *processors.Classifier
	db         *sql.DB
}

func NewImportService(ledgerClient ledger.Client, resolver *tickers.Resolver, db *sql.DB) ImportService {
	return &importServiceImpl{
		ledger:     ledgerClient,
		resolver:   resolver,
		classifier: processors.NewClassifier(),
		db:         db,
	}
}

// ImportDocument sniffs the payload format, parses it and runs the
// pipeline.
func (s *importServiceImpl) ImportDocument(ctx context.Context, document []byte, accountGroup string) (*ImportSummary, error) {
	format := parsers.DetectFormat(document)
	parser, err := parsers.GetParser(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	stmt, err := parser.Parse(bytes.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	return s.importStatement(ctx, stmt, accountGroup)
}

// ImportFiles merges several statement files by header union and runs
// the pipeline once over the merged table.
func (s *importServiceImpl) ImportFiles(ctx context.Context, files []flex.File, accountGroup string) (*ImportSummary, error) {
	stmt, err := flex.Merge(files)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	return s.importStatement(ctx, stmt, accountGroup)
}

func (s *importServiceImpl) importStatement(ctx context.Context, stmt *models.Statement, accountGroup string) (*ImportSummary, error) {
	started := time.Now()
	logger.L.Info("Statement import START", "rows", len(stmt.Rows), "accountGroup", accountGroup)

	summary := &ImportSummary{Warnings: stmt.Warnings}

	// The FX and position indices are built over the merged rows before
	// classification converts the exchange-rate rows into transfers.
	rates := processors.BuildRateIndex(stmt.Rows)
	positions := processors.BuildPositionIndex(stmt.Rows)
	requests := processors.TickerRequests(stmt.Rows)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	classification := s.classifier.Classify(stmt.Rows)
	summary.Skipped = classification.Skipped
	for reason, count := range classification.SkipReasons {
		logger.L.Debug("Classifier skipped rows", "reason", reason, "count", count)
	}

	conversion := processors.NewConverter(rates, positions).Convert(classification.Rows)
	summary.Failed += len(conversion.Errors)
	for _, convErr := range conversion.Errors {
		summary.Errors = append(summary.Errors, convErr.Error())
	}
	summary.Warnings = append(summary.Warnings, conversion.Warnings...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := s.resolveTickers(ctx, conversion.Records, requests, summary)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	accountFor, failedAccounts := s.ensureAccounts(ctx, accountGroup, recordCurrencies(records))
	summary.FailedAccounts = failedAccounts

	records, unmatchedFX := processors.SplitConversions(records, accountFor)
	for _, currency := range unmatchedFX {
		summary.Failed++
		summary.Errors = append(summary.Errors, fmt.Sprintf("FX conversion leg in %s has no destination account", currency))
	}

	var assigned []models.ActivityRecord
	for _, record := range records {
		if record.AccountID == "" {
			accountID, ok := accountFor(record.Currency)
			if !ok {
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("no account for currency %s (symbol %s)", record.Currency, record.Symbol))
				continue
			}
			record.AccountID = accountID
		}
		assigned = append(assigned, record)
	}

	toImport := s.deduplicate(ctx, assigned, summary)
	if len(toImport) > 0 {
		if err := s.ledger.ImportActivities(ctx, toImport); err != nil {
			logger.L.Error("Ledger import failed", "records", len(toImport), "error", err)
			summary.Failed += len(toImport)
			summary.Errors = append(summary.Errors, fmt.Sprintf("ledger import failed: %v", err))
		} else {
			summary.Imported = len(toImport)
			s.recordImported(toImport)
		}
	}

	logger.L.Info("Statement import END",
		"imported", summary.Imported, "duplicates", summary.Duplicates,
		"skipped", summary.Skipped, "failed", summary.Failed,
		"duration", time.Since(started))
	return summary, nil
}

// resolveTickers maps statement symbols to canonical trading symbols via
// the cascade, for the symbols that belong to the need-to-resolve set.
func (s *importServiceImpl) resolveTickers(ctx context.Context, records []models.ActivityRecord, requests map[string]models.TickerRequest, summary *ImportSummary) []models.ActivityRecord {
	resolved := make(map[string]string)
	for symbol, request := range requests {
		if !tickers.NeedsResolution(request) {
			continue
		}
		result := s.resolver.Resolve(ctx, request)
		resolved[symbol] = result.Symbol
		if result.Confidence == models.ConfidenceLow {
			summary.Warnings = append(summary.Warnings, models.RowWarning{
				Message: fmt.Sprintf("symbol %s resolved with low confidence (%s), manual follow-up advised", symbol, result.Symbol),
			})
		}
	}
	for i := range records {
		if canonical, ok := resolved[records[i].Symbol]; ok {
			records[i].Symbol = canonical
		}
	}
	return records
}

// ensureAccounts resolves or creates one account per currency under the
// group, using the "{group} - {currency}" naming convention. Creation
// failures land in the returned failed list, never abort the run.
func (s *importServiceImpl) ensureAccounts(ctx context.Context, group string, currencies []string) (func(string) (string, bool), []string) {
	byName := make(map[string]string)
	accounts, err := s.ledger.GetAccounts(ctx)
	if err != nil {
		logger.L.Error("Failed to list ledger accounts", "error", err)
	} else {
		for _, account := range accounts {
			byName[account.Name] = account.ID
		}
	}

	resolvedByCurrency := make(map[string]string, len(currencies))
	var failed []string
	for _, currency := range currencies {
		name := ledger.AccountName(group, currency)
		if id, ok := byName[name]; ok {
			resolvedByCurrency[currency] = id
			continue
		}
		created, err := s.ledger.CreateAccount(ctx, ledger.AccountSpec{
			Name: name, Group: group, Currency: currency,
		})
		if err != nil {
			logger.L.Error("Failed to create ledger account", "name", name, "error", err)
			failed = append(failed, name)
			continue
		}
		resolvedByCurrency[currency] = created.ID
	}

	return func(currency string) (string, bool) {
		id, ok := resolvedByCurrency[currency]
		return id, ok
	}, failed
}

// deduplicate drops candidates already present in the ledger, then
// candidates remembered in the local import mirror.
func (s *importServiceImpl) deduplicate(ctx context.Context, records []models.ActivityRecord, summary *ImportSummary) []models.ActivityRecord {
	engine := dedup.NewEngine(s.ledger.GetActivities)

	byAccount := make(map[string][]models.ActivityRecord)
	var accountIDs []string
	for _, record := range records {
		if _, seen := byAccount[record.AccountID]; !seen {
			accountIDs = append(accountIDs, record.AccountID)
		}
		byAccount[record.AccountID] = append(byAccount[record.AccountID], record)
	}
	sort.Strings(accountIDs)

	var kept []models.ActivityRecord
	for _, accountID := range accountIDs {
		fresh, dropped := engine.Filter(ctx, accountID, byAccount[accountID])
		summary.Duplicates += dropped
		for _, record := range fresh {
			if s.locallyImported(record) {
				summary.Duplicates++
				continue
			}
			kept = append(kept, record)
		}
	}
	return kept
}

func (s *importServiceImpl) locallyImported(record models.ActivityRecord) bool {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM imported_activities WHERE account_id = ? AND hash_id = ?`,
		record.AccountID, recordHash(record)).Scan(&one)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		logger.L.Warn("Local duplicate lookup failed, treating record as new", "error", err)
		return false
	}
	return true
}

// recordImported mirrors the imported hashes locally so re-uploads of
// the same file short-circuit without a ledger round trip. Persistence
// failures here are logged, never propagated.
func (s *importServiceImpl) recordImported(records []models.ActivityRecord) {
	stmt, err := s.db.Prepare(`INSERT OR IGNORE INTO imported_activities (account_id, hash_id) VALUES (?, ?)`)
	if err != nil {
		logger.L.Warn("Failed to prepare import mirror statement", "error", err)
		return
	}
	defer stmt.Close()
	for _, record := range records {
		if _, err := stmt.Exec(record.AccountID, recordHash(record)); err != nil {
			logger.L.Warn("Failed to record imported activity", "error", err)
		}
	}
}

// recordHash reduces a record to a stable hash over its fingerprint
// fields.
func recordHash(record models.ActivityRecord) string {
	input := fmt.Sprintf("%s|%s|%s|%f|%f|%s|%f|%f|%s",
		utils.DayOf(record.Date).Format(utils.DefaultDateFormat),
		record.Symbol, record.Type, record.Quantity, record.UnitPrice,
		record.Currency, record.Fee, record.Amount, record.Comment)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

func recordCurrencies(records []models.ActivityRecord) []string {
	seen := make(map[string]bool)
	var currencies []string
	for _, record := range records {
		if record.Currency != "" && !seen[record.Currency] {
			seen[record.Currency] = true
			currencies = append(currencies, record.Currency)
		}
	}
	sort.Strings(currencies)
	return currencies
}
