// src/dedup/dedup.go
package dedup

import (
	"context"

	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/models"
	"github.com/username/flexfolio/src/utils"
)

// Fingerprint is the reduced projection of an activity record used for
// duplicate detection. Dates are truncated to day granularity; numeric
// fields compare for exact equality as provided, no tolerance banding.
// Fingerprints are never persisted standalone.
type Fingerprint struct {
	Date      string
	Symbol    string
	Type      models.ActivityKind
	Quantity  float64
	UnitPrice float64
	Currency  string
	Fee       float64
	Amount    float64
	Comment   string
}

// FingerprintOf reduces a record to its comparable projection.
func FingerprintOf(record models.ActivityRecord) Fingerprint {
	return Fingerprint{
		Date:      utils.DayOf(record.Date).Format(utils.DefaultDateFormat),
		Symbol:    record.Symbol,
		Type:      record.Type,
		Quantity:  record.Quantity,
		UnitPrice: record.UnitPrice,
		Currency:  record.Currency,
		Fee:       record.Fee,
		Amount:    record.Amount,
		Comment:   record.Comment,
	}
}

// ExistingFetcher returns the records already imported at an account.
type ExistingFetcher func(ctx context.Context, accountID string) ([]models.ActivityRecord, error)

// Engine drops candidates whose fingerprint matches an already imported
// record's fingerprint.
type Engine struct {
	fetchExisting ExistingFetcher
}

func NewEngine(fetchExisting ExistingFetcher) *Engine {
	return &Engine{fetchExisting: fetchExisting}
}

// Filter returns the candidates that are not duplicates at the account,
// plus the number dropped. It never errors: a fingerprint-fetch failure
// degrades to "treat as not a duplicate" so dedup problems never block
// import.
func (e *Engine) Filter(ctx context.Context, accountID string, candidates []models.ActivityRecord) ([]models.ActivityRecord, int) {
	existing, err := e.fetchExisting(ctx, accountID)
	if err != nil {
		logger.L.Warn("Failed to fetch existing activities, treating all candidates as new",
			"accountId", accountID, "candidates", len(candidates), "error", err)
		return candidates, 0
	}

	seen := make(map[Fingerprint]bool, len(existing))
	for _, record := range existing {
		seen[FingerprintOf(record)] = true
	}

	kept := make([]models.ActivityRecord, 0, len(candidates))
	dropped := 0
	for _, candidate := range candidates {
		if seen[FingerprintOf(candidate)] {
			dropped++
			continue
		}
		kept = append(kept, candidate)
	}
	if dropped > 0 {
		logger.L.Info("Dropped duplicate activities", "accountId", accountID, "dropped", dropped)
	}
	return kept, dropped
}
