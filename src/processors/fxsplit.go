// src/processors/fxsplit.go
package processors

import (
	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/models"
)

// SplitConversions is the post-conversion pass over FX conversion legs.
// Each transfer leg whose symbol is exactly two 3-letter uppercase
// currency codes separated by a dot becomes a withdrawal or deposit
// against the account matching its currency. Anything else (crypto
// pairs, ambiguous codes) passes through untouched. Zero-amount legs
// still split: the ledger needs both legs recorded for audit.
//
// accountFor resolves a currency to its destination account id. Legs
// whose currency has no account are excluded and their currencies
// returned.
func SplitConversions(records []models.ActivityRecord, accountFor func(currency string) (string, bool)) ([]models.ActivityRecord, []string) {
	out := make([]models.ActivityRecord, 0, len(records))
	var unmatched []string
	seenUnmatched := make(map[string]bool)

	for _, record := range records {
		isFXLeg := (record.Type == models.KindTransferIn || record.Type == models.KindTransferOut) &&
			fxPairRe.MatchString(record.Symbol)
		if !isFXLeg {
			out = append(out, record)
			continue
		}

		accountID, ok := accountFor(record.Currency)
		if !ok {
			logger.L.Warn("FX conversion leg has no destination account", "currency", record.Currency, "symbol", record.Symbol)
			if !seenUnmatched[record.Currency] {
				seenUnmatched[record.Currency] = true
				unmatched = append(unmatched, record.Currency)
			}
			continue
		}

		if record.Type == models.KindTransferIn {
			record.Type = models.KindDeposit
		} else {
			record.Type = models.KindWithdrawal
		}
		record.AccountID = accountID
		out = append(out, record)
	}
	return out, unmatched
}
