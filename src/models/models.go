package models

import "time"

// RawRow is a single merged statement row: column name to string value,
// plus metadata about where the row came from. Rows are immutable once
// emitted by the section merger.
type RawRow struct {
	Values map[string]string `json:"values"`
	File   string            `json:"file"`
	Line   int               `json:"line"`
}

// Get returns the value of a column, or "" if the column is absent.
func (r RawRow) Get(column string) string {
	return r.Values[column]
}

// RowWarning records a non-fatal per-row problem found while merging or
// converting (short rows, degraded dividend reconstruction, etc.).
type RowWarning struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Statement is the output of the section merger: one table using the
// superset column set across all sections and files.
type Statement struct {
	Columns  []string     `json:"columns"`
	Rows     []RawRow     `json:"rows"`
	Warnings []RowWarning `json:"warnings"`
}

// ActivityKind is the semantic classification of a statement row.
type ActivityKind string

const (
	KindBuy         ActivityKind = "BUY"
	KindSell        ActivityKind = "SELL"
	KindDividend    ActivityKind = "DIVIDEND"
	KindTax         ActivityKind = "TAX"
	KindFee         ActivityKind = "FEE"
	KindInterest    ActivityKind = "INTEREST"
	KindDeposit     ActivityKind = "DEPOSIT"
	KindWithdrawal  ActivityKind = "WITHDRAWAL"
	KindTransferIn  ActivityKind = "TRANSFER_IN"
	KindTransferOut ActivityKind = "TRANSFER_OUT"
)

// IsCashLike reports whether records of this kind follow the cash
// convention (quantity mirrors amount, unit price fixed at 1).
func (k ActivityKind) IsCashLike() bool {
	switch k {
	case KindDividend, KindTax, KindFee, KindInterest, KindDeposit,
		KindWithdrawal, KindTransferIn, KindTransferOut:
		return true
	}
	return false
}

// ClassifiedRow is a RawRow plus its activity kind and any derived
// fields. An FX-conversion input row yields two ClassifiedRows, one per
// currency leg, each carrying a currency/amount override.
type ClassifiedRow struct {
	Row  RawRow
	Kind ActivityKind

	// FX-conversion leg overrides.
	FXPair     string // e.g. "EUR.USD"
	Currency   string
	Amount     float64
	Overridden bool
}

// ActivityRecord is the canonical activity ready for ledger import.
// Amount and currency are never both unset. For trades,
// Quantity*UnitPrice reproduces Amount; for cash-like kinds Quantity
// mirrors Amount and UnitPrice is 1.
type ActivityRecord struct {
	Date      time.Time    `json:"date"`
	Symbol    string       `json:"symbol"`
	Type      ActivityKind `json:"type"`
	Quantity  float64      `json:"quantity"`
	UnitPrice float64      `json:"unitPrice"`
	Currency  string       `json:"currency"`
	Fee       float64      `json:"fee"`
	Amount    float64      `json:"amount"`
	Comment   string       `json:"comment"`
	AccountID string       `json:"accountId,omitempty"` // unset until grouped
}

// FetchConfig is one remote-fetch configuration, persisted as part of a
// JSON array in the key/value store. The CRUD handlers own the
// user-editable fields; the scheduler writes only the fetch bookkeeping
// fields, via claim-then-update.
type FetchConfig struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	QueryID      string    `json:"queryId"`
	AccountGroup string    `json:"accountGroup"`
	AutoFetch    bool      `json:"autoFetch"`
	LastFetch    time.Time `json:"lastFetch,omitempty"`
	LastStatus   string    `json:"lastStatus,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
}

// Fetch status values written to FetchConfig.LastStatus.
const (
	FetchStatusPending = "PENDING"
	FetchStatusSuccess = "SUCCESS"
	FetchStatusError   = "ERROR"
)

// SyncResult is the per-configuration outcome of a scheduled run.
type SyncResult struct {
	ConfigID       string   `json:"configId"`
	ConfigName     string   `json:"configName"`
	Success        bool     `json:"success"`
	Imported       int      `json:"imported"`
	Skipped        int      `json:"skipped"`
	Failed         int      `json:"failed"`
	FailedAccounts []string `json:"failedAccounts,omitempty"`
	Error          string   `json:"error,omitempty"`
}
