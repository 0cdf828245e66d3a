// src/ledger/client.go
package ledger

import (
	"context"

	"github.com/username/flexfolio/src/models"
)

// Account is a ledger account as exposed by the host application.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Group    string `json:"group,omitempty"`
	Currency string `json:"currency"`
}

// AccountSpec describes an account to create.
type AccountSpec struct {
	Name     string `json:"name"`
	Group    string `json:"group,omitempty"`
	Currency string `json:"currency"`
}

// Client is the host application's accounts and activities API. The
// reconciliation pipeline consumes it; it never owns the data.
type Client interface {
	GetAccounts(ctx context.Context) ([]Account, error)
	CreateAccount(ctx context.Context, spec AccountSpec) (Account, error)
	GetActivities(ctx context.Context, accountID string) ([]models.ActivityRecord, error)
	ImportActivities(ctx context.Context, records []models.ActivityRecord) error
}

// AccountName is the deterministic naming convention for the
// per-currency account of a group.
func AccountName(group, currency string) string {
	return group + " - " + currency
}
