// src/parsers/parser.go
package parsers

import (
	"io"

	"github.com/username/flexfolio/src/models"
)

// Parser turns one statement document into the merged row table.
type Parser interface {
	Parse(file io.Reader) (*models.Statement, error)
}
