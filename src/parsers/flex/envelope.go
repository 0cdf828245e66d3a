// src/parsers/flex/envelope.go
package flex

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/username/flexfolio/src/models"
)

// statementEnvelope is the XML wrapper the remote fetch protocol returns
// around a CSV payload.
type statementEnvelope struct {
	XMLName xml.Name
	Status  string `xml:"status,attr"`
	Data    string `xml:",chardata"`
}

// EnvelopeParser unwraps an XML-wrapped CSV payload and hands the inner
// document to the CSV section merger.
type EnvelopeParser struct{}

func NewEnvelopeParser() *EnvelopeParser { return &EnvelopeParser{} }

func (p *EnvelopeParser) Parse(file io.Reader) (*models.Statement, error) {
	var envelope statementEnvelope
	decoder := xml.NewDecoder(file)
	if err := decoder.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode statement envelope: %w", err)
	}

	payload := strings.TrimSpace(envelope.Data)
	if payload == "" {
		return nil, ErrNoSectionsFound
	}
	return Merge([]File{{Name: "statement.xml", Reader: strings.NewReader(payload)}})
}
