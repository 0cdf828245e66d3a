// src/parsers/factory.go
package parsers

import (
	"bytes"
	"fmt"

	"github.com/username/flexfolio/src/parsers/flex"
)

func GetParser(format string) (Parser, error) {
	switch format {
	case "csv":
		return flex.NewCSVParser(), nil
	case "xml":
		return flex.NewEnvelopeParser(), nil
	default:
		return nil, fmt.Errorf("no parser available for format: %s", format)
	}
}

// DetectFormat sniffs whether a payload is an XML envelope or plain CSV.
func DetectFormat(data []byte) string {
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("<")) {
		return "xml"
	}
	return "csv"
}
