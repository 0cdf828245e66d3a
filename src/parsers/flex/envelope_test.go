package flex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeParserUnwrapsCSV(t *testing.T) {
	doc := "<FlexStatement status=\"Success\">\n" + tradesSection + "</FlexStatement>"
	stmt, err := NewEnvelopeParser().Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, stmt.Rows, 2)
	assert.Equal(t, "AAPL", stmt.Rows[0].Get("Symbol"))
}

func TestEnvelopeParserEmptyPayload(t *testing.T) {
	doc := `<FlexStatement status="Success">   </FlexStatement>`
	_, err := NewEnvelopeParser().Parse(strings.NewReader(doc))
	assert.ErrorIs(t, err, ErrNoSectionsFound)
}

func TestEnvelopeParserNotXML(t *testing.T) {
	_, err := NewEnvelopeParser().Parse(strings.NewReader("not xml at all"))
	assert.Error(t, err)
}
