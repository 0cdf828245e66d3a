// src/parsers/flex/merger.go
package flex

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/models"
)

// Structural document errors. Fatal to the document only.
var (
	ErrNoSectionsFound   = errors.New("no statement sections found")
	ErrNoBaseLayoutFound = errors.New("no section matches the base layout")
)

// headerMarker is the first column name of every section header line in
// the broker's export dialect.
const headerMarker = "ClientAccountID"

type layoutKind int

const (
	layoutUnknown layoutKind = iota
	layoutTrades             // the reference (richest) layout
	layoutCash
	layoutTransfers
)

// Sections are classified by shape-distinguishing columns, never by
// position: section order in the export is not guaranteed.
func layoutOf(header []string) layoutKind {
	has := make(map[string]bool, len(header))
	for _, col := range header {
		has[col] = true
	}
	switch {
	case has["TradePrice"]:
		return layoutTrades
	case has["SettleDate"]:
		return layoutCash
	case has["Direction"]:
		return layoutTransfers
	default:
		return layoutUnknown
	}
}

// renames maps non-base layout column names onto the base layout's names.
var renames = map[layoutKind]map[string]string{
	layoutCash: {
		"SettleDate": "TradeDate",
		"Type":       "ActivityCode",
	},
	layoutTransfers: {
		"Date": "TradeDate",
		"Type": "ActivityCode",
	},
}

type section struct {
	header []string
	kind   layoutKind
	rows   [][]string
	lines  []int
	file   string
}

// File pairs a statement reader with the name used in row metadata.
type File struct {
	Name   string
	Reader io.Reader
}

// CSVParser parses one or more multi-section statement files into a
// single merged table.
type CSVParser struct{}

func NewCSVParser() *CSVParser { return &CSVParser{} }

func (p *CSVParser) Parse(file io.Reader) (*models.Statement, error) {
	return Merge([]File{{Name: "statement.csv", Reader: file}})
}

// Merge reads every file, splits it into header-delimited sections,
// normalizes known layouts onto the base layout's column names and emits
// one row stream over the superset of all columns. Absent columns are
// filled with the empty string.
func Merge(files []File) (*models.Statement, error) {
	var sections []*section
	for _, f := range files {
		fileSections, err := readSections(f)
		if err != nil {
			return nil, err
		}
		sections = append(sections, fileSections...)
	}

	if len(sections) == 0 {
		return nil, ErrNoSectionsFound
	}

	var base *section
	for _, s := range sections {
		if s.kind == layoutTrades {
			base = s
			break
		}
	}
	if base == nil {
		return nil, ErrNoBaseLayoutFound
	}

	stmt := &models.Statement{}

	// Superset header: base layout first, then every new (renamed)
	// column in encounter order.
	seen := make(map[string]bool)
	addColumn := func(col string) {
		if !seen[col] {
			seen[col] = true
			stmt.Columns = append(stmt.Columns, col)
		}
	}
	for _, col := range base.header {
		addColumn(col)
	}
	for _, s := range sections {
		for _, col := range s.header {
			addColumn(renamed(s.kind, col))
		}
	}

	for _, s := range sections {
		if s.kind == layoutUnknown {
			stmt.Warnings = append(stmt.Warnings, models.RowWarning{
				File:    s.file,
				Line:    firstLine(s),
				Message: "section does not match a known layout, columns taken as-is",
			})
		}
		for i, record := range s.rows {
			values := make(map[string]string, len(stmt.Columns))
			for _, col := range stmt.Columns {
				values[col] = ""
			}
			if len(record) < len(s.header) {
				stmt.Warnings = append(stmt.Warnings, models.RowWarning{
					File:    s.file,
					Line:    s.lines[i],
					Message: fmt.Sprintf("row has %d fields, header has %d; missing fields default to empty", len(record), len(s.header)),
				})
			}
			for pos, col := range s.header {
				if pos < len(record) {
					values[renamed(s.kind, col)] = record[pos]
				}
			}
			stmt.Rows = append(stmt.Rows, models.RawRow{
				Values: values,
				File:   s.file,
				Line:   s.lines[i],
			})
		}
	}

	logger.L.Debug("Merged statement sections",
		"sections", len(sections), "columns", len(stmt.Columns),
		"rows", len(stmt.Rows), "warnings", len(stmt.Warnings))
	return stmt, nil
}

func renamed(kind layoutKind, col string) string {
	if m, ok := renames[kind]; ok {
		if to, ok := m[col]; ok {
			return to
		}
	}
	return col
}

func firstLine(s *section) int {
	if len(s.lines) > 0 {
		return s.lines[0]
	}
	return 0
}

// readSections splits one file into header-delimited sections.
func readSections(f File) ([]*section, error) {
	reader := csv.NewReader(f.Reader)
	reader.FieldsPerRecord = -1 // sections have differing widths
	reader.LazyQuotes = true

	var sections []*section
	var current *section
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.L.Warn("Skipping unreadable CSV line", "file", f.Name, "line", line, "error", err)
			continue
		}
		if len(record) == 0 {
			continue
		}
		if record[0] == headerMarker {
			current = &section{header: record, kind: layoutOf(record), file: f.Name}
			sections = append(sections, current)
			continue
		}
		if current == nil {
			// Preamble junk before the first header line is ignored.
			continue
		}
		current.rows = append(current.rows, record)
		current.lines = append(current.lines, line)
	}
	return sections, nil
}
