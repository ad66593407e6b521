package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

// Layout describes which CSV columns carry the number, series and
// eligibility flag. A negative column means the field is absent.
type Layout struct {
	NumberCol   int
	SeriesCol   int
	EligibleCol int
}

var (
	// LayoutStandard is number,series[,eligible].
	LayoutStandard = Layout{NumberCol: 0, SeriesCol: 1, EligibleCol: 2}
	// LayoutLegacy is the operator export with series in the third column and
	// number in the fourth.
	LayoutLegacy = Layout{NumberCol: 3, SeriesCol: 2, EligibleCol: -1}
)

// LayoutByName resolves a layout flag value.
func LayoutByName(name string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return LayoutStandard, nil
	case "legacy":
		return LayoutLegacy, nil
	default:
		return Layout{}, fmt.Errorf("unknown combination layout %q", name)
	}
}

// Entry is one offered combination.
type Entry struct {
	Number string
	Series string
}

// ImportReport summarises a parsed combination file.
type ImportReport struct {
	Rows       int      `json:"rows"`
	Accepted   int      `json:"accepted"`
	Duplicates int      `json:"duplicates"`
	Ineligible int      `json:"ineligible"`
	Invalid    []string `json:"invalid,omitempty"`
}

// ParseCombinations reads a combination list. Numbers and series are zero
// filled to the lottery widths; duplicates and rows flagged as not eligible
// are dropped; malformed rows are reported and skipped. A leading header row
// is detected and ignored.
func ParseCombinations(r io.Reader, lot lottery.Lottery, layout Layout) ([]Entry, ImportReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		entries []Entry
		report  ImportReport
		seen    = make(map[string]struct{})
		line    int
	)
	numberWidth := lot.NumberWidth()
	seriesWidth := lot.SeriesWidthOrDefault()

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, report, fmt.Errorf("read combinations line %d: %w", line, err)
		}
		if isBlank(record) {
			continue
		}

		number := field(record, layout.NumberCol)
		if line == 1 && !lottery.IsDigits(number) {
			continue
		}
		report.Rows++

		series := field(record, layout.SeriesCol)
		if !eligible(field(record, layout.EligibleCol)) {
			report.Ineligible++
			continue
		}

		number = lottery.PadDigits(number, numberWidth)
		if !lottery.IsDigits(number) || !lot.InRange(number) {
			report.Invalid = append(report.Invalid, fmt.Sprintf("line %d: invalid number %q", line, number))
			continue
		}
		if series != "" {
			series = lottery.PadDigits(series, seriesWidth)
			if !lottery.IsDigits(series) || len(series) != seriesWidth {
				report.Invalid = append(report.Invalid, fmt.Sprintf("line %d: invalid series %q", line, series))
				continue
			}
		} else if lot.RequiresSeries {
			report.Invalid = append(report.Invalid, fmt.Sprintf("line %d: series is required", line))
			continue
		}

		id := number + "-" + series
		if _, dup := seen[id]; dup {
			report.Duplicates++
			continue
		}
		seen[id] = struct{}{}
		entries = append(entries, Entry{Number: number, Series: series})
		report.Accepted++
	}
	return entries, report, nil
}

func field(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func eligible(flag string) bool {
	switch strings.ToLower(flag) {
	case "0", "false", "no", "n":
		return false
	default:
		return true
	}
}
