package analysis

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Accepted header synonyms per logical field, in resolution order.
var (
	testNameAliases = []string{"esame", "test", "test_name", "exam"}
	valueAliases    = []string{"valore", "value"}
	unitAliases     = []string{"unita", "unit"}
)

// headerLayout maps logical fields to column indexes, resolved once from
// the header row rather than per data row.
type headerLayout struct {
	testName int
	value    int
	unit     int
}

// resolveHeader builds the layout from the header record. The test-name and
// value columns are required; the unit column is optional (-1 when absent).
func resolveHeader(header []string) (*headerLayout, error) {
	index := func(aliases []string) int {
		for _, alias := range aliases {
			for i, col := range header {
				if strings.EqualFold(strings.TrimSpace(col), alias) {
					return i
				}
			}
		}
		return -1
	}

	l := &headerLayout{
		testName: index(testNameAliases),
		value:    index(valueAliases),
		unit:     index(unitAliases),
	}
	if l.testName < 0 {
		return nil, fmt.Errorf("header has no test-name column (accepted: %s)", strings.Join(testNameAliases, ", "))
	}
	if l.value < 0 {
		return nil, fmt.Errorf("header has no value column (accepted: %s)", strings.Join(valueAliases, ", "))
	}
	return l, nil
}

func (l *headerLayout) field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parseRow converts one data record into a Measurement. ok is false for a
// skip: empty test name or a value that does not parse to a finite number.
func (l *headerLayout) parseRow(record []string) (Measurement, bool) {
	name := l.field(record, l.testName)
	if name == "" {
		return Measurement{}, false
	}

	value, err := parseDecimal(l.field(record, l.value))
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return Measurement{}, false
	}

	return Measurement{
		TestName: name,
		Value:    value,
		Unit:     l.field(record, l.unit),
	}, true
}

// parseDecimal accepts both dot and comma decimal separators.
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}
