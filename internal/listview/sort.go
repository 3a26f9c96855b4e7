package listview

import (
	"strings"
	"time"
)

// SortColumn names a sortable table column.
type SortColumn string

const (
	SortByCode      SortColumn = "code"
	SortByName      SortColumn = "name"
	SortByScore     SortColumn = "score"
	SortByStatus    SortColumn = "status"
	SortByUpdatedAt SortColumn = "updatedAt"
)

// SortState is the single-column sort of a table. Clicking the active column
// flips the direction; clicking a new column starts ascending.
type SortState struct {
	Column     SortColumn
	Descending bool
}

func (s SortState) toggled(column SortColumn) SortState {
	if s.Column == column {
		return SortState{Column: column, Descending: !s.Descending}
	}
	return SortState{Column: column}
}

// compareCodes orders codes like "CTL-000123" by their alphabetic prefix
// first, then numerically by the digit run, so "R-9" sorts before "R-10".
// Plain lexicographic compare would interleave them wrongly.
func compareCodes(a, b string) int {
	for a != "" && b != "" {
		aDigits, aRest := leadingDigits(a)
		bDigits, bRest := leadingDigits(b)

		if aDigits != "" && bDigits != "" {
			if cmp := compareDigitRuns(aDigits, bDigits); cmp != 0 {
				return cmp
			}
			a, b = aRest, bRest
			continue
		}

		aLower := lowerByte(a[0])
		bLower := lowerByte(b[0])
		if aLower != bLower {
			if aLower < bLower {
				return -1
			}
			return 1
		}
		a, b = a[1:], b[1:]
	}

	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	return 1
}

func leadingDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}

// compareDigitRuns compares two non-empty digit strings numerically without
// parsing, so arbitrarily long runs cannot overflow.
func compareDigitRuns(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func lowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func compareNames(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// compareTimes orders chronologically with unset dates first.
func compareTimes(a, b time.Time) int {
	if a.IsZero() && b.IsZero() {
		return 0
	}
	if a.IsZero() {
		return -1
	}
	if b.IsZero() {
		return 1
	}
	return a.Compare(b)
}

func compareFloats(a, b float64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func directed(cmp int, descending bool) int {
	if descending {
		return -cmp
	}
	return cmp
}
