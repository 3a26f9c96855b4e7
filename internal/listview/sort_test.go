package listview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToggledSort(t *testing.T) {
	t.Parallel()

	state := SortState{Column: SortByCode}

	state = state.toggled(SortByCode)
	assert.Equal(t, SortState{Column: SortByCode, Descending: true}, state, "same column flips direction")

	state = state.toggled(SortByCode)
	assert.Equal(t, SortState{Column: SortByCode, Descending: false}, state)

	state = state.toggled(SortByName)
	assert.Equal(t, SortState{Column: SortByName, Descending: false}, state, "new column resets to ascending")
}

func TestCompareCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b     string
		expected int
	}{
		{"CTL-9", "CTL-10", -1},
		{"CTL-10", "CTL-9", 1},
		{"CTL-000123", "CTL-123", 0},
		{"CTL-1", "RSK-1", -1},
		{"ctl-5", "CTL-5", 0},
		{"CTL-5", "CTL-5a", -1},
		{"", "CTL-1", -1},
		{"CTL-2-10", "CTL-2-9", 1},
	}

	for _, c := range cases {
		assert.Equal(t, c.expected, compareCodes(c.a, c.b), "compareCodes(%q, %q)", c.a, c.b)
	}
}

func TestCompareNamesIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, compareNames("Fraud", "fraud"))
	assert.Negative(t, compareNames("access", "Fraud"))
}

func TestCompareTimesZeroSortsFirst(t *testing.T) {
	t.Parallel()

	early := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Negative(t, compareTimes(time.Time{}, early))
	assert.Positive(t, compareTimes(late, time.Time{}))
	assert.Negative(t, compareTimes(early, late))
	assert.Equal(t, 0, compareTimes(time.Time{}, time.Time{}))
}

func TestDirected(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, directed(-1, false))
	assert.Equal(t, 1, directed(-1, true))
	assert.Equal(t, 0, directed(0, true))
}
