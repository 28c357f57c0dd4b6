package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntOr(t *testing.T) {
	tests := []struct {
		name string
		s    string
		def  int
		want int
	}{
		{"valid", "42", 0, 42},
		{"negative", "-7", 0, -7},
		{"empty", "", 99, 99},
		{"whitespace", "  ", 99, 99},
		{"non-numeric", "abc", 10, 10},
		{"float", "3.14", 0, 0},
		{"with spaces", " 123 ", 0, 123},
		{"zero", "0", 99, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseIntOr(tt.s, tt.def))
		})
	}
}

func TestParseInt64Or(t *testing.T) {
	tests := []struct {
		name string
		s    string
		def  int64
		want int64
	}{
		{"valid", "1234567890", 0, 1234567890},
		{"negative", "-100", 0, -100},
		{"empty", "", 99, 99},
		{"non-numeric", "xyz", 42, 42},
		{"large", "9223372036854775807", 0, 9223372036854775807},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseInt64Or(tt.s, tt.def))
		})
	}
}

func TestParseFloat64Or(t *testing.T) {
	tests := []struct {
		name string
		s    string
		def  float64
		want float64
	}{
		{"valid", "3.14", 0, 3.14},
		{"integer", "100", 0, 100},
		{"empty", "", 9.9, 9.9},
		{"currency", "$250,000.00", 0, 250000},
		{"thousands", "1,234,567.89", 0, 1234567.89},
		{"non-numeric", "n/a", 5, 5},
		{"negative", "-42.5", 0, -42.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseFloat64Or(tt.s, tt.def))
		})
	}
}

func TestParseDateOr(t *testing.T) {
	tests := []struct {
		name string
		s    string
		want *time.Time
	}{
		{"us format", "04/15/2021", timePtr(2021, time.April, 15)},
		{"iso format", "2021-02-01", timePtr(2021, time.February, 1)},
		{"empty", "", nil},
		{"garbage", "soon", nil},
		{"partial", "04/2021", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDateOr(tt.s)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got))
		})
	}
}

func timePtr(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestTrimQuotes(t *testing.T) {
	assert.Equal(t, "Acme Corp", trimQuotes(`"Acme Corp"`))
	assert.Equal(t, "Acme Corp", trimQuotes(`  "Acme Corp"  `))
	assert.Equal(t, "plain", trimQuotes("plain"))
	assert.Equal(t, "", trimQuotes(`""`))
}

func TestMapColumns_GetCol(t *testing.T) {
	colIdx := mapColumns([]string{"AwardID", " RecipientName ", "recipientstate"})

	record := []string{"101", "Acme Corp", "CO"}
	assert.Equal(t, "101", getCol(record, colIdx, "awardid"))
	assert.Equal(t, "Acme Corp", getCol(record, colIdx, "RECIPIENTNAME"))
	assert.Equal(t, "CO", getCol(record, colIdx, "recipientstate"))
	assert.Equal(t, "", getCol(record, colIdx, "missing"))

	// Short record: mapped index past the end returns empty.
	assert.Equal(t, "", getCol([]string{"101"}, colIdx, "recipientstate"))
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "clean", sanitizeUTF8("clean"))
	assert.Equal(t, "caf", sanitizeUTF8("caf\xe9")) // Latin-1 é stripped
}
