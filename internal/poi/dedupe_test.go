package poi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rec(id, date string) Record {
	return Record{Type: "Feature", ID: id, ExtractionDate: date}
}

func TestDedupe_FirstOccurrenceWins(t *testing.T) {
	in := []Record{
		rec("A", "2024-01-01"),
		rec("B", "2024-01-01"),
		rec("A", "2024-01-02"),
		rec("C", "2024-01-01"),
		rec("B", "2024-01-03"),
	}

	out := Dedupe(in)

	assert.Len(t, out, 3)
	assert.Equal(t, []string{"A", "B", "C"}, ids(out))
	assert.Equal(t, "2024-01-01", out[0].ExtractionDate)
	assert.Equal(t, len(in)-2, len(out))
}

func TestDedupe_Idempotent(t *testing.T) {
	in := []Record{rec("A", "1"), rec("A", "2"), rec("B", "1")}

	once := Dedupe(in)
	assert.Equal(t, once, Dedupe(once))
}

func TestDedupe_NoDuplicates(t *testing.T) {
	in := []Record{rec("A", "1"), rec("B", "1")}
	assert.Equal(t, in, Dedupe(in))
}

func TestDedupe_Empty(t *testing.T) {
	assert.Empty(t, Dedupe(nil))
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
