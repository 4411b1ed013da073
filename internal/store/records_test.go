package store

import (
	"fmt"
	"testing"

	"github.com/kpipulse/api/internal/model"
)

func testRecord(line string, day int, imputation string) model.Record {
	return model.Record{
		SourceLine: line,
		Date:       fmt.Sprintf("2024-03-%02d", day),
		Month:      3,
		DayNum:     day,
		Week:       10,
		Shift:      "matin",
		Hour:       "08:00",
		Imputation: imputation,
		Fields:     map[string]any{"rendement": 0.92},
	}
}

func TestNaturalKeyDistinguishesKeyFields(t *testing.T) {
	base := testRecord("D", 1, "mean")

	same := testRecord("D", 1, "mean")
	same.Fields = map[string]any{"rendement": 0.5} // measurements don't affect identity
	if base.NaturalKey() != same.NaturalKey() {
		t.Fatal("records with identical key fields must share a natural key")
	}

	variants := []model.Record{
		testRecord("E", 1, "mean"),
		testRecord("D", 2, "mean"),
		testRecord("D", 1, "median"),
	}
	for _, v := range variants {
		if v.NaturalKey() == base.NaturalKey() {
			t.Fatalf("expected distinct key for %+v", v)
		}
	}
}

func TestDedupeBatchFirstOccurrenceWins(t *testing.T) {
	first := testRecord("D", 1, "mean")
	first.Fields["rendement"] = 1.0
	second := testRecord("D", 1, "mean")
	second.Fields["rendement"] = 2.0

	unique, dupes := DedupeBatch([]model.Record{first, second, testRecord("E", 1, "mean")})

	if len(unique) != 2 {
		t.Fatalf("expected 2 unique records, got %d", len(unique))
	}
	if dupes != 1 {
		t.Fatalf("expected 1 duplicate, got %d", dupes)
	}
	if unique[0].Fields["rendement"] != 1.0 {
		t.Fatal("expected first occurrence to survive")
	}
}

func TestDedupeBatchAllUnique(t *testing.T) {
	recs := []model.Record{
		testRecord("D", 1, "mean"),
		testRecord("D", 2, "mean"),
		testRecord("D", 3, "mean"),
	}
	unique, dupes := DedupeBatch(recs)
	if len(unique) != 3 || dupes != 0 {
		t.Fatalf("got %d unique, %d duplicates", len(unique), dupes)
	}
}

func TestChunkRecords(t *testing.T) {
	var recs []model.Record
	for i := 0; i < 25; i++ {
		recs = append(recs, testRecord("D", i, "mean"))
	}

	batches := ChunkRecords(recs, 10)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 10 || len(batches[1]) != 10 || len(batches[2]) != 5 {
		t.Fatalf("unexpected batch sizes: %d/%d/%d", len(batches[0]), len(batches[1]), len(batches[2]))
	}

	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total != len(recs) {
		t.Fatalf("chunking lost records: %d != %d", total, len(recs))
	}
}

func TestChunkRecordsEmptyAndDefaultSize(t *testing.T) {
	if batches := ChunkRecords(nil, 10); batches != nil {
		t.Fatalf("expected no batches for empty input, got %d", len(batches))
	}

	recs := []model.Record{testRecord("D", 1, "mean")}
	batches := ChunkRecords(recs, 0)
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatal("zero size should fall back to the default batch size")
	}
}
