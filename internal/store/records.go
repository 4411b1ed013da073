package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
)

// DefaultBatchSize bounds one bulk-insert statement.
const DefaultBatchSize = 1000

// InsertResult reports the exact insert/duplicate split of a submission.
// duplicates = totalSubmitted - inserted always holds.
type InsertResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// PartialBatchError reports a batch failure after earlier batches already
// committed. The counts cover everything committed before the failure and
// are not rolled back.
type PartialBatchError struct {
	Inserted   int
	Duplicates int
	Batch      int
	Err        error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("batch %d failed after %d inserts, %d duplicates: %v",
		e.Batch, e.Inserted, e.Duplicates, e.Err)
}

func (e *PartialBatchError) Unwrap() error { return e.Err }

// InsertUnique writes records with insert-only semantics on the natural
// key: existing rows are never overwritten, resubmitting identical data is
// a no-op. Intra-batch duplicates are collapsed first (first occurrence
// wins); the remainder goes to Postgres in bounded batches of
// ON CONFLICT DO NOTHING inserts.
func (s *Store) InsertUnique(ctx context.Context, records []model.Record) (InsertResult, error) {
	if len(records) == 0 {
		return InsertResult{}, nil
	}

	unique, intraDupes := DedupeBatch(records)
	result := InsertResult{Duplicates: intraDupes}

	batches := ChunkRecords(unique, s.batchSize)
	for i, batch := range batches {
		inserted, err := s.insertBatch(ctx, batch)
		result.Inserted += inserted
		if err != nil {
			return result, &PartialBatchError{
				Inserted:   result.Inserted,
				Duplicates: result.Duplicates,
				Batch:      i + 1,
				Err:        err,
			}
		}
		result.Duplicates += len(batch) - inserted
		s.log.Info("record batch committed",
			zap.Int("batch", i+1),
			zap.Int("inserted", inserted),
			zap.Int("duplicates", len(batch)-inserted),
		)
	}

	return result, nil
}

func (s *Store) insertBatch(ctx context.Context, records []model.Record) (int, error) {
	b := &pgx.Batch{}
	for _, rec := range records {
		data, err := json.Marshal(rec.Fields)
		if err != nil {
			return 0, fmt.Errorf("marshal record fields: %w", err)
		}
		b.Queue(`
			INSERT INTO kpi_records (source_line, date_c, mois, date_num, semaine, poste, heure, imputation_method, data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (source_line, date_c, mois, date_num, semaine, poste, heure, imputation_method) DO NOTHING
		`, rec.SourceLine, rec.Date, rec.Month, rec.DayNum, rec.Week, rec.Shift, rec.Hour, rec.Imputation, data)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	inserted := 0
	for range records {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert record: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// DedupeBatch collapses records sharing a natural key to their first
// occurrence and returns the survivors plus the count of collapsed
// duplicates.
func DedupeBatch(records []model.Record) ([]model.Record, int) {
	seen := make(map[string]struct{}, len(records))
	unique := make([]model.Record, 0, len(records))
	duplicates := 0

	for _, rec := range records {
		key := rec.NaturalKey()
		if _, ok := seen[key]; ok {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, rec)
	}
	return unique, duplicates
}

// ChunkRecords splits records into batches of at most size elements.
func ChunkRecords(records []model.Record, size int) [][]model.Record {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches [][]model.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}
