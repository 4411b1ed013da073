package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Natural-key field names as emitted by the fusion worker. Together they
// uniquely identify one measurement row in the store.
const (
	FieldSourceLine = "source_line"
	FieldDate       = "date_c"
	FieldMonth      = "mois"
	FieldDayNum     = "date_num"
	FieldWeek       = "semaine"
	FieldShift      = "poste"
	FieldHour       = "heure"
	FieldImputation = "imputation_method"
)

// KeyFields lists the natural-key fields in their canonical order.
var KeyFields = []string{
	FieldSourceLine, FieldDate, FieldMonth, FieldDayNum,
	FieldWeek, FieldShift, FieldHour, FieldImputation,
}

// Record is one measurement row produced by the fusion worker. The key
// fields are fixed; everything else the worker emits rides along in Fields
// and is stored as-is.
type Record struct {
	SourceLine string `json:"source_line"`
	Date       string `json:"date_c"`
	Month      int    `json:"mois"`
	DayNum     int    `json:"date_num"`
	Week       int    `json:"semaine"`
	Shift      string `json:"poste"`
	Hour       string `json:"heure"`
	Imputation string `json:"imputation_method"`

	Fields map[string]any `json:"-"`
}

// NaturalKey is the ordered concatenation of the key fields. Records
// sharing a natural key are the same row.
func (r Record) NaturalKey() string {
	return strings.Join([]string{
		r.SourceLine, r.Date,
		fmt.Sprintf("%d", r.Month), fmt.Sprintf("%d", r.DayNum), fmt.Sprintf("%d", r.Week),
		r.Shift, r.Hour, r.Imputation,
	}, "-")
}

// ParseRecord decodes one worker output line into a Record, splitting the
// natural-key fields from the open-ended measurement fields.
func ParseRecord(line []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, err
	}

	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{}, err
	}
	for _, k := range KeyFields {
		delete(raw, k)
	}
	rec.Fields = raw
	return rec, nil
}
