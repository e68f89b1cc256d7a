package entities

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FeatureCount is the width of the row the model is trained on.
const FeatureCount = 30

// RequiredColumns is the column order of the model input.
var RequiredColumns = [FeatureCount]string{
	"Time", "V1", "V2", "V3", "V4", "V5", "V6", "V7", "V8", "V9", "V10",
	"V11", "V12", "V13", "V14", "V15", "V16", "V17", "V18", "V19", "V20",
	"V21", "V22", "V23", "V24", "V25", "V26", "V27", "V28", "Amount",
}

// FeatureRecord is one transaction projected onto RequiredColumns.
type FeatureRecord [FeatureCount]float64

// Row returns the record as a slice in column order.
func (r FeatureRecord) Row() []float64 {
	row := make([]float64, FeatureCount)
	copy(row, r[:])
	return row
}

// Map returns the record keyed by column name.
func (r FeatureRecord) Map() map[string]float64 {
	m := make(map[string]float64, FeatureCount)
	for i, name := range RequiredColumns {
		m[name] = r[i]
	}
	return m
}

// ParseFeatureRecord validates a raw JSON document and projects it onto
// RequiredColumns. Unknown keys are ignored.
func ParseFeatureRecord(data []byte) (FeatureRecord, error) {
	trimmed := []byte(strings.TrimSpace(string(data)))
	if len(trimmed) == 0 {
		return FeatureRecord{}, ErrInputNotProvided
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		var doc interface{}
		if json.Unmarshal(trimmed, &doc) == nil && isEmptyValue(doc) {
			return FeatureRecord{}, ErrInputNotProvided
		}
		return FeatureRecord{}, &MalformedInputError{Reason: err.Error()}
	}

	return RecordFromFields(fields)
}

// isEmptyValue reports whether a decoded JSON document carries no data:
// null, false, 0, "" or an empty array.
func isEmptyValue(doc interface{}) bool {
	switch v := doc.(type) {
	case nil:
		return true
	case bool:
		return !v
	case float64:
		return v == 0
	case string:
		return v == ""
	case []interface{}:
		return len(v) == 0
	default:
		return false
	}
}

// RecordFromFields does the column checks of ParseFeatureRecord on an already
// decoded object.
func RecordFromFields(fields map[string]json.RawMessage) (FeatureRecord, error) {
	if len(fields) == 0 {
		return FeatureRecord{}, ErrInputNotProvided
	}

	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return FeatureRecord{}, &MissingColumnsError{Missing: missing}
	}

	var record FeatureRecord
	for i, name := range RequiredColumns {
		v, err := parseNumber(fields[name])
		if err != nil {
			return FeatureRecord{}, &InvalidValueError{Column: name}
		}
		record[i] = v
	}

	return record, nil
}

// parseNumber accepts finite JSON numbers and strings holding one.
func parseNumber(raw json.RawMessage) (float64, error) {
	var (
		v   float64
		err error
		n   json.Number
	)

	if err = json.Unmarshal(raw, &n); err == nil {
		v, err = n.Float64()
	} else {
		var s string
		if err = json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
	}

	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Errorf("non-finite value %v", v)
	}

	return v, nil
}
