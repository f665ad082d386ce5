package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/stickynotes/internal/notes"
)

// FormatVersion tags every snapshot written by this package.
const FormatVersion = "1.0"

var (
	errNotesMissing = errors.New("notes field is missing or not an array")
	errNotAnArray   = errors.New("payload is not a JSON array")
)

// Snapshot is a point-in-time capture of the whole notes collection.
type Snapshot struct {
	Version   string       `json:"version"`
	Timestamp int64        `json:"timestamp"`
	Notes     []notes.Note `json:"notes"`
}

// Info describes the stored snapshot without decoding note bodies.
type Info struct {
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
	NoteCount int    `json:"noteCount"`
}

type snapshotEnvelope struct {
	Version   string          `json:"version"`
	Timestamp int64           `json:"timestamp"`
	Notes     json.RawMessage `json:"notes"`
}

func decodeEnvelope(payload string) (snapshotEnvelope, []json.RawMessage, error) {
	var envelope snapshotEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return snapshotEnvelope{}, nil, err
	}
	elements, err := decodeArray(envelope.Notes)
	if err != nil {
		return snapshotEnvelope{}, nil, errNotesMissing
	}
	return envelope, elements, nil
}

// decodeArray splits a JSON array into its raw elements. null is not an array.
func decodeArray(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errNotAnArray
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, err
	}
	return elements, nil
}

func decodeRecords(elements []json.RawMessage) ([]notes.NoteRecord, error) {
	records := make([]notes.NoteRecord, 0, len(elements))
	for index, element := range elements {
		trimmed := bytes.TrimSpace(element)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, fmt.Errorf("element %d is not an object", index)
		}
		var record notes.NoteRecord
		if err := json.Unmarshal(trimmed, &record); err != nil {
			return nil, fmt.Errorf("element %d: %w", index, err)
		}
		records = append(records, record)
	}
	return records, nil
}
