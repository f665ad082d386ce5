package notes

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultColor is applied to notes created without an explicit color.
	DefaultColor = "#fff9c4"
	// DefaultFontSize is applied to notes created without an explicit font size.
	DefaultFontSize = 16
	// DefaultTheme is applied to notes created without an explicit theme.
	DefaultTheme = "default"
)

// Note models a persisted sticky note. Timestamps are epoch milliseconds.
type Note struct {
	ID              int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Content         string `gorm:"column:content;type:text;not null" json:"content"`
	Color           string `gorm:"column:color;not null" json:"color"`
	FontSize        int    `gorm:"column:font_size;not null" json:"fontSize"`
	Theme           string `gorm:"column:theme;not null" json:"theme"`
	CreatedAtMillis int64  `gorm:"column:created_at;not null;index:idx_notes_created_at" json:"createdAt"`
	UpdatedAtMillis int64  `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// ParseNoteID validates raw input and returns a positive note identifier.
func ParseNoteID(rawInput string) (int64, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidNoteID, trimmed)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidNoteID, id)
	}
	return id, nil
}

// NoteFields carries a partial set of caller-editable note fields.
// Nil fields are left untouched on update and defaulted on create.
type NoteFields struct {
	Content  *string `json:"content"`
	Color    *string `json:"color"`
	FontSize *int    `json:"fontSize"`
	Theme    *string `json:"theme"`
}

// IsEmpty reports whether no field is set.
func (fields NoteFields) IsEmpty() bool {
	return fields.Content == nil && fields.Color == nil && fields.FontSize == nil && fields.Theme == nil
}

func (fields NoteFields) applyTo(note *Note) {
	if fields.Content != nil {
		note.Content = *fields.Content
	}
	if fields.Color != nil {
		note.Color = *fields.Color
	}
	if fields.FontSize != nil {
		note.FontSize = *fields.FontSize
	}
	if fields.Theme != nil {
		note.Theme = *fields.Theme
	}
}

// NoteRecord is a loosely shaped note used for bulk loading from snapshots and
// import files. Any id it carries is ignored. FontSize accepts any JSON number
// and is rounded to the nearest integer.
type NoteRecord struct {
	ID              *int64   `json:"id,omitempty"`
	Content         *string  `json:"content,omitempty"`
	Color           *string  `json:"color,omitempty"`
	FontSize        *float64 `json:"fontSize,omitempty"`
	Theme           *string  `json:"theme,omitempty"`
	CreatedAtMillis *int64   `json:"createdAt,omitempty"`
	UpdatedAtMillis *int64   `json:"updatedAt,omitempty"`
}

// Fields returns the editable subset of the record.
func (record NoteRecord) Fields() NoteFields {
	fields := NoteFields{
		Content: record.Content,
		Color:   record.Color,
		Theme:   record.Theme,
	}
	if record.FontSize != nil {
		rounded := int(math.Round(*record.FontSize))
		fields.FontSize = &rounded
	}
	return fields
}

// BulkOptions tunes how records are stamped during bulk loading.
type BulkOptions struct {
	// PreserveTimestamps keeps each record's updatedAt instead of refreshing it.
	PreserveTimestamps bool
}

func newNote(fields NoteFields, nowMillis int64) Note {
	note := Note{
		Content:         "",
		Color:           DefaultColor,
		FontSize:        DefaultFontSize,
		Theme:           DefaultTheme,
		CreatedAtMillis: nowMillis,
		UpdatedAtMillis: nowMillis,
	}
	fields.applyTo(&note)
	return note
}

func noteFromRecord(record NoteRecord, nowMillis int64, options BulkOptions) Note {
	note := newNote(record.Fields(), nowMillis)
	if record.CreatedAtMillis != nil && *record.CreatedAtMillis > 0 {
		note.CreatedAtMillis = *record.CreatedAtMillis
	}
	note.UpdatedAtMillis = nowMillis
	if options.PreserveTimestamps && record.UpdatedAtMillis != nil && *record.UpdatedAtMillis > 0 {
		note.UpdatedAtMillis = *record.UpdatedAtMillis
	}
	if note.UpdatedAtMillis < note.CreatedAtMillis {
		note.UpdatedAtMillis = note.CreatedAtMillis
	}
	return note
}
