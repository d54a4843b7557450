package multitable

import (
	"errors"
	"fmt"
)

// ErrMissingID is the cause recorded for rows without a primary identifier.
var ErrMissingID = errors.New("missing primary id")

// FieldShapeError reports an element of an embedded list field that is not an
// {id, name} object. The field's contribution for the row is dropped.
type FieldShapeError struct {
	Field  string
	Index  int
	Reason string
}

func (e *FieldShapeError) Error() string {
	return fmt.Sprintf("%s[%d]: %s", e.Field, e.Index, e.Reason)
}

// RowError wraps every failure raised while normalizing one source row.
type RowError struct {
	RecordID string
	Line     int
	Err      error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("error processing row with movie ID '%s': %v", e.RecordID, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
