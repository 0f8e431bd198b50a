package database

import "fmt"

// ErrorKind classifies a failed statement.
type ErrorKind int

const (
	// KindOther covers every failure without a more specific kind.
	KindOther ErrorKind = iota
	// KindColumnNotFound means the statement referenced a column the table does not have.
	KindColumnNotFound
	// KindTableNotFound means the statement referenced a missing table.
	KindTableNotFound
	// KindSyntax means the statement did not parse.
	KindSyntax
	// KindTypeMismatch means a value could not be converted or compared.
	KindTypeMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindColumnNotFound:
		return "column_not_found"
	case KindTableNotFound:
		return "table_not_found"
	case KindSyntax:
		return "syntax_error"
	case KindTypeMismatch:
		return "type_mismatch"
	default:
		return "other"
	}
}

// EngineError is a driver error tagged with its kind.
type EngineError struct {
	Kind ErrorKind
	Err  error
}

func (e *EngineError) Error() string {
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Classify tags err using the dialect's rules. A nil error stays nil and an
// EngineError is returned unchanged.
func Classify(d Dialect, err error) *EngineError {
	if err == nil {
		return nil
	}
	if ee, ok := err.(*EngineError); ok {
		return ee
	}
	return &EngineError{Kind: d.Classify(err), Err: err}
}

// ColumnNotFound builds the error a lenient engine would have raised for name.
func ColumnNotFound(name string) *EngineError {
	return &EngineError{
		Kind: KindColumnNotFound,
		Err:  fmt.Errorf("no such column: %s", name),
	}
}
