package metadata

import "fmt"

// FormatError reports an unexpected result-set shape: wrong field count,
// a NULL in a field that must not be NULL, or a field whose value cannot
// be interpreted. Always fatal, never retried.
type FormatError struct {
	Source   string
	Expected string // field count description, e.g. "2" or "2 or 3"
	Got      int
	nullRow  bool
	field    string
	value    string
}

func (e *FormatError) Error() string {
	switch {
	case e.nullRow:
		return fmt.Sprintf("unexpected NULL value in %s query results", e.Source)
	case e.field != "":
		return fmt.Sprintf("invalid %s value '%s' in %s query results",
			e.field, e.value, e.Source)
	default:
		return fmt.Sprintf("invalid number of values returned from %s: expected %s got %d",
			e.Source, e.Expected, e.Got)
	}
}

func fieldCountError(source, expected string, got int) *FormatError {
	return &FormatError{Source: source, Expected: expected, Got: got}
}

func nullValueError(source string) *FormatError {
	return &FormatError{Source: source, nullRow: true}
}

func badValueError(source, field, value string) *FormatError {
	return &FormatError{Source: source, field: field, value: value}
}

// UnsupportedSchemaError reports a metadata schema version outside the
// compatible range.
type UnsupportedSchemaError struct {
	Version Version
}

func (e *UnsupportedSchemaError) Error() string {
	return fmt.Sprintf("unsupported metadata schema version %s (requires %d.x)",
		e.Version, supportedMajor)
}

// AmbiguousTargetError reports a bootstrap result set naming more than
// one cluster or more than one replicaset.
type AmbiguousTargetError struct {
	Kind  string // "cluster" or "replicaset"
	Names []string
}

func (e *AmbiguousTargetError) Error() string {
	return fmt.Sprintf("bootstrap target is ambiguous: %d %ss found %v; the metadata must reference exactly one",
		len(e.Names), e.Kind, e.Names)
}

// NoClusterError reports an empty bootstrap result set.
type NoClusterError struct{}

func (e *NoClusterError) Error() string {
	return "no cluster defined in the server's metadata"
}
