package entities

// ErrorKind classifies a driver error so the correction pipeline can pick a strategy.
type ErrorKind string

const (
	ErrorKindSyntax           ErrorKind = "SYNTAX"
	ErrorKindTableNotFound    ErrorKind = "TABLE_NOT_FOUND"
	ErrorKindColumnNotFound   ErrorKind = "COLUMN_NOT_FOUND"
	ErrorKindTypeMismatch     ErrorKind = "TYPE_MISMATCH"
	ErrorKindPermissionDenied ErrorKind = "PERMISSION_DENIED"
	ErrorKindTimeout          ErrorKind = "TIMEOUT"
	ErrorKindUnknown          ErrorKind = "UNKNOWN"
)

// AllErrorKinds returns every kind in classification priority order.
func AllErrorKinds() []ErrorKind {
	return []ErrorKind{
		ErrorKindPermissionDenied,
		ErrorKindTimeout,
		ErrorKindTableNotFound,
		ErrorKindColumnNotFound,
		ErrorKindTypeMismatch,
		ErrorKindSyntax,
		ErrorKindUnknown,
	}
}

// IsValid reports whether k is one of the known kinds.
func (k ErrorKind) IsValid() bool {
	for _, kind := range AllErrorKinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// IsNamingError reports whether the kind refers to a missing table or column.
func (k ErrorKind) IsNamingError() bool {
	return k == ErrorKindTableNotFound || k == ErrorKindColumnNotFound
}
