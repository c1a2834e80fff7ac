package catalog

import "errors"

// Client-facing failure classes. Lower-level causes are wrapped alongside
// these so both can be matched with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrBadRequest      = errors.New("bad request")
	ErrTooLarge        = errors.New("upload too large")
)

// IsClientError reports whether err is caused by the request rather than by
// the service or its dependencies.
func IsClientError(err error) bool {
	for _, target := range []error{ErrUnauthenticated, ErrForbidden, ErrNotFound, ErrConflict, ErrBadRequest, ErrTooLarge} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
