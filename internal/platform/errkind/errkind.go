// Package errkind groups domain errors into the categories transports map on.
package errkind

import (
	"errors"
	"net/http"
)

// Kind is the category of a domain error.
type Kind int

const (
	Unknown Kind = iota
	Validation
	Arithmetic
	State
	Authorization
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Arithmetic:
		return "arithmetic"
	case State:
		return "state"
	case Authorization:
		return "authorization"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the response status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Arithmetic:
		return http.StatusUnprocessableEntity
	case State:
		return http.StatusConflict
	case Authorization:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Table maps sentinel errors to kinds.
type Table map[error]Kind

// Of returns the kind of the first sentinel err matches.
func (t Table) Of(err error) Kind {
	if err == nil {
		return Unknown
	}
	for sentinel, kind := range t {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return Unknown
}

// Classifier reports the kind of an error, Unknown when it does not know.
type Classifier func(err error) Kind

// First returns the first non-Unknown kind across classifiers.
func First(err error, classifiers ...Classifier) Kind {
	for _, classify := range classifiers {
		if classify == nil {
			continue
		}
		if kind := classify(err); kind != Unknown {
			return kind
		}
	}
	return Unknown
}
