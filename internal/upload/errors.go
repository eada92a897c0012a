package upload

import (
	"fmt"
	"net/http"
)

// ValidationError reports a rejected submission. No file has been written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
	Status int
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Reason
}

// MissingField reports an absent form field.
func MissingField(field string) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("The %s field is required.", field),
		Status: http.StatusBadRequest,
	}
}

// NotAnImage reports content that is not a supported, decodable image.
func NotAnImage(field string) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("The %s must be an image.", field),
		Status: http.StatusUnsupportedMediaType,
	}
}

// TooLarge reports a file above maxBytes.
func TooLarge(field string, maxBytes int64) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("The %s must not be greater than %d kilobytes.", field, maxBytes/1024),
		Status: http.StatusRequestEntityTooLarge,
	}
}
