package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrMandatoryFieldMissing marks documents that cannot become a Record.
	ErrMandatoryFieldMissing = errors.New("mandatory field missing")
	// ErrFetchFailed marks a document or image fetch that did not succeed.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrSerialization marks a failed Record write.
	ErrSerialization = errors.New("serialization failed")
	// ErrControllerFatal aborts the whole crawl run.
	ErrControllerFatal = errors.New("controller fatal")
	// ErrForeignURL is returned when a URL does not belong to the configured site.
	ErrForeignURL = errors.New("url outside site prefix")
)

// FieldError names the mandatory field that could not be obtained.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMandatoryFieldMissing, e.Field)
}

// Unwrap lets errors.Is match ErrMandatoryFieldMissing.
func (e *FieldError) Unwrap() error {
	return ErrMandatoryFieldMissing
}
