package utils

import "errors"

var (
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorNotAuthenticated is returned by repository operations invoked
	// without a user context. It must propagate to the caller unchanged.
	ErrorNotAuthenticated = errors.New("not authenticated")
)
