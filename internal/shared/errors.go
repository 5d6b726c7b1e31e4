package shared

import "fmt"

var (
	// Catalog source errors
	ErrSourceUnavailable = fmt.Errorf("source unavailable")
	ErrAuthFailed        = fmt.Errorf("authentication failed")
	ErrReleaseNotFound   = fmt.Errorf("release not found")
	ErrTimeout           = fmt.Errorf("operation timed out")
	ErrCancelled         = fmt.Errorf("operation cancelled")

	// Cache and job errors
	ErrCacheUnavailable = fmt.Errorf("cache unavailable")
	ErrJobNotFound      = fmt.Errorf("job not found")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Input validation errors
	ErrInvalidInput = fmt.Errorf("invalid input")
)
