package config

import "errors"

// Config validation errors
var (
	ErrMissingBaseURL  = errors.New("config: base_url is required")
	ErrInvalidBaseURL  = errors.New("config: base_url must be an absolute http(s) URL")
	ErrIncompleteAuth  = errors.New("config: auth token and secret must be set together")
	ErrInvalidTimeout  = errors.New("config: http timeout must not be negative")
)
