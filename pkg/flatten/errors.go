package flatten

import "errors"

var (
	// ErrMissingTable is returned when a required source table was not loaded
	ErrMissingTable = errors.New("missing source table")
	// ErrInvalidGameDate is returned when a slate date is not an 8-digit YYYYMMDD value
	ErrInvalidGameDate = errors.New("invalid game date")
	// ErrInvalidResultDate is returned when a daily result date cannot be parsed
	ErrInvalidResultDate = errors.New("invalid result date")
	// ErrInvalidRunDate is returned when the configured run date is not YYYY-MM-DD
	ErrInvalidRunDate = errors.New("invalid run date")
	// ErrInvalidTimezone is returned when the configured timezone cannot be loaded
	ErrInvalidTimezone = errors.New("invalid timezone")
)
