package scanner

import "errors"

// ErrInvalidConfig is matched by every *ConfigError.
var ErrInvalidConfig = errors.New("invalid check configuration")

// ConfigError rejects an override. Check is the canonical name when the check
// is known and the name as written otherwise.
type ConfigError struct {
	Check  string
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Check + " " + e.Reason
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
