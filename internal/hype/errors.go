package hype

import "fmt"

// SetupError is returned by SetState when the stage cannot be wired.
type SetupError struct {
	Reason string
	Err    error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage setup failed: %s: %v", e.Reason, e.Err)
	}
	return "stage setup failed: " + e.Reason
}

func (e *SetupError) Unwrap() error { return e.Err }

// ConfigurationError rejects a stage property change.
type ConfigurationError struct {
	Property string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Property, e.Reason)
}
