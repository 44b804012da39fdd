package ladder

import "fmt"

// FatalError marks an invariant violation or resource-exhaustion condition
// that §7 classifies as non-recoverable: the core does not attempt to
// repair it, it unwinds to the process entrypoint for a clean shutdown and
// restart-from-partial.
type FatalError struct {
	Reason   string
	ClientID int64
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal inconsistency (client_id=%d): %s", e.ClientID, e.Reason)
}

func newFatal(clientID int64, format string, args ...any) *FatalError {
	return &FatalError{ClientID: clientID, Reason: fmt.Sprintf(format, args...)}
}
