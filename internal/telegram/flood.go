package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// FloodWaitError signals that telegram asked us to back off for a number of
// seconds before retrying. It is surfaced as a distinguished error so callers
// can drive their retry state machine without string matching.
type FloodWaitError struct {
	Seconds int
}

// Error implements the error interface.
func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("telegram flood wait: retry after %d seconds", e.Seconds)
}

// AsFloodWait extracts the wait duration from an error chain.
func AsFloodWait(err error) (int, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Seconds, true
	}
	return 0, false
}

// floodWaitSeconds checks if err is a FLOOD_WAIT error and returns the wait
// seconds, 0 otherwise.
//
// gotgproto/gotd errors are usually wrapped; matching the error string is the
// most reliable way without deep coupling to the gotd FloodWait definition.
func floodWaitSeconds(err error) int {
	if err == nil {
		return 0
	}

	str := err.Error()
	if !strings.Contains(str, "FLOOD_WAIT_") {
		return 0
	}

	// format is usually "rpc error: code 420: FLOOD_WAIT_15"
	parts := strings.Split(str, "FLOOD_WAIT_")
	if len(parts) < 2 {
		return 0
	}

	var seconds int
	// the number may have a suffix like " (caused by ...)", simple scan
	_, _ = fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &seconds)
	return seconds
}

// wrapFloodWait converts a raw api error into a *FloodWaitError when it is a
// FLOOD_WAIT condition, otherwise returns the error unchanged.
func wrapFloodWait(err error) error {
	if err == nil {
		return nil
	}
	if secs := floodWaitSeconds(err); secs > 0 {
		return &FloodWaitError{Seconds: secs}
	}
	return err
}
