package presence

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidGroupName is returned before any I/O when a group name fails validation.
	ErrInvalidGroupName = errors.New("group name not valid")
	// ErrAnonymousUser is returned when a session is created for an unauthenticated identity.
	ErrAnonymousUser = errors.New("presence requires a non-anonymous user")
	// ErrInvalidGroups is returned when a session is created without a usable group list.
	ErrInvalidGroups = errors.New("groups should be a non-empty list of group names")
	// ErrLedgerUnavailable wraps every backing store failure.
	ErrLedgerUnavailable = errors.New("presence ledger unavailable")
)

func invalidGroup(group string) error {
	return fmt.Errorf("%w: %q", ErrInvalidGroupName, group)
}

func unavailable(location string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLedgerUnavailable, location, err)
}

// PartialWriteError reports a multi-location write that stopped part way. Locations in
// Written keep their new entries; nothing is rolled back.
type PartialWriteError struct {
	Written []string
	Pending []string
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("presence write stopped after %d of %d locations (pending: %s): %v",
		len(e.Written), len(e.Written)+len(e.Pending), strings.Join(e.Pending, ", "), e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
