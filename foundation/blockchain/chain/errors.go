package chain

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// Set of error variables for block acceptance.
var (
	ErrInvalidBlock   = database.ErrInvalidBlock
	ErrUnknownParent  = errors.New("unknown parent block")
	ErrDuplicateBlock = errors.New("duplicate block")
	ErrStaleBlock     = errors.New("stale block")
	ErrIntegrity      = errors.New("chain integrity violation")
)

// IntegrityError is returned when the block store breaks one of its own
// invariants, such as a branch that shares no ancestor with the canonical
// chain. It is never the result of a peer sending a bad block.
type IntegrityError struct {
	Hash   string
	Reason string
}

// Error implements the error interface.
func (ie *IntegrityError) Error() string {
	return fmt.Sprintf("%s: blk[%s]: %s", ErrIntegrity, ie.Hash, ie.Reason)
}

// Is makes errors.Is(err, ErrIntegrity) report true.
func (ie *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// IsIntegrityError checks if an error of type IntegrityError exists.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
