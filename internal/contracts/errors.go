package contracts

import "errors"

var (
	// ErrNoSigner is returned when a write is attempted without a connected signer.
	ErrNoSigner = errors.New("no signer connected")
	// ErrEventNotFound is returned when an expected event is missing from a receipt.
	ErrEventNotFound = errors.New("event not found in receipt")
)
