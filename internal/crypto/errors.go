package crypto

import "errors"

// ErrInvalidEnvelope indicates a malformed envelope string (wrong shape, bad
// hex, wrong component length). ErrTamperDetected indicates a
// well-formed envelope whose authentication tag did not verify. Callers that
// need to distinguish "config fault" from "ciphertext fault" for logging may
// use errors.Is against these; the wire-level response must not, per §4.2.
var (
	ErrInvalidEnvelope = errors.New("invalid credential envelope")
	ErrTamperDetected  = errors.New("credential envelope failed authentication")
)
