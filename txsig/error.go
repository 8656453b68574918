package txsig

import "fmt"

// ErrorCode identifies a kind of signature encoding error. It supports
// errors.Is, so callers can check a *CanonicalError against a code directly.
type ErrorCode int

// These constants are used to identify a specific CanonicalError.
const (
	// ErrSigTooShort is returned when a signature is shorter than the
	// smallest possible DER signature plus hash type.
	ErrSigTooShort ErrorCode = iota

	// ErrSigTooLong is returned when a signature is longer than the
	// largest possible DER signature plus hash type.
	ErrSigTooLong

	// ErrSigInvalidSeqID is returned when a signature does not start with
	// the ASN.1 sequence ID.
	ErrSigInvalidSeqID

	// ErrSigInvalidDataLen is returned when the sequence length does not
	// match the remaining bytes.
	ErrSigInvalidDataLen

	// ErrSigMissingSTypeID is returned when the ASN.1 type ID for S is
	// missing.
	ErrSigMissingSTypeID

	// ErrSigMissingSLen is returned when the length of S is missing.
	ErrSigMissingSLen

	// ErrSigInvalidSLen is returned when the length of S does not match
	// the remaining bytes.
	ErrSigInvalidSLen

	// ErrSigInvalidRIntID is returned when R is not tagged as an ASN.1
	// integer.
	ErrSigInvalidRIntID

	// ErrSigZeroRLen is returned when R has a length of zero.
	ErrSigZeroRLen

	// ErrSigNegativeR is returned when R is negative.
	ErrSigNegativeR

	// ErrSigTooMuchRPadding is returned when R has a leading zero byte it
	// does not need.
	ErrSigTooMuchRPadding

	// ErrSigInvalidSIntID is returned when S is not tagged as an ASN.1
	// integer.
	ErrSigInvalidSIntID

	// ErrSigZeroSLen is returned when S has a length of zero.
	ErrSigZeroSLen

	// ErrSigNegativeS is returned when S is negative.
	ErrSigNegativeS

	// ErrSigTooMuchSPadding is returned when S has a leading zero byte it
	// does not need.
	ErrSigTooMuchSPadding

	// ErrSigInvalidHashType is returned when the trailing hash type byte
	// is not a defined hash type.
	ErrSigInvalidHashType

	// numErrorCodes is the number of error codes. It MUST be the last
	// entry in the enum.
	numErrorCodes
)

// errorCodeStrings maps ErrorCode values back to their constant names.
var errorCodeStrings = map[ErrorCode]string{
	ErrSigTooShort:        "ErrSigTooShort",
	ErrSigTooLong:         "ErrSigTooLong",
	ErrSigInvalidSeqID:    "ErrSigInvalidSeqID",
	ErrSigInvalidDataLen:  "ErrSigInvalidDataLen",
	ErrSigMissingSTypeID:  "ErrSigMissingSTypeID",
	ErrSigMissingSLen:     "ErrSigMissingSLen",
	ErrSigInvalidSLen:     "ErrSigInvalidSLen",
	ErrSigInvalidRIntID:   "ErrSigInvalidRIntID",
	ErrSigZeroRLen:        "ErrSigZeroRLen",
	ErrSigNegativeR:       "ErrSigNegativeR",
	ErrSigTooMuchRPadding: "ErrSigTooMuchRPadding",
	ErrSigInvalidSIntID:   "ErrSigInvalidSIntID",
	ErrSigZeroSLen:        "ErrSigZeroSLen",
	ErrSigNegativeS:       "ErrSigNegativeS",
	ErrSigTooMuchSPadding: "ErrSigTooMuchSPadding",
	ErrSigInvalidHashType: "ErrSigInvalidHashType",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}

	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error implements the error interface.
func (e ErrorCode) Error() string {
	return e.String()
}

// CanonicalError names the encoding rule a signature violates.
type CanonicalError struct {
	Code        ErrorCode
	Description string
}

// Error implements the error interface.
func (e *CanonicalError) Error() string {
	return e.Description
}

// Unwrap returns the error code so that errors.Is matches on it.
func (e *CanonicalError) Unwrap() error {
	return e.Code
}

// canonicalError creates a CanonicalError given a set of arguments.
func canonicalError(c ErrorCode, desc string) *CanonicalError {
	return &CanonicalError{Code: c, Description: desc}
}
