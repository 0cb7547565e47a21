package market

import "errors"

// Error taxonomy for marketplace operations. Every failing check wraps one of
// these sentinels so callers can classify rejections without string matching.
// All failures are terminal for the call; the enclosing group is discarded
// with no partial effects.
var (
	// ErrMalformedRequest covers wrong argument counts or shapes, unknown
	// operation tags, malformed groups, and disallowed redirection fields.
	ErrMalformedRequest = errors.New("market: malformed request")

	// ErrUnauthorized is returned when the caller may not perform the
	// requested privileged operation.
	ErrUnauthorized = errors.New("market: unauthorized caller")

	// ErrInsufficientBalance is returned when a custody or funds check
	// fails.
	ErrInsufficientBalance = errors.New("market: insufficient balance")

	// ErrArithmeticOverflow is returned by guard checks proving that a
	// subsequent multiplication or addition would exceed the unsigned
	// 64-bit width.
	ErrArithmeticOverflow = errors.New("market: arithmetic overflow")

	// ErrArithmeticUnderflow is returned by guard checks proving that a
	// subsequent subtraction would wrap below zero.
	ErrArithmeticUnderflow = errors.New("market: arithmetic underflow")

	// ErrInvalidState is returned when the approval flags or timing
	// preconditions of an operation do not hold.
	ErrInvalidState = errors.New("market: invalid state for operation")

	// ErrInvalidAssetConfig is returned when the traded asset is not
	// prepared for escrow custody (non-zero decimals, not frozen by
	// default, or authorities not held by the marketplace).
	ErrInvalidAssetConfig = errors.New("market: invalid asset configuration")

	// ErrNotInitialized is returned for any operation submitted before the
	// marketplace configuration exists.
	ErrNotInitialized = errors.New("market: not initialized")

	// ErrAlreadyInitialized is returned when initialization is attempted
	// twice.
	ErrAlreadyInitialized = errors.New("market: already initialized")
)
