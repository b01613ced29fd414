package registry

import (
	"errors"
	"fmt"
)

// Code enumerates the failure classes reported by the registry.
type Code uint8

const (
	CodeNotFound Code = iota + 1
	CodeUnauthorized
	CodeClaimed
	CodeExpired
	CodeInvalid
)

// Codes returns every defined error code. Consumers that translate registry
// failures into their own taxonomy iterate this list in tests.
func Codes() []Code {
	return []Code{CodeNotFound, CodeUnauthorized, CodeClaimed, CodeExpired, CodeInvalid}
}

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not_found"
	case CodeUnauthorized:
		return "unauthorized"
	case CodeClaimed:
		return "claimed"
	case CodeExpired:
		return "expired"
	case CodeInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("code(%d)", uint8(c))
	}
}

// Error is returned by every failing registry operation.
type Error struct {
	Code    Code
	AssetID string
	Msg     string
}

func (e *Error) Error() string {
	if e.AssetID == "" {
		return fmt.Sprintf("registry: %s: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("registry: %s: asset %q: %s", e.Code, e.AssetID, e.Msg)
}

// Is lets errors.Is match on the code alone, e.g. errors.Is(err, &Error{Code: CodeClaimed}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.AssetID == "" || t.AssetID == e.AssetID)
}

func newError(code Code, assetID, format string, args ...interface{}) *Error {
	return &Error{Code: code, AssetID: assetID, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the registry code from err, or 0 when err is not a registry
// error.
func CodeOf(err error) Code {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.Code
	}
	return 0
}
