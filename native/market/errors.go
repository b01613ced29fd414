package market

import (
	"errors"
	"fmt"

	"nftmarket/native/custody"
	"nftmarket/native/registry"
)

var (
	ErrInvalidBidAmount  = errors.New("market: invalid bid amount")
	ErrUnauthorized      = errors.New("market: unauthorized")
	ErrNotFound          = errors.New("market: not found")
	ErrClaimed           = errors.New("market: asset claimed")
	ErrExpired           = errors.New("market: approval expired")
	ErrInsufficientFunds = errors.New("market: insufficient funds")
	ErrInvalidRequest    = errors.New("market: invalid request")
	ErrStorage           = errors.New("market: storage failure")

	ErrAskNotFound = fmt.Errorf("ask %w", ErrNotFound)
	ErrBidNotFound = fmt.Errorf("bid %w", ErrNotFound)

	errNilState    = errors.New("market engine: state not configured")
	errNilRegistry = errors.New("market engine: registry not configured")
	errNilCustody  = errors.New("market engine: custody not configured")
)

// ErrorKind classifies errors returned by the engine so transport layers can
// branch without string matching.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindInvalidBidAmount
	KindUnauthorized
	KindNotFound
	KindClaimed
	KindExpired
	KindInsufficientFunds
	KindInvalidRequest
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidBidAmount:
		return "InvalidBidAmount"
	case KindUnauthorized:
		return "Unauthorized"
	case KindNotFound:
		return "NotFound"
	case KindClaimed:
		return "Claimed"
	case KindExpired:
		return "Expired"
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindStorage:
		return "Storage"
	default:
		return "Unknown"
	}
}

// KindOf returns the kind of a market error, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidBidAmount):
		return KindInvalidBidAmount
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrClaimed):
		return KindClaimed
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindUnknown
	}
}

// FromRegistryError converts a registry failure into the matching market kind.
// Every registry code has an explicit case; an unmapped code surfaces as a
// storage failure and is caught by TestRegistryCodesAreMapped.
func FromRegistryError(err error) error {
	if err == nil {
		return nil
	}
	var regErr *registry.Error
	if !errors.As(err, &regErr) {
		return fmt.Errorf("%w: registry: %v", ErrStorage, err)
	}
	switch regErr.Code {
	case registry.CodeNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case registry.CodeUnauthorized:
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case registry.CodeClaimed:
		return fmt.Errorf("%w: %v", ErrClaimed, err)
	case registry.CodeExpired:
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case registry.CodeInvalid:
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return fmt.Errorf("%w: unmapped registry code %d: %v", ErrStorage, regErr.Code, err)
}

// FromCustodyError converts a custody failure into the matching market kind.
func FromCustodyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, custody.ErrInsufficientFunds):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case errors.Is(err, custody.ErrInvalidAmount):
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%w: custody: %v", ErrStorage, err)
	}
}
