// Package custody holds bidder funds in a module vault until a bid settles or
// is withdrawn.
package custody

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"nftmarket/core/events"
	"nftmarket/core/types"
	"nftmarket/crypto"
)

const (
	EventTypeHeld     = "custody.held"
	EventTypeReleased = "custody.released"
	EventTypeCredited = "custody.credited"
)

var (
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	ErrInvalidAmount     = errors.New("custody: invalid amount")
	ErrOverflow          = errors.New("custody: balance overflow")

	errNilState = errors.New("custody engine: state not configured")
)

type engineState interface {
	CustodyBalance(denom string, addr [20]byte) (*big.Int, error)
	CustodySetBalance(denom string, addr [20]byte, amount *big.Int) error
}

type custodyEvent struct {
	evt *types.Event
}

func (e custodyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e custodyEvent) Event() *types.Event { return e.evt }

// Engine moves funds between participant balances and the custody vault.
type Engine struct {
	state   engineState
	emitter events.Emitter
	vault   [20]byte
}

// NewEngine creates a custody engine whose vault is the "custody" module
// address.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		vault:   crypto.ModuleAddress("custody"),
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// VaultAddress returns the account holding escrowed funds.
func (e *Engine) VaultAddress() [20]byte { return e.vault }

// Balance returns the spendable balance of addr in denom.
func (e *Engine) Balance(addr [20]byte, denom string) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	denom, err := normalizeDenom(denom)
	if err != nil {
		return nil, err
	}
	bal, err := e.state.CustodyBalance(denom, addr)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// Credit mints amount into addr's balance. Used by genesis and deposits.
func (e *Engine) Credit(to [20]byte, denom string, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	denom, amt, err := sanitize(denom, amount)
	if err != nil {
		return err
	}
	if err := e.add(denom, to, amt); err != nil {
		return err
	}
	e.emit(newCustodyEvent(EventTypeCredited, to, denom, amt))
	return nil
}

// Hold moves amount from the holder's balance into the vault.
func (e *Engine) Hold(from [20]byte, denom string, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	denom, amt, err := sanitize(denom, amount)
	if err != nil {
		return err
	}
	if err := e.move(denom, from, e.vault, amt); err != nil {
		return err
	}
	e.emit(newCustodyEvent(EventTypeHeld, from, denom, amt))
	return nil
}

// Release moves amount from the vault to the recipient.
func (e *Engine) Release(to [20]byte, denom string, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	denom, amt, err := sanitize(denom, amount)
	if err != nil {
		return err
	}
	if err := e.move(denom, e.vault, to, amt); err != nil {
		return err
	}
	e.emit(newCustodyEvent(EventTypeReleased, to, denom, amt))
	return nil
}

func (e *Engine) move(denom string, from, to [20]byte, amt *uint256.Int) error {
	if from == to {
		return nil
	}
	if err := e.sub(denom, from, amt); err != nil {
		return err
	}
	return e.add(denom, to, amt)
}

func (e *Engine) load(denom string, addr [20]byte) (*uint256.Int, error) {
	bal, err := e.state.CustodyBalance(denom, addr)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(bal)
	if overflow || bal.Sign() < 0 {
		return nil, fmt.Errorf("custody: corrupt balance for %s", denom)
	}
	return out, nil
}

func (e *Engine) add(denom string, addr [20]byte, amt *uint256.Int) error {
	bal, err := e.load(denom, addr)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amt)
	if overflow {
		return ErrOverflow
	}
	return e.state.CustodySetBalance(denom, addr, sum.ToBig())
}

func (e *Engine) sub(denom string, addr [20]byte, amt *uint256.Int) error {
	bal, err := e.load(denom, addr)
	if err != nil {
		return err
	}
	if bal.Lt(amt) {
		return fmt.Errorf("%w: have %s, need %s %s", ErrInsufficientFunds, bal.Dec(), amt.Dec(), denom)
	}
	diff := new(uint256.Int).Sub(bal, amt)
	return e.state.CustodySetBalance(denom, addr, diff.ToBig())
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(custodyEvent{evt: evt})
}

func normalizeDenom(denom string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(denom))
	if normalized == "" {
		return "", fmt.Errorf("%w: denomination required", ErrInvalidAmount)
	}
	return normalized, nil
}

func sanitize(denom string, amount *big.Int) (string, *uint256.Int, error) {
	normalized, err := normalizeDenom(denom)
	if err != nil {
		return "", nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	amt, overflow := uint256.FromBig(amount)
	if overflow {
		return "", nil, fmt.Errorf("%w: amount exceeds 256 bits", ErrInvalidAmount)
	}
	return normalized, amt, nil
}

func newCustodyEvent(eventType string, account [20]byte, denom string, amt *uint256.Int) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"account": crypto.FromBytes20(account).String(),
		"denom":   denom,
		"amount":  amt.Dec(),
	}}
}
