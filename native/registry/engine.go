package registry

import (
	"errors"
	"time"

	"nftmarket/core/events"
	"nftmarket/core/types"
)

var errNilState = errors.New("registry engine: state not configured")

type engineState interface {
	RegistryToken(assetID string) (*Token, bool, error)
	RegistryPutToken(*Token) error
	RegistryMinter() ([20]byte, bool, error)
	RegistryPutMinter([20]byte) error
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Engine owns the ownership records of every minted asset.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a registry engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
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

// SetNowFunc overrides the clock used for approval expiry and mint timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(registryEvent{evt: evt})
}

func (e *Engine) load(assetID string) (*Token, error) {
	if e.state == nil {
		return nil, errNilState
	}
	token, ok, err := e.state.RegistryToken(assetID)
	if err != nil {
		return nil, err
	}
	if !ok || token == nil {
		return nil, newError(CodeNotFound, assetID, "token not minted")
	}
	return token, nil
}

// Minter returns the only account allowed to mint.
func (e *Engine) Minter() ([20]byte, error) {
	if e.state == nil {
		return [20]byte{}, errNilState
	}
	minter, ok, err := e.state.RegistryMinter()
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, newError(CodeNotFound, "", "no minter configured")
	}
	return minter, nil
}

// SetMinter records the minting authority. It can be set once; setting the
// same address again is a no-op and any other address fails with CodeClaimed.
func (e *Engine) SetMinter(minter [20]byte) error {
	if e.state == nil {
		return errNilState
	}
	if minter == ([20]byte{}) {
		return newError(CodeInvalid, "", "minter must not be the zero address")
	}
	current, ok, err := e.state.RegistryMinter()
	if err != nil {
		return err
	}
	if ok {
		if current == minter {
			return nil
		}
		return newError(CodeClaimed, "", "minter already configured")
	}
	if err := e.state.RegistryPutMinter(minter); err != nil {
		return err
	}
	e.emit(NewMinterSetEvent(minter))
	return nil
}

// Mint records a new token owned by token.Owner. Only the configured minter
// may mint; minting an id that already exists fails with CodeClaimed.
func (e *Engine) Mint(minter [20]byte, token *Token) (*Token, error) {
	if e.state == nil {
		return nil, errNilState
	}
	authority, ok, err := e.state.RegistryMinter()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(CodeUnauthorized, "", "no minter configured")
	}
	if authority != minter {
		return nil, newError(CodeUnauthorized, "", "only the minter may mint")
	}
	sanitized, err := SanitizeToken(token)
	if err != nil {
		return nil, err
	}
	if sanitized.Owner == ([20]byte{}) {
		sanitized.Owner = minter
	}
	if _, exists, err := e.state.RegistryToken(sanitized.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, newError(CodeClaimed, sanitized.ID, "token already minted")
	}
	sanitized.Approvals = nil
	sanitized.Locked = false
	sanitized.MintedAt = e.now()
	if err := e.state.RegistryPutToken(sanitized); err != nil {
		return nil, err
	}
	e.emit(NewMintedEvent(minter, sanitized))
	return sanitized.Clone(), nil
}

// Token returns the record for assetID.
func (e *Engine) Token(assetID string) (*Token, error) {
	token, err := e.load(assetID)
	if err != nil {
		return nil, err
	}
	return token.Clone(), nil
}

// OwnerOf returns the current owner of assetID.
func (e *Engine) OwnerOf(assetID string) ([20]byte, error) {
	token, err := e.load(assetID)
	if err != nil {
		return [20]byte{}, err
	}
	return token.Owner, nil
}

// Approve lets spender transfer the token on the owner's behalf until
// expiresAt. An expiry that is already in the past fails with CodeExpired.
func (e *Engine) Approve(owner [20]byte, assetID string, spender [20]byte, expiresAt uint64) error {
	token, err := e.load(assetID)
	if err != nil {
		return err
	}
	if token.Owner != owner {
		return newError(CodeUnauthorized, assetID, "only the owner may approve")
	}
	if spender == ([20]byte{}) {
		return newError(CodeInvalid, assetID, "spender required")
	}
	if expiresAt != 0 && expiresAt <= e.now() {
		return newError(CodeExpired, assetID, "approval expiry %d is not in the future", expiresAt)
	}
	token.setApproval(spender, expiresAt)
	if err := e.state.RegistryPutToken(token); err != nil {
		return err
	}
	e.emit(NewApprovedEvent(token, spender, expiresAt))
	return nil
}

// Revoke removes a spender approval. Revoking an absent approval is a no-op.
func (e *Engine) Revoke(owner [20]byte, assetID string, spender [20]byte) error {
	token, err := e.load(assetID)
	if err != nil {
		return err
	}
	if token.Owner != owner {
		return newError(CodeUnauthorized, assetID, "only the owner may revoke")
	}
	if !token.removeApproval(spender) {
		return nil
	}
	if err := e.state.RegistryPutToken(token); err != nil {
		return err
	}
	e.emit(NewRevokedEvent(token, spender))
	return nil
}

// Lock marks the token as claimed. Claimed tokens cannot be transferred.
func (e *Engine) Lock(owner [20]byte, assetID string) error {
	return e.setLocked(owner, assetID, true)
}

// Unlock clears the claimed flag.
func (e *Engine) Unlock(owner [20]byte, assetID string) error {
	return e.setLocked(owner, assetID, false)
}

func (e *Engine) setLocked(owner [20]byte, assetID string, locked bool) error {
	token, err := e.load(assetID)
	if err != nil {
		return err
	}
	if token.Owner != owner {
		return newError(CodeUnauthorized, assetID, "only the owner may change the lock")
	}
	if token.Locked == locked {
		return nil
	}
	token.Locked = locked
	if err := e.state.RegistryPutToken(token); err != nil {
		return err
	}
	e.emit(NewLockEvent(token))
	return nil
}

func (e *Engine) authorize(token *Token, spender [20]byte) error {
	if token.Locked {
		return newError(CodeClaimed, token.ID, "token is locked")
	}
	if spender == token.Owner {
		return nil
	}
	approval, ok := token.approval(spender)
	if !ok {
		return newError(CodeUnauthorized, token.ID, "spender is neither owner nor approved")
	}
	if approval.ExpiresAt != 0 && approval.ExpiresAt <= e.now() {
		return newError(CodeExpired, token.ID, "approval expired at %d", approval.ExpiresAt)
	}
	return nil
}

// Transfer moves ownership of assetID to `to`. The spender must be the owner
// or hold a live approval. Approvals are cleared on transfer. It returns the
// previous owner.
func (e *Engine) Transfer(spender [20]byte, assetID string, to [20]byte) ([20]byte, error) {
	token, err := e.load(assetID)
	if err != nil {
		return [20]byte{}, err
	}
	if to == ([20]byte{}) {
		return [20]byte{}, newError(CodeInvalid, assetID, "recipient required")
	}
	if err := e.authorize(token, spender); err != nil {
		return [20]byte{}, err
	}
	from := token.Owner
	token.Owner = to
	token.Approvals = nil
	if err := e.state.RegistryPutToken(token); err != nil {
		return [20]byte{}, err
	}
	e.emit(NewTransferredEvent(token, from, spender))
	return from, nil
}
