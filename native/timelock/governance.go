package timelock

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	coreerrors "xaumdca/core/errors"
	"xaumdca/core/events"
	"xaumdca/core/types"
)

var (
	ErrNotOwner            = fmt.Errorf("governance: %w: caller is not the owner", coreerrors.ErrUnauthorized)
	ErrNotRevoker          = fmt.Errorf("governance: %w: caller is not the revoker", coreerrors.ErrUnauthorized)
	ErrRevokerNotSet       = fmt.Errorf("governance: %w: revoker not configured", coreerrors.ErrUnauthorized)
	ErrZeroOwner           = fmt.Errorf("governance: %w: owner must not be zero", coreerrors.ErrInvalidAmount)
	ErrUpgradeMismatch     = fmt.Errorf("governance: %w: implementation does not match pending upgrade", coreerrors.ErrMismatch)
	ErrUpgradeDataMismatch = fmt.Errorf("governance: %w: upgrade data does not match commitment", coreerrors.ErrMismatch)
	ErrUpgradeNotDue       = fmt.Errorf("governance: %w: upgrade not yet effective", coreerrors.ErrTooEarly)
	ErrZeroImplementation  = fmt.Errorf("governance: %w: implementation must not be zero", coreerrors.ErrMismatch)
)

// UpgradeState tracks the active implementation and a pending replacement.
type UpgradeState struct {
	Implementation common.Address
	Pending        common.Address
	DataHash       common.Hash
	EffectiveAt    uint64
}

// Governance holds the single owner of a module together with the two
// fields every module governs: the delay and the revoker. Other fields are
// created with NewField and driven through Request and Revoke.
type Governance struct {
	module  string
	store   Store
	emitter events.Emitter

	Delay   *Field[uint64]
	Revoker *Field[common.Address]
}

// New returns the governance of module persisted in store.
func New(store Store, module string) *Governance {
	return &Governance{
		module:  module,
		store:   store,
		emitter: events.NoopEmitter{},
		Delay:   NewField[uint64](store, module, "delay", func(v uint64) string { return strconv.FormatUint(v, 10) }),
		Revoker: NewField[common.Address](store, module, "revoker", addr),
	}
}

// SetEmitter configures the event emitter. Passing nil discards events.
func (g *Governance) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

func (g *Governance) emit(evt *types.Event) {
	if g.emitter != nil && evt != nil {
		g.emitter.Emit(events.Wrap(evt))
	}
}

func (g *Governance) ownerKey() []byte   { return []byte("gov/" + g.module + "/owner") }
func (g *Governance) upgradeKey() []byte { return []byte("gov/" + g.module + "/upgrade") }

// Init seeds owner, delay and revoker unless they already exist.
func (g *Governance) Init(owner common.Address, delay uint64, revoker common.Address) error {
	if owner == (common.Address{}) {
		return ErrZeroOwner
	}
	ok, err := g.store.KVGet(g.ownerKey(), nil)
	if err != nil {
		return err
	}
	if !ok {
		if err := g.store.KVPut(g.ownerKey(), owner); err != nil {
			return err
		}
	}
	if err := g.Delay.Init(delay); err != nil {
		return err
	}
	return g.Revoker.Init(revoker)
}

// Owner returns the module owner.
func (g *Governance) Owner() (common.Address, error) {
	var owner common.Address
	if _, err := g.store.KVGet(g.ownerKey(), &owner); err != nil {
		return owner, err
	}
	return owner, nil
}

// OnlyOwner fails unless caller is the owner.
func (g *Governance) OnlyOwner(caller common.Address) error {
	owner, err := g.Owner()
	if err != nil {
		return err
	}
	if owner == (common.Address{}) || caller != owner {
		return ErrNotOwner
	}
	return nil
}

// TransferOwnership hands the module to next immediately.
func (g *Governance) TransferOwnership(caller, next common.Address) error {
	if err := g.OnlyOwner(caller); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return ErrZeroOwner
	}
	if err := g.store.KVPut(g.ownerKey(), next); err != nil {
		return err
	}
	g.emit(newOwnerTransferredEvent(g.module, caller, next))
	return nil
}

// DelayValue returns the delay currently in effect.
func (g *Governance) DelayValue() (uint64, error) { return g.Delay.Current() }

func (g *Governance) authorizeRevoke(caller common.Address, revokerField bool) error {
	if revokerField {
		return g.OnlyOwner(caller)
	}
	revoker, err := g.Revoker.Current()
	if err != nil {
		return err
	}
	if revoker == (common.Address{}) {
		return ErrRevokerNotSet
	}
	if caller != revoker {
		return ErrNotRevoker
	}
	return nil
}

// Request drives one governed change on behalf of caller. Only the owner may
// request.
func Request[T comparable](g *Governance, f *Field[T], caller common.Address, now uint64, value T) (Outcome, error) {
	if err := g.OnlyOwner(caller); err != nil {
		return 0, err
	}
	timer, err := f.Load()
	if err != nil {
		return 0, err
	}
	delay, err := g.DelayValue()
	if err != nil {
		return 0, err
	}
	selfDelay := any(f) == any(g.Delay)
	out := timer.Request(now, value, func() uint64 {
		if selfDelay {
			return any(timer.Current).(uint64)
		}
		return delay
	})
	if err := f.Save(timer); err != nil {
		return 0, err
	}
	if out.Effected() {
		g.emit(newChangeEffectedEvent(g.module, f.Name, f.render(timer.Current)))
	}
	if out.Requested() {
		g.emit(newChangeRequestedEvent(g.module, f.Name, f.render(timer.Current), f.render(timer.Next), timer.EffectiveAt))
	}
	return out, nil
}

// Revoke cancels the pending change of f. The revoker field itself can only
// be revoked by the owner; every other field needs the configured revoker.
// Revoking with nothing pending is a no-op.
func Revoke[T comparable](g *Governance, f *Field[T], caller common.Address) (bool, error) {
	if err := g.authorizeRevoke(caller, any(f) == any(g.Revoker)); err != nil {
		return false, err
	}
	timer, err := f.Load()
	if err != nil {
		return false, err
	}
	dropped := timer.Next
	if !timer.Revoke() {
		return false, nil
	}
	if err := f.Save(timer); err != nil {
		return false, err
	}
	g.emit(newChangeRevokedEvent(g.module, f.Name, f.render(dropped)))
	return true, nil
}

// Upgrade returns the upgrade authorisation state.
func (g *Governance) Upgrade() (UpgradeState, error) {
	var st UpgradeState
	if _, err := g.store.KVGet(g.upgradeKey(), &st); err != nil {
		return st, err
	}
	return st, nil
}

func (g *Governance) saveUpgrade(st UpgradeState) error {
	return g.store.KVPut(g.upgradeKey(), &st)
}

// RequestUpgrade commits to impl and the keccak hash of data. Unlike field
// requests an upgrade request always replaces whatever was pending.
func (g *Governance) RequestUpgrade(caller common.Address, now uint64, impl common.Address, data []byte) error {
	if err := g.OnlyOwner(caller); err != nil {
		return err
	}
	delay, err := g.DelayValue()
	if err != nil {
		return err
	}
	st, err := g.Upgrade()
	if err != nil {
		return err
	}
	st.Pending = impl
	st.DataHash = common.BytesToHash(ethcrypto.Keccak256(data))
	st.EffectiveAt = now + delay
	if err := g.saveUpgrade(st); err != nil {
		return err
	}
	g.emit(newUpgradeEvent(EventTypeUpgradeRequested, g.module, impl, st.DataHash, st.EffectiveAt))
	return nil
}

// ExecuteUpgrade activates the pending implementation once its delay elapsed
// and the caller presents the committed implementation and data.
func (g *Governance) ExecuteUpgrade(caller common.Address, now uint64, impl common.Address, data []byte) error {
	if err := g.OnlyOwner(caller); err != nil {
		return err
	}
	st, err := g.Upgrade()
	if err != nil {
		return err
	}
	// Nothing pending reads as not due, whatever impl and data say.
	if st.EffectiveAt == 0 {
		return ErrUpgradeNotDue
	}
	if impl != st.Pending {
		return ErrUpgradeMismatch
	}
	if common.BytesToHash(ethcrypto.Keccak256(data)) != st.DataHash {
		return ErrUpgradeDataMismatch
	}
	if now < st.EffectiveAt {
		return ErrUpgradeNotDue
	}
	if impl == (common.Address{}) {
		return ErrZeroImplementation
	}
	st.Implementation = impl
	st.Pending = common.Address{}
	st.DataHash = common.Hash{}
	st.EffectiveAt = 0
	if err := g.saveUpgrade(st); err != nil {
		return err
	}
	g.emit(newUpgradeEvent(EventTypeUpgradeExecuted, g.module, impl, common.Hash{}, 0))
	return nil
}

// RevokeUpgrade drops the pending upgrade. Same authorisation as Revoke.
func (g *Governance) RevokeUpgrade(caller common.Address) (bool, error) {
	if err := g.authorizeRevoke(caller, false); err != nil {
		return false, err
	}
	st, err := g.Upgrade()
	if err != nil {
		return false, err
	}
	if st.EffectiveAt == 0 {
		return false, nil
	}
	dropped := st.Pending
	st.Pending = common.Address{}
	st.DataHash = common.Hash{}
	st.EffectiveAt = 0
	if err := g.saveUpgrade(st); err != nil {
		return false, err
	}
	g.emit(newUpgradeEvent(EventTypeUpgradeRevoked, g.module, dropped, common.Hash{}, 0))
	return true, nil
}
