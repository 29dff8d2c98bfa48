package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"xaumdca/core/events"
	"xaumdca/storage"
)

// Manager provides journaled key/value access to ledger state. Every write is
// applied to the backing database immediately. Inside Atomic the previous
// value is recorded so that a failed operation can be rolled back.
//
// Events emitted through the manager are buffered alongside the writes and
// only reach the downstream emitter once the outermost Atomic call commits.
//
// A Manager is not safe for concurrent use; callers serialise operations.
type Manager struct {
	db      storage.Database
	journal []change
	logs    []events.Event
	depth   int
	emitter events.Emitter
}

type change interface {
	revert(*Manager) error
}

type kvChange struct {
	key     []byte
	prev    []byte
	existed bool
}

func (c kvChange) revert(m *Manager) error {
	if !c.existed {
		return m.db.Delete(c.key)
	}
	return m.db.Put(c.key, c.prev)
}

type logChange struct{}

func (logChange) revert(m *Manager) error {
	if n := len(m.logs); n > 0 {
		m.logs = m.logs[:n-1]
	}
	return nil
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, emitter: events.NoopEmitter{}}
}

// SetEmitter configures where committed events are delivered. Passing nil
// discards them.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) read(hashed []byte) ([]byte, bool, error) {
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *Manager) write(hashed []byte, value []byte) error {
	prev, existed, err := m.read(hashed)
	if err != nil {
		return err
	}
	if !existed && value == nil {
		return nil
	}
	if m.depth > 0 {
		m.journal = append(m.journal, kvChange{key: hashed, prev: prev, existed: existed})
	}
	if value == nil {
		return m.db.Delete(hashed)
	}
	return m.db.Put(hashed, value)
}

// KVPut stores the RLP encoding of value under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.write(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.read(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the supplied key. Missing keys are ignored.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.write(kvKey(key), nil)
}

// Emit buffers e until the enclosing Atomic call commits. Outside of Atomic
// the event is delivered straight away.
func (m *Manager) Emit(e events.Event) {
	if e == nil {
		return
	}
	if m.depth == 0 {
		m.emitter.Emit(e)
		return
	}
	m.logs = append(m.logs, e)
	m.journal = append(m.journal, logChange{})
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int { return len(m.journal) }

// RevertToSnapshot undoes every change recorded after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) error {
	if id < 0 || id > len(m.journal) {
		return fmt.Errorf("state: invalid snapshot %d", id)
	}
	var errs []error
	for i := len(m.journal) - 1; i >= id; i-- {
		if err := m.journal[i].revert(m); err != nil {
			errs = append(errs, err)
		}
	}
	m.journal = m.journal[:id]
	return errors.Join(errs...)
}

// Finalise drops the journal and delivers buffered events.
func (m *Manager) Finalise() {
	logs := m.logs
	m.journal = nil
	m.logs = nil
	for _, e := range logs {
		m.emitter.Emit(e)
	}
}

// Atomic runs fn so that either all of its writes persist or none do. Calls
// may nest; only the outermost commit finalises the journal.
func (m *Manager) Atomic(fn func() error) (err error) {
	snap := m.Snapshot()
	m.depth++
	defer func() {
		if r := recover(); r != nil {
			m.depth--
			_ = m.RevertToSnapshot(snap)
			panic(r)
		}
		m.depth--
		if err != nil {
			if rerr := m.RevertToSnapshot(snap); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return
		}
		if m.depth == 0 {
			m.Finalise()
		}
	}()
	return fn()
}
