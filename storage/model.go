package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"

	"github.com/itiky/resource-sync/internal/assert"
)

type (
	// ClientId is a locally generated Model identity, stable for the Model lifetime.
	ClientId uuid.UUID

	// Fields is a flat Model record.
	Fields map[string]interface{}

	// Model is an identity-bearing cached representation of one server resource.
	// Fields are mutated in place so that every holder of the *Model observes the changes.
	Model struct {
		mu       sync.RWMutex
		clientId ClientId
		fields   Fields
		idFn     func(Fields) string
		// in-flight Store.Update calls
		frozen int
	}
)

// NewClientId generates a new ClientId.
func NewClientId() ClientId {
	return ClientId(uuid.New())
}

// String implements the stringer interface.
func (id ClientId) String() string {
	return uuid.UUID(id).String()
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}

	return maps.Clone(f)
}

// ClientId returns the Model local identity.
func (m *Model) ClientId() ClientId {
	return m.clientId
}

// Id returns the server id ("" until assigned).
func (m *Model) Id() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.idFn == nil {
		return defaultIdFn(m.fields)
	}

	return m.idFn(m.fields)
}

// Get returns a field value.
func (m *Model) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, found := m.fields[key]

	return v, found
}

// String returns a string field value ("" if absent or of a different type).
func (m *Model) String(key string) string {
	v, _ := m.Get(key)
	s, _ := v.(string)

	return s
}

// Int returns an integer field value (0 if absent or not a number).
func (m *Model) Int(key string) int64 {
	v, _ := m.Get(key)
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}

	return 0
}

// Bool returns a boolean field value.
func (m *Model) Bool(key string) bool {
	v, _ := m.Get(key)
	b, _ := v.(bool)

	return b
}

// Snapshot returns a copy of the current fields.
func (m *Model) Snapshot() Fields {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.fields.Clone()
}

// Set sets a single field. See ApplyChanges.
func (m *Model) Set(key string, value interface{}) {
	m.ApplyChanges(Fields{key: value})
}

// ApplyChanges shallow-merges the changes onto the current fields.
// Writes to a Model with an in-flight Store.Update are a programming error: only the Store orchestrates writes.
func (m *Model) ApplyChanges(changes Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()

	assert.Invariant(m.frozen == 0, "model %s: mutated while an update is in flight", m.clientId)
	m.applyLocked(changes)
}

// RevertChanges restores every field to its preImage value.
// Keys introduced by the applied changes that did not exist in the preImage are removed.
func (m *Model) RevertChanges(preImage, applied Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()

	assert.Invariant(m.frozen == 0, "model %s: reverted while an update is in flight", m.clientId)
	m.revertLocked(preImage, applied)
}

// MarshalJSON implements the json.Marshaler interface.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Snapshot())
}

// applyChanges is the Store write path: it ignores the in-flight freeze.
func (m *Model) applyChanges(changes Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.applyLocked(changes)
}

// revertChanges is the Store rollback path.
func (m *Model) revertChanges(preImage, applied Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.revertLocked(preImage, applied)
}

// clearField removes a field (relationship unlink).
func (m *Model) clearField(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.fields, key)
}

func (m *Model) applyLocked(changes Fields) {
	for k, v := range changes {
		m.fields[k] = v
	}
}

func (m *Model) revertLocked(preImage, applied Fields) {
	revertFields(m.fields, preImage, applied)
}

// revertFields restores fields to preImage in place, dropping the keys introduced by applied.
func revertFields(fields, preImage, applied Fields) {
	for k := range fields {
		if _, found := preImage[k]; !found {
			delete(fields, k)
		}
	}
	for k, v := range preImage {
		fields[k] = v
	}
	for k := range applied {
		if _, found := preImage[k]; !found {
			delete(fields, k)
		}
	}
}

func (m *Model) freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frozen++
}

func (m *Model) unfreeze() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen > 0 {
		m.frozen--
	}
}

// DefaultIdKey is the field NewModel reads the server id from.
const DefaultIdKey = "id"

var defaultIdFn = IdFromKey(DefaultIdKey)

// IdFromKey builds a Fields id extractor reading a string or numeric field.
func IdFromKey(key string) func(Fields) string {
	return func(f Fields) string {
		switch v := f[key].(type) {
		case nil:
			return ""
		case string:
			return v
		case float64:
			return fmt.Sprintf("%.0f", v)
		default:
			return fmt.Sprint(v)
		}
	}
}

// NewModel creates a new Model object with a fresh ClientId.
// The server id is read from the DefaultIdKey field until a Store adopts the Model.
func NewModel(fields Fields) *Model {
	return &Model{
		clientId: NewClientId(),
		fields:   fields.Clone(),
		idFn:     defaultIdFn,
	}
}
