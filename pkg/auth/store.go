package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"whatsbot/internal/metrics"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/proto/waE2E"
)

// Keys maps a bucket to its records, keyed by record id. Values are kept in
// their stored JSON form.
type Keys map[Bucket]map[string]json.RawMessage

// State is the unit persisted between sessions: identity credentials plus the
// key store. It is shared by reference and mutated in place.
type State struct {
	mu    sync.RWMutex
	Creds *Credentials `json:"creds"`
	Keys  Keys         `json:"keys"`
}

// MarshalJSON serializes the state under its read lock so a snapshot can be
// taken while a session is running.
func (s *State) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type plain struct {
		Creds *Credentials `json:"creds"`
		Keys  Keys         `json:"keys"`
	}
	return json.Marshal(plain{Creds: s.Creds, Keys: s.Keys})
}

// Holder owns the externally visible copy of the auth state.
type Holder interface {
	AuthState() *State
	SetAuthState(*State)
}

// Store serves key lookups and writes for the protocol client and writes the
// live state back to its Holder.
type Store struct {
	holder Holder
	state  *State
	logger *logrus.Logger
}

// NewStore adopts the holder's state by reference, or generates fresh
// credentials and an empty key store when the holder has none.
func NewStore(holder Holder, logger *logrus.Logger) (*Store, error) {
	state := holder.AuthState()
	if state == nil {
		state = &State{}
	}

	if state.Creds == nil {
		creds, err := NewCredentials()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credentials: %w", err)
		}
		state.Creds = creds
		state.Keys = nil
		logger.Info("Generated fresh WhatsApp credentials")
	}
	if state.Keys == nil {
		state.Keys = make(Keys)
	}

	return &Store{
		holder: holder,
		state:  state,
		logger: logger,
	}, nil
}

// State returns the live state handed to the protocol client.
func (s *Store) State() *State {
	return s.state
}

// Creds returns a copy of the current credentials.
func (s *Store) Creds() *Credentials {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	return s.state.Creds.Clone()
}

// UpdateCreds applies fn to the live credentials. It does not persist; the
// session reports a credentials update and the supervisor saves.
func (s *Store) UpdateCreds(fn func(*Credentials)) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	fn(s.state.Creds)
}

// Get returns the stored values for ids that have one. Missing ids, and ids
// whose stored value is null, are left out of the result.
func (s *Store) Get(category Category, ids []string) map[string]any {
	bucket := BucketFor(category)

	s.state.mu.RLock()
	defer s.state.mu.RUnlock()

	result := make(map[string]any, len(ids))
	records := s.state.Keys[bucket]
	for _, id := range ids {
		raw, ok := records[id]
		if !ok || isNull(raw) {
			continue
		}

		if category == CategoryAppStateSyncKey {
			data, err := DecodeAppStateSyncKey(raw)
			if err != nil {
				s.logger.WithError(err).WithField("key_id", id).Warn("Skipping undecodable app state sync key")
				continue
			}
			result[id] = data
			continue
		}

		result[id] = append(json.RawMessage(nil), raw...)
	}
	return result
}

// IDs lists the ids stored under category with a non-null value, sorted.
func (s *Store) IDs(category Category) []string {
	bucket := BucketFor(category)

	s.state.mu.RLock()
	defer s.state.mu.RUnlock()

	records := s.state.Keys[bucket]
	ids := make([]string, 0, len(records))
	for id, raw := range records {
		if !isNull(raw) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// AppStateSyncKeys is Get for the app-state-sync-key category with the
// decoded type.
func (s *Store) AppStateSyncKeys(ids []string) map[string]*waE2E.AppStateSyncKeyData {
	values := s.Get(CategoryAppStateSyncKey, ids)
	result := make(map[string]*waE2E.AppStateSyncKeyData, len(values))
	for id, v := range values {
		result[id] = v.(*waE2E.AppStateSyncKeyData)
	}
	return result
}

// Set shallow-merges updates into their buckets, creating buckets on first
// use, then saves the state exactly once.
func (s *Store) Set(updates map[Category]map[string]json.RawMessage) {
	buckets := make(map[Category]Bucket, len(updates))
	for category := range updates {
		buckets[category] = BucketFor(category)
	}

	s.state.mu.Lock()
	written := 0
	for category, records := range updates {
		bucket := buckets[category]
		existing, ok := s.state.Keys[bucket]
		if !ok {
			existing = make(map[string]json.RawMessage, len(records))
			s.state.Keys[bucket] = existing
		}
		for id, value := range records {
			existing[id] = value
			written++
		}
	}
	s.state.mu.Unlock()

	metrics.AddToCounter("key_store_writes", float64(written), nil, "Key records written to the auth key store")
	s.SaveState()
}

// SaveState hands the live state back to the holder. It never serializes;
// durability is the holder's concern.
func (s *Store) SaveState() {
	s.holder.SetAuthState(s.state)
	metrics.IncrementCounter("auth_state_saves", nil, "Auth state writes to the adapter options")
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
