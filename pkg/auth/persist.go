package auth

import (
	"encoding/json"
	"fmt"
)

// MarshalParts serializes the credentials and the key store separately,
// under one read lock, for storage in two columns.
func (s *State) MarshalParts() (creds, keys []byte, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if creds, err = json.Marshal(s.Creds); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if keys, err = json.Marshal(s.Keys); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal keys: %w", err)
	}
	return creds, keys, nil
}

// UnmarshalState rebuilds a state from the output of MarshalParts. An empty
// keys blob yields an empty key store.
func UnmarshalState(creds, keys []byte) (*State, error) {
	state := &State{Keys: make(Keys)}
	if err := json.Unmarshal(creds, &state.Creds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	if len(keys) > 0 {
		if err := json.Unmarshal(keys, &state.Keys); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keys: %w", err)
		}
	}
	if state.Keys == nil {
		state.Keys = make(Keys)
	}
	return state, nil
}

// PairedID returns the JID of the paired account, or "" while unpaired.
func (s *State) PairedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Creds == nil || s.Creds.Me == nil {
		return ""
	}
	return s.Creds.Me.ID
}
