package auth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_MarshalPartsRoundTrip(t *testing.T) {
	store := newTestStore(t, &recordingHolder{})
	store.UpdateCreds(func(c *Credentials) {
		c.Me = &Contact{ID: "15551234567:3@s.whatsapp.net", Name: "bot"}
		c.Registered = true
	})
	store.Set(map[Category]map[string]json.RawMessage{
		CategoryPreKey:          {"1": json.RawMessage(`{"pub":"AQ=="}`)},
		CategoryAppStateSyncKey: {"AAAAAQ==": json.RawMessage(`{"keyData":"AQID"}`)},
		CategorySenderKeyMemory: {"group@g.us": json.RawMessage(`{"peer":true}`)},
	})

	creds, keys, err := store.State().MarshalParts()
	require.NoError(t, err)

	restored, err := UnmarshalState(creds, keys)
	require.NoError(t, err)
	assert.Equal(t, store.State().Creds, restored.Creds)
	assert.Len(t, restored.Keys, 3)
	assert.JSONEq(t, `{"pub":"AQ=="}`, string(restored.Keys[BucketPreKeys]["1"]))

	holder := &recordingHolder{state: restored}
	reopened := newTestStore(t, holder)
	assert.Same(t, restored, reopened.State(), "restored state is adopted as is")
	assert.Len(t, reopened.AppStateSyncKeys([]string{"AAAAAQ=="}), 1)
}

func TestUnmarshalState_EmptyKeys(t *testing.T) {
	creds, err := NewCredentials()
	require.NoError(t, err)
	data, err := json.Marshal(creds)
	require.NoError(t, err)

	for _, keys := range [][]byte{nil, []byte("null")} {
		state, err := UnmarshalState(data, keys)
		require.NoError(t, err)
		assert.NotNil(t, state.Keys)
		assert.Empty(t, state.Keys)
	}
}

func TestUnmarshalState_Invalid(t *testing.T) {
	_, err := UnmarshalState([]byte("not json"), nil)
	assert.Error(t, err)

	_, err = UnmarshalState([]byte(`{}`), []byte(`[1,2]`))
	assert.Error(t, err)
}

func TestState_PairedID(t *testing.T) {
	assert.Empty(t, (&State{}).PairedID())

	store := newTestStore(t, &recordingHolder{})
	assert.Empty(t, store.State().PairedID())

	store.UpdateCreds(func(c *Credentials) { c.Me = &Contact{ID: "15551234567:3@s.whatsapp.net"} })
	assert.Equal(t, "15551234567:3@s.whatsapp.net", store.State().PairedID())
}
