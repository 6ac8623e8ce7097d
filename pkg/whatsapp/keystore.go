package whatsapp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"whatsbot/pkg/auth"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	watypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/util/keys"
	"google.golang.org/protobuf/proto"
)

var nullRecord = json.RawMessage("null")

// preKeyRecord is a one-time pre-key as kept in the pre-key bucket.
type preKeyRecord struct {
	auth.KeyPair
	Uploaded bool `json:"uploaded,omitempty"`
}

type appStateVersionRecord struct {
	Version uint64 `json:"version"`
	Hash    []byte `json:"hash"`
}

// keyStore serves whatsmeow's Signal sessions, pre-keys, sender keys, app
// state sync keys and app state versions out of the auth store, so every
// protocol write lands in the persisted auth state and triggers one save.
// Identity keys and app state mutation MACs have no key category and stay
// in the device store.
type keyStore struct {
	auth   *auth.Store
	device store.SessionStore
	macs   store.AppStateStore
	logger *logrus.Logger

	preKeyLock sync.Mutex
}

var (
	_ store.SessionStore         = (*keyStore)(nil)
	_ store.PreKeyStore          = (*keyStore)(nil)
	_ store.SenderKeyStore       = (*keyStore)(nil)
	_ store.AppStateSyncKeyStore = (*keyStore)(nil)
	_ store.AppStateStore        = (*keyStore)(nil)
)

func newKeyStore(authStore *auth.Store, device store.SessionStore, macs store.AppStateStore, logger *logrus.Logger) *keyStore {
	return &keyStore{
		auth:   authStore,
		device: device,
		macs:   macs,
		logger: logger,
	}
}

// keyStoreContainer re-attaches the key store every time whatsmeow saves the
// device: the first save of a freshly paired device installs whatsmeow's own
// SQL stores in its place.
type keyStoreContainer struct {
	store.DeviceContainer
	keys   *auth.Store
	logger *logrus.Logger
}

func (c *keyStoreContainer) PutDevice(ctx context.Context, device *store.Device) error {
	err := c.DeviceContainer.PutDevice(ctx, device)
	attachKeyStore(device, c.keys, c.logger)
	return err
}

// attachKeyStore routes device's key stores through authStore. Devices that
// whatsmeow has not initialized yet get the container hook only.
func attachKeyStore(device *store.Device, authStore *auth.Store, logger *logrus.Logger) {
	if _, ok := device.Container.(*keyStoreContainer); !ok && device.Container != nil {
		device.Container = &keyStoreContainer{DeviceContainer: device.Container, keys: authStore, logger: logger}
	}
	if !device.Initialized {
		return
	}
	if _, ok := device.Sessions.(*keyStore); ok {
		return
	}

	ks := newKeyStore(authStore, device.Sessions, device.AppState, logger)
	device.Sessions = ks
	device.PreKeys = ks
	device.SenderKeys = ks
	device.AppStateKeys = ks
	device.AppState = ks
}

func (k *keyStore) put(category auth.Category, records map[string]json.RawMessage) {
	if len(records) == 0 {
		return
	}
	k.auth.Set(map[auth.Category]map[string]json.RawMessage{category: records})
}

func (k *keyStore) getBytes(category auth.Category, id string) ([]byte, error) {
	value, ok := k.auth.Get(category, []string{id})[id]
	if !ok {
		return nil, nil
	}
	return decodeBytes(value)
}

func encodeBytes(b []byte) json.RawMessage {
	raw, _ := json.Marshal(b)
	return raw
}

func decodeBytes(value any) ([]byte, error) {
	raw, ok := value.(json.RawMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected key record type %T", value)
	}
	var b []byte
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to decode key record: %w", err)
	}
	return b, nil
}

// Sessions

func (k *keyStore) GetSession(ctx context.Context, address string) ([]byte, error) {
	return k.getBytes(auth.CategorySession, address)
}

func (k *keyStore) HasSession(ctx context.Context, address string) (bool, error) {
	return len(k.auth.Get(auth.CategorySession, []string{address})) > 0, nil
}

func (k *keyStore) GetManySessions(ctx context.Context, addresses []string) (map[string][]byte, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	found := k.auth.Get(auth.CategorySession, addresses)
	result := make(map[string][]byte, len(addresses))
	for _, addr := range addresses {
		result[addr] = nil
		if value, ok := found[addr]; ok {
			session, err := decodeBytes(value)
			if err != nil {
				return nil, err
			}
			result[addr] = session
		}
	}
	return result, nil
}

func (k *keyStore) PutSession(ctx context.Context, address string, session []byte) error {
	k.put(auth.CategorySession, map[string]json.RawMessage{address: encodeBytes(session)})
	return nil
}

func (k *keyStore) PutManySessions(ctx context.Context, sessions map[string][]byte) error {
	records := make(map[string]json.RawMessage, len(sessions))
	for addr, session := range sessions {
		records[addr] = encodeBytes(session)
	}
	k.put(auth.CategorySession, records)
	return nil
}

func (k *keyStore) DeleteAllSessions(ctx context.Context, phone string) error {
	records := make(map[string]json.RawMessage)
	for _, id := range k.auth.IDs(auth.CategorySession) {
		if strings.HasPrefix(id, phone+":") {
			records[id] = nullRecord
		}
	}
	k.put(auth.CategorySession, records)
	return nil
}

func (k *keyStore) DeleteSession(ctx context.Context, address string) error {
	k.put(auth.CategorySession, map[string]json.RawMessage{address: nullRecord})
	return nil
}

// MigratePNToLID moves sessions and sender keys recorded under a phone
// number address to its LID address. Identity keys are migrated by the
// device store.
func (k *keyStore) MigratePNToLID(ctx context.Context, pn, lid watypes.JID) error {
	if k.device != nil {
		if err := k.device.MigratePNToLID(ctx, pn, lid); err != nil {
			return err
		}
	}

	pnPrefix := pn.SignalAddressUser() + ":"
	lidPrefix := lid.SignalAddressUser() + ":"

	sessions := k.auth.IDs(auth.CategorySession)
	senderKeys := k.auth.IDs(auth.CategorySenderKey)
	updates := map[auth.Category]map[string]json.RawMessage{
		auth.CategorySession:   {},
		auth.CategorySenderKey: {},
	}

	values := k.auth.Get(auth.CategorySession, sessions)
	for _, id := range sessions {
		if !strings.HasPrefix(id, pnPrefix) {
			continue
		}
		updates[auth.CategorySession][lidPrefix+strings.TrimPrefix(id, pnPrefix)] = values[id].(json.RawMessage)
		updates[auth.CategorySession][id] = nullRecord
	}

	values = k.auth.Get(auth.CategorySenderKey, senderKeys)
	for _, id := range senderKeys {
		group, sender, ok := strings.Cut(id, "::")
		if !ok || !strings.HasPrefix(sender, pnPrefix) {
			continue
		}
		updates[auth.CategorySenderKey][senderKeyID(group, lidPrefix+strings.TrimPrefix(sender, pnPrefix))] = values[id].(json.RawMessage)
		updates[auth.CategorySenderKey][id] = nullRecord
	}

	moved := len(updates[auth.CategorySession])/2 + len(updates[auth.CategorySenderKey])/2
	if moved == 0 {
		return nil
	}
	k.auth.Set(updates)
	k.logger.WithField("records", moved).Debug("Migrated key records from phone number to LID address")
	return nil
}

// Pre-keys

func preKeyID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (k *keyStore) loadPreKeys() map[uint32]preKeyRecord {
	ids := k.auth.IDs(auth.CategoryPreKey)
	values := k.auth.Get(auth.CategoryPreKey, ids)

	records := make(map[uint32]preKeyRecord, len(values))
	for id, value := range values {
		keyID, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			k.logger.WithField("key_id", id).Warn("Skipping pre-key with invalid id")
			continue
		}
		var record preKeyRecord
		if err := json.Unmarshal(value.(json.RawMessage), &record); err != nil {
			k.logger.WithError(err).WithField("key_id", id).Warn("Skipping undecodable pre-key")
			continue
		}
		records[uint32(keyID)] = record
	}
	return records
}

// nextPreKeyID is the first id above both the credentials counter and every
// stored key.
func (k *keyStore) nextPreKeyID(records map[uint32]preKeyRecord) uint32 {
	next := k.auth.Creds().NextPreKeyID
	for id := range records {
		if id >= next {
			next = id + 1
		}
	}
	if next == 0 {
		next = 1
	}
	return next
}

func newPreKeyRecord(key *keys.PreKey, uploaded bool) json.RawMessage {
	raw, _ := json.Marshal(preKeyRecord{
		KeyPair:  auth.KeyPair{Private: key.Priv[:], Public: key.Pub[:]},
		Uploaded: uploaded,
	})
	return raw
}

func (r preKeyRecord) toPreKey(id uint32) (*keys.PreKey, error) {
	pair, err := r.KeyPair.ToKeys()
	if err != nil {
		return nil, fmt.Errorf("pre-key %d: %w", id, err)
	}
	return &keys.PreKey{KeyPair: *pair, KeyID: id}, nil
}

func (k *keyStore) GetOrGenPreKeys(ctx context.Context, count uint32) ([]*keys.PreKey, error) {
	k.preKeyLock.Lock()
	defer k.preKeyLock.Unlock()

	records := k.loadPreKeys()
	pending := make([]uint32, 0, len(records))
	for id, record := range records {
		if !record.Uploaded {
			pending = append(pending, id)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })

	out := make([]*keys.PreKey, 0, count)
	for _, id := range pending {
		if uint32(len(out)) == count {
			break
		}
		key, err := records[id].toPreKey(id)
		if err != nil {
			return nil, err
		}
		out = append(out, key)
	}

	if uint32(len(out)) < count {
		next := k.nextPreKeyID(records)
		generated := make(map[string]json.RawMessage, int(count)-len(out))
		for uint32(len(out)) < count {
			key := keys.NewPreKey(next)
			generated[preKeyID(next)] = newPreKeyRecord(key, false)
			out = append(out, key)
			next++
		}
		k.auth.UpdateCreds(func(c *auth.Credentials) { c.NextPreKeyID = next })
		k.put(auth.CategoryPreKey, generated)
	}
	return out, nil
}

func (k *keyStore) GenOnePreKey(ctx context.Context) (*keys.PreKey, error) {
	k.preKeyLock.Lock()
	defer k.preKeyLock.Unlock()

	next := k.nextPreKeyID(k.loadPreKeys())
	key := keys.NewPreKey(next)
	k.auth.UpdateCreds(func(c *auth.Credentials) { c.NextPreKeyID = next + 1 })
	k.put(auth.CategoryPreKey, map[string]json.RawMessage{preKeyID(next): newPreKeyRecord(key, true)})
	return key, nil
}

func (k *keyStore) GetPreKey(ctx context.Context, id uint32) (*keys.PreKey, error) {
	value, ok := k.auth.Get(auth.CategoryPreKey, []string{preKeyID(id)})[preKeyID(id)]
	if !ok {
		return nil, nil
	}
	var record preKeyRecord
	if err := json.Unmarshal(value.(json.RawMessage), &record); err != nil {
		return nil, fmt.Errorf("failed to decode pre-key %d: %w", id, err)
	}
	return record.toPreKey(id)
}

func (k *keyStore) RemovePreKey(ctx context.Context, id uint32) error {
	k.put(auth.CategoryPreKey, map[string]json.RawMessage{preKeyID(id): nullRecord})
	return nil
}

func (k *keyStore) MarkPreKeysAsUploaded(ctx context.Context, upToID uint32) error {
	k.preKeyLock.Lock()
	defer k.preKeyLock.Unlock()

	updates := make(map[string]json.RawMessage)
	for id, record := range k.loadPreKeys() {
		if id > upToID || record.Uploaded {
			continue
		}
		record.Uploaded = true
		raw, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode pre-key %d: %w", id, err)
		}
		updates[preKeyID(id)] = raw
	}

	k.auth.UpdateCreds(func(c *auth.Credentials) {
		if upToID+1 > c.FirstUnuploadedPreKeyID {
			c.FirstUnuploadedPreKeyID = upToID + 1
		}
	})
	if len(updates) == 0 {
		k.auth.SaveState()
		return nil
	}
	k.put(auth.CategoryPreKey, updates)
	return nil
}

func (k *keyStore) UploadedPreKeyCount(ctx context.Context) (int, error) {
	count := 0
	for _, record := range k.loadPreKeys() {
		if record.Uploaded {
			count++
		}
	}
	return count, nil
}

// Sender keys

func senderKeyID(group, user string) string {
	return group + "::" + user
}

func (k *keyStore) PutSenderKey(ctx context.Context, group, user string, session []byte) error {
	k.put(auth.CategorySenderKey, map[string]json.RawMessage{senderKeyID(group, user): encodeBytes(session)})
	return nil
}

func (k *keyStore) GetSenderKey(ctx context.Context, group, user string) ([]byte, error) {
	return k.getBytes(auth.CategorySenderKey, senderKeyID(group, user))
}

// App state sync keys

func syncKeyID(id []byte) string {
	return base64.StdEncoding.EncodeToString(id)
}

func toStoreSyncKey(data *waE2E.AppStateSyncKeyData) (*store.AppStateSyncKey, error) {
	key := &store.AppStateSyncKey{
		Data:      data.GetKeyData(),
		Timestamp: data.GetTimestamp(),
	}
	if fp := data.GetFingerprint(); fp != nil {
		raw, err := proto.Marshal(fp)
		if err != nil {
			return nil, fmt.Errorf("failed to encode sync key fingerprint: %w", err)
		}
		key.Fingerprint = raw
	}
	return key, nil
}

// PutAppStateSyncKey keeps the stored key unless the new one is newer.
func (k *keyStore) PutAppStateSyncKey(ctx context.Context, id []byte, key store.AppStateSyncKey) error {
	kid := syncKeyID(id)
	if existing, ok := k.auth.AppStateSyncKeys([]string{kid})[kid]; ok && existing.GetTimestamp() >= key.Timestamp {
		return nil
	}

	data := &waE2E.AppStateSyncKeyData{
		KeyData:   key.Data,
		Timestamp: proto.Int64(key.Timestamp),
	}
	if len(key.Fingerprint) > 0 {
		var fp waE2E.AppStateSyncKeyFingerprint
		if err := proto.Unmarshal(key.Fingerprint, &fp); err != nil {
			return fmt.Errorf("failed to decode sync key fingerprint: %w", err)
		}
		data.Fingerprint = &fp
	}

	raw, err := auth.EncodeAppStateSyncKey(data)
	if err != nil {
		return err
	}
	k.put(auth.CategoryAppStateSyncKey, map[string]json.RawMessage{kid: raw})
	return nil
}

func (k *keyStore) GetAppStateSyncKey(ctx context.Context, id []byte) (*store.AppStateSyncKey, error) {
	kid := syncKeyID(id)
	data, ok := k.auth.AppStateSyncKeys([]string{kid})[kid]
	if !ok {
		return nil, nil
	}
	return toStoreSyncKey(data)
}

func (k *keyStore) GetLatestAppStateSyncKeyID(ctx context.Context) ([]byte, error) {
	var latest string
	var latestTS int64
	for id, data := range k.auth.AppStateSyncKeys(k.auth.IDs(auth.CategoryAppStateSyncKey)) {
		if latest == "" || data.GetTimestamp() > latestTS || (data.GetTimestamp() == latestTS && id > latest) {
			latest, latestTS = id, data.GetTimestamp()
		}
	}
	if latest == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(latest)
}

func (k *keyStore) GetAllAppStateSyncKeys(ctx context.Context) ([]*store.AppStateSyncKey, error) {
	all := k.auth.AppStateSyncKeys(k.auth.IDs(auth.CategoryAppStateSyncKey))
	out := make([]*store.AppStateSyncKey, 0, len(all))
	for _, data := range all {
		if len(data.GetKeyData()) == 0 {
			continue
		}
		key, err := toStoreSyncKey(data)
		if err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// App state versions

func (k *keyStore) PutAppStateVersion(ctx context.Context, name string, version uint64, hash [128]byte) error {
	raw, err := json.Marshal(appStateVersionRecord{Version: version, Hash: hash[:]})
	if err != nil {
		return fmt.Errorf("failed to encode app state version: %w", err)
	}
	k.put(auth.CategoryAppStateSyncVersion, map[string]json.RawMessage{name: raw})
	return nil
}

// GetAppStateVersion returns version 0 and a zero hash for a collection
// that has never synced.
func (k *keyStore) GetAppStateVersion(ctx context.Context, name string) (uint64, [128]byte, error) {
	var hash [128]byte
	value, ok := k.auth.Get(auth.CategoryAppStateSyncVersion, []string{name})[name]
	if !ok {
		return 0, hash, nil
	}

	var record appStateVersionRecord
	if err := json.Unmarshal(value.(json.RawMessage), &record); err != nil {
		return 0, hash, fmt.Errorf("failed to decode app state version for %s: %w", name, err)
	}
	if len(record.Hash) != len(hash) {
		return 0, hash, fmt.Errorf("invalid app state hash length %d for %s", len(record.Hash), name)
	}
	if record.Version == 0 {
		return 0, hash, fmt.Errorf("invalid saved app state version 0 for %s", name)
	}
	copy(hash[:], record.Hash)
	return record.Version, hash, nil
}

func (k *keyStore) DeleteAppStateVersion(ctx context.Context, name string) error {
	k.put(auth.CategoryAppStateSyncVersion, map[string]json.RawMessage{name: nullRecord})
	return nil
}

func (k *keyStore) PutAppStateMutationMACs(ctx context.Context, name string, version uint64, mutations []store.AppStateMutationMAC) error {
	return k.macs.PutAppStateMutationMACs(ctx, name, version, mutations)
}

func (k *keyStore) DeleteAppStateMutationMACs(ctx context.Context, name string, indexMACs [][]byte) error {
	return k.macs.DeleteAppStateMutationMACs(ctx, name, indexMACs)
}

func (k *keyStore) GetAppStateMutationMAC(ctx context.Context, name string, indexMAC []byte) ([]byte, error) {
	return k.macs.GetAppStateMutationMAC(ctx, name, indexMAC)
}
