package auth

import "fmt"

// Category names a kind of Signal-protocol key material requested by the
// protocol client.
type Category string

const (
	CategoryPreKey              Category = "pre-key"
	CategorySession             Category = "session"
	CategorySenderKey           Category = "sender-key"
	CategoryAppStateSyncKey     Category = "app-state-sync-key"
	CategoryAppStateSyncVersion Category = "app-state-sync-version"
	CategorySenderKeyMemory     Category = "sender-key-memory"
)

// Bucket is the storage partition a Category resolves to.
type Bucket string

const (
	BucketPreKeys          Bucket = "preKeys"
	BucketSessions         Bucket = "sessions"
	BucketSenderKeys       Bucket = "senderKeys"
	BucketAppStateSyncKeys Bucket = "appStateSyncKeys"
	BucketAppStateVersions Bucket = "appStateVersions"
	BucketSenderKeyMemory  Bucket = "senderKeyMemory"
)

var categoryBuckets = map[Category]Bucket{
	CategoryPreKey:              BucketPreKeys,
	CategorySession:             BucketSessions,
	CategorySenderKey:           BucketSenderKeys,
	CategoryAppStateSyncKey:     BucketAppStateSyncKeys,
	CategoryAppStateSyncVersion: BucketAppStateVersions,
	CategorySenderKeyMemory:     BucketSenderKeyMemory,
}

// Categories returns every recognized category.
func Categories() []Category {
	return []Category{
		CategoryPreKey,
		CategorySession,
		CategorySenderKey,
		CategoryAppStateSyncKey,
		CategoryAppStateSyncVersion,
		CategorySenderKeyMemory,
	}
}

// BucketFor resolves a category to its bucket. Asking for a category the
// protocol client never requests is a caller bug, so it panics.
func BucketFor(c Category) Bucket {
	b, ok := categoryBuckets[c]
	if !ok {
		panic(fmt.Sprintf("auth: unknown key category %q", string(c)))
	}
	return b
}

// Valid reports whether c is one of the recognized categories.
func (c Category) Valid() bool {
	_, ok := categoryBuckets[c]
	return ok
}
