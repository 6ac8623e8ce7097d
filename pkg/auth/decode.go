package auth

import (
	"encoding/json"
	"fmt"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/encoding/protojson"
)

var protoDecoder = protojson.UnmarshalOptions{DiscardUnknown: true}

// DecodeAppStateSyncKey materializes a stored app state sync key into the
// protobuf shape the protocol client expects.
func DecodeAppStateSyncKey(raw json.RawMessage) (*waE2E.AppStateSyncKeyData, error) {
	var data waE2E.AppStateSyncKeyData
	if err := protoDecoder.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode app state sync key: %w", err)
	}
	return &data, nil
}

// EncodeAppStateSyncKey is the inverse of DecodeAppStateSyncKey, for
// sessions that write sync keys back through Set.
func EncodeAppStateSyncKey(data *waE2E.AppStateSyncKeyData) (json.RawMessage, error) {
	raw, err := protojson.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode app state sync key: %w", err)
	}
	return raw, nil
}
