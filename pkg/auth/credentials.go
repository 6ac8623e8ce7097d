package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"go.mau.fi/whatsmeow/util/keys"
)

// registrationIDMask keeps registration ids within the 14 bits the
// Signal protocol allows.
const registrationIDMask = 16383

// KeyPair is a Curve25519 key pair.
type KeyPair struct {
	Private []byte `json:"private"`
	Public  []byte `json:"public"`
}

// SignedKeyPair is a pre-key signed by the identity key.
type SignedKeyPair struct {
	KeyPair   KeyPair `json:"keyPair"`
	Signature []byte  `json:"signature"`
	KeyID     uint32  `json:"keyId"`
}

// Contact identifies the paired account.
type Contact struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Credentials is the long-lived identity material of a linked device.
type Credentials struct {
	NoiseKey                KeyPair       `json:"noiseKey"`
	PairingEphemeralKeyPair KeyPair       `json:"pairingEphemeralKeyPair"`
	SignedIdentityKey       KeyPair       `json:"signedIdentityKey"`
	SignedPreKey            SignedKeyPair `json:"signedPreKey"`
	RegistrationID          uint32        `json:"registrationId"`
	AdvSecretKey            string        `json:"advSecretKey"`
	NextPreKeyID            uint32        `json:"nextPreKeyId"`
	FirstUnuploadedPreKeyID uint32        `json:"firstUnuploadedPreKeyId"`
	AccountSyncCounter      int           `json:"accountSyncCounter"`
	Me                      *Contact      `json:"me,omitempty"`
	LID                     string        `json:"lid,omitempty"`
	Account                 []byte        `json:"account,omitempty"`
	Platform                string        `json:"platform,omitempty"`
	Registered              bool          `json:"registered"`
}

// NewCredentials generates a fresh, unpaired identity.
func NewCredentials() (*Credentials, error) {
	identity := keys.NewKeyPair()
	preKey := identity.CreateSignedPreKey(1)

	regID, err := randomUint32()
	if err != nil {
		return nil, fmt.Errorf("failed to generate registration id: %w", err)
	}

	advSecret := make([]byte, 32)
	if _, err := rand.Read(advSecret); err != nil {
		return nil, fmt.Errorf("failed to generate adv secret: %w", err)
	}

	return &Credentials{
		NoiseKey:                fromKeyPair(keys.NewKeyPair()),
		PairingEphemeralKeyPair: fromKeyPair(keys.NewKeyPair()),
		SignedIdentityKey:       fromKeyPair(identity),
		SignedPreKey: SignedKeyPair{
			KeyPair:   fromKeyPair(&preKey.KeyPair),
			Signature: preKey.Signature[:],
			KeyID:     preKey.KeyID,
		},
		RegistrationID:          regID & registrationIDMask,
		AdvSecretKey:            base64.StdEncoding.EncodeToString(advSecret),
		NextPreKeyID:            1,
		FirstUnuploadedPreKeyID: 1,
	}, nil
}

// Clone returns a deep copy of c.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}
	out := *c
	out.NoiseKey = c.NoiseKey.clone()
	out.PairingEphemeralKeyPair = c.PairingEphemeralKeyPair.clone()
	out.SignedIdentityKey = c.SignedIdentityKey.clone()
	out.SignedPreKey.KeyPair = c.SignedPreKey.KeyPair.clone()
	out.SignedPreKey.Signature = append([]byte(nil), c.SignedPreKey.Signature...)
	if c.Account != nil {
		out.Account = append([]byte(nil), c.Account...)
	}
	if c.Me != nil {
		me := *c.Me
		out.Me = &me
	}
	return &out
}

// ToKeys converts the pair into whatsmeow's fixed-size representation.
func (kp KeyPair) ToKeys() (*keys.KeyPair, error) {
	if len(kp.Private) != 32 {
		return nil, fmt.Errorf("invalid private key length %d", len(kp.Private))
	}
	var priv [32]byte
	copy(priv[:], kp.Private)
	return keys.NewKeyPairFromPrivateKey(priv), nil
}

func (kp KeyPair) clone() KeyPair {
	return KeyPair{
		Private: append([]byte(nil), kp.Private...),
		Public:  append([]byte(nil), kp.Public...),
	}
}

func fromKeyPair(kp *keys.KeyPair) KeyPair {
	return KeyPair{
		Private: append([]byte(nil), kp.Priv[:]...),
		Public:  append([]byte(nil), kp.Pub[:]...),
	}
}

func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
