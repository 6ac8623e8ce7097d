package whatsapp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"whatsbot/internal/privacy"
	"whatsbot/internal/security"
	"whatsbot/pkg/auth"
	"whatsbot/pkg/whatsapp/types"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waAdv"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	watypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/util/keys"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// MeowDialer opens sessions with whatsmeow. whatsmeow keeps its device
// record in a sqlite container; the auth store's credentials decide which
// device is used and supply the keys of a device that has not paired yet.
type MeowDialer struct {
	container *sqlstore.Container
	logger    *logrus.Logger
	waLogger  waLog.Logger
}

// NewMeowDialer opens (or creates) the device container at storePath.
func NewMeowDialer(ctx context.Context, storePath string, logger *logrus.Logger) (*MeowDialer, error) {
	if err := security.EnsureParentDir(storePath); err != nil {
		return nil, fmt.Errorf("invalid device store path: %w", err)
	}

	waLogger := NewLogger(logger, "whatsmeow")
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+storePath+"?_foreign_keys=on", waLogger.Sub("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	return &MeowDialer{
		container: container,
		logger:    logger,
		waLogger:  waLogger,
	}, nil
}

// Dial connects a new whatsmeow client. Unpaired devices get a login code
// stream forwarded as connection updates.
func (d *MeowDialer) Dial(ctx context.Context, authStore *auth.Store) (Session, error) {
	device, err := d.device(ctx, authStore)
	if err != nil {
		return nil, err
	}

	client := whatsmeow.NewClient(device, d.waLogger.Sub("client"))
	// Reconnects belong to the adapter's supervisor, including the restart
	// requested after pairing.
	client.EnableAutoReconnect = false
	client.DisableLoginAutoReconnect = true

	session := newMeowSession(client, authStore, d.logger)
	client.AddEventHandler(session.handle)

	if client.Store.ID == nil {
		codes, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open login code channel: %w", err)
		}
		go session.forwardLoginCodes(codes)
	}

	session.emit(&types.ConnectionUpdate{Connection: types.ConnectionConnecting})
	if err := client.Connect(); err != nil {
		session.Close()
		return nil, types.NewDisconnectError(types.ReasonConnectionClosed, err)
	}

	return session, nil
}

func (d *MeowDialer) device(ctx context.Context, authStore *auth.Store) (*store.Device, error) {
	creds := authStore.Creds()
	if creds.Me != nil && creds.Me.ID != "" {
		jid, err := watypes.ParseJID(creds.Me.ID)
		if err != nil {
			d.logger.WithError(err).Warn("Ignoring unparseable paired device id")
		} else {
			device, err := d.container.GetDevice(ctx, jid)
			if err != nil {
				return nil, fmt.Errorf("failed to load paired device: %w", err)
			}
			if device == nil {
				device, err = d.restoreDevice(ctx, jid, authStore)
				if err != nil {
					d.logger.WithError(err).Warn("Paired device missing from device store, a new login is required")
				}
			}
			if device != nil {
				attachKeyStore(device, authStore, d.logger)
				return device, nil
			}
		}
	}

	device := d.container.NewDevice()
	if err := applyCredentials(device, creds); err != nil {
		d.logger.WithError(err).Warn("Stored credentials unusable, keeping device store keys")
	}
	attachKeyStore(device, authStore, d.logger)
	return device, nil
}

// restoreDevice rebuilds a paired device record from the auth state, for a
// device store that was lost or replaced.
func (d *MeowDialer) restoreDevice(ctx context.Context, jid watypes.JID, authStore *auth.Store) (*store.Device, error) {
	creds := authStore.Creds()
	if len(creds.Account) == 0 {
		return nil, errors.New("no signed device identity in auth state")
	}

	var account waAdv.ADVSignedDeviceIdentity
	if err := proto.Unmarshal(creds.Account, &account); err != nil {
		return nil, fmt.Errorf("failed to decode signed device identity: %w", err)
	}

	device := d.container.NewDevice()
	if err := applyCredentials(device, creds); err != nil {
		return nil, err
	}
	device.ID = &jid
	if creds.LID != "" {
		lid, err := watypes.ParseJID(creds.LID)
		if err != nil {
			return nil, fmt.Errorf("invalid stored LID: %w", err)
		}
		device.LID = lid
	}
	device.Account = &account
	device.Platform = creds.Platform
	if creds.Me != nil {
		device.BusinessName = creds.Me.Name
	}

	attachKeyStore(device, authStore, d.logger)
	if err := device.Save(ctx); err != nil {
		return nil, fmt.Errorf("failed to save restored device: %w", err)
	}
	d.logger.WithField("device", privacy.MaskJID(jid.String())).Info("Restored paired device from auth state")
	return device, nil
}

// applyCredentials copies our identity material onto an unpaired device.
// Nothing is changed unless every key is valid.
func applyCredentials(device *store.Device, creds *auth.Credentials) error {
	noise, err := creds.NoiseKey.ToKeys()
	if err != nil {
		return fmt.Errorf("noise key: %w", err)
	}
	identity, err := creds.SignedIdentityKey.ToKeys()
	if err != nil {
		return fmt.Errorf("identity key: %w", err)
	}
	preKey, err := creds.SignedPreKey.KeyPair.ToKeys()
	if err != nil {
		return fmt.Errorf("signed pre-key: %w", err)
	}
	if len(creds.SignedPreKey.Signature) != 64 {
		return fmt.Errorf("signed pre-key: invalid signature length %d", len(creds.SignedPreKey.Signature))
	}
	advSecret, err := base64.StdEncoding.DecodeString(creds.AdvSecretKey)
	if err != nil {
		return fmt.Errorf("adv secret: %w", err)
	}

	var signature [64]byte
	copy(signature[:], creds.SignedPreKey.Signature)

	device.NoiseKey = noise
	device.IdentityKey = identity
	device.SignedPreKey = &keys.PreKey{
		KeyPair:   *preKey,
		KeyID:     creds.SignedPreKey.KeyID,
		Signature: &signature,
	}
	device.RegistrationID = creds.RegistrationID
	device.AdvSecretKey = advSecret
	return nil
}
