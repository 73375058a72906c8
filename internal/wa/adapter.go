package wa

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"wachat/internal/bus"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter wraps the whatsmeow client and manages the WhatsApp connection.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewAdapter creates an adapter whose credentials live in dbPath.
func NewAdapter(ctx context.Context, dbPath string, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("wachat", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath), nil)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	return &Adapter{
		client:    whatsmeow.NewClient(deviceStore, nil),
		container: container,
		bus:       b,
		logger:    logger,
	}, nil
}

// RegisterEventHandler adds a handler for whatsmeow events.
func (a *Adapter) RegisterEventHandler(handler whatsmeow.EventHandler) {
	a.client.AddEventHandler(handler)
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Connect initiates the WhatsApp connection.
func (a *Adapter) Connect() error {
	a.logger.Info("connecting to WhatsApp")
	return a.client.Connect()
}

// Disconnect terminates the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// SendText sends a text message to the given chat id. Returns the
// provider-assigned message id.
func (a *Adapter) SendText(ctx context.Context, chatID string, text string) (string, error) {
	to, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// IsRegistered checks whether the given chat id belongs to a WhatsApp user.
func (a *Adapter) IsRegistered(ctx context.Context, chatID string) (bool, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return false, fmt.Errorf("parse JID: %w", err)
	}
	resp, err := a.client.IsOnWhatsApp(ctx, []string{"+" + jid.User})
	if err != nil {
		return false, fmt.Errorf("registration check: %w", err)
	}
	for _, r := range resp {
		if r.IsIn {
			return true, nil
		}
	}
	return false, nil
}

// PhoneNumber returns the own phone number, or empty when not paired.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// StartQRAuth begins the pairing flow: QR codes arrive as provider.qr bus
// events until the phone scans one or the channel times out. Must be called
// before Connect when no credentials exist.
func (a *Adapter) StartQRAuth(ctx context.Context) error {
	if a.IsLoggedIn() {
		return fmt.Errorf("already logged in")
	}
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get QR channel: %w", err)
	}
	if err := a.Connect(); err != nil {
		return fmt.Errorf("connect for pairing: %w", err)
	}

	go func() {
		for item := range qrChan {
			switch item.Event {
			case "code":
				a.bus.Publish(bus.Event{Kind: bus.KindProviderQR, Payload: item.Code})
			case "success":
				a.logger.Info("QR pairing succeeded")
				return
			case "timeout":
				a.logger.Warn("QR pairing timed out")
				a.bus.Publish(bus.Event{Kind: bus.KindProviderAuthFailed, Payload: "timeout"})
				return
			default:
				if item.Error != nil {
					a.logger.Error("QR pairing failed", zap.Error(item.Error))
					a.bus.Publish(bus.Event{Kind: bus.KindProviderAuthFailed, Payload: item.Error.Error()})
					return
				}
			}
		}
	}()
	return nil
}
