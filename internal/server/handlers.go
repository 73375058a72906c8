package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"wachat/internal/hub"
	"wachat/internal/ingest"
	"wachat/internal/model"
	"wachat/internal/send"
	"wachat/internal/store"
)

// Registrar is the provider's number-registration check. Satisfied by
// *wa.Adapter.
type Registrar interface {
	IsRegistered(ctx context.Context, chatID string) (bool, error)
}

// Handlers holds the HTTP endpoint implementations.
type Handlers struct {
	store     *store.Store
	pipeline  *ingest.Pipeline
	gateway   *send.Gateway
	hub       *hub.Hub
	registrar Registrar
	logger    *zap.Logger
}

// NewHandlers creates the endpoint set.
func NewHandlers(s *store.Store, p *ingest.Pipeline, g *send.Gateway, h *hub.Hub, reg Registrar, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{store: s, pipeline: p, gateway: g, hub: h, registrar: reg, logger: logger}
}

// ListChats returns the full store snapshot keyed by chat id.
func (h *Handlers) ListChats(w http.ResponseWriter, _ *http.Request) {
	chats := h.store.List()
	out := make(map[string]*model.Chat, len(chats))
	for _, c := range chats {
		out[c.ID] = c
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateChat creates an empty chat for a phone number after checking it is
// registered with the provider.
func (h *Handlers) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "phoneNumber is required")
		return
	}
	chatID := model.NormalizeChatID(req.PhoneNumber)
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "invalid phone number")
		return
	}
	if !h.hub.Status().Ready {
		writeError(w, http.StatusServiceUnavailable, "WhatsApp client is not ready")
		return
	}

	registered, err := h.registrar.IsRegistered(r.Context(), chatID)
	if err != nil {
		h.logger.Error("registration check failed", zap.String("chat", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to check number")
		return
	}
	if !registered {
		writeError(w, http.StatusNotFound, "number is not registered on WhatsApp")
		return
	}

	chat, err := h.pipeline.CreateChat(chatID, "")
	if err != nil {
		h.logger.Warn("chat persisted with error", zap.String("chat", chatID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chat": chat})
}

// SendMessage fronts the send gateway.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
		Message     string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	chat, err := h.gateway.Send(r.Context(), req.PhoneNumber, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, send.ErrEmptyBody), errors.Is(err, send.ErrInvalidChat):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, send.ErrNotReady):
			writeError(w, http.StatusServiceUnavailable, "WhatsApp client is not ready, retry later")
		default:
			h.logger.Error("send failed", zap.String("to", req.PhoneNumber), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	resp := map[string]any{"success": true}
	if chat != nil && chat.LastMessage != nil {
		resp["messageId"] = chat.LastMessage.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProviderStatus reports readiness, authentication and any pending QR code.
func (h *Handlers) ProviderStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Status())
}

// QRImage renders the current pairing QR code as a PNG.
func (h *Handlers) QRImage(w http.ResponseWriter, _ *http.Request) {
	code := h.hub.QRCode()
	if code == "" {
		http.Error(w, "no QR code pending", http.StatusNotFound)
		return
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		h.logger.Error("QR render failed", zap.Error(err))
		http.Error(w, "failed to render QR code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}
