package main

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/glamlab/stylist-gateway/internal/apperr"
	"github.com/glamlab/stylist-gateway/internal/config"
	"github.com/glamlab/stylist-gateway/internal/generation"
	"github.com/glamlab/stylist-gateway/internal/history"
	"github.com/glamlab/stylist-gateway/internal/httputil"
	"github.com/glamlab/stylist-gateway/internal/ledger"
	"github.com/glamlab/stylist-gateway/internal/middleware"
	"github.com/glamlab/stylist-gateway/internal/provider"
	"github.com/glamlab/stylist-gateway/internal/telegram"
)

// maxRequestBody caps inbound JSON bodies; two images plus instructions fit
// comfortably under this.
const maxRequestBody = 20 << 20

// =============================================================================
// Health
// =============================================================================

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "stylist-gateway",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// =============================================================================
// Session
// =============================================================================

func sessionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.IdentityFromContext(r.Context())
		if identity == nil {
			httputil.Unauthorized(w, "")
			return
		}

		token, err := middleware.NewSessionToken(identity, []byte(cfg.JWTSecret), cfg.SessionTTL)
		if err != nil {
			httputil.WriteError(w, apperr.Internal("failed to mint session", err), cfg.IsDevelopment())
			return
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"token":      token,
			"expires_in": int(cfg.SessionTTL.Seconds()),
			"identity": map[string]string{
				"key":        identity.Key,
				"provenance": string(identity.Provenance),
			},
		})
	}
}

// =============================================================================
// Credits
// =============================================================================

func creditsHandler(l ledger.Ledger, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.IdentityFromContext(r.Context())
		if identity == nil {
			httputil.Unauthorized(w, "")
			return
		}

		balance, err := l.Balance(r.Context(), identity.Key)
		if err != nil {
			httputil.WriteError(w, apperr.Internal("failed to read balance", err), cfg.IsDevelopment())
			return
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"balance":             balance,
			"identity_provenance": string(identity.Provenance),
		})
	}
}

// =============================================================================
// History
// =============================================================================

func historyHandler(store history.Store, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.IdentityFromContext(r.Context())
		if identity == nil {
			httputil.Unauthorized(w, "")
			return
		}

		entries, err := store.Recent(r.Context(), identity.Key, cfg.HistoryLimit)
		if err != nil {
			httputil.WriteError(w, apperr.Internal("failed to read history", err), cfg.IsDevelopment())
			return
		}

		type historyItem struct {
			Image        string    `json:"image"`
			MimeType     string    `json:"mime_type"`
			Instructions string    `json:"instructions,omitempty"`
			CreatedAt    time.Time `json:"created_at"`
		}
		items := make([]historyItem, 0, len(entries))
		for _, entry := range entries {
			items = append(items, historyItem{
				Image:        base64.StdEncoding.EncodeToString(entry.Artifact),
				MimeType:     entry.MimeType,
				Instructions: entry.Prompt,
				CreatedAt:    entry.CreatedAt,
			})
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"history": items,
			"total":   len(items),
		})
	}
}

// =============================================================================
// Generation
// =============================================================================

type generateRequest struct {
	Photo             string `json:"photo"`
	PhotoMimeType     string `json:"photo_mime_type"`
	Reference         string `json:"reference,omitempty"`
	ReferenceMimeType string `json:"reference_mime_type,omitempty"`
	Instructions      string `json:"instructions,omitempty"`
}

func generateHandler(svc *generation.Service, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.IdentityFromContext(r.Context())
		if identity == nil {
			httputil.Unauthorized(w, "")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, apperr.BadRequest("invalid request body"), cfg.IsDevelopment())
			return
		}
		if req.Photo == "" {
			httputil.WriteError(w, apperr.BadRequest("photo is required"), cfg.IsDevelopment())
			return
		}

		primary, err := decodeImage(req.Photo, req.PhotoMimeType)
		if err != nil {
			httputil.WriteError(w, apperr.BadRequest("photo is not valid base64"), cfg.IsDevelopment())
			return
		}

		genReq := generation.Request{
			Identity:     identity,
			Primary:      *primary,
			Instructions: req.Instructions,
		}
		if req.Reference != "" {
			reference, err := decodeImage(req.Reference, req.ReferenceMimeType)
			if err != nil {
				httputil.WriteError(w, apperr.BadRequest("reference is not valid base64"), cfg.IsDevelopment())
				return
			}
			genReq.Reference = reference
		}

		result, err := svc.Generate(r.Context(), genReq)
		if err != nil {
			httputil.WriteError(w, err, cfg.IsDevelopment())
			return
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"image":        base64.StdEncoding.EncodeToString(result.Artifact.Data),
			"mime_type":    result.Artifact.MimeType,
			"credits_left": result.Balance,
			"echo":         result.Echo,
		})
	}
}

func decodeImage(data, mimeType string) (*provider.Image, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &provider.Image{Data: decoded, MimeType: mimeType}, nil
}

// =============================================================================
// Webhook
// =============================================================================

func webhookHandler(bot *telegram.Client, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			httputil.WriteError(w, apperr.BadRequest("unreadable update"), cfg.IsDevelopment())
			return
		}

		if err := bot.HandleUpdate(r.Context(), body); err != nil {
			httputil.WriteError(w, apperr.Internal("failed to process update", err), cfg.IsDevelopment())
			return
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
