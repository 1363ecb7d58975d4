package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"punt/pkg/domain"
	"punt/svc/lim"
	"punt/svc/util"
)

// Device-flow and account handlers. The CLI talks to these; everything
// under /api/me additionally requires a bearer token.

func (h *Hdl) DeviceInit(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	ident := Identity(r.Context())
	code, expiresAt, err := h.device.Init(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("device init failed")
		writeErr(w, err, requestID)
		return
	}
	if err := h.lim.Increment(r.Context(), ident, lim.OpDeviceInit); err != nil {
		util.Warn().Err(err).Str("identity", ident.Key()).Msg("quota increment failed")
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"code":         code,
		"expires_at":   expiresAt,
		"approval_url": h.cfg.BaseURL + "/cli/approve?code=" + code,
		"interval":     int(h.cfg.PollInterval.Seconds()),
	})
}

func (h *Hdl) DevicePoll(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	code := r.URL.Query().Get("code")
	if code == "" {
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	result, err := h.device.Poll(r.Context(), code)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("device poll failed")
		writeErr(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type approveReq struct {
	Code string `json:"code"`
}

func (h *Hdl) DeviceApprove(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	ident := Identity(r.Context())

	var req approveReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil || req.Code == "" {
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	if err := h.device.Approve(r.Context(), req.Code, ident.OwnerID); err != nil {
		log.Warn().Err(err).Msg("device approve failed")
		writeErr(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "approved"})
}

func (h *Hdl) Me(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	ident := Identity(r.Context())
	stats, err := h.paste.Stats(r.Context(), ident.OwnerID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("stats lookup failed")
		writeErr(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"owner_id": ident.OwnerID,
		"stats":    stats,
	})
}

func (h *Hdl) MyPastes(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	ident := Identity(r.Context())
	pastes, err := h.paste.ListOwned(r.Context(), ident.OwnerID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list pastes failed")
		writeErr(w, err, requestID)
		return
	}
	if pastes == nil {
		pastes = []domain.Paste{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pastes)
}

func (h *Hdl) DeleteMyPaste(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	ident := Identity(r.Context())
	id := chi.URLParam(r, "id")
	deleted, err := h.paste.DeleteOwned(r.Context(), id, ident.OwnerID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("paste_id", id).Msg("owned delete failed")
		writeErr(w, err, requestID)
		return
	}
	if !deleted {
		writeErr(w, domain.ErrPasteNotFound, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

type extendReq struct {
	Seconds int64 `json:"seconds"`
}

func (h *Hdl) ExtendMyPaste(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	ident := Identity(r.Context())
	id := chi.URLParam(r, "id")

	var req extendReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	extended, err := h.paste.ExtendTTL(r.Context(), id, ident.OwnerID, req.Seconds)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	if !extended {
		writeErr(w, domain.ErrPasteNotFound, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "extended"})
}

func (h *Hdl) MyTokens(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	ident := Identity(r.Context())
	creds, err := h.tokens.List(r.Context(), ident.OwnerID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list tokens failed")
		writeErr(w, err, requestID)
		return
	}
	if creds == nil {
		creds = []domain.Credential{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(creds)
}

type createTokenReq struct {
	Name string `json:"name"`
}

// CreateToken issues a credential directly for an already-authenticated
// caller, bypassing the device flow. The plaintext appears in this
// response and nowhere else.
func (h *Hdl) CreateToken(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	ident := Identity(r.Context())

	var req createTokenReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	plaintext, cred, err := h.tokens.Issue(r.Context(), ident.OwnerID, req.Name)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("token issue failed")
		writeErr(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"id":    cred.ID,
		"name":  cred.Name,
		"token": plaintext,
	})
}

func (h *Hdl) RevokeToken(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	ident := Identity(r.Context())
	id := chi.URLParam(r, "id")
	revoked, err := h.tokens.Revoke(r.Context(), id, ident.OwnerID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("credential_id", id).Msg("revoke failed")
		writeErr(w, err, requestID)
		return
	}
	if !revoked {
		writeErr(w, domain.ErrTokenNotFound, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "revoked"})
}
