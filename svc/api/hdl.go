package api

import (
	"encoding/json"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"

	"punt/cfg"
	"punt/pkg/domain"
	"punt/svc/lim"
	"punt/svc/svc"
	"punt/svc/util"
)

type Hdl struct {
	paste  *svc.Paste
	tokens *svc.Tokens
	device *svc.Device
	lim    *lim.Limiter
	cfg    *cfg.Cfg
}

// CreatePaste accepts the paste body raw; creation options ride in
// headers so the body needs no envelope and binary-ish text survives
// untouched.
func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	ident := Identity(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxPasteSize+1)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErr(w, domain.ErrPasteTooLarge, requestID)
			return
		}
		log.Warn().Err(err).Msg("failed to read request body")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	if !utf8.Valid(body) {
		log.Warn().Msg("body is not valid UTF-8")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}

	params := domain.CreateParams{
		Content:       norm.NFC.String(string(body)),
		TTL:           r.Header.Get("X-TTL"),
		BurnAfterRead: r.Header.Get("X-Burn-After-Read") == "1",
		Private:       r.Header.Get("X-Private") == "1",
		Language:      r.Header.Get("X-Language"),
		Identity:      ident,
	}
	result, err := h.paste.Create(r.Context(), params)
	if err != nil {
		log.Warn().Err(err).Msg("create failed")
		writeErr(w, err, requestID)
		return
	}
	if err := h.lim.Increment(r.Context(), ident, lim.OpCreate); err != nil {
		util.Warn().Err(err).Str("identity", ident.Key()).Msg("quota increment failed")
	}

	log.Info().
		Str("paste_id", result.Paste.ID).
		Bool("burn", params.BurnAfterRead).
		Bool("private", params.Private).
		Msg("paste created")

	w.Header().Set("X-Paste-Id", result.Paste.ID)
	w.Header().Set("X-Delete-Key", result.DeleteKey)
	if result.TTLWarning != "" {
		w.Header().Set("X-TTL-Warning", result.TTLWarning)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	resp := map[string]any{
		"id":         result.Paste.ID,
		"url":        h.cfg.BaseURL + "/" + result.Paste.ID,
		"delete_key": result.DeleteKey,
		"expires_at": result.Paste.ExpiresAt,
	}
	if result.ViewKey != "" {
		resp["view_key"] = result.ViewKey
	}
	if result.TTLWarning != "" {
		resp["ttl_warning"] = result.TTLWarning
	}
	json.NewEncoder(w).Encode(resp)
}

// GetPaste serves the paste as JSON. This is a counted view, so burn
// semantics apply here exactly as on the raw endpoint.
func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	paste, ok := h.view(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(paste)
}

func (h *Hdl) GetPasteRaw(w http.ResponseWriter, r *http.Request) {
	paste, ok := h.view(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, paste.Content)
}

func (h *Hdl) view(w http.ResponseWriter, r *http.Request) (*domain.Paste, bool) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	key := r.URL.Query().Get("key")
	paste, err := h.paste.View(r.Context(), id, key)
	if err != nil {
		log.Warn().Err(err).Str("paste_id", id).Msg("view failed")
		writeErr(w, err, requestID)
		return nil, false
	}
	log.Info().
		Str("paste_id", id).
		Int64("views", paste.Views).
		Msg("paste retrieved")
	return paste, true
}

// DeletePaste removes a paste by delete key. 404 covers both an unknown
// paste and a wrong key; the caller cannot probe which.
func (h *Hdl) DeletePaste(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	deleteKey := chi.URLParam(r, "deleteKey")
	deleted, err := h.paste.Delete(r.Context(), id, deleteKey)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("paste_id", id).Msg("delete failed")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	if !deleted {
		writeErr(w, domain.ErrPasteNotFound, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

type reportReq struct {
	Reason string `json:"reason"`
}

func (h *Hdl) ReportPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	ident := Identity(r.Context())
	id := chi.URLParam(r, "id")

	var req reportReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	if err := h.paste.Report(r.Context(), id, req.Reason, ident.Addr); err != nil {
		log.Warn().Err(err).Str("paste_id", id).Msg("report failed")
		writeErr(w, err, requestID)
		return
	}
	if err := h.lim.Increment(r.Context(), ident, lim.OpReport); err != nil {
		util.Warn().Err(err).Str("identity", ident.Key()).Msg("quota increment failed")
	}
	log.Info().Str("paste_id", id).Msg("paste reported")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reported"})
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	resp := domain.ToResp(err)
	if statusCode >= 500 {
		resp = domain.ToResp(domain.ErrInternalServer)
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
