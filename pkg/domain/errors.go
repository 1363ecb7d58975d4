package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrPasteNotFound      = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrPasteBurned        = NewErr("PASTE_BURNED", "paste was burned after reading", http.StatusGone)
	ErrPasteTooLarge      = NewErr("PASTE_TOO_LARGE", "paste too large", http.StatusRequestEntityTooLarge)
	ErrContentRequired    = NewErr("CONTENT_REQUIRED", "content required", http.StatusBadRequest)
	ErrInvalidTTL         = NewErr("INVALID_TTL", "invalid ttl", http.StatusBadRequest)
	ErrUnknownLanguage    = NewErr("UNKNOWN_LANGUAGE", "unknown language", http.StatusBadRequest)
	ErrInvalidRequest     = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrForbidden          = NewErr("FORBIDDEN", "invalid view key", http.StatusForbidden)
	ErrRateLimited        = NewErr("RATE_LIMITED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrUnauthorized       = NewErr("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized)
	ErrCodeNotFound       = NewErr("CODE_NOT_FOUND", "device code not found or expired", http.StatusNotFound)
	ErrCodeApproved       = NewErr("CODE_APPROVED", "device code already approved", http.StatusBadRequest)
	ErrTokenNotFound      = NewErr("TOKEN_NOT_FOUND", "token not found", http.StatusNotFound)
	ErrInternalServer     = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
	ErrIDGenerationFailed = NewErr("ID_GENERATION_FAILED", "id generation failed", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }

func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}

type ErrDetail struct {
	Code string `json:"code"`
	Msg  string `json:"message"`
}

func ToResp(err error) ErrResp {
	if e, ok := err.(*Err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: "INTERNAL_ERROR", Msg: "internal error"}}
}

func Status(err error) int {
	if e, ok := err.(*Err); ok {
		return e.Status
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
