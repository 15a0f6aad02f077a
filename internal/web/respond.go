package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/lvcoi/ytdl-broker/internal/downloader"
	"github.com/lvcoi/ytdl-broker/internal/ledger"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// Error codes carried in the JSON error body.
const (
	codeInvalidURL        = "INVALID_URL"
	codeInvalidQuality    = "INVALID_QUALITY"
	codeInvalidRequest    = "INVALID_REQUEST"
	codeUnauthorized      = "UNAUTHORIZED"
	codeInsufficient      = "INSUFFICIENT_TOKENS"
	codeProfileNotFound   = "PROFILE_NOT_FOUND"
	codeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	codeProcessingFailed  = "DOWNLOAD_PROCESSING_FAILED"
	codeRateLimited       = "RATE_LIMITED"
	codeTimeout           = "TIMEOUT"
	codeInternal          = "INTERNAL_ERROR"
	processingFailedHint  = "Could not get download link. Try a different quality or try again later."
	directLinkExpiresNote = "Direct links are temporary and usually expire within a few hours."
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type requestError struct {
	status  int
	code    string
	message string
}

func (e *requestError) Error() string { return e.message }

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *requestError {
	// Bare fetch() calls send no Content-Type; their bodies are read as JSON.
	if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return &requestError{http.StatusUnsupportedMediaType, codeInvalidRequest, "content type must be application/json"}
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return &requestError{http.StatusRequestEntityTooLarge, codeInvalidRequest, "request body too large"}
		}
		return &requestError{http.StatusBadRequest, codeInvalidRequest, "invalid JSON payload"}
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return &requestError{http.StatusBadRequest, codeInvalidRequest, "invalid JSON payload"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeRequestError(w http.ResponseWriter, err *requestError) {
	writeJSONError(w, err.status, err.code, err.message)
}

// classifyError maps a domain or ledger error onto the HTTP answer.
func classifyError(err error) *requestError {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return &requestError{http.StatusUnauthorized, codeUnauthorized, "invalid or missing API token"}
	case errors.Is(err, ledger.ErrProfileNotFound):
		return &requestError{http.StatusNotFound, codeProfileNotFound, "profile not found"}
	case errors.Is(err, ledger.ErrInsufficientTokens):
		return &requestError{http.StatusPaymentRequired, codeInsufficient, err.Error()}
	}

	switch downloader.CategoryOf(err) {
	case downloader.CategoryInvalidURL:
		return &requestError{http.StatusBadRequest, codeInvalidURL, err.Error()}
	case downloader.CategoryInvalidQuality:
		return &requestError{http.StatusBadRequest, codeInvalidQuality, err.Error()}
	case downloader.CategoryProcessingFailed, downloader.CategoryNetwork,
		downloader.CategoryUnsupported, downloader.CategoryRestricted:
		return &requestError{http.StatusUnprocessableEntity, codeProcessingFailed, processingFailedHint}
	case downloader.CategoryTimeout, downloader.CategoryCanceled:
		return &requestError{http.StatusGatewayTimeout, codeTimeout, "download resolution timed out"}
	}
	return &requestError{http.StatusInternalServerError, codeInternal, "internal error"}
}
