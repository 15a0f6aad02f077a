package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lvcoi/ytdl-broker/internal/downloader"
	"github.com/lvcoi/ytdl-broker/internal/ledger"
)

type videoInfoRequest struct {
	URL string `json:"url"`
}

type videoDownloadRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
	Format  string `json:"format"`
	Title   string `json:"title"`
}

type videoDownloadResponse struct {
	Title            string `json:"title"`
	Thumbnail        string `json:"thumbnail"`
	Author           string `json:"author"`
	QualityRequested string `json:"qualityRequested"`
	QualityResolved  string `json:"qualityResolved"`
	Format           string `json:"format"`
	FormatID         string `json:"formatId,omitempty"`
	DownloadURL      string `json:"downloadUrl"`
	Strategy         string `json:"strategy"`
	ExpiresNote      string `json:"expiresNote"`
	TokenCost        *int   `json:"tokenCost,omitempty"`
	TokensRemaining  *int   `json:"tokensRemaining,omitempty"`
	Warning          string `json:"warning,omitempty"`
}

type statusResponse struct {
	Status        string   `json:"status"`
	Uptime        string   `json:"uptime"`
	UptimeSeconds int64    `json:"uptimeSeconds"`
	Strategies    []string `json:"strategies"`
	Ledger        bool     `json:"ledger"`
}

func (s *Server) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	var req videoInfoRequest
	if rerr := decodeJSONBody(w, r, &req); rerr != nil {
		writeRequestError(w, rerr)
		return
	}
	ref, err := downloader.Validate(req.URL)
	if err != nil {
		writeRequestError(w, classifyError(err))
		return
	}
	info := s.service.Info(r.Context(), ref)
	s.requestLogger(r).Debug("video info", "video_id", ref.VideoID, "source", info.Source)
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleVideoDownload(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	var req videoDownloadRequest
	if rerr := decodeJSONBody(w, r, &req); rerr != nil {
		writeRequestError(w, rerr)
		return
	}

	var userID string
	if s.ledger != nil {
		id, err := s.ledger.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeRequestError(w, s.ledgerError(logger, "authenticate", err))
			return
		}
		userID = id
	}

	ref, err := downloader.Validate(req.URL)
	if err != nil {
		writeRequestError(w, classifyError(err))
		return
	}
	quality, err := downloader.ParseQuality(req.Quality)
	if err != nil {
		writeRequestError(w, classifyError(err))
		return
	}

	format, err := downloader.ParseFormat(req.Format)
	if err != nil {
		writeRequestError(w, classifyError(err))
		return
	}

	// Audio-only downloads are billed under their own "audio" key.
	billedAs := quality.String()
	if format.AudioOnly() {
		billedAs = "audio"
	}
	cost := s.costs.For(billedAs)
	if s.ledger != nil {
		balance, err := s.ledger.Balance(r.Context(), userID)
		if err != nil {
			writeRequestError(w, s.ledgerError(logger, "balance", err))
			return
		}
		if balance < cost {
			writeJSONError(w, http.StatusPaymentRequired, codeInsufficient,
				fmt.Sprintf("Not enough tokens. %s needs %d, you have %d.", billedAs, cost, balance))
			return
		}
	}

	dl, err := s.service.Download(r.Context(), ref, quality, format)
	if err != nil {
		rerr := classifyError(err)
		logger.Warn("download failed", "video_id", ref.VideoID, "quality", quality, "format", format, "category", downloader.CategoryOf(err), "err", err)
		writeRequestError(w, rerr)
		return
	}

	title := dl.Metadata.Title
	if dl.Metadata.IsPlaceholder() && strings.TrimSpace(req.Title) != "" {
		title = strings.TrimSpace(req.Title)
	}
	resp := videoDownloadResponse{
		Title:            title,
		Thumbnail:        dl.Metadata.ThumbnailURL,
		Author:           dl.Metadata.Author,
		QualityRequested: quality.String(),
		QualityResolved:  dl.QualityResolved(),
		Format:           format.String(),
		FormatID:         dl.Resolution.FormatID,
		DownloadURL:      dl.Resolution.DownloadURL,
		Strategy:         dl.Resolution.Strategy,
		ExpiresNote:      directLinkExpiresNote,
	}

	if s.ledger != nil {
		s.settle(r.Context(), logger, &resp, ledger.DownloadRecord{
			UserID:     userID,
			VideoURL:   ref.InputURL,
			VideoID:    ref.VideoID,
			VideoTitle: title,
			Quality:    billedAs,
			Strategy:   dl.Resolution.Strategy,
			Cost:       cost,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// settle debits and records a successful download. Failures here never
// retract the link; they are reported through the warning field.
func (s *Server) settle(ctx context.Context, logger *log.Logger, resp *videoDownloadResponse, record ledger.DownloadRecord) {
	ctx = context.WithoutCancel(ctx)
	cost := record.Cost
	resp.TokenCost = &cost

	remaining, err := s.ledger.Debit(ctx, record.UserID, cost)
	if err != nil {
		logger.Error("token debit failed", "user", record.UserID, "cost", cost, "err", err)
		resp.Warning = "Token deduction failed; this download was not charged."
		return
	}
	resp.TokensRemaining = &remaining

	if _, err := s.ledger.RecordDownload(ctx, record); err != nil {
		logger.Error("download history write failed", "user", record.UserID, "err", err)
		resp.Warning = "Download history could not be recorded."
	}
}

func (s *Server) ledgerError(logger *log.Logger, op string, err error) *requestError {
	rerr := classifyError(err)
	if rerr.status == http.StatusInternalServerError {
		logger.Error("ledger error", "op", op, "err", err)
	}
	return rerr
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, OPTIONS")
		writeJSONError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}
	uptime := time.Since(s.startedAt)
	writeJSON(w, http.StatusOK, statusResponse{
		Status:        "ok",
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Strategies:    s.service.Strategies(),
		Ledger:        s.ledger != nil,
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
