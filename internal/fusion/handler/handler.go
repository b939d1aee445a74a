// Package handler exposes the fusion ledger over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fusionledger/internal/fusion/models"
	"fusionledger/internal/fusion/service"
	"fusionledger/internal/platform/middleware"
	id "fusionledger/pkg/domain"
	dErrors "fusionledger/pkg/domain-errors"
	"fusionledger/pkg/platform/httputil"
	"fusionledger/pkg/platform/middleware/requesttime"
	"fusionledger/pkg/requestcontext"
)

// Service defines the ledger operations the HTTP layer depends on.
type Service interface {
	Fuse(ctx context.Context, req service.FuseRequest) (*models.Record, error)
	GetTimeline(ctx context.Context, subjectID id.SubjectID) ([]*models.Record, error)
	GetRecord(ctx context.Context, subjectID id.SubjectID, recordID id.RecordID) (*models.Record, error)
	GetStatistics(ctx context.Context) (*service.Statistics, error)
}

// Handler handles fusion ledger endpoints.
type Handler struct {
	logger *slog.Logger
	ledger Service
}

// New creates a fusion Handler.
func New(ledger Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		ledger: ledger,
	}
}

// Register registers the fusion routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	fusionRouter := chi.NewRouter()
	fusionRouter.Use(middleware.Recovery(h.logger))
	fusionRouter.Use(middleware.RequestID)
	fusionRouter.Use(requesttime.Middleware)
	fusionRouter.Use(middleware.Logger(h.logger))
	fusionRouter.Use(middleware.Timeout(30 * time.Second))
	fusionRouter.Use(middleware.ContentTypeJSON)
	fusionRouter.Post("/fusion/records", h.handleFuseRecord)
	fusionRouter.Get("/fusion/subjects/{subjectID}/timeline", h.handleGetTimeline)
	fusionRouter.Get("/fusion/subjects/{subjectID}/records/{recordID}/report", h.handleGetReport)
	fusionRouter.Get("/fusion/statistics", h.handleGetStatistics)

	r.Mount("/", fusionRouter)
}

// handleFuseRecord fuses the supplied observations into one record and
// returns it with its full derivation chain.
func (h *Handler) handleFuseRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[FuseRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.ledger.Fuse(ctx, service.FuseRequest{
		SubjectID:       id.SubjectID(req.SubjectID),
		CommunitySignal: req.CommunitySignal,
		ClinicalRecord:  req.ClinicalRecord,
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "fusion failed",
				"request_id", requestID,
				"subject_id", req.SubjectID,
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(record))
}

// handleGetTimeline returns the subject's records sorted ascending by event
// time. An unknown subject yields an empty list.
func (h *Handler) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := id.SubjectID(chi.URLParam(r, "subjectID"))

	timeline, err := h.ledger.GetTimeline(ctx, subjectID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load timeline",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", subjectID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	resp := TimelineResponse{
		SubjectID: subjectID.String(),
		Records:   make([]RecordResponse, 0, len(timeline)),
	}
	for _, record := range timeline {
		resp.Records = append(resp.Records, toRecordResponse(record))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleGetReport returns the surveillance report projection of one record.
func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := id.SubjectID(chi.URLParam(r, "subjectID"))

	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.ledger.GetRecord(ctx, subjectID, recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ReportResponse{
		RecordID:            record.ID.String(),
		Location:            record.Report.Location,
		DiseaseCode:         record.Report.DiseaseCode,
		ClinicalSummary:     record.Report.ClinicalSummary,
		CrossSourceVerified: record.Report.CrossSourceVerified,
		SubmissionStatus:    record.Report.SubmissionStatus,
	})
}

// handleGetStatistics returns aggregate counts over the record store.
func (h *Handler) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.ledger.GetStatistics(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to compute statistics",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
