package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/haven-msg/sentinel/moderation/analysis"
	"github.com/haven-msg/sentinel/moderation/cleanup"
	"github.com/haven-msg/sentinel/moderation/engine"
	"github.com/haven-msg/sentinel/moderation/evidence"
	"github.com/haven-msg/sentinel/moderation/screenguard"
	"github.com/haven-msg/sentinel/moderation/store"
	"github.com/haven-msg/sentinel/moderation/suspension"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(200, GenericStatus{Status: "ok", Daemon: "sentinel"})
}

type submitContentRequest struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Text           string `json:"text"`
	ContentType    string `json:"content_type"`
}

func (srv *Server) HandleSubmitContent(c echo.Context) error {
	ctx := c.Request().Context()
	var req submitContentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	flag, err := srv.engine.SubmitContent(ctx, engine.ContentSubmission{
		MessageID:      req.MessageID,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Text:           req.Text,
		ContentType:    req.ContentType,
	})
	if err != nil {
		return err
	}
	return c.JSON(200, flag)
}

func (srv *Server) HandleListFlags(c echo.Context) error {
	ctx := c.Request().Context()
	q := store.FlagQuery{
		Status:         store.FlagStatus(c.QueryParam("status")),
		Severity:       store.Severity(c.QueryParam("severity")),
		UserID:         c.QueryParam("user_id"),
		ConversationID: c.QueryParam("conversation_id"),
		Limit:          100,
	}
	flags, err := srv.flags.ListContentFlags(ctx, q)
	if err != nil {
		return err
	}
	return c.JSON(200, map[string]any{"flags": flags})
}

type reviewFlagRequest struct {
	ReviewedBy string `json:"reviewed_by"`
	Status     string `json:"status"`
	Action     string `json:"action"`
	Notes      string `json:"notes"`
	EscalateTo string `json:"escalate_to"`
}

func (srv *Server) HandleReviewFlag(c echo.Context) error {
	ctx := c.Request().Context()
	var req reviewFlagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	flag, err := srv.engine.ReviewFlag(ctx, c.Param("flagID"), engine.ReviewRequest{
		ReviewedBy: req.ReviewedBy,
		Status:     store.FlagStatus(req.Status),
		Action:     store.ModAction(req.Action),
		Notes:      req.Notes,
		EscalateTo: req.EscalateTo,
	})
	if err != nil {
		return err
	}
	return c.JSON(200, flag)
}

type reportRequest struct {
	Agency  string `json:"agency"`
	Urgency string `json:"urgency"`
	Actor   string `json:"actor"`
}

func (srv *Server) HandleReportToAuthorities(c echo.Context) error {
	ctx := c.Request().Context()
	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	report, err := srv.engine.ReportToAuthorities(ctx, c.Param("flagID"), req.Agency, req.Urgency, req.Actor)
	if err != nil {
		return err
	}
	return c.JSON(200, report)
}

type scanRequest struct {
	LookbackDays int    `json:"lookback_days"`
	ResumeScanID string `json:"resume_scan_id"`
}

func (srv *Server) HandleScanConversation(c echo.Context) error {
	ctx := c.Request().Context()
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	scan, err := srv.engine.ScanConversation(ctx, engine.ScanRequest{
		ConversationID: c.Param("convID"),
		LookbackDays:   req.LookbackDays,
		ResumeScanID:   req.ResumeScanID,
	})
	if err != nil {
		return err
	}
	return c.JSON(200, scan)
}

type activityReportRequest struct {
	UserID             string   `json:"user_id"`
	ActivityType       string   `json:"activity_type"`
	EvidenceMessageIDs []string `json:"evidence_message_ids"`
	ReportedBy         string   `json:"reported_by"`
	Notes              string   `json:"notes"`
}

func (srv *Server) HandleActivityReport(c echo.Context) error {
	ctx := c.Request().Context()
	var req activityReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	flag, err := srv.engine.SubmitActivityReport(ctx, engine.ActivityReport{
		UserID:             req.UserID,
		ActivityType:       req.ActivityType,
		EvidenceMessageIDs: req.EvidenceMessageIDs,
		ReportedBy:         req.ReportedBy,
		Notes:              req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(200, flag)
}

type suspendRequest struct {
	Type              string `json:"type"`
	Severity          string `json:"severity"`
	Reason            string `json:"reason"`
	DurationHours     int    `json:"duration_hours"`
	CreatedBy         string `json:"created_by"`
	EvidencePreserved bool   `json:"evidence_preserved"`
}

func (srv *Server) HandleSuspendUser(c echo.Context) error {
	ctx := c.Request().Context()
	var req suspendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	sreq := suspension.Request{
		UserID:            c.Param("userID"),
		Type:              store.SuspensionType(req.Type),
		Severity:          store.SuspensionSeverity(req.Severity),
		Reason:            req.Reason,
		CreatedBy:         req.CreatedBy,
		EvidencePreserved: req.EvidencePreserved,
	}
	if req.DurationHours > 0 {
		d := time.Duration(req.DurationHours) * time.Hour
		sreq.Duration = &d
	}
	susp, err := srv.engine.SuspendUser(ctx, sreq)
	if err != nil {
		return err
	}
	return c.JSON(200, susp)
}

type liftRequest struct {
	Actor    string `json:"actor"`
	Override bool   `json:"override"`
}

func (srv *Server) HandleLiftSuspension(c echo.Context) error {
	ctx := c.Request().Context()
	var req liftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	susp, err := srv.engine.LiftSuspension(ctx, c.Param("userID"), req.Actor, req.Override)
	if err != nil {
		return err
	}
	return c.JSON(200, susp)
}

type restrictionsResponse struct {
	Restricted   bool                `json:"restricted"`
	Suspension   *store.Suspension   `json:"suspension,omitempty"`
	Restrictions *store.Restrictions `json:"restrictions,omitempty"`
}

func (srv *Server) HandleCheckRestrictions(c echo.Context) error {
	ctx := c.Request().Context()
	susp, restricted, err := srv.engine.Suspensions.Check(ctx, c.Param("userID"))
	if err != nil {
		return err
	}
	resp := restrictionsResponse{Restricted: restricted}
	if restricted {
		resp.Suspension = susp
		resp.Restrictions = &susp.Restrictions
	}
	return c.JSON(200, resp)
}

type agencyUpdateRequest struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Note      string `json:"note"`
}

func (srv *Server) HandleAgencyUpdate(c echo.Context) error {
	ctx := c.Request().Context()
	var req agencyUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	report, err := srv.engine.Evidence.ApplyAgencyUpdate(ctx, c.Param("caseID"), store.CaseStatus(req.Status), req.Reference, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(200, report)
}

type alertActionRequest struct {
	Actor   string `json:"actor"`
	Dismiss bool   `json:"dismiss"`
}

func (srv *Server) HandleAcknowledgeAlert(c echo.Context) error {
	ctx := c.Request().Context()
	var req alertActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	alert, err := srv.engine.AcknowledgeAlert(ctx, c.Param("alertID"), req.Actor)
	if err != nil {
		return err
	}
	return c.JSON(200, alert)
}

func (srv *Server) HandleResolveAlert(c echo.Context) error {
	ctx := c.Request().Context()
	var req alertActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	alert, err := srv.engine.ResolveAlert(ctx, c.Param("alertID"), req.Actor, req.Dismiss)
	if err != nil {
		return err
	}
	return c.JSON(200, alert)
}

type screenshotAttemptRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Method         string `json:"method"`
	DeviceInfo     string `json:"device_info"`
	Attribute      bool   `json:"attribute"`
}

func (srv *Server) HandleScreenshotAttempt(c echo.Context) error {
	ctx := c.Request().Context()
	var req screenshotAttemptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	res, err := srv.guard.RecordAttempt(ctx, screenguard.Attempt{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Method:         req.Method,
		DeviceInfo:     req.DeviceInfo,
		Attribute:      req.Attribute,
	})
	if err != nil {
		return err
	}
	return c.JSON(200, res)
}

type createHoldRequest struct {
	RetentionClass  string   `json:"retention_class"`
	Reason          string   `json:"reason"`
	CreatedBy       string   `json:"created_by"`
	CaseID          string   `json:"case_id"`
	UserIDs         []string `json:"user_ids"`
	ConversationIDs []string `json:"conversation_ids"`
	MessageIDs      []string `json:"message_ids"`
}

func (srv *Server) HandleCreateHold(c echo.Context) error {
	ctx := c.Request().Context()
	var req createHoldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	hold, err := srv.engine.Evidence.CreateHold(ctx, evidence.HoldRequest{
		RetentionClass:  req.RetentionClass,
		Reason:          req.Reason,
		CreatedBy:       req.CreatedBy,
		CaseID:          req.CaseID,
		UserIDs:         req.UserIDs,
		ConversationIDs: req.ConversationIDs,
		MessageIDs:      req.MessageIDs,
	})
	if err != nil {
		return err
	}
	return c.JSON(200, hold)
}

type releaseHoldRequest struct {
	Actor string `json:"actor"`
}

func (srv *Server) HandleReleaseHold(c echo.Context) error {
	ctx := c.Request().Context()
	var req releaseHoldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	hold, err := srv.engine.Evidence.ReleaseHold(ctx, c.Param("holdID"), req.Actor)
	if err != nil {
		return err
	}
	return c.JSON(200, hold)
}

type maintenanceRequest struct {
	Ops []string `json:"ops"`
}

func (srv *Server) HandleMaintenance(c echo.Context) error {
	ctx := c.Request().Context()
	var req maintenanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	results, err := srv.cleaner.RunMaintenance(ctx, req.Ops)
	if err != nil {
		return err
	}
	return c.JSON(200, map[string]any{"results": results})
}

type bulkCleanupRequest struct {
	Kind           string `json:"kind"`
	ConversationID string `json:"conversation_id"`
	OlderThanDays  int    `json:"older_than_days"`
	DryRun         bool   `json:"dry_run"`
	RequestedBy    string `json:"requested_by"`
}

func (srv *Server) HandleBulkCleanup(c echo.Context) error {
	ctx := c.Request().Context()
	var req bulkCleanupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	res, err := srv.cleaner.BulkCleanup(ctx, cleanup.BulkRequest{
		Kind:           req.Kind,
		ConversationID: req.ConversationID,
		OlderThanDays:  req.OlderThanDays,
		DryRun:         req.DryRun,
		RequestedBy:    req.RequestedBy,
	})
	if err != nil {
		return err
	}
	return c.JSON(200, res)
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	errorName := "InternalError"

	var ve *engine.ValidationError
	var sve *suspension.ValidationError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		errorName = "RequestError"
	case errors.As(err, &ve), errors.As(err, &sve):
		code = http.StatusBadRequest
		errorName = "ValidationError"
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
		errorName = "NotFound"
	case errors.Is(err, store.ErrConflict):
		code = http.StatusConflict
		errorName = "Conflict"
	case errors.Is(err, suspension.ErrNotAuthorized):
		code = http.StatusForbidden
		errorName = "NotAuthorized"
	case errors.Is(err, analysis.ErrUnavailable):
		code = http.StatusServiceUnavailable
		errorName = "AnalysisUnavailable"
	case errors.Is(err, evidence.ErrInvalidTransition):
		code = http.StatusConflict
		errorName = "InvalidTransition"
	case errors.Is(err, evidence.ErrUnknownRetentionClass):
		code = http.StatusBadRequest
		errorName = "UnknownRetentionClass"
	}
	if code >= 500 {
		srv.logger.Warn("sentinel-http-internal-error", "err", err)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, GenericError{Error: errorName, Message: fmt.Sprintf("%s", err)})
	}
}
