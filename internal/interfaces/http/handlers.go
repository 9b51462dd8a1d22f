package http

import (
	"errors"
	stdhttp "net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"planning-tracker/internal/application"
	"planning-tracker/internal/domain"
	"planning-tracker/internal/ports"
)

func handleError(c echo.Context, logger ports.Logger, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(stdhttp.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		logger.Error(c.Request().Context(), "request failed", "path", c.Path(), "error", err)
		return c.JSON(stdhttp.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// bindJSON accepts only non-empty JSON bodies, then runs struct validation.
func bindJSON(c echo.Context, dst any) error {
	req := c.Request()
	if req.ContentLength == 0 || req.Body == nil || req.Body == stdhttp.NoBody {
		return domain.Invalidf("Payload required")
	}
	if !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return domain.Invalidf("Content-Type must be application/json")
	}
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return domain.Invalidf("invalid payload")
	}
	return c.Validate(dst)
}

type ApplicationsHandler struct {
	lifecycle *application.LifecycleService
	queries   *application.QueryService
	logger    ports.Logger
}

func NewApplicationsHandler(lifecycle *application.LifecycleService, queries *application.QueryService, logger ports.Logger) *ApplicationsHandler {
	return &ApplicationsHandler{lifecycle: lifecycle, queries: queries, logger: logger}
}

type createApplicationRequest struct {
	PrjCodeName       string `json:"prjCodeName" validate:"max=200"`
	PPReference       string `json:"ppReference" validate:"max=100"`
	LPAReference      string `json:"lpaReference" validate:"max=100"`
	Description       string `json:"description" validate:"max=4000"`
	Council           string `json:"council" validate:"max=200"`
	SubmissionDate    string `json:"submissionDate"`
	ValidationDate    string `json:"validationDate"`
	DeterminationDate string `json:"determinationDate"`
	EOTDate           string `json:"eotDate"`
	CaseOfficer       string `json:"caseOfficer" validate:"max=200"`
	CaseOfficerEmail  string `json:"caseOfficerEmail" validate:"omitempty,email"`
	PlanningPortalURL string `json:"planningPortalUrl" validate:"omitempty,url"`
	Notes             string `json:"notes" validate:"max=4000"`
}

func (h *ApplicationsHandler) Create(c echo.Context) error {
	var req createApplicationRequest
	if err := bindJSON(c, &req); err != nil {
		return handleError(c, h.logger, err)
	}
	app, err := h.lifecycle.CreateApplication(c.Request().Context(), application.CreateApplicationInput{
		PrjCodeName:       req.PrjCodeName,
		PPReference:       req.PPReference,
		LPAReference:      req.LPAReference,
		Description:       req.Description,
		Council:           req.Council,
		SubmissionDate:    req.SubmissionDate,
		ValidationDate:    req.ValidationDate,
		DeterminationDate: req.DeterminationDate,
		EOTDate:           req.EOTDate,
		CaseOfficer:       req.CaseOfficer,
		CaseOfficerEmail:  req.CaseOfficerEmail,
		PlanningPortalURL: req.PlanningPortalURL,
		Notes:             req.Notes,
	})
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusCreated, app)
}

type patchApplicationRequest struct {
	Status            *string `json:"status"`
	Outcome           *string `json:"outcome"`
	ValidationDate    *string `json:"validationDate"`
	DeterminationDate *string `json:"determinationDate"`
	EOTDate           *string `json:"eotDate"`
	Council           *string `json:"council" validate:"omitempty,max=200"`
	Description       *string `json:"description" validate:"omitempty,max=4000"`
	LPAReference      *string `json:"lpaReference" validate:"omitempty,max=100"`
	PlanningPortalURL *string `json:"planningPortalUrl" validate:"omitempty,url"`
	CaseOfficer       *string `json:"caseOfficer" validate:"omitempty,max=200"`
	CaseOfficerEmail  *string `json:"caseOfficerEmail" validate:"omitempty,email"`
	Notes             *string `json:"notes" validate:"omitempty,max=4000"`
}

func (r patchApplicationRequest) patch() application.ApplicationPatch {
	p := application.ApplicationPatch{
		ValidationDate:    r.ValidationDate,
		DeterminationDate: r.DeterminationDate,
		EOTDate:           r.EOTDate,
		Council:           r.Council,
		Description:       r.Description,
		LPAReference:      r.LPAReference,
		PlanningPortalURL: r.PlanningPortalURL,
		CaseOfficer:       r.CaseOfficer,
		CaseOfficerEmail:  r.CaseOfficerEmail,
		Notes:             r.Notes,
	}
	if r.Status != nil {
		status := domain.ApplicationStatus(*r.Status)
		p.Status = &status
	}
	if r.Outcome != nil {
		outcome := domain.ApplicationOutcome(*r.Outcome)
		p.Outcome = &outcome
	}
	return p
}

func (h *ApplicationsHandler) Patch(c echo.Context) error {
	var req patchApplicationRequest
	if err := bindJSON(c, &req); err != nil {
		return handleError(c, h.logger, err)
	}
	if _, err := h.lifecycle.PatchApplication(c.Request().Context(), c.Param("applicationId"), req.patch()); err != nil {
		return handleError(c, h.logger, err)
	}
	return c.NoContent(stdhttp.StatusNoContent)
}

func (h *ApplicationsHandler) Get(c echo.Context) error {
	agg, err := h.queries.GetApplication(c.Request().Context(), c.Param("applicationId"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, agg)
}

func (h *ApplicationsHandler) Delete(c echo.Context) error {
	if err := h.lifecycle.DeleteApplication(c.Request().Context(), c.Param("applicationId")); err != nil {
		return handleError(c, h.logger, err)
	}
	return c.NoContent(stdhttp.StatusNoContent)
}

func (h *ApplicationsHandler) List(c echo.Context) error {
	status := domain.ApplicationStatus(c.QueryParam("status"))
	page := domain.PageRequest{Cursor: c.QueryParam("cursor")}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return handleError(c, h.logger, domain.Invalidf("Query parameter \"limit\" must be between 1 and %d", domain.MaxPageLimit))
		}
		page.Limit = limit
	}
	out, err := h.queries.ListApplications(c.Request().Context(), status, page)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, out)
}

type IssuesHandler struct {
	lifecycle *application.LifecycleService
	queries   *application.QueryService
	logger    ports.Logger
}

func NewIssuesHandler(lifecycle *application.LifecycleService, queries *application.QueryService, logger ports.Logger) *IssuesHandler {
	return &IssuesHandler{lifecycle: lifecycle, queries: queries, logger: logger}
}

type createIssueRequest struct {
	PPReference  string `json:"ppReference" validate:"max=100"`
	LPAReference string `json:"lpaReference" validate:"max=100"`
	Title        string `json:"title" validate:"max=200"`
	Category     string `json:"category" validate:"max=100"`
	Description  string `json:"description" validate:"max=4000"`
	RaisedBy     string `json:"raisedBy" validate:"max=200"`
	AssignedTo   string `json:"assignedTo" validate:"max=200"`
	DateRaised   string `json:"dateRaised"`
	DueDate      string `json:"dueDate"`
	Status       string `json:"status"`
}

func (h *IssuesHandler) Create(c echo.Context) error {
	var req createIssueRequest
	if err := bindJSON(c, &req); err != nil {
		return handleError(c, h.logger, err)
	}
	issue, err := h.lifecycle.CreateIssue(c.Request().Context(), application.CreateIssueInput{
		ApplicationID: c.Param("applicationId"),
		PPReference:   req.PPReference,
		LPAReference:  req.LPAReference,
		Title:         req.Title,
		Category:      req.Category,
		Description:   req.Description,
		RaisedBy:      req.RaisedBy,
		AssignedTo:    req.AssignedTo,
		DateRaised:    req.DateRaised,
		DueDate:       req.DueDate,
		Status:        domain.IssueStatus(req.Status),
	})
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusCreated, issue)
}

type patchIssueRequest struct {
	Title           *string `json:"title" validate:"omitempty,max=200"`
	Category        *string `json:"category" validate:"omitempty,max=100"`
	Description     *string `json:"description" validate:"omitempty,max=4000"`
	RaisedBy        *string `json:"raisedBy" validate:"omitempty,max=200"`
	AssignedTo      *string `json:"assignedTo" validate:"omitempty,max=200"`
	DateRaised      *string `json:"dateRaised"`
	DueDate         *string `json:"dueDate"`
	Status          *string `json:"status"`
	ResolutionNotes *string `json:"resolutionNotes" validate:"omitempty,max=4000"`
	DateResolved    *string `json:"dateResolved"`
}

func (h *IssuesHandler) Patch(c echo.Context) error {
	var req patchIssueRequest
	if err := bindJSON(c, &req); err != nil {
		return handleError(c, h.logger, err)
	}
	patch := application.IssuePatch{
		Title:           req.Title,
		Category:        req.Category,
		Description:     req.Description,
		RaisedBy:        req.RaisedBy,
		AssignedTo:      req.AssignedTo,
		DateRaised:      req.DateRaised,
		DueDate:         req.DueDate,
		ResolutionNotes: req.ResolutionNotes,
		DateResolved:    req.DateResolved,
	}
	if req.Status != nil {
		status := domain.IssueStatus(*req.Status)
		patch.Status = &status
	}
	if _, err := h.lifecycle.UpdateIssue(c.Request().Context(), c.Param("applicationId"), c.Param("issueId"), patch); err != nil {
		return handleError(c, h.logger, err)
	}
	return c.NoContent(stdhttp.StatusNoContent)
}

func (h *IssuesHandler) Delete(c echo.Context) error {
	if err := h.lifecycle.DeleteIssue(c.Request().Context(), c.Param("applicationId"), c.Param("issueId")); err != nil {
		return handleError(c, h.logger, err)
	}
	return c.NoContent(stdhttp.StatusNoContent)
}

func (h *IssuesHandler) List(c echo.Context) error {
	issues, err := h.queries.ListIssues(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, map[string]any{"items": issues})
}

type ExtensionsHandler struct {
	lifecycle *application.LifecycleService
	logger    ports.Logger
}

func NewExtensionsHandler(lifecycle *application.LifecycleService, logger ports.Logger) *ExtensionsHandler {
	return &ExtensionsHandler{lifecycle: lifecycle, logger: logger}
}

type extensionRequest struct {
	RequestedDate *string `json:"requestedDate"`
	AgreedDate    string  `json:"agreedDate"`
	Notes         *string `json:"notes" validate:"omitempty,max=4000"`
}

func (r extensionRequest) input() application.ExtensionInput {
	in := application.ExtensionInput{AgreedDate: r.AgreedDate}
	if r.RequestedDate != nil {
		in.RequestedDate = *r.RequestedDate
	}
	if r.Notes != nil {
		in.Notes = *r.Notes
	}
	return in
}

func (h *ExtensionsHandler) Create(c echo.Context) error {
	var req extensionRequest
	if err := bindJSON(c, &req); err != nil {
		return handleError(c, h.logger, err)
	}
	ext, err := h.lifecycle.CreateExtensionOfTime(c.Request().Context(), c.Param("applicationId"), req.input())
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusCreated, ext)
}

func (h *ExtensionsHandler) Update(c echo.Context) error {
	var req extensionRequest
	if err := bindJSON(c, &req); err != nil {
		return handleError(c, h.logger, err)
	}
	ext, err := h.lifecycle.UpdateExtensionOfTime(c.Request().Context(), c.Param("applicationId"), c.Param("extensionId"), req.input())
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, ext)
}
