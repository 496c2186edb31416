package analysis

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cartella/cartella/internal/platform/auth"
	"github.com/cartella/cartella/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:id/analyses", h.Upload)
	api.GET("/patients/:id/analyses", h.List)
	api.GET("/patients/:id/analyses/:analysisID", h.Get)
	api.DELETE("/patients/:id/analyses/:analysisID", h.Delete)
	api.GET("/analyses/:analysisID/values", h.Values)

	adminGroup := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	adminGroup.GET("/reference-ranges", h.ListRanges)
	adminGroup.POST("/reference-ranges", h.SaveRange)
	adminGroup.DELETE("/reference-ranges/:id", h.DeleteRange)
}

// uploadResponse pairs the stored analysis with the ingestion counts.
type uploadResponse struct {
	Analysis *Analysis `json:"analysis"`
	Outcome  *Outcome  `json:"outcome"`
}

func (h *Handler) Upload(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	userID := auth.UserIDFromContext(c.Request().Context())
	analysis, outcome, err := h.svc.Upload(c.Request().Context(), patientID, userID, fileHeader.Filename, src)
	if err != nil {
		if errors.Is(err, ErrTooManyRows) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	return c.JSON(http.StatusCreated, uploadResponse{Analysis: analysis, Outcome: outcome})
}

func (h *Handler) List(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	analysisID, err := uuid.Parse(c.Param("analysisID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid analysis id")
	}
	a, err := h.svc.Get(c.Request().Context(), patientID, analysisID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "analysis not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Values(c echo.Context) error {
	analysisID, err := uuid.Parse(c.Param("analysisID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid analysis id")
	}
	values, err := h.svc.Values(c.Request().Context(), analysisID)
	if err != nil {
		if errors.Is(err, ErrAnalysisNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "analysis not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, values)
}

func (h *Handler) Delete(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	analysisID, err := uuid.Parse(c.Param("analysisID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid analysis id")
	}
	if err := h.svc.Delete(c.Request().Context(), patientID, analysisID); err != nil {
		if errors.Is(err, ErrAnalysisNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "analysis not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Reference range administration --

func (h *Handler) ListRanges(c echo.Context) error {
	ranges, err := h.svc.ListRanges(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ranges)
}

func (h *Handler) SaveRange(c echo.Context) error {
	var r ReferenceRange
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SaveRange(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) DeleteRange(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteRange(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNoReference) {
			return echo.NewHTTPError(http.StatusNotFound, "reference range not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
