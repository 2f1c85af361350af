package registry

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/npiregistry/npiregistry/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/providers", h.SearchProviders)
	api.GET("/providers/npi/:npi", h.GetProviderByNPI)
	api.GET("/providers/:id", h.GetProvider)

	api.GET("/taxonomies", h.ListTaxonomies)
	api.GET("/taxonomies/:code", h.GetTaxonomy)

	api.GET("/insurance-carriers", h.ListInsuranceCarriers)
	api.GET("/insurance-carriers/:id", h.GetInsuranceCarrier)
	api.GET("/insurance-plans", h.ListInsurancePlans)
	api.GET("/insurance-plans/:id", h.GetInsurancePlan)
	api.GET("/provider-networks", h.ListProviderNetworks)
	api.GET("/provider-networks/:id", h.GetProviderNetwork)
}

// httpError maps service errors onto HTTP status codes.
func httpError(err error, what string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, what+" not found")
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Providers --

func (h *Handler) SearchProviders(c echo.Context) error {
	activeOnly := true
	if raw := c.QueryParam("active_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "active_only must be true or false")
		}
		activeOnly = v
	}
	pg := pagination.FromContext(c, h.svc.Limits())
	f := ProviderFilter{
		Name:             c.QueryParam("name"),
		NPI:              c.QueryParam("npi"),
		Specialty:        c.QueryParam("specialty"),
		State:            c.QueryParam("state"),
		City:             c.QueryParam("city"),
		InsuranceCarrier: c.QueryParam("insurance_carrier"),
		ActiveOnly:       activeOnly,
		Limit:            pg.Limit,
		Offset:           pg.Offset,
	}
	items, more, err := h.svc.SearchProviders(c.Request().Context(), f)
	if err != nil {
		return httpError(err, "provider")
	}
	if items == nil {
		items = []*Provider{}
	}
	return c.JSON(http.StatusOK, pagination.NewWindowResponse(items, len(items), pg, more))
}

func (h *Handler) GetProvider(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProvider(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "provider")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetProviderByNPI(c echo.Context) error {
	p, err := h.svc.GetProviderByNPI(c.Request().Context(), c.Param("npi"))
	if err != nil {
		return httpError(err, "provider")
	}
	return c.JSON(http.StatusOK, p)
}

// -- Taxonomies --

func (h *Handler) ListTaxonomies(c echo.Context) error {
	pg := pagination.FromContext(c, h.svc.TaxonomyLimits())
	items, total, err := h.svc.ListTaxonomies(c.Request().Context(), TaxonomyFilter{
		Classification: c.QueryParam("classification"),
		Limit:          pg.Limit,
		Offset:         pg.Offset,
	})
	if err != nil {
		return httpError(err, "taxonomy")
	}
	if items == nil {
		items = []*Taxonomy{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), total, pg))
}

func (h *Handler) GetTaxonomy(c echo.Context) error {
	t, err := h.svc.GetTaxonomy(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err, "taxonomy")
	}
	return c.JSON(http.StatusOK, t)
}

// -- Insurance and networks --

func (h *Handler) ListInsuranceCarriers(c echo.Context) error {
	pg := pagination.FromContext(c, h.svc.Limits())
	items, total, err := h.svc.ListInsuranceCarriers(c.Request().Context(), pg)
	if err != nil {
		return httpError(err, "insurance carrier")
	}
	if items == nil {
		items = []*InsuranceCarrier{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), total, pg))
}

func (h *Handler) GetInsuranceCarrier(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	item, err := h.svc.GetInsuranceCarrier(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "insurance carrier")
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) ListInsurancePlans(c echo.Context) error {
	pg := pagination.FromContext(c, h.svc.Limits())
	items, total, err := h.svc.ListInsurancePlans(c.Request().Context(), pg)
	if err != nil {
		return httpError(err, "insurance plan")
	}
	if items == nil {
		items = []*InsurancePlan{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), total, pg))
}

func (h *Handler) GetInsurancePlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	item, err := h.svc.GetInsurancePlan(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "insurance plan")
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) ListProviderNetworks(c echo.Context) error {
	pg := pagination.FromContext(c, h.svc.Limits())
	items, total, err := h.svc.ListProviderNetworks(c.Request().Context(), pg)
	if err != nil {
		return httpError(err, "provider network")
	}
	if items == nil {
		items = []*ProviderNetwork{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), total, pg))
}

func (h *Handler) GetProviderNetwork(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	item, err := h.svc.GetProviderNetwork(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "provider network")
	}
	return c.JSON(http.StatusOK, item)
}
