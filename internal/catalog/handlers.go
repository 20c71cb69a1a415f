package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stitchline/backend-quote/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Product handles GET /api/v1/products/{styleNo}. An optional color query
// parameter restricts the lookup to styles carrying that color.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	styleNo := chi.URLParam(r, "styleNo")
	color := r.URL.Query().Get("color")
	product, err := h.service.FindProduct(r.Context(), styleNo, color)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// Styles handles GET /api/v1/styles with an incremental prefix search.
func (h *Handler) Styles(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	styles, err := h.service.SearchStyles(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(styles)))
	common.JSON(w, http.StatusOK, map[string]any{"data": styles})
}
