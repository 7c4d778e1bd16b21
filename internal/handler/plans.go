package handler

import (
	"net/http"

	"github.com/streamgate/backend/internal/domain"
)

// PlansHandler serves the plan catalog.
type PlansHandler struct {
	catalog *domain.Catalog
}

func NewPlansHandler(catalog *domain.Catalog) *PlansHandler {
	return &PlansHandler{catalog: catalog}
}

// List handles GET /api/plans.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.catalog.Plans())
}
