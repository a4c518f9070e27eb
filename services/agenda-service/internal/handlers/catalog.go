package handlers

import (
	"log/slog"
	"net/http"
	"strings"
)

type CatalogHandler struct {
	catalog CatalogSource
	logger  *slog.Logger
}

func NewCatalogHandler(catalog CatalogSource, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

func (h *CatalogHandler) Specialties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	specialties, err := h.catalog.Specialties(r.Context())
	if err != nil {
		h.logger.Error("specialty list failed", "err", err)
		http.Error(w, "failed to list specialties", http.StatusInternalServerError)
		return
	}

	items := make([]specialtyItem, 0, len(specialties))
	for _, s := range specialties {
		items = append(items, specialtyItem{SpecialtyID: s.ID, Name: s.Name})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) Procedures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	specialtyID := strings.TrimSpace(r.URL.Query().Get("specialty_id"))
	if specialtyID == "" {
		http.Error(w, "specialty_id required", http.StatusBadRequest)
		return
	}

	procedures, err := h.catalog.ProceduresBySpecialty(r.Context(), specialtyID)
	if err != nil {
		h.logger.Error("procedure list failed", "err", err, "specialty_id", specialtyID)
		http.Error(w, "failed to list procedures", http.StatusInternalServerError)
		return
	}

	items := make([]procedureItem, 0, len(procedures))
	for _, p := range procedures {
		items = append(items, procedureItem{ProcedureID: p.ID, Name: p.Name, SpecialtyID: p.SpecialtyID})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) Professionals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	specialtyID := strings.TrimSpace(r.URL.Query().Get("specialty_id"))
	if specialtyID == "" {
		http.Error(w, "specialty_id required", http.StatusBadRequest)
		return
	}

	professionals, err := h.catalog.ProfessionalsBySpecialty(r.Context(), specialtyID)
	if err != nil {
		h.logger.Error("professional list failed", "err", err, "specialty_id", specialtyID)
		http.Error(w, "failed to list professionals", http.StatusInternalServerError)
		return
	}

	items := make([]professionalItem, 0, len(professionals))
	for _, p := range professionals {
		items = append(items, professionalItem{ProfessionalID: p.ID, Name: p.Name, SpecialtyID: p.SpecialtyID})
	}
	writeJSON(w, http.StatusOK, items)
}
