package http

import (
	"net/http"

	applog "buckify/internal/log"
	"buckify/internal/services"
)

type categoryRequest struct {
	Name        string     `json:"name" validate:"required,max=80"`
	Description string     `json:"description" validate:"max=500"`
	Budget      flexString `json:"budget" validate:"max=32"`
	Color       string     `json:"color" validate:"omitempty,hexcolor"`
	Icon        string     `json:"icon" validate:"max=32"`
}

func (c categoryRequest) input() services.CategoryInput {
	return services.CategoryInput{
		Name:        sanitizeInput(c.Name),
		Description: sanitizeInput(c.Description),
		Budget:      sanitizeInput(string(c.Budget)),
		Color:       sanitizeInput(c.Color),
		Icon:        sanitizeInput(c.Icon),
	}
}

// deleteCategoryRequest is the body of the delete mutation. Both a missing
// field and null mean the category's transactions are deleted with it.
type deleteCategoryRequest struct {
	TransferToCategoryID *string `json:"transferToCategoryId"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	cats, err := s.categories.ListCategories(r.Context(), hid)
	if err != nil {
		ServiceError(w, r, applog.ComponentCategory, applog.OpList, err)
		return
	}
	out := make([]categoryDTO, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryDTO(c))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	var req categoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	c, err := s.categories.CreateCategory(r.Context(), hid, req.input())
	if err != nil {
		ServiceError(w, r, applog.ComponentCategory, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toCategoryDTO(c)).Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	var req categoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	c, err := s.categories.UpdateCategory(r.Context(), hid, r.PathValue("id"), req.input())
	if err != nil {
		ServiceError(w, r, applog.ComponentCategory, applog.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(toCategoryDTO(c)).Write(w)
}

// handleDeleteCategory answers 200 with the typed result for every outcome
// of the mutation, including rejections.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	var req deleteCategoryRequest
	if err := DecodeJSON(w, r, &req, true); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	res := s.categories.DeleteCategory(r.Context(), r.PathValue("id"), hid, req.TransferToCategoryID)
	NewJSONResponse().Body(res).Write(w)
}
