package http

import (
	"net/http"

	applog "buckify/internal/log"
	"buckify/internal/services"
)

type transactionRequest struct {
	Description string     `json:"description" validate:"required,max=200"`
	Amount      flexString `json:"amount" validate:"required,max=32"`
	Date        string     `json:"date" validate:"required,datetime=2006-01-02"`
	CategoryID  string     `json:"categoryId" validate:"required,max=64"`
}

func (t transactionRequest) input() services.TransactionInput {
	return services.TransactionInput{
		Description: sanitizeInput(t.Description),
		Amount:      sanitizeInput(string(t.Amount)),
		Date:        sanitizeInput(t.Date),
		CategoryID:  sanitizeInput(t.CategoryID),
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ts, err := s.transactions.ListTransactions(r.Context(), hid, p.Year, p.Month)
	if err != nil {
		ServiceError(w, r, applog.ComponentTransaction, applog.OpList, err)
		return
	}
	out := make([]transactionDTO, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransactionDTO(t))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	var req transactionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	t, err := s.transactions.CreateTransaction(r.Context(), hid, req.input())
	if err != nil {
		ServiceError(w, r, applog.ComponentTransaction, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toTransactionDTO(t)).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	var req transactionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	t, err := s.transactions.UpdateTransaction(r.Context(), hid, r.PathValue("id"), req.input())
	if err != nil {
		ServiceError(w, r, applog.ComponentTransaction, applog.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(toTransactionDTO(t)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	if err := s.transactions.DeleteTransaction(r.Context(), hid, r.PathValue("id")); err != nil {
		ServiceError(w, r, applog.ComponentTransaction, applog.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
