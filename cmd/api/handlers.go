package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/installments/pkg/ledger"
	"github.com/mcclellann/installments/pkg/models"
	"github.com/mcclellann/installments/pkg/store"
	"github.com/mcclellann/installments/pkg/sweeper"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Server holds the ledger and sweeper behind the HTTP API.
type Server struct {
	ledger  *ledger.Ledger
	sweeper *sweeper.Sweeper
	storage store.Storage // Keep a reference to the storage to close it
	log     *logrus.Logger
}

func NewServer(s store.Storage, l *ledger.Ledger, sw *sweeper.Sweeper, log *logrus.Logger) *Server {
	return &Server{
		ledger:  l,
		sweeper: sw,
		storage: s,
		log:     log,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	r := router.PathPrefix("/installments").Subrouter()

	// Static paths first so they are not captured by {id}.
	r.HandleFunc("", s.listPlansHandler).Methods("GET")
	r.HandleFunc("/create", s.createPlanHandler).Methods("POST")
	r.HandleFunc("/overdue", s.listOverdueHandler).Methods("GET")
	r.HandleFunc("/update-overdue-status", s.sweepHandler).Methods("POST")
	r.HandleFunc("/calculate-installment", s.calculateHandler).Methods("GET")
	r.HandleFunc("/customer/{customerId}", s.listCustomerPlansHandler).Methods("GET")
	r.HandleFunc("/{id}", s.getPlanHandler).Methods("GET")
	r.HandleFunc("/{id}/summary", s.planSummaryHandler).Methods("GET")
	r.HandleFunc("/{id}/payment/{installmentIndex}", s.recordPaymentHandler).Methods("POST")
	r.HandleFunc("/{id}/status", s.updateStatusHandler).Methods("PUT")
	r.HandleFunc("/{id}/complete", s.completePlanHandler).Methods("POST")
	return router
}

// requestDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
type requestDate struct {
	time.Time
}

func (d *requestDate) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", raw)
}

func (s *Server) createPlanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SaleID         string          `json:"saleId"`
		CustomerID     string          `json:"customerId"`
		ProductID      string          `json:"productId"`
		TotalPrice     decimal.Decimal `json:"totalPrice"`
		DownPayment    decimal.Decimal `json:"downPayment"`
		NumberOfMonths int             `json:"numberOfMonths"`
		InterestRate   decimal.Decimal `json:"interestRate"`
		StartDate      *requestDate    `json:"startDate"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.TotalPrice.Sub(req.DownPayment).IsPositive() {
		http.Error(w, "Total price must be greater than down payment", http.StatusBadRequest)
		return
	}
	if req.StartDate == nil {
		http.Error(w, "startDate is required", http.StatusBadRequest)
		return
	}

	plan, err := s.ledger.CreatePlan(r.Context(), ledger.CreatePlanRequest{
		SaleID:         req.SaleID,
		CustomerID:     req.CustomerID,
		ProductID:      req.ProductID,
		TotalPrice:     req.TotalPrice,
		DownPayment:    req.DownPayment,
		NumberOfMonths: req.NumberOfMonths,
		InterestRate:   req.InterestRate,
		StartDate:      req.StartDate.Time,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) getPlanHandler(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(w, r)
	if !ok {
		return
	}

	plan, err := s.ledger.GetPlan(r.Context(), planID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) planSummaryHandler(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(w, r)
	if !ok {
		return
	}

	plan, err := s.ledger.GetPlan(r.Context(), planID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, plan.Summary())
}

func (s *Server) listPlansHandler(w http.ResponseWriter, r *http.Request) {
	plans, err := s.ledger.GetAllPlans(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) listCustomerPlansHandler(w http.ResponseWriter, r *http.Request) {
	plans, err := s.ledger.GetPlansByCustomerID(r.Context(), mux.Vars(r)["customerId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) listOverdueHandler(w http.ResponseWriter, r *http.Request) {
	plans, err := s.ledger.GetOverduePlans(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(mux.Vars(r)["installmentIndex"])
	if err != nil {
		http.Error(w, "Invalid installment index", http.StatusBadRequest)
		return
	}

	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		PaymentDate *requestDate    `json:"paymentDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var paymentDate *time.Time
	if req.PaymentDate != nil {
		paymentDate = &req.PaymentDate.Time
	}
	plan, err := s.ledger.RecordCheckedPayment(r.Context(), planID, index, req.Amount, paymentDate)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) updateStatusHandler(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// The body is the bare status, either as a JSON string or plain text.
	raw := strings.TrimSpace(string(body))
	var quoted string
	if err := json.Unmarshal(body, &quoted); err == nil {
		raw = quoted
	}

	status, err := models.ParsePlanStatus(raw)
	if err != nil {
		http.Error(w, "Status must be one of Active, Completed, Defaulted, Cancelled", http.StatusBadRequest)
		return
	}

	updated, err := s.ledger.UpdateStatus(r.Context(), planID, status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !updated {
		http.Error(w, "Installment plan not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": planID.String(), "status": string(status)})
}

func (s *Server) completePlanHandler(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(w, r)
	if !ok {
		return
	}

	plan, err := s.ledger.CompletePlan(r.Context(), planID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.sweeper.RunOnce(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"plans_scanned": result.PlansScanned,
		"plans_updated": result.PlansUpdated,
		"overdue":       len(result.Notices),
		"failed":        result.Failed,
	})
}

func (s *Server) calculateHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	principal, err := decimal.NewFromString(q.Get("principalAmount"))
	if err != nil || !principal.IsPositive() {
		http.Error(w, "principalAmount must be a positive number", http.StatusBadRequest)
		return
	}
	rate, err := decimal.NewFromString(q.Get("interestRate"))
	if err != nil || rate.IsNegative() {
		http.Error(w, "interestRate must be a non-negative number", http.StatusBadRequest)
		return
	}
	months, err := strconv.Atoi(q.Get("numberOfMonths"))
	if err != nil || months <= 0 {
		http.Error(w, "numberOfMonths must be a positive integer", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"installmentAmount": ledger.InstallmentAmount(principal, rate, months),
	})
}

func planIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	planID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid plan ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return planID, true
}

// writeError maps ledger error kinds to status codes. Anything else is an
// internal failure and only a generic message reaches the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrValidation), errors.Is(err, ledger.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.WithError(err).Error("Request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
