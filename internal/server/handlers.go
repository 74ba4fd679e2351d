package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"invoicepay/internal/allocation"
	"invoicepay/internal/invoice"
	"invoicepay/internal/ledger"
	"invoicepay/internal/reconciliation"
	"invoicepay/pkg/models"
)

// windowRequest selects receipts by date range and channel.
type windowRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Channel   string `json:"channel"`
}

func (wr windowRequest) window() (reconciliation.Window, error) {
	return reconciliation.NewWindow(wr.StartDate, wr.EndDate, wr.StartTime, wr.EndTime, wr.Channel)
}

type processRequest struct {
	windowRequest
	Invoices []invoice.Input `json:"invoices"`
}

type exportRequest struct {
	Payments  []PaymentDTO `json:"payments"`
	Uppercase *bool        `json:"uppercase,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Invoice Payment API is running!",
		"version": Version,
		"endpoints": map[string]string{
			"transactions": "/api/transactions",
			"filter":       "/api/transactions/filter",
			"upload":       "/api/invoices/upload",
			"template":     "/api/invoices/template",
			"process":      "/api/process-payments",
			"export":       "/api/export-payments",
		},
	})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusNotFound, map[string]interface{}{
		"success": false,
		"message": "Endpoint not found",
		"path":    r.URL.Path,
	})
}

// listTransactions returns every receipt. Optional startDate, endDate and
// channel query parameters narrow the list.
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.transactions(w, r, windowRequest{
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		StartTime: q.Get("startTime"),
		EndTime:   q.Get("endTime"),
		Channel:   q.Get("channel"),
	})
}

func (s *Server) filterTransactions(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	s.transactions(w, r, req)
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request, req windowRequest) {
	txns, ok := s.fetch(w, r, req)
	if !ok {
		return
	}
	writeList(w, r, NewTransactionDTOs(txns), len(txns))
}

// fetch reads the receipts selected by req, answering the request itself on
// failure.
func (s *Server) fetch(w http.ResponseWriter, r *http.Request, req windowRequest) ([]models.Transaction, bool) {
	win, err := req.window()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid date range", err)
		return nil, false
	}

	txns, err := s.source.Transactions(r.Context(), win)
	switch {
	case errors.Is(err, reconciliation.ErrUnknownChannel):
		writeError(w, r, http.StatusBadRequest, "Unknown channel", err)
		return nil, false
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "Error fetching transactions", err)
		return nil, false
	}
	return txns, true
}

func (s *Server) uploadInvoices(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "No file uploaded", nil)
		return
	}
	defer file.Close()

	result, err := s.invoices.ParseCSV(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Error parsing CSV", err)
		return
	}

	inputs := make([]invoice.Input, len(result.Invoices))
	for i, inv := range result.Invoices {
		inputs[i] = invoice.FromModel(inv)
	}
	var warnings []string
	for _, warn := range result.Warnings {
		warnings = append(warnings, warn.Error())
	}

	count := len(inputs)
	writeJSON(w, r, http.StatusOK, Response{
		Success:  true,
		Data:     inputs,
		Count:    &count,
		Warnings: warnings,
	})
}

func (s *Server) invoiceTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=invoice_template.csv")
	if err := invoice.WriteTemplate(w); err != nil {
		writeError(w, r, http.StatusInternalServerError, "Error writing template", err)
	}
}

func (s *Server) processPayments(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if len(req.Invoices) == 0 {
		writeError(w, r, http.StatusBadRequest, "No invoices supplied", nil)
		return
	}

	txns, ok := s.fetch(w, r, req.windowRequest)
	if !ok {
		return
	}

	result, err := s.engine.Allocate(invoice.NormalizeAll(req.Invoices), txns)
	if err != nil {
		var invalid *allocation.InvalidInputError
		if errors.As(err, &invalid) {
			writeError(w, r, http.StatusBadRequest, "Invalid invoice", err)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "Error processing payments", err)
		return
	}

	count := len(result.Payments)
	writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Data:    newPaymentDTOs(result.Payments),
		Count:   &count,
		Summary: ledger.Summarize(result.Payments),
		Stats: RunStats{
			Invoices:     len(req.Invoices),
			Transactions: len(txns),
			Excluded:     result.Excluded,
			Duplicates:   result.Duplicates,
			Ungrouped:    result.Ungrouped,
		},
	})
}

func (s *Server) exportPayments(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	opts := s.ledger
	if req.Uppercase != nil {
		opts.UppercaseCustomer = *req.Uppercase
	}
	rows := make([]ledger.Row, len(req.Payments))
	for i, p := range req.Payments {
		rows[i] = p.ledgerRow(opts)
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=processed_payments.csv")
	if err := ledger.WriteRows(w, rows); err != nil {
		writeError(w, r, http.StatusInternalServerError, "Error exporting payments", err)
	}
}
