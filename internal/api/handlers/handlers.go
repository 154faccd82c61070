package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/momo-sms-api/internal/api/middleware"
	"github.com/dvloznov/momo-sms-api/internal/logger"
	"github.com/dvloznov/momo-sms-api/internal/store"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps how much of a request body is read.
const maxBodyBytes = 1 << 20

// TransactionStore is the subset of store.Store used by the HTTP layer.
type TransactionStore interface {
	List() []store.Transaction
	Get(id int) (store.Transaction, bool)
	Create(body string) store.Transaction
	Update(id int, body *string) (store.Transaction, bool)
	Delete(id int) bool
}

// TransactionsHandler serves the /transactions resource.
type TransactionsHandler struct {
	store TransactionStore
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(s TransactionStore, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		store: s,
		log:   log,
	}
}

// ServeHTTP routes /transactions and /transactions/{id}.
func (h *TransactionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if parts[0] != "transactions" || len(parts) > 2 {
		middleware.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.ListTransactions(w, r)
		case http.MethodPost:
			h.CreateTransaction(w, r)
		case http.MethodPut, http.MethodDelete:
			middleware.WriteError(w, http.StatusNotFound, "not found")
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if r.Method == http.MethodPost {
		middleware.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPut && r.Method != http.MethodDelete {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := strconv.Atoi(parts[1])
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.GetTransaction(w, r, id)
	case http.MethodPut:
		h.UpdateTransaction(w, r, id)
	case http.MethodDelete:
		h.DeleteTransaction(w, r, id)
	}
}

// ListTransactions handles GET /transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": h.store.List(),
	})
}

// GetTransaction handles GET /transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request, id int) {
	tx, ok := h.store.Get(id)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

// CreateTransaction handles POST /transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	body := ""
	if b := h.readBody(r); b != nil {
		body = *b
	}

	tx := h.store.Create(body)
	log := logger.FromContext(r.Context())
	log.Info().Int("id", tx.ID).Msg("Transaction created")

	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// UpdateTransaction handles PUT /transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request, id int) {
	body := h.readBody(r)

	tx, ok := h.store.Update(id, body)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().Int("id", id).Bool("body_changed", body != nil).Msg("Transaction updated")

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// DeleteTransaction handles DELETE /transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, id int) {
	if !h.store.Delete(id) {
		middleware.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().Int("id", id).Msg("Transaction deleted")

	middleware.WriteJSON(w, http.StatusOK, map[string]int{"deleted": id})
}

// readBody returns the "body" field of the JSON payload. A missing,
// undecodable or non-object payload counts as an empty object, and a missing
// or non-string "body" reads as "". Only an explicit null returns nil.
func (h *TransactionsHandler) readBody(r *http.Request) *string {
	empty := ""
	if r.Body == nil {
		return &empty
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(data) == 0 {
		return &empty
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		h.log.Debug().Err(err).Msg("Ignoring undecodable request body")
		return &empty
	}

	raw, ok := payload["body"]
	if !ok {
		return &empty
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}

	var body string
	if err := json.Unmarshal(raw, &body); err != nil {
		h.log.Debug().Err(err).Msg("Ignoring non-string body field")
		return &empty
	}
	return &body
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
