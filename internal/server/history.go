package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/xlsync/internal/formatter"
	"github.com/desertthunder/xlsync/internal/models"
	"github.com/desertthunder/xlsync/internal/shared"
	"github.com/desertthunder/xlsync/internal/worker"
)

// RunStore is the read side of the run history, satisfied by the runs repository.
type RunStore interface {
	List(criteria map[string]any) ([]*models.RunRecord, error)
	GetBySequence(sequence int) (*models.RunRecord, error)
}

// HistoryHandler serves recorded runs as JSON or as rendered reports.
type HistoryHandler struct {
	store  RunStore
	logger *log.Logger
}

var _ Handler = (*HistoryHandler)(nil)

// NewHistoryHandler creates a handler reading from store.
func NewHistoryHandler(store RunStore, logger *log.Logger) *HistoryHandler {
	return &HistoryHandler{store: store, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *HistoryHandler) Routes() []string {
	return []string{"/runs", "/runs/"}
}

// ServeHTTP dispatches to the run list or a single run.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/runs"), "/")
	if rest == "" {
		h.list(w, r)
		return
	}

	sequence, err := strconv.Atoi(rest)
	if err != nil || sequence <= 0 {
		http.Error(w, "Run sequence must be a positive number", http.StatusBadRequest)
		return
	}
	h.show(w, r, sequence)
}

func (h *HistoryHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := map[string]any{}

	if name := q.Get("name"); name != "" {
		criteria["name"] = name
	}
	if status := q.Get("status"); status != "" {
		if _, err := worker.ParseStatus(status); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		criteria["status"] = status
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative number", http.StatusBadRequest)
			return
		}
		criteria["limit"] = n
	}

	runs, err := h.store.List(criteria)
	if err != nil {
		h.fail(w, err)
		return
	}

	views := make([]formatter.RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, formatter.NewRunView(run))
	}
	h.writeJSON(w, views)
}

func (h *HistoryHandler) show(w http.ResponseWriter, r *http.Request, sequence int) {
	run, err := h.store.GetBySequence(sequence)
	if err != nil {
		h.fail(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" || format == formatter.FormatJSON {
		h.writeJSON(w, formatter.NewRunView(run))
		return
	}

	data, err := formatter.Export(run, format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", contentType(format))
	w.Write(data)
}

func (h *HistoryHandler) writeJSON(w http.ResponseWriter, v any) {
	data, err := shared.MarshalJSON(v, true)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (h *HistoryHandler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	h.logger.Error("history request failed", "err", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func contentType(format string) string {
	switch format {
	case formatter.FormatCSV:
		return "text/csv; charset=utf-8"
	case formatter.FormatMarkdown, "md":
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
