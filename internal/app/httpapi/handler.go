// Package httpapi exposes the escrow lifecycle over REST.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	app "github.com/R3E-Network/escrow_layer/internal/app"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/project"
	"github.com/R3E-Network/escrow_layer/internal/app/services/treasury"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API. Every mutating
// route resolves the caller identity from the request context; wrap the
// handler with Authenticate to establish it.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/projects", h.projects)
	mux.HandleFunc("/projects/", h.projectResources)
	mux.HandleFunc("/treasury/fees", h.treasuryFees)
	mux.HandleFunc("/treasury/withdraw", h.treasuryWithdraw)
	mux.HandleFunc("/events", h.events)
	return mux
}

type createProjectPayload struct {
	Executor       string  `json:"executor"`
	Client         string  `json:"client"`
	Budget         int64   `json:"budget"`
	Milestones     []int64 `json:"milestones"`
	FeeBasisPoints int64   `json:"fee_basis_points"`
	Asset          string  `json:"asset"`
	SuppliedValue  int64   `json:"supplied_value"`
}

func (h *handler) projects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		caller, ok := callerFrom(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("caller identity required"))
			return
		}
		var payload createProjectPayload
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		kind, err := asset.ParseKind(payload.Asset)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		p, err := h.app.Escrow.CreateProject(r.Context(), caller, payload.Executor, payload.Budget, payload.Milestones, payload.FeeBasisPoints, kind, payload.SuppliedValue)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)

	case http.MethodGet:
		party := strings.TrimSpace(r.URL.Query().Get("party"))
		list, err := h.app.Escrow.ListProjects(r.Context(), party)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) projectResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/projects"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if parts[0] == "initiate" {
		h.initiateProject(w, r)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid project id %q", parts[0]))
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, err := h.app.Escrow.GetProject(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}

	switch parts[1] {
	case "milestones":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		milestones, err := h.app.Escrow.Milestones(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, milestones)
	case "fund":
		h.fundProject(w, r, id)
	case "confirm":
		h.confirmMilestone(w, r, id)
	case "cancel":
		h.cancelProject(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) initiateProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("caller identity required"))
		return
	}
	var payload createProjectPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	kind, err := asset.ParseKind(payload.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.app.Escrow.InitiateProject(r.Context(), caller, payload.Client, payload.Budget, payload.Milestones, payload.FeeBasisPoints, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) fundProject(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("caller identity required"))
		return
	}
	var payload struct {
		SuppliedValue int64 `json:"supplied_value"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.app.Escrow.FundProject(r.Context(), caller, id, payload.SuppliedValue)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) confirmMilestone(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("caller identity required"))
		return
	}
	p, err := h.app.Escrow.ConfirmMilestone(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) cancelProject(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("caller identity required"))
		return
	}
	p, err := h.app.Escrow.CancelProject(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) treasuryFees(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	balances, err := h.app.Treasury.Balances(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (h *handler) treasuryWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("caller identity required"))
		return
	}
	var payload struct {
		Asset string `json:"asset"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	kind, err := asset.ParseKind(payload.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := h.app.Treasury.Withdraw(r.Context(), caller, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	events, err := h.app.Events.ListEvents(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// writeDomainError maps domain sentinel errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, project.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, project.ErrNotClient),
		errors.Is(err, project.ErrNotOwner),
		errors.Is(err, project.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, project.ErrAlreadyFunded),
		errors.Is(err, project.ErrNotFunded),
		errors.Is(err, project.ErrAlreadyCancelled),
		errors.Is(err, project.ErrAlreadyCompleted),
		errors.Is(err, project.ErrAllMilestonesConfirmed):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, project.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, err)
	case errors.Is(err, treasury.ErrFeeOverflow):
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
