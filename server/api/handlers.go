package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aiswarm/orchestrator/agent"
	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/config"
	"github.com/aiswarm/orchestrator/errdefs"
	"github.com/aiswarm/orchestrator/group"
	"github.com/aiswarm/orchestrator/skill"
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	System  System
	Logger  *slog.Logger
	Version string
	StartAt time.Time
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/agents", h.listAgents)
	mux.HandleFunc("POST /api/agents", h.createAgent)
	mux.HandleFunc("GET /api/agents/{name}", h.getAgent)
	mux.HandleFunc("DELETE /api/agents/{name}", h.removeAgent)

	mux.HandleFunc("GET /api/groups", h.listGroups)
	mux.HandleFunc("PUT /api/groups/{name}", h.putGroup)
	mux.HandleFunc("DELETE /api/groups/{name}", h.removeGroup)

	mux.HandleFunc("GET /api/drivers", h.listDrivers)
	mux.HandleFunc("GET /api/skills", h.listSkills)
	mux.HandleFunc("POST /api/skills/{name}", h.executeSkill)

	mux.HandleFunc("GET /api/messages", h.listMessages)
	mux.HandleFunc("POST /api/messages", h.sendMessage)

	mux.HandleFunc("POST /api/pause", h.pause)
	mux.HandleFunc("POST /api/resume", h.resume)
	mux.HandleFunc("POST /api/run", h.run)

	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StatusCode maps a swarm error onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrNamingConflict), errors.Is(err, errdefs.ErrIllegalState):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrDriverNotFound), errors.Is(err, skill.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeErr(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		h.Logger.Error("api request failed", slog.Any("err", err))
	}
	writeError(w, code, err.Error())
}

// --- Agent handlers ---

func (h *Handlers) listAgents(w http.ResponseWriter, _ *http.Request) {
	all := h.System.Agents().All()
	infos := make([]agent.Info, 0, len(all))
	for _, a := range all {
		infos = append(infos, a.Info())
	}
	writeJSON(w, http.StatusOK, infos)
}

// CreateAgentRequest is the body accepted by POST /api/agents.
type CreateAgentRequest struct {
	Name   string             `json:"name"`
	Config config.AgentConfig `json:"config"`
}

func (h *Handlers) createAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	a, err := h.System.CreateAgent(req.Name, req.Config)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.Info())
}

func (h *Handlers) getAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := h.System.Agents().Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a.Info())
}

func (h *Handlers) removeAgent(w http.ResponseWriter, r *http.Request) {
	if !h.System.Agents().Remove(r.PathValue("name")) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Group handlers ---

func (h *Handlers) listGroups(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.System.Groups().All())
}

// GroupRequest is the body accepted by PUT /api/groups/{name}.
type GroupRequest struct {
	Members []string `json:"members"`
}

func (h *Handlers) putGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	name := r.PathValue("name")
	if err := h.System.CreateGroup(name, req.Members...); err != nil {
		h.writeErr(w, err)
		return
	}
	members, _ := h.System.Groups().Get(name)
	writeJSON(w, http.StatusOK, group.Group{Name: name, Members: members})
}

func (h *Handlers) removeGroup(w http.ResponseWriter, r *http.Request) {
	if !h.System.Groups().Remove(r.PathValue("name")) {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Registry handlers ---

func (h *Handlers) listDrivers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.System.Drivers().Available())
}

func (h *Handlers) listSkills(w http.ResponseWriter, _ *http.Request) {
	reg := h.System.Skills()
	names := reg.List()
	defs := make([]map[string]any, 0, len(names))
	for _, name := range names {
		if s, ok := reg.Get(name); ok {
			defs = append(defs, skill.Definition(s))
		}
	}
	writeJSON(w, http.StatusOK, defs)
}

// ExecuteSkillRequest is the body accepted by POST /api/skills/{name}.
type ExecuteSkillRequest struct {
	Agent string         `json:"agent"`
	Args  map[string]any `json:"args"`
}

func (h *Handlers) executeSkill(w http.ResponseWriter, r *http.Request) {
	var req ExecuteSkillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Agent == "" {
		req.Agent = "user"
	}
	out, err := h.System.Skills().Execute(r.Context(), r.PathValue("name"), req.Args, req.Agent)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": out})
}

// --- Message handlers ---

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	hist := h.System.Bus().History()
	var msgs []*comms.Message
	switch {
	case q.Get("target") != "":
		msgs = hist.ByTarget(q.Get("target"), limit)
	case q.Get("source") != "":
		msgs = hist.BySource(q.Get("source"), limit)
	default:
		msgs = hist.All(limit)
	}

	records := make([]comms.Record, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, m.Object())
	}
	writeJSON(w, http.StatusOK, records)
}

// SendMessageRequest is the body accepted by POST /api/messages.
type SendMessageRequest struct {
	Target   string         `json:"target"`
	Source   string         `json:"source"`
	Content  string         `json:"content"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SendMessageResponse is returned by POST /api/messages.
type SendMessageResponse struct {
	Message comms.Record `json:"message"`
	Found   bool         `json:"found"`
}

func (h *Handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	typ, err := comms.ParseType(req.Type)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if req.Source == "" {
		req.Source = "user"
	}
	msg, found, err := h.System.Bus().EmitEnvelope(r.Context(), comms.Envelope{
		Target:   req.Target,
		Source:   req.Source,
		Content:  req.Content,
		Type:     typ,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SendMessageResponse{Message: msg.Object(), Found: found})
}

// --- Lifecycle handlers ---

func (h *Handlers) pause(w http.ResponseWriter, _ *http.Request) {
	h.System.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"running": h.System.Running()})
}

func (h *Handlers) resume(w http.ResponseWriter, _ *http.Request) {
	h.System.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"running": h.System.Running()})
}

// RunRequest is the body accepted by POST /api/run.
type RunRequest struct {
	Instructions string `json:"instructions"`
}

func (h *Handlers) run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	runID, err := h.System.Run(r.Context(), req.Instructions)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// --- Status / version ---

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Running bool   `json:"running"`
	Uptime  string `json:"uptime"`
	Agents  int    `json:"agents"`
	Groups  int    `json:"groups"`
	History int    `json:"history"`
}

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  "ok",
		Version: h.Version,
		Running: h.System.Running(),
		Uptime:  time.Since(h.StartAt).Round(time.Second).String(),
		Agents:  len(h.System.Agents().Names()),
		Groups:  len(h.System.Groups().List()),
		History: h.System.Bus().History().Len(),
	})
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}
