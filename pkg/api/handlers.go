package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forgeci/forgeci/pkg/dispatch"
	"github.com/forgeci/forgeci/pkg/webhook"
)

// Webhook response bodies, part of the wire contract with the forges.
const (
	msgNoJSON        = "We haven't received any JSON data."
	msgPong          = "Pong!"
	msgNotInterested = "Thanks but we don't care about this event"
)

// errorResponse is a standard error payload for the JSON endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

// writeText writes a plain-text response body.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// forgeRoute carries the per-provider pieces of the gateway flow.
type forgeRoute struct {
	name           string
	verifier       webhook.Verifier
	eventHeader    string
	deliveryHeader string
	interesting    func(string) bool
	acceptText     string
}

// handleGitHubWebhook serves POST /webhooks/github.
func (s *server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	s.handleWebhook(w, r, forgeRoute{
		name:           "github",
		verifier:       s.githubVerifier,
		eventHeader:    webhook.GitHubEventHeader,
		deliveryHeader: webhook.GitHubDeliveryHeader,
		interesting:    webhook.GitHubInteresting,
		acceptText:     "Webhook accepted. We thank you, Github.",
	})
}

// handleGitLabWebhook serves POST /webhooks/gitlab.
func (s *server) handleGitLabWebhook(w http.ResponseWriter, r *http.Request) {
	s.handleWebhook(w, r, forgeRoute{
		name:        "gitlab",
		verifier:    s.gitlabVerifier,
		eventHeader: webhook.GitLabEventHeader,
		interesting: webhook.GitLabInteresting,
		acceptText:  "Webhook accepted. We thank you, Gitlab.",
	})
}

// handleWebhook is the gateway state machine, identical for both forges:
// parse, ping, verify, filter, dispatch.
func (s *server) handleWebhook(
	w http.ResponseWriter, r *http.Request, route forgeRoute,
) {
	log := s.log.WithField("provider", route.name)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.WithError(err).Debug("Failed to read request body")
		writeText(w, http.StatusBadRequest, msgNoJSON)

		return
	}

	var msg map[string]any
	if err := json.Unmarshal(body, &msg); err != nil || len(msg) == 0 {
		log.Debug("No JSON data received")
		writeText(w, http.StatusBadRequest, msgNoJSON)

		return
	}

	// Ping payloads carry no signature; answer before any auth check.
	if isPing(msg) {
		log.Debug("Received ping event")
		writeText(w, http.StatusOK, msgPong)

		return
	}

	eventType := r.Header.Get(route.eventHeader)

	deliveryID := ""
	if route.deliveryHeader != "" {
		deliveryID = r.Header.Get(route.deliveryHeader)
	}

	log = log.WithField("event_type", eventType)
	if deliveryID != "" {
		log = log.WithField("delivery_id", deliveryID)
	}

	if err := route.verifier.Verify(body, r.Header); err != nil {
		log.WithField("reason", err.Error()).Info("Webhook rejected")
		writeText(w, http.StatusUnauthorized, err.Error())

		return
	}

	if !route.interesting(eventType) {
		log.Debug("Not interested in this event")
		writeText(w, http.StatusAccepted, msgNotInterested)

		return
	}

	task := &dispatch.Task{
		ID:         uuid.NewString(),
		Provider:   route.name,
		EventType:  eventType,
		DeliveryID: deliveryID,
		Payload:    body,
	}

	if err := s.publisher.Publish(r.Context(), task); err != nil {
		// The forge retries failed deliveries; downstream get-or-create
		// dedups, so a retried event is safe.
		log.WithError(err).Error("Failed to dispatch event")
		writeText(w, http.StatusInternalServerError, "failed to dispatch event")

		return
	}

	log.WithField("task_id", task.ID).Debug("Webhook accepted")
	writeText(w, http.StatusAccepted, route.acceptText)
}

// isPing reports whether the payload is a forge liveness ping: non-empty
// values for all of zen, hook_id, and hook.
func isPing(msg map[string]any) bool {
	for _, key := range []string{"zen", "hook_id", "hook"} {
		if !truthy(msg[key]) {
			return false
		}
	}

	return true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	case bool:
		return t
	case map[string]any:
		return len(t) != 0
	case []any:
		return len(t) != 0
	default:
		return true
	}
}

// --- Read-only ledger views ---

func (s *server) handleGetCoprBuild(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid build id"})

		return
	}

	build, err := s.store.GetCoprBuildByID(r.Context(), uint(id))
	if err != nil {
		s.log.WithError(err).Error("Failed to get copr build")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if build == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{fmt.Sprintf("no copr build with id %d", id)})

		return
	}

	writeJSON(w, http.StatusOK, build)
}

func (s *server) handleGetKojiBuild(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid build id"})

		return
	}

	build, err := s.store.GetKojiBuildByID(r.Context(), uint(id))
	if err != nil {
		s.log.WithError(err).Error("Failed to get koji build")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if build == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{fmt.Sprintf("no koji build with id %d", id)})

		return
	}

	writeJSON(w, http.StatusOK, build)
}

func (s *server) handleGetTestingFarmRun(
	w http.ResponseWriter, r *http.Request,
) {
	pipelineID := chi.URLParam(r, "pipeline_id")

	run, err := s.store.GetTestingFarmRunByPipelineID(r.Context(), pipelineID)
	if err != nil {
		s.log.WithError(err).Error("Failed to get testing farm run")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if run == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"no testing farm run with pipeline id " + pipelineID})

		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleListTaskResults(
	w http.ResponseWriter, r *http.Request,
) {
	results, err := s.store.ListTaskResults(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list task results")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, results)
}

func (s *server) handleListInstallations(
	w http.ResponseWriter, r *http.Request,
) {
	installations, err := s.store.ListInstallations(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list installations")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, installations)
}
