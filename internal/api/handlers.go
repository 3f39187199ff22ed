package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mzagorski/onewired/internal/automation"
	"github.com/mzagorski/onewired/internal/device"
	"github.com/mzagorski/onewired/internal/store"
)

// handleStatus reports registry and engine statistics.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	sensorBoards, sensors := s.sensors.Counts()
	relayBoards, relays, lights := s.relays.Counts()

	status := map[string]any{
		"version": s.version,
		"registries": map[string]any{
			"sensor_boards": sensorBoards,
			"sensors":       sensors,
			"relay_boards":  relayBoards,
			"relays":        relays,
			"lights":        lights,
		},
	}
	if s.engine != nil {
		status["engine"] = map[string]any{
			"cycles":         s.engine.CycleCount(),
			"events_dropped": s.engine.EventsDropped(),
		}
	}
	if s.hub != nil {
		status["websocket_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleListSensors returns all configured sensors.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": s.sensors.ListSensors(),
	})
}

// handleListRelays returns all configured relays with live state.
func (s *Server) handleListRelays(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"relays": s.relays.ListRelays(),
	})
}

// handleListLights returns all configured network lights with live state.
func (s *Server) handleListLights(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"lights": s.relays.ListLights(),
	})
}

// handleCounters returns all persisted trigger counters.
func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeJSON(w, http.StatusOK, map[string]any{"counters": []store.Counter{}})
		return
	}
	counters, err := s.repo.Counters(r.Context())
	if err != nil {
		s.logger.Error("counter query failed", "error", err)
		writeInternalError(w, "counter query failed")
		return
	}
	if counters == nil {
		counters = []store.Counter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"counters": counters})
}

// handleToggleRelay applies a manual override toggle to a relay.
func (s *Server) handleToggleRelay(w http.ResponseWriter, r *http.Request) {
	s.handleToggle(w, r, func(id int) error {
		return s.engine.ToggleRelay(id, "api")
	})
}

// handleToggleLight applies a manual override toggle to a network light.
func (s *Server) handleToggleLight(w http.ResponseWriter, r *http.Request) {
	s.handleToggle(w, r, func(id int) error {
		return s.engine.ToggleLight(id, "api")
	})
}

// handleToggle runs one toggle through the engine and maps its errors onto
// HTTP statuses: debounce suppression is a conflict, unknown ids are 404.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request, toggle func(id int) error) {
	if s.engine == nil {
		writeInternalError(w, "engine not available")
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "id must be an integer")
		return
	}

	switch err := toggle(id); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "toggled": true})
	case errors.Is(err, automation.ErrToggleDebounced):
		writeConflict(w, "toggle suppressed by flip-flop protection")
	case errors.Is(err, device.ErrRelayNotFound), errors.Is(err, device.ErrLightNotFound):
		writeNotFound(w, err.Error())
	default:
		s.logger.Error("toggle failed", "id", id, "error", err)
		writeInternalError(w, "toggle failed")
	}
}

// handleReload queues a devices-file reload for the persistence worker.
// The reload itself happens asynchronously, serialised with counter writes.
func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	if s.events == nil {
		writeInternalError(w, "persistence queue not available")
		return
	}
	select {
	case s.events <- store.Event{Kind: store.ReloadDevices}:
		writeJSON(w, http.StatusAccepted, map[string]any{"reload": "queued"})
	default:
		writeConflict(w, "persistence queue full, try again")
	}
}
