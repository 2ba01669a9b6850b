package www

import (
	"io"
	"net/http"

	"gantry/protocol"
)

// handleFingerprint returns the complete device catalog from a fresh
// enumeration pass.
func (h *Handlers) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Fingerprint())
}

// handleReserve binds the requested device IDs to a holder. The body must be
// a bare JSON array of device ID strings; anything else is a 400 with no
// devices touched. The holder comes from the ?holder query parameter, or is
// generated when absent.
func (h *Handlers) handleReserve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}

	ids, err := protocol.DecodeDeviceIDs(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	holder := r.URL.Query().Get("holder")
	writeJSON(w, h.engine.Reserve(ids, holder))
}

// handleRelease returns the given devices to the free pool. Same strict wire
// shape as reserve.
func (h *Handlers) handleRelease(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}

	ids, err := protocol.DecodeDeviceIDs(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, map[string]interface{}{"results": h.engine.Release(ids)})
}

// handleStats returns current per-device statistics.
func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Stats())
}

// handleReservations returns the current holdings snapshot.
func (h *Handlers) handleReservations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"holdings": h.engine.Reservations().Holdings(),
	})
}

// handleStatus is a liveness summary for operators and probes.
func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.AppConfig()
	writeJSON(w, map[string]interface{}{
		"node_id":          cfg.NodeID(),
		"namespace":        cfg.Namespace,
		"devices":          h.engine.Devices().DeviceCount(),
		"reserved":         h.engine.Reservations().Count(),
		"bridge_enabled":   cfg.Bridge.Enabled,
		"bridge_connected": h.engine.BridgeConnected(),
	})
}
