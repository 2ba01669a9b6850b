package www

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

func (h *Handlers) apiGetBridge(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.AppConfig()
	writeJSON(w, map[string]interface{}{
		"url":       cfg.Bridge.URL,
		"poll_rate": cfg.Bridge.PollRate.String(),
		"enabled":   cfg.Bridge.Enabled,
		"connected": h.engine.BridgeConnected(),
	})
}

func (h *Handlers) apiUpdateBridge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL      string `json:"url"`
		PollRate string `json:"poll_rate"`
		Enabled  bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := h.engine.AppConfig()
	cfg.Lock()
	if req.URL != "" {
		cfg.Bridge.URL = req.URL
	}
	if req.PollRate != "" {
		d, err := time.ParseDuration(req.PollRate)
		if err != nil {
			cfg.Unlock()
			writeError(w, http.StatusBadRequest, "invalid poll_rate: "+err.Error())
			return
		}
		cfg.Bridge.PollRate = d
	}
	cfg.Bridge.Enabled = req.Enabled
	cfg.Unlock()

	if err := cfg.Save(h.engine.ConfigPath()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiUpdateMessaging(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Backend        string   `json:"backend"`
		MQTTBroker     string   `json:"mqtt_broker"`
		MQTTPort       int      `json:"mqtt_port"`
		MQTTClientID   string   `json:"mqtt_client_id"`
		KafkaBrokers   []string `json:"kafka_brokers"`
		TelemetryTopic string   `json:"telemetry_topic"`
		CommandTopic   string   `json:"command_topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := h.engine.AppConfig()
	cfg.Lock()
	cfg.Messaging.Backend = req.Backend
	cfg.Messaging.MQTT.Broker = req.MQTTBroker
	cfg.Messaging.MQTT.Port = req.MQTTPort
	cfg.Messaging.MQTT.ClientID = req.MQTTClientID
	cfg.Messaging.Kafka.Brokers = req.KafkaBrokers
	cfg.Messaging.TelemetryTopic = req.TelemetryTopic
	cfg.Messaging.CommandTopic = req.CommandTopic
	cfg.Unlock()

	if err := cfg.Save(h.engine.ConfigPath()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiChangePassword(w http.ResponseWriter, r *http.Request) {
	username, ok := h.sessions.getUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.engine.DB().GetAdminUser(username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "user not found")
		return
	}

	if !checkPassword(req.OldPassword, user.PasswordHash) {
		writeError(w, http.StatusBadRequest, "current password is incorrect")
		return
	}

	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := h.engine.DB().UpdateAdminPassword(username, hash); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func historyLimit(r *http.Request) int {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	return limit
}

func (h *Handlers) apiDeviceHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	records, err := h.engine.DB().ListReservationHistory(deviceID, historyLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"device_id": deviceID, "history": records})
}

func (h *Handlers) apiDeviceSamples(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	samples, err := h.engine.DB().ListSamples(deviceID, historyLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"device_id": deviceID, "samples": samples})
}
