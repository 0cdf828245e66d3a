// src/handlers/config_handler.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/models"
	"github.com/username/flexfolio/src/services"
	"github.com/username/flexfolio/src/utils"
)

type ConfigHandler struct {
	configs *services.ConfigStore
	secrets services.SecretStore
}

func NewConfigHandler(configs *services.ConfigStore, secrets services.SecretStore) *ConfigHandler {
	return &ConfigHandler{
		configs: configs,
		secrets: secrets,
	}
}

func (h *ConfigHandler) HandleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.configs.List()
	if err != nil {
		logger.L.Error("Failed to list fetch configurations", "error", err)
		utils.SendJSONError(w, "Failed to load configurations.", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, configs, http.StatusOK)
}

type configPayload struct {
	Name         string `json:"name"`
	QueryID      string `json:"queryId"`
	AccountGroup string `json:"accountGroup"`
	AutoFetch    bool   `json:"autoFetch"`
}

func (p configPayload) validate() string {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return "'name' is required"
	case strings.TrimSpace(p.QueryID) == "":
		return "'queryId' is required"
	case strings.TrimSpace(p.AccountGroup) == "":
		return "'accountGroup' is required"
	}
	return ""
}

func (h *ConfigHandler) HandleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var payload configPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid JSON payload.", http.StatusBadRequest)
		return
	}
	if msg := payload.validate(); msg != "" {
		utils.SendJSONError(w, msg, http.StatusBadRequest)
		return
	}

	created, err := h.configs.Create(models.FetchConfig{
		Name:         payload.Name,
		QueryID:      payload.QueryID,
		AccountGroup: payload.AccountGroup,
		AutoFetch:    payload.AutoFetch,
	})
	if err != nil {
		logger.L.Error("Failed to create fetch configuration", "name", payload.Name, "error", err)
		utils.SendJSONError(w, "Failed to save configuration.", http.StatusInternalServerError)
		return
	}
	logger.L.Info("Fetch configuration created", "configId", created.ID, "name", created.Name)
	utils.SendJSON(w, created, http.StatusCreated)
}

func (h *ConfigHandler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, found, err := h.configs.GetByID(id)
	if err != nil {
		logger.L.Error("Failed to load fetch configuration", "configId", id, "error", err)
		utils.SendJSONError(w, "Failed to load configuration.", http.StatusInternalServerError)
		return
	}
	if !found {
		utils.SendJSONError(w, "Configuration not found.", http.StatusNotFound)
		return
	}

	var payload configPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid JSON payload.", http.StatusBadRequest)
		return
	}
	if msg := payload.validate(); msg != "" {
		utils.SendJSONError(w, msg, http.StatusBadRequest)
		return
	}

	existing.Name = payload.Name
	existing.QueryID = payload.QueryID
	existing.AccountGroup = payload.AccountGroup
	existing.AutoFetch = payload.AutoFetch
	if err := h.configs.Update(existing); err != nil {
		logger.L.Error("Failed to update fetch configuration", "configId", id, "error", err)
		utils.SendJSONError(w, "Failed to save configuration.", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, existing, http.StatusOK)
}

func (h *ConfigHandler) HandleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.configs.Delete(id); err != nil {
		logger.L.Error("Failed to delete fetch configuration", "configId", id, "error", err)
		utils.SendJSONError(w, "Failed to delete configuration.", http.StatusInternalServerError)
		return
	}
	logger.L.Info("Fetch configuration deleted", "configId", id)
	utils.SendJSON(w, map[string]string{"status": "deleted"}, http.StatusOK)
}

type tokenPayload struct {
	Token string `json:"token"`
}

// HandleSetToken stores the shared Flex Web Service token. The token is
// write-only; it is never echoed back.
func (h *ConfigHandler) HandleSetToken(w http.ResponseWriter, r *http.Request) {
	var payload tokenPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid JSON payload.", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Token) == "" {
		utils.SendJSONError(w, "'token' is required", http.StatusBadRequest)
		return
	}
	if err := h.secrets.Set(services.FlexTokenKey, payload.Token); err != nil {
		logger.L.Error("Failed to store Flex token", "error", err)
		utils.SendJSONError(w, "Failed to store token.", http.StatusInternalServerError)
		return
	}
	logger.L.Info("Flex token updated")
	utils.SendJSON(w, map[string]string{"status": "saved"}, http.StatusOK)
}
