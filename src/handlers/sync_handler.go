// src/handlers/sync_handler.go
package handlers

import (
	"net/http"

	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/models"
	"github.com/username/flexfolio/src/services"
	"github.com/username/flexfolio/src/utils"
)

type SyncHandler struct {
	syncService services.SyncService
}

func NewSyncHandler(service services.SyncService) *SyncHandler {
	return &SyncHandler{
		syncService: service,
	}
}

type syncRunResponse struct {
	Started bool                `json:"started"`
	Results []models.SyncResult `json:"results"`
}

// HandleRunSync triggers a sync run. If a run is already executing the
// trigger is dropped and reported as such; scheduled and manual
// triggers never queue.
func (h *SyncHandler) HandleRunSync(w http.ResponseWriter, r *http.Request) {
	results, started := h.syncService.RunDue(r.Context())
	if !started {
		logger.L.Info("Manual sync trigger dropped, run already in progress")
		utils.SendJSON(w, syncRunResponse{Started: false}, http.StatusConflict)
		return
	}
	utils.SendJSON(w, syncRunResponse{Started: true, Results: results}, http.StatusOK)
}

// HandleSyncStatus returns the results of the most recent run.
func (h *SyncHandler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	results := h.syncService.LatestResults()
	if results == nil {
		results = []models.SyncResult{}
	}
	utils.SendJSON(w, results, http.StatusOK)
}
