// src/services/sync_service.go
package services

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/username/flexfolio/src/flexquery"
	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/models"
)

const ckLatestSyncResults = "latest_sync_results"

type syncServiceImpl struct {
	guard        *runGuard
	configs      *ConfigStore
	secrets      SecretStore
	flex         *flexquery.Client
	importer     ImportService
	cooldown     time.Duration
	clock        flexquery.Clock
	defaultToken string
	results      *gocache.Cache
}

func NewSyncService(
	configs *ConfigStore,
	secrets SecretStore,
	flexClient *flexquery.Client,
	importer ImportService,
	cooldown time.Duration,
	defaultToken string,
	resultCache *gocache.Cache,
) SyncService {
	return &syncServiceImpl{
		guard:        newRunGuard(),
		configs:      configs,
		secrets:      secrets,
		flex:         flexClient,
		importer:     importer,
		cooldown:     cooldown,
		clock:        flexquery.NewClock(),
		defaultToken: defaultToken,
		results:      resultCache,
	}
}

// WithClock swaps the scheduler's clock; tests use this to control
// cooldown arithmetic.
func (s *syncServiceImpl) WithClock(clock flexquery.Clock) *syncServiceImpl {
	s.clock = clock
	return s
}

// RunDue executes one scheduled run over every enabled configuration
// that is out of its cooldown window. At most one run executes at a
// time: a trigger that finds the lock held exits immediately; scheduled
// triggers must never queue up.
func (s *syncServiceImpl) RunDue(ctx context.Context) ([]models.SyncResult, bool) {
	if !s.guard.TryAcquire() {
		logger.L.Debug("Sync run already in progress, skipping trigger")
		return nil, false
	}
	defer s.guard.Release()

	configs, err := s.configs.List()
	if err != nil {
		logger.L.Error("Failed to load fetch configurations", "error", err)
		return nil, true
	}

	var results []models.SyncResult
	for _, cfg := range configs {
		if !cfg.AutoFetch {
			continue
		}
		if !s.eligible(cfg) {
			logger.L.Debug("Configuration still in cooldown, skipping",
				"configId", cfg.ID, "lastFetch", cfg.LastFetch)
			continue
		}
		results = append(results, s.runOne(ctx, cfg))
		if ctx.Err() != nil {
			break
		}
	}

	if len(results) > 0 {
		s.results.Set(ckLatestSyncResults, results, gocache.NoExpiration)
	}
	return results, true
}

// LatestResults returns the results of the most recent completed run.
func (s *syncServiceImpl) LatestResults() []models.SyncResult {
	if cached, found := s.results.Get(ckLatestSyncResults); found {
		return cached.([]models.SyncResult)
	}
	return nil
}

// eligible applies the cooldown window: a configuration fetched exactly
// at the threshold is eligible again.
func (s *syncServiceImpl) eligible(cfg models.FetchConfig) bool {
	if cfg.LastFetch.IsZero() {
		return true
	}
	return s.clock.Now().Sub(cfg.LastFetch) >= s.cooldown
}

// runOne performs one fetch attempt for one configuration. The
// configuration is re-read and re-checked right before the attempt
// (closing the double-trigger race) and then claimed with a provisional
// pending status so a crash mid-fetch cannot cause an immediate retry.
func (s *syncServiceImpl) runOne(ctx context.Context, cfg models.FetchConfig) models.SyncResult {
	result := models.SyncResult{ConfigID: cfg.ID, ConfigName: cfg.Name}

	fresh, found, err := s.configs.GetByID(cfg.ID)
	if err != nil || !found {
		result.Error = "configuration disappeared before fetch"
		logger.L.Warn("Fetch configuration no longer present", "configId", cfg.ID, "error", err)
		return result
	}
	if !s.eligible(fresh) {
		// Another trigger got here first.
		result.Success = true
		result.Skipped = 1
		return result
	}

	claimedAt := s.clock.Now()
	if err := s.configs.UpdateStatus(fresh.ID, models.FetchStatusPending, claimedAt, ""); err != nil {
		// Without the claim there is no reentrancy guarantee; skip this
		// attempt rather than risk a double fetch.
		result.Error = "failed to claim configuration: " + err.Error()
		logger.L.Error("Failed to write pending claim", "configId", cfg.ID, "error", err)
		return result
	}

	payload, err := s.flex.Fetch(ctx, s.token(), fresh.QueryID)
	if err != nil {
		result.Error = err.Error()
		s.finish(fresh.ID, claimedAt, result)
		return result
	}

	summary, err := s.importer.ImportDocument(ctx, payload, fresh.AccountGroup)
	if err != nil {
		result.Error = err.Error()
		s.finish(fresh.ID, claimedAt, result)
		return result
	}

	result.Success = true
	result.Imported = summary.Imported
	result.Skipped = summary.Skipped + summary.Duplicates
	result.Failed = summary.Failed
	result.FailedAccounts = summary.FailedAccounts
	s.finish(fresh.ID, claimedAt, result)
	return result
}

// finish overwrites the pending claim with the final status. Only the
// bookkeeping fields are written, so an edit to the configuration made
// while the fetch was in flight survives. If the write fails the
// in-memory result still stands; a status-save error never fails the
// batch.
func (s *syncServiceImpl) finish(id string, claimedAt time.Time, result models.SyncResult) {
	status := models.FetchStatusError
	fetchErr := result.Error
	if result.Success {
		status = models.FetchStatusSuccess
		fetchErr = ""
	}
	if err := s.configs.UpdateStatus(id, status, claimedAt, fetchErr); err != nil {
		logger.L.Error("Failed to persist final fetch status", "configId", id, "error", err)
	}
}

// token prefers the token in the secret store, falling back to the
// configured default.
func (s *syncServiceImpl) token() string {
	if token, found, err := s.secrets.Get(FlexTokenKey); err == nil && found && token != "" {
		return token
	}
	return s.defaultToken
}
