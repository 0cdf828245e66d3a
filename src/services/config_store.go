// src/services/config_store.go
package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/username/flexfolio/src/models"
)

// Keys in the secret store.
const (
	configsKey   = "fetch_configs"
	FlexTokenKey = "flex_token"
)

// ConfigStore persists the fetch configurations as a JSON-encoded array
// under a single key in the secret store. Every mutation is a
// read-modify-write of that one key, so the store serializes them with
// its own mutex; the scheduler and the HTTP handlers share the same
// instance.
type ConfigStore struct {
	mu      sync.Mutex
	secrets SecretStore
}

func NewConfigStore(secrets SecretStore) *ConfigStore {
	return &ConfigStore{secrets: secrets}
}

// load reads and decodes the stored array. Callers must hold s.mu.
func (s *ConfigStore) load() ([]models.FetchConfig, error) {
	raw, found, err := s.secrets.Get(configsKey)
	if err != nil {
		return nil, fmt.Errorf("load fetch configs: %w", err)
	}
	if !found || raw == "" {
		return nil, nil
	}
	var configs []models.FetchConfig
	if err := json.Unmarshal([]byte(raw), &configs); err != nil {
		return nil, fmt.Errorf("decode fetch configs: %w", err)
	}
	return configs, nil
}

func (s *ConfigStore) List() ([]models.FetchConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *ConfigStore) GetByID(id string) (models.FetchConfig, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.load()
	if err != nil {
		return models.FetchConfig{}, false, err
	}
	for _, cfg := range configs {
		if cfg.ID == id {
			return cfg, true, nil
		}
	}
	return models.FetchConfig{}, false, nil
}

// Create assigns an id and appends the configuration.
func (s *ConfigStore) Create(cfg models.FetchConfig) (models.FetchConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.load()
	if err != nil {
		return models.FetchConfig{}, err
	}
	cfg.ID = uuid.NewString()
	configs = append(configs, cfg)
	if err := s.saveAll(configs); err != nil {
		return models.FetchConfig{}, err
	}
	return cfg, nil
}

// Update replaces the configuration with the same id. The scheduler
// never calls this; it merges fetch bookkeeping via UpdateStatus so a
// user edit landing during an in-flight fetch is not overwritten.
func (s *ConfigStore) Update(cfg models.FetchConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.load()
	if err != nil {
		return err
	}
	for i := range configs {
		if configs[i].ID == cfg.ID {
			configs[i] = cfg
			return s.saveAll(configs)
		}
	}
	return fmt.Errorf("fetch config %s not found", cfg.ID)
}

// UpdateStatus merges only the fetch bookkeeping fields into the stored
// configuration, leaving the user-editable fields as they currently
// are in the store.
func (s *ConfigStore) UpdateStatus(id, status string, fetchedAt time.Time, fetchErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.load()
	if err != nil {
		return err
	}
	for i := range configs {
		if configs[i].ID == id {
			configs[i].LastStatus = status
			configs[i].LastFetch = fetchedAt
			configs[i].LastError = fetchErr
			return s.saveAll(configs)
		}
	}
	return fmt.Errorf("fetch config %s not found", id)
}

func (s *ConfigStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.load()
	if err != nil {
		return err
	}
	kept := configs[:0]
	for _, cfg := range configs {
		if cfg.ID != id {
			kept = append(kept, cfg)
		}
	}
	return s.saveAll(kept)
}

// saveAll encodes and writes the full array. Callers must hold s.mu.
func (s *ConfigStore) saveAll(configs []models.FetchConfig) error {
	encoded, err := json.Marshal(configs)
	if err != nil {
		return fmt.Errorf("encode fetch configs: %w", err)
	}
	if err := s.secrets.Set(configsKey, string(encoded)); err != nil {
		return fmt.Errorf("save fetch configs: %w", err)
	}
	return nil
}
