// Package catalogsync imports the upstream hotel and room catalog into the
// local store.
package catalogsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"hotel-stays-backend/config"
	"hotel-stays-backend/internal/store"
)

// Invalidator drops cached catalog entries after an import.
type Invalidator interface {
	Invalidate()
}

// Invalidators fans one invalidation out to several caches.
type Invalidators []Invalidator

func (all Invalidators) Invalidate() {
	for _, inv := range all {
		inv.Invalidate()
	}
}

// Service polls the upstream catalog and upserts what it finds.
type Service struct {
	cfg    config.CatalogSyncConfig
	store  store.Store
	cache  Invalidator
	client *http.Client
	log    *zap.Logger
}

// NewService creates and initializes a new catalog sync service.
func NewService(cfg config.CatalogSyncConfig, s store.Store, cache Invalidator, log *zap.Logger) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn("invalid proxy URL, catalog sync will not use a proxy", zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Service{
		cfg:   cfg,
		store: s,
		cache: cache,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		log: log,
	}
}

// Run syncs once and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("catalog sync is disabled")
		return
	}
	s.log.Info("starting catalog sync", zap.Duration("interval", s.cfg.Interval))

	s.syncAndLog(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("catalog sync shutting down")
			return
		case <-timer.C:
			s.syncAndLog(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) syncAndLog(ctx context.Context) {
	if _, err := s.SyncOnce(ctx); err != nil {
		s.log.Warn("catalog sync cycle failed", zap.Error(err))
	}
}

// SyncOnce fetches every page and upserts the rooms. A fetch failure before
// any item arrived leaves the store untouched. It returns the number of
// rooms written.
func (s *Service) SyncOnce(ctx context.Context) (int, error) {
	var allItems []store.CatalogItem
	total := 1
	pageSize := s.cfg.Request.PageSize
	var fetchErr error
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			s.log.Warn("fetch catalog page", zap.Int("page", page), zap.Error(err))
			fetchErr = err
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		allItems = append(allItems, resp.Data.Items...)
		s.log.Debug("fetched catalog page", zap.Int("page", page), zap.Int("total", total), zap.Int("items", len(allItems)))
	}

	if fetchErr != nil && len(allItems) == 0 {
		return 0, fmt.Errorf("catalog sync aborted, nothing fetched: %w", fetchErr)
	}
	if len(allItems) == 0 {
		s.log.Info("catalog sync finished: upstream catalog is empty")
		return 0, nil
	}

	n, err := s.store.UpsertHotelsAndRooms(ctx, allItems)
	if err != nil {
		return 0, fmt.Errorf("upsert catalog: %w", err)
	}
	s.cache.Invalidate()
	s.log.Info("catalog sync finished", zap.Int("rooms", n))
	return n, nil
}

// fetchPage fetches a single page of rooms from the upstream API.
func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	jsonBody, err := json.Marshal(map[string]int{
		"page":     page,
		"pageSize": s.cfg.Request.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp ApiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api response: %w", err)
	}

	if apiResp.Code != 0 {
		return nil, fmt.Errorf("API returned non-zero application code: %d", apiResp.Code)
	}

	return &apiResp, nil
}
