package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"dianbiao-backend/config"
	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/parse"
	"dianbiao-backend/internal/store"
)

// Store is the part of the store the collector writes through.
type Store interface {
	GetDeviceByCode(ctx context.Context, code string) (model.Device, error)
	LatestReading(ctx context.Context, deviceID int64, before *time.Time) (model.Reading, bool, error)
	CreateReading(ctx context.Context, reading *model.Reading) error
}

// Result summarizes one collection cycle.
type Result struct {
	Fetched   int
	Stored    int
	Skipped   int
	Unchanged int // newest item already stored
}

// Service polls the remote meter gateway and stores the readings it reports.
type Service struct {
	cfg    config.CollectorConfig
	loc    *time.Location
	store  Store
	client *http.Client
}

// NewService creates a collector. loc is the zone of the gateway's timestamps.
func NewService(cfg config.CollectorConfig, loc *time.Location, s Store) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn().Err(err).Str("proxy", cfg.HTTPProxy).Msg("invalid collector proxy, connecting directly")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	if cfg.Request.PageSize <= 0 {
		cfg.Request.PageSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Service{
		cfg:   cfg,
		loc:   loc,
		store: s,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}
}

// Run collects immediately and then once per interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Info().Msg("collector is disabled, not starting")
		return
	}
	log.Info().Dur("interval", s.cfg.Interval).Str("url", s.cfg.Request.URL).Msg("starting collector")

	s.collect(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("collector shutting down")
			return
		case <-timer.C:
			s.collect(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) collect(ctx context.Context) {
	res, err := s.CollectOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("collection cycle failed")
		return
	}
	log.Info().Int("fetched", res.Fetched).Int("stored", res.Stored).Int("skipped", res.Skipped).
		Int("unchanged", res.Unchanged).Msg("collection cycle finished")
}

// CollectOnce fetches every page from the gateway and stores the newest item of
// each known device. A fetch error after some pages keeps what was fetched; a
// fetch error with nothing fetched aborts the cycle without writes.
func (s *Service) CollectOnce(ctx context.Context) (Result, error) {
	var items []Item
	total := 1
	pageSize := s.cfg.Request.PageSize
	var fetchErr error
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			log.Warn().Err(err).Int("page", page).Msg("failed to fetch gateway page")
			fetchErr = err
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		items = append(items, resp.Data.Items...)
		log.Debug().Int("page", page).Int("total", total).Int("items", len(items)).Msg("fetched gateway page")
	}

	if fetchErr != nil && len(items) == 0 {
		return Result{}, fmt.Errorf("collection aborted: %w", fetchErr)
	}

	res := Result{Fetched: len(items)}
	for _, reading := range s.newestPerDevice(ctx, items, &res) {
		latest, found, err := s.store.LatestReading(ctx, reading.DeviceID, nil)
		if err != nil {
			log.Warn().Err(err).Int64("device", reading.DeviceID).Msg("failed to load latest reading")
		} else if found && latest.ReadAt.Equal(reading.ReadAt) {
			res.Unchanged++
			continue
		}
		if err := s.store.CreateReading(ctx, &reading); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Warn().Err(err).Int64("device", reading.DeviceID).Msg("failed to store collected reading")
			res.Skipped++
			continue
		}
		res.Stored++
	}
	return res, nil
}

// newestPerDevice resolves device codes and keeps one reading per device,
// preserving the order in which devices first appeared.
func (s *Service) newestPerDevice(ctx context.Context, items []Item, res *Result) []model.Reading {
	devices := make(map[string]int64)
	index := make(map[int64]int)
	var readings []model.Reading

	for _, item := range items {
		id, known := devices[item.DeviceID]
		if !known {
			device, err := s.store.GetDeviceByCode(ctx, item.DeviceID)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					log.Warn().Err(err).Str("device", item.DeviceID).Msg("failed to look up device")
				} else {
					log.Debug().Str("device", item.DeviceID).Msg("skipping unknown device")
				}
				res.Skipped++
				continue
			}
			id = device.ID
			devices[item.DeviceID] = id
		}

		var readAt time.Time
		if item.ReadAt != "" {
			ts, err := parse.ParseTimestamp(item.ReadAt, s.loc)
			if err != nil {
				log.Warn().Err(err).Str("device", item.DeviceID).Msg("skipping item with bad read_at")
				res.Skipped++
				continue
			}
			readAt = ts
		} else {
			readAt = time.Now()
		}

		reading := model.Reading{DeviceID: id, Value: item.Value, ReadAt: readAt}
		if i, seen := index[id]; seen {
			res.Skipped++
			if !readAt.Before(readings[i].ReadAt) {
				readings[i] = reading
			}
			continue
		}
		index[id] = len(readings)
		readings = append(readings, reading)
	}
	return readings
}

// fetchPage fetches a single page of meter values from the gateway.
func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	payload := make(map[string]any, len(s.cfg.Request.Payload)+2)
	for k, v := range s.cfg.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Request.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewReader(jsonBody))
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
		return nil, fmt.Errorf("failed to unmarshal gateway response: %w", err)
	}
	if apiResp.Code != 0 {
		return nil, fmt.Errorf("gateway returned non-zero application code: %d", apiResp.Code)
	}
	return &apiResp, nil
}
