package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tessera-fund/vaultx/pkg/utils"
)

// HTTPSource pulls NAV readings from a price feed's HTTP API.
type HTTPSource struct {
	SourceID string `json:"id"`
	Endpoint string `json:"endpoint"`

	Client *http.Client `json:"-"`
}

func (s *HTTPSource) ID() string { return s.SourceID }

// Fetch reads GET {endpoint}/v1/nav/{vaultID}. The response carries the
// source's own observation timestamp, not the fetch time, so staleness
// filtering happens against what the feed actually saw.
func (s *HTTPSource) Fetch(ctx context.Context, vaultID string) (Reading, error) {
	url := fmt.Sprintf("%s/v1/nav/%s", s.Endpoint, vaultID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Reading{}, err
	}

	httpClient := s.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return Reading{}, err
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	if resp.StatusCode != http.StatusOK {
		return Reading{}, fmt.Errorf("source %s returned status %d", s.SourceID, resp.StatusCode)
	}

	var body struct {
		Value     uint64 `json:"value"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return Reading{}, fmt.Errorf("source %s: %w", s.SourceID, err)
	}

	return Reading{OracleID: s.SourceID, Value: body.Value, Timestamp: body.Timestamp}, nil
}

// ParseHTTPSources decodes a JSON array of feed definitions, e.g.
//
//	[{"id":"chainlink","endpoint":"http://feed-cl:8080"}]
func ParseHTTPSources(raw string) ([]Source, error) {
	if raw == "" {
		return nil, nil
	}
	var defs []HTTPSource
	if err := json.Unmarshal([]byte(raw), &defs); err != nil {
		return nil, fmt.Errorf("invalid oracle sources config: %w", err)
	}
	sources := make([]Source, 0, len(defs))
	for i := range defs {
		if defs[i].SourceID == "" || defs[i].Endpoint == "" {
			return nil, fmt.Errorf("oracle source %d: id and endpoint are required", i)
		}
		sources = append(sources, &defs[i])
	}
	return sources, nil
}
