package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ledgerfund/internal/model"
)

// maxDocumentBytes caps a single metadata document read.
const maxDocumentBytes = 1 << 20

// Client fetches proposal metadata from content-addressed storage
// gateways, falling back through the gateway list in order.
type Client struct {
	gateways   []string
	httpClient *http.Client
	cache      Cache
	logger     *zap.Logger
}

// NewClient builds a gateway client. A nil cache disables caching.
func NewClient(gateways []string, cache Cache, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		gateways:   gateways,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		logger:     logger,
	}
}

// FetchMetadata retrieves and decodes the document for a content hash,
// trying each gateway in order until one serves it.
func (c *Client) FetchMetadata(ctx context.Context, hash string) (*model.ProposalMetadata, error) {
	if hash == "" {
		return nil, fmt.Errorf("content hash is required")
	}
	if len(c.gateways) == 0 {
		return nil, fmt.Errorf("at least one gateway is required")
	}

	if c.cache != nil {
		if data, ok := c.cache.Get(ctx, hash); ok {
			var meta model.ProposalMetadata
			if err := json.Unmarshal(data, &meta); err == nil {
				return &meta, nil
			}
			c.logger.Warn("discard corrupt cached metadata", zap.String("hash", hash))
		}
	}

	var lastErr error
	for _, gateway := range c.gateways {
		data, err := c.fetch(ctx, gateway, hash)
		if err != nil {
			c.logger.Warn("gateway fetch failed",
				zap.String("gateway", gateway),
				zap.String("hash", hash),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		var meta model.ProposalMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			lastErr = fmt.Errorf("decode metadata: %w", err)
			continue
		}

		if c.cache != nil {
			c.cache.Set(ctx, hash, data)
		}
		return &meta, nil
	}

	return nil, fmt.Errorf("fetch metadata %s: %w", hash, lastErr)
}

func (c *Client) fetch(ctx context.Context, gateway, hash string) ([]byte, error) {
	url := strings.TrimRight(gateway, "/") + "/ipfs/" + hash

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
