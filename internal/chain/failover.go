package chain

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DialFirstHealthy tries each RPC URL in order and returns a client for
// the first endpoint that answers a liveness probe within probeTimeout.
// The selected endpoint is used for the rest of the session.
func DialFirstHealthy(ctx context.Context, rpcURLs []string, probeTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(rpcURLs) == 0 {
		return nil, fmt.Errorf("at least one rpc url is required")
	}
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}

	var lastErr error
	for _, rpcURL := range rpcURLs {
		client, err := NewClient(ctx, rpcURL)
		if err != nil {
			logger.Warn("rpc dial failed", zap.String("endpoint", rpcURL), zap.Error(err))
			lastErr = err
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		_, err = client.LatestBlockNumber(probeCtx)
		cancel()
		if err != nil {
			logger.Warn("rpc liveness probe failed", zap.String("endpoint", rpcURL), zap.Error(err))
			client.Close()
			lastErr = err
			continue
		}

		logger.Info("rpc endpoint selected", zap.String("endpoint", rpcURL))
		return client, nil
	}

	return nil, fmt.Errorf("no healthy rpc endpoint: %w", lastErr)
}
