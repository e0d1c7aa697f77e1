package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrOperationFailed is returned when an async job reports failure.
var ErrOperationFailed = errors.New("graph: async operation failed")

// asyncStatusResponse mirrors the asyncJobStatus resource returned by a
// copy monitor URL.
type asyncStatusResponse struct {
	Status             string  `json:"status"`
	PercentageComplete float64 `json:"percentageComplete"`
	ResourceID         string  `json:"resourceId"`
	Error              *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WaitForOperation polls an async monitor URL every interval until the job
// reports "completed", reports failure, or ctx ends. The monitor URL is
// pre-authenticated and is never logged.
func (c *Client) WaitForOperation(ctx context.Context, monitorURL string, interval time.Duration) error {
	if monitorURL == "" {
		return errors.New("graph: no monitor URL to poll")
	}

	for poll := 1; ; poll++ {
		status, err := c.operationStatus(ctx, monitorURL)
		if err != nil {
			return err
		}

		c.logger.Debug("async operation status",
			slog.Int("poll", poll),
			slog.String("status", status.Status),
			slog.Float64("percent", status.PercentageComplete),
		)

		switch status.Status {
		case "completed":
			c.logger.Info("async operation completed",
				slog.String("resource_id", status.ResourceID),
				slog.Int("polls", poll),
			)

			return nil
		case "failed", "deleteFailed", "cancelled":
			if status.Error != nil {
				return fmt.Errorf("%w: %s: %s (%s)", ErrOperationFailed, status.Status, status.Error.Message, status.Error.Code)
			}

			return fmt.Errorf("%w: %s", ErrOperationFailed, status.Status)
		}

		if err := c.sleepFunc(ctx, interval); err != nil {
			return fmt.Errorf("graph: waiting for async operation: %w", err)
		}
	}
}

func (c *Client) operationStatus(ctx context.Context, monitorURL string) (*asyncStatusResponse, error) {
	resp, err := c.getPreAuth(ctx, "async monitor", monitorURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status asyncStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("graph: decoding async status: %w", err)
	}

	return &status, nil
}
