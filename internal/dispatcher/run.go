package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"app/internal/config"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/queue"
	"app/internal/repository"
	"app/internal/util"

	"github.com/rs/zerolog"
)

// Run starts the dispatch worker. It polls the dispatch queue for due
// messages and fires each one at the app's execute endpoint with a signed
// callback. On success the message is deleted; after exhausting retries it is
// archived and recorded in the dead-letter table.
func Run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, client *queue.Client, dlqRepo repository.DLQRepository) error {
	queueName := cfg.DispatchQueueName
	logger.Info().Str("queue", queueName).Str("endpoint", cfg.DispatchCallbackURL).Msg("Starting dispatch worker")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down dispatch worker")
			return nil
		default:
		}
		msgs, err := client.ReadWithPoll(ctx, queueName, cfg.DispatchPollTimeoutSec, cfg.DispatchPollMaxMsg)
		if err != nil {
			logger.Error().Err(err).Msg("Error reading dispatch queue")
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		msg := msgs[0]
		logger.Info().Int64("msg_id", msg.ID).Msgf("Received dispatch job: %s", string(msg.Data))

		var payload struct {
			ItemID string `json:"item_id"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.ItemID == "" {
			logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Malformed dispatch payload; deleting message")
			if derr := client.Delete(ctx, queueName, msg.ID); derr != nil {
				logger.Error().Err(derr).Msg("Error deleting malformed dispatch message")
			}
			continue
		}

		httpErr := deliverWithRetry(ctx, cfg, logger, msg.Data)
		if httpErr != nil {
			logger.Warn().
				Int("attempts", cfg.DispatchMaxRetries).
				Str("item_id", payload.ItemID).
				Err(httpErr).
				Msg("Exhausted all dispatch retries; moving job to DLQ")
			errText := httpErr.Error()
			dlqMsg := &model.DeadLetterMessage{
				QueueName: queueName,
				MessageID: msg.ID,
				Payload:   string(msg.Data),
				LastError: &errText,
				Attempts:  cfg.DispatchMaxRetries,
				Status:    "pending",
			}
			if err := dlqRepo.Create(ctx, dlqMsg); err != nil {
				logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Failed to record dead-letter message")
			}
			// Archive instead of delete so the raw message survives for
			// inspection and replay.
			if err := client.Archive(ctx, queueName, msg.ID); err != nil {
				logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Error archiving dispatch message after failure")
			}
			continue
		}

		if err := client.Delete(ctx, queueName, msg.ID); err != nil {
			logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Error deleting dispatch message")
		}
	}
}

// deliverWithRetry posts the payload to the execute endpoint with exponential
// backoff. Returns nil on the first 2xx response.
func deliverWithRetry(ctx context.Context, cfg *config.Config, logger zerolog.Logger, body []byte) error {
	backoff := time.Duration(cfg.DispatchBackoffInitialSec) * time.Second
	var httpErr error
	for attempt := 1; attempt <= cfg.DispatchMaxRetries; attempt++ {
		httpErr = deliverOnce(ctx, cfg, body)
		if httpErr == nil {
			return nil
		}
		logger.Error().Err(httpErr).Int("attempt", attempt).Msg("Dispatch callback failed, retrying")
		select {
		case <-ctx.Done():
			return httpErr
		case <-time.After(backoff):
		}
		backoff *= 2
		if max := time.Duration(cfg.DispatchBackoffMaxSec) * time.Second; backoff > max {
			backoff = max
		}
	}
	return httpErr
}

func deliverOnce(ctx context.Context, cfg *config.Config, body []byte) error {
	ctxReq, cancel := context.WithTimeout(ctx, time.Duration(cfg.DispatchRequestTimeoutSec)*time.Second)
	defer cancel()

	// Each attempt gets a fresh signature so retries after the token expiry
	// window still verify.
	signature, err := util.SignDispatch(body, cfg.DispatchSigningSecret, time.Now())
	if err != nil {
		return fmt.Errorf("sign dispatch payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctxReq, http.MethodPost, cfg.DispatchCallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SignatureHeader, signature)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
