// Package remote builds the remote-call thunks the coordinator races
// against its timeout, and the flusher the sync queue replays entries
// through. Two implementations: a loopback that confirms immediately (demo,
// tests, single-node use) and an HTTP upstream.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"latch/internal/optimistic"
	"latch/internal/syncqueue"
	shared "latch/shared/types"
)

// Factory turns an intent into the remote call that confirms it.
type Factory func(intent shared.Intent) optimistic.RemoteFunc

// Loopback confirms every intent with its own optimistic payload. No
// network is involved.
func Loopback() Factory {
	return func(intent shared.Intent) optimistic.RemoteFunc {
		return func(ctx context.Context) ([]byte, error) {
			return intent.Payload, nil
		}
	}
}

// Upstream posts intents to a sync endpoint and returns the authoritative
// payload from the response body.
func Upstream(baseURL string, timeout time.Duration) Factory {
	client := &http.Client{Timeout: timeout}

	return func(intent shared.Intent) optimistic.RemoteFunc {
		return func(ctx context.Context) ([]byte, error) {
			body, err := json.Marshal(intent)
			if err != nil {
				return nil, fmt.Errorf("marshaling intent: %w", err)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				fmt.Sprintf("%s/sync", baseURL), bytes.NewBuffer(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
				return nil, fmt.Errorf("unexpected status: %s", resp.Status)
			}

			return io.ReadAll(resp.Body)
		}
	}
}

// NewFlusher adapts a Factory into the queue processor's replay port. The
// confirmed payload is inspected for a server-assigned id so created
// entities can be re-keyed.
func NewFlusher(factory Factory) syncqueue.Flusher {
	return syncqueue.FlusherFunc(func(ctx context.Context, e *syncqueue.Entry) (*syncqueue.Outcome, error) {
		intent := shared.Intent{
			Op:          e.Op,
			Kind:        e.Kind,
			EntityID:    e.EntityID,
			Payload:     e.Payload,
			SubmittedAt: e.CreatedAt,
		}

		payload, err := factory(intent)(ctx)
		if err != nil {
			return nil, err
		}

		outcome := &syncqueue.Outcome{}
		if e.Op == shared.OpCreate && len(payload) > 0 {
			var confirmed struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(payload, &confirmed); err == nil {
				outcome.ServerID = confirmed.ID
			}
		}
		return outcome, nil
	})
}
