package discoverer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/klaytn/kale-pool/metrics"
	"github.com/klaytn/kale-pool/models"
)

// plantedFarmer is the wire shape of one entry in the notification payload.
// It omits the custodial secret key: the Executor reloads and decrypts the
// secret itself from storage rather than have it cross the wire.
type plantedFarmer struct {
	FarmerID        string `json:"farmerId"`
	CustodialWallet string `json:"custodialWallet"`
	StakeAmount     string `json:"stakeAmount"`
	PlantingTime    string `json:"plantingTime"`
}

type notifyPayload struct {
	BlockIndex      int64           `json:"blockIndex"`
	Entropy         string          `json:"entropy"`
	BlockTimestamp  int64           `json:"blockTimestamp"`
	PlantedFarmers  []plantedFarmer `json:"plantedFarmers"`
}

type notifyResponse struct {
	Success         bool `json:"success"`
	FarmersScheduled int  `json:"farmersScheduled"`
}

// Notifier posts the planted-farmers notification to the Executor.
type Notifier interface {
	Notify(ctx context.Context, blockIndex int64, entropy string, blockTimestamp time.Time, farmers []plantedFarmer) (int, error)
}

// HTTPNotifier is the production Notifier: bearer-authenticated POST with
// retry, 3 attempts, exponential backoff base 500ms capped at 8s.
type HTTPNotifier struct {
	url         string
	bearerToken string
	client      *http.Client
}

// NewHTTPNotifier builds a Notifier against the Executor's notification
// endpoint.
func NewHTTPNotifier(url, bearerToken string) *HTTPNotifier {
	return &HTTPNotifier{url: url, bearerToken: bearerToken, client: &http.Client{Timeout: 10 * time.Second}}
}

func (n *HTTPNotifier) Notify(ctx context.Context, blockIndex int64, entropy string, blockTimestamp time.Time, farmers []plantedFarmer) (int, error) {
	payload := notifyPayload{
		BlockIndex:     blockIndex,
		Entropy:        entropy,
		BlockTimestamp: blockTimestamp.Unix(),
		PlantedFarmers: farmers,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	const maxAttempts = 3
	baseDelay := 500 * time.Millisecond
	capDelay := 8 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay << uint(attempt-1)
			if delay > capDelay {
				delay = capDelay
			}
			metrics.NotifyRetryCounter.Inc(1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+n.bearerToken)

		scheduled, retryable, err := n.do(req)
		if err == nil {
			return scheduled, nil
		}
		lastErr = err
		if !retryable {
			return 0, lastErr
		}
	}
	return 0, lastErr
}

// do performs one attempt, reporting whether a failure is worth retrying:
// a 5xx response is retryable, a 4xx is not.
func (n *HTTPNotifier) do(req *http.Request) (scheduled int, retryable bool, err error) {
	resp, err := n.client.Do(req)
	if err != nil {
		return 0, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return 0, true, fmt.Errorf("executor returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("executor returned %d", resp.StatusCode)
	}
	var out notifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, false, err
	}
	return out.FarmersScheduled, false, nil
}

// notifyExecutor builds the per-farmer payload from the block's successful
// plantings and delegates to the configured Notifier.
func (d *Discoverer) notifyExecutor(ctx context.Context, op *models.BlockOperation, plantedIDs []string) {
	plantings, err := d.store.ListPlantingsForBlock(ctx, op.BlockIndex)
	if err != nil {
		logger.Error("failed to reload plantings for notification", "block", op.BlockIndex, "err", err)
		return
	}
	byID := make(map[string]*models.Planting, len(plantings))
	for _, p := range plantings {
		if p.Status == models.OpSuccess {
			byID[p.FarmerID.String()] = p
		}
	}

	farmers := make([]plantedFarmer, 0, len(plantedIDs))
	for _, id := range plantedIDs {
		p, ok := byID[id]
		if !ok {
			continue
		}
		farmers = append(farmers, plantedFarmer{
			FarmerID:        id,
			CustodialWallet: p.CustodialWallet,
			StakeAmount:     fmt.Sprint(p.StakeAmount),
			PlantingTime:    p.PlantedAt.Format(time.RFC3339),
		})
	}

	blockTimestamp := time.Now()
	if op.PlantCompletedAt != nil {
		blockTimestamp = *op.PlantCompletedAt
	}

	scheduled, err := d.notifier.Notify(ctx, op.BlockIndex, op.Entropy, blockTimestamp, farmers)
	if err != nil {
		// A failed notification leaves BlockOperation at planting_completed
		// so a later re-discovery can re-notify.
		logger.Warn("executor notification failed, will retry on re-discovery", "block", op.BlockIndex, "err", err)
		return
	}
	logger.Info("notified executor", "block", op.BlockIndex, "farmers_scheduled", scheduled)
}
