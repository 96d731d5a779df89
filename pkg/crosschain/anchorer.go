package crosschain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/pkg/retry"
)

// Anchorer writes a NAV anchor to a destination and waits for confirmation.
type Anchorer interface {
	Anchor(ctx context.Context, dest Destination, anchor NAVAnchor) (string, error)
}

var errAwaitingConfirmation = errors.New("anchor not yet confirmed")

// HTTPAnchorer anchors through a destination's HTTP gateway. Submission
// returns an anchor hash; confirmation is polled with a bounded backoff, so
// a stuck destination fails the attempt instead of hanging the round.
type HTTPAnchorer struct {
	Logger *zap.Logger
	Client *http.Client

	// Retry paces confirmation polling. The workflow layer owns the
	// long-horizon retry, so this budget stays tight.
	Retry retry.Config
}

func NewHTTPAnchorer(logger *zap.Logger) *HTTPAnchorer {
	return &HTTPAnchorer{
		Logger: logger,
		Client: &http.Client{Timeout: 10 * time.Second},
		Retry:  retry.AnchorConfig(),
	}
}

type anchorSubmitResponse struct {
	AnchorHash string `json:"anchor_hash"`
	Confirmed  bool   `json:"confirmed"`
}

func (a *HTTPAnchorer) Anchor(ctx context.Context, dest Destination, anchor NAVAnchor) (string, error) {
	body, err := json.Marshal(anchor)
	if err != nil {
		return "", err
	}

	url := dest.Endpoint + "/v1/anchors"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit anchor to chain %d: %w", dest.ChainID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("%w: chain %d returned %d", ErrAnchorRejected, dest.ChainID, resp.StatusCode)
	}

	var submit anchorSubmitResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&submit); err != nil {
		return "", fmt.Errorf("decode anchor response from chain %d: %w", dest.ChainID, err)
	}
	if submit.Confirmed {
		return submit.AnchorHash, nil
	}

	return submit.AnchorHash, a.awaitConfirmation(ctx, dest, submit.AnchorHash)
}

// awaitConfirmation polls the destination until the anchor confirms or the
// retry budget runs out.
func (a *HTTPAnchorer) awaitConfirmation(ctx context.Context, dest Destination, hash string) error {
	url := fmt.Sprintf("%s/v1/anchors/%s", dest.Endpoint, hash)
	operation := fmt.Sprintf("anchor confirmation on chain %d", dest.ChainID)

	err := retry.WithBackoff(ctx, a.Retry, a.Logger, operation, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := a.Client.Do(req)
		if err != nil {
			return err
		}
		var status anchorSubmitResponse
		decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&status)
		resp.Body.Close()
		if decodeErr != nil {
			return decodeErr
		}
		if !status.Confirmed {
			return errAwaitingConfirmation
		}
		return nil
	})
	if errors.Is(err, errAwaitingConfirmation) {
		return fmt.Errorf("%w: chain %d anchor %s", ErrConfirmationTimeout, dest.ChainID, hash)
	}
	return err
}
