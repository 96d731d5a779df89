package crosschain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/pkg/retry"
)

func testAnchor() NAVAnchor {
	return NAVAnchor{VaultID: "fund-1", Epoch: 7, NAVPerShare: 1_010_000, Timestamp: time.Now().Unix()}
}

// fastRetry keeps confirmation polling sub-millisecond for tests.
func fastRetry(attempts int) retry.Config {
	return retry.Config{
		MaxRetries:   attempts,
		InitialDelay: time.Microsecond,
		MaxDelay:     time.Microsecond,
		Multiplier:   1.0,
	}
}

func TestAnchorImmediateConfirmation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var anchor NAVAnchor
		require.NoError(t, json.NewDecoder(r.Body).Decode(&anchor))
		assert.Equal(t, "fund-1", anchor.VaultID)

		json.NewEncoder(w).Encode(anchorSubmitResponse{AnchorHash: "0xabc", Confirmed: true})
	}))
	defer srv.Close()

	a := NewHTTPAnchorer(zap.NewNop())
	hash, err := a.Anchor(context.Background(), Destination{ChainID: 1, Endpoint: srv.URL}, testAnchor())
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)
}

func TestAnchorConfirmationPolling(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(anchorSubmitResponse{AnchorHash: "0xdef"})
			return
		}
		// Confirm on the third poll.
		confirmed := polls.Add(1) >= 3
		json.NewEncoder(w).Encode(anchorSubmitResponse{AnchorHash: "0xdef", Confirmed: confirmed})
	}))
	defer srv.Close()

	a := NewHTTPAnchorer(zap.NewNop())
	a.Retry = fastRetry(5)

	hash, err := a.Anchor(context.Background(), Destination{ChainID: 1, Endpoint: srv.URL}, testAnchor())
	require.NoError(t, err)
	assert.Equal(t, "0xdef", hash)
	assert.Equal(t, int32(3), polls.Load())
}

func TestAnchorConfirmationTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(anchorSubmitResponse{AnchorHash: "0xslow"})
	}))
	defer srv.Close()

	a := NewHTTPAnchorer(zap.NewNop())
	a.Retry = fastRetry(3)

	_, err := a.Anchor(context.Background(), Destination{ChainID: 1, Endpoint: srv.URL}, testAnchor())
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
}

func TestAnchorRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	a := NewHTTPAnchorer(zap.NewNop())
	_, err := a.Anchor(context.Background(), Destination{ChainID: 1, Endpoint: srv.URL}, testAnchor())
	assert.ErrorIs(t, err, ErrAnchorRejected)
}

func TestHealthTracker(t *testing.T) {
	h := NewHealthTracker()

	assert.False(t, h.Degraded(1))
	h.RecordFailure(1)
	h.RecordFailure(1)
	assert.False(t, h.Degraded(1))

	h.RecordFailure(1)
	assert.True(t, h.Degraded(1))
	assert.Equal(t, []uint64{1}, h.DegradedChains())

	h.RecordSuccess(1)
	assert.False(t, h.Degraded(1))
	assert.Empty(t, h.DegradedChains())
}
