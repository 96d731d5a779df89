package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/pkg/redis"
	"github.com/tessera-fund/vaultx/pkg/vaultmath"
)

// AlertKind tags a defense alert variant.
type AlertKind string

const (
	AlertOracleManipulation AlertKind = "oracle_manipulation"
	AlertBridgeAttack       AlertKind = "bridge_attack"
	AlertMessageTampering   AlertKind = "message_tampering"
	AlertFraudDetected      AlertKind = "fraud_detected"
)

// Severity orders alerts for downstream routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DefenseAlert is published on the defense channel whenever a gate drops a
// message or a consensus round excludes a source.
type DefenseAlert struct {
	Kind         AlertKind `json:"kind"`
	Severity     Severity  `json:"severity"`
	ChainID      uint64    `json:"chain_id,omitempty"`
	MessageID    string    `json:"message_id,omitempty"`
	OracleID     string    `json:"oracle_id,omitempty"`
	Value        uint64    `json:"value,omitempty"`
	DeviationBps uint64    `json:"deviation_bps,omitempty"`
	Detail       string    `json:"detail"`
	Timestamp    int64     `json:"timestamp"`
}

// Metrics counts defense activity since process start.
type Metrics struct {
	OracleQueries         *xsync.Counter
	OracleFailures        *xsync.Counter
	MessagesFiltered      *xsync.Counter
	FraudAttemptsDetected *xsync.Counter
	ChainVerifications    *xsync.Counter
	StartTime             time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		OracleQueries:         xsync.NewCounter(),
		OracleFailures:        xsync.NewCounter(),
		MessagesFiltered:      xsync.NewCounter(),
		FraudAttemptsDetected: xsync.NewCounter(),
		ChainVerifications:    xsync.NewCounter(),
		StartTime:             time.Now(),
	}
}

// Snapshot is the JSON form served by the metrics endpoint.
type MetricsSnapshot struct {
	OracleQueries         int64  `json:"oracle_queries"`
	OracleFailures        int64  `json:"oracle_failures"`
	MessagesFiltered      int64  `json:"messages_filtered"`
	FraudAttemptsDetected int64  `json:"fraud_attempts_detected"`
	ChainVerifications    int64  `json:"chain_verifications"`
	UptimeSeconds         int64  `json:"uptime_seconds"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		OracleQueries:         m.OracleQueries.Value(),
		OracleFailures:        m.OracleFailures.Value(),
		MessagesFiltered:      m.MessagesFiltered.Value(),
		FraudAttemptsDetected: m.FraudAttemptsDetected.Value(),
		ChainVerifications:    m.ChainVerifications.Value(),
		UptimeSeconds:         int64(time.Since(m.StartTime).Seconds()),
	}
}

// NAVPayload is the decoded body of a PayloadKindNAV message.
type NAVPayload struct {
	VaultID string `json:"vault_id"`
	Value   uint64 `json:"value"`
}

// ConsensusSource supplies the current consensus value for a vault. Zero
// with ok=false means no fresh round is available.
type ConsensusSource interface {
	ConsensusValue(ctx context.Context, vaultID string) (uint64, bool)
}

// Defense chains the three gates and owns alert publication.
type Defense struct {
	Logger    *zap.Logger
	Guard     *OriginGuard
	Filter    *MessageFilter
	Consensus ConsensusSource
	Redis     *redis.Client
	Metrics   *Metrics

	// MaxConsensusDeviationBps bounds how far a NAV payload may sit from
	// the live consensus value.
	MaxConsensusDeviationBps uint64
}

func NewDefense(logger *zap.Logger, guard *OriginGuard, filter *MessageFilter, metrics *Metrics) *Defense {
	return &Defense{
		Logger:                   logger,
		Guard:                    guard,
		Filter:                   filter,
		Metrics:                  metrics,
		MaxConsensusDeviationBps: 1_000,
	}
}

// Screen runs an inbound message through every gate in order. The first
// failing gate's error is returned and the message must be dropped.
func (d *Defense) Screen(ctx context.Context, env *Envelope, proof []byte) error {
	// Gate 1: origin.
	d.Metrics.ChainVerifications.Inc()
	if err := d.Guard.Verify(env, proof); err != nil {
		d.Metrics.FraudAttemptsDetected.Inc()
		d.alert(ctx, DefenseAlert{
			Kind:      AlertBridgeAttack,
			Severity:  SeverityCritical,
			ChainID:   env.SourceChainID,
			MessageID: env.MessageID,
			Detail:    err.Error(),
		})
		return err
	}

	// Gate 2: structure, expiry, replay.
	if err := d.Filter.Check(env); err != nil {
		d.Metrics.MessagesFiltered.Inc()
		d.alert(ctx, DefenseAlert{
			Kind:      AlertMessageTampering,
			Severity:  SeverityWarning,
			ChainID:   env.SourceChainID,
			MessageID: env.MessageID,
			Detail:    err.Error(),
		})
		return err
	}

	// Gate 3: consensus, for price-bearing payloads only. The gates are
	// conjunctive: a NAV value that cannot be checked against a fresh
	// consensus round is rejected, not waved through.
	if env.PayloadKind == PayloadKindNAV {
		var payload NAVPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			d.Metrics.MessagesFiltered.Inc()
			return ErrMalformedMessage
		}
		var consensus uint64
		var ok bool
		if d.Consensus != nil {
			consensus, ok = d.Consensus.ConsensusValue(ctx, payload.VaultID)
		}
		if !ok {
			d.Metrics.MessagesFiltered.Inc()
			d.alert(ctx, DefenseAlert{
				Kind:      AlertFraudDetected,
				Severity:  SeverityWarning,
				ChainID:   env.SourceChainID,
				MessageID: env.MessageID,
				Value:     payload.Value,
				Detail:    ErrConsensusUnavailable.Error(),
			})
			return ErrConsensusUnavailable
		}
		if deviation := vaultmath.DriftBps(consensus, payload.Value); deviation > d.MaxConsensusDeviationBps {
			d.Metrics.FraudAttemptsDetected.Inc()
			d.alert(ctx, DefenseAlert{
				Kind:         AlertFraudDetected,
				Severity:     SeverityCritical,
				ChainID:      env.SourceChainID,
				MessageID:    env.MessageID,
				Value:        payload.Value,
				DeviationBps: deviation,
				Detail:       ErrConsensusMismatch.Error(),
			})
			return ErrConsensusMismatch
		}
	}

	return nil
}

// ReportOracleOutlier raises a manipulation alert for an excluded oracle,
// carrying the rejected reading and how far it sat from the round median.
func (d *Defense) ReportOracleOutlier(ctx context.Context, vaultID, oracleID string, value, deviationBps uint64) {
	d.alert(ctx, DefenseAlert{
		Kind:         AlertOracleManipulation,
		Severity:     SeverityWarning,
		OracleID:     oracleID,
		Value:        value,
		DeviationBps: deviationBps,
		Detail:       "reading excluded from consensus for vault " + vaultID,
	})
}

func (d *Defense) alert(ctx context.Context, a DefenseAlert) {
	a.Timestamp = time.Now().Unix()

	d.Logger.Warn("defense alert",
		zap.String("kind", string(a.Kind)),
		zap.String("severity", string(a.Severity)),
		zap.Uint64("chainId", a.ChainID),
		zap.String("messageId", a.MessageID),
		zap.String("oracleId", a.OracleID),
		zap.Uint64("value", a.Value),
		zap.Uint64("deviationBps", a.DeviationBps),
		zap.String("detail", a.Detail))

	if d.Redis == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return
	}
	d.Redis.Publish(ctx, redis.ChannelDefenseAlerts, payload)
}
