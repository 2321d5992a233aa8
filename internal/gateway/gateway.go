// Package gateway authenticates incoming client connections, binds a
// session identifier to its accumulator/meter/upstream-adapter, and drives
// the per-session actor loop through to disconnect finalization.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/kbukum/sttrelay/internal/accumulator"
	"github.com/kbukum/sttrelay/internal/authctx"
	apperrors "github.com/kbukum/sttrelay/internal/errors"
	"github.com/kbukum/sttrelay/internal/logger"
	"github.com/kbukum/sttrelay/internal/meter"
	"github.com/kbukum/sttrelay/internal/provider"
	"github.com/kbukum/sttrelay/internal/quota"
	"github.com/kbukum/sttrelay/internal/resilience"
	"github.com/kbukum/sttrelay/internal/sessionauth"
	"github.com/kbukum/sttrelay/internal/store"
	"github.com/kbukum/sttrelay/internal/transport"
	"github.com/kbukum/sttrelay/internal/upstream"
	"github.com/kbukum/sttrelay/internal/validation"
	"github.com/kbukum/sttrelay/internal/writequeue"
)

// Config controls gateway-level behavior not owned by its collaborators.
type Config struct {
	AllowedOrigins       []string      `mapstructure:"allowed_origins"`
	PeriodicSaveInterval time.Duration `mapstructure:"periodic_save_interval"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.PeriodicSaveInterval <= 0 {
		c.PeriodicSaveInterval = 60 * time.Second
	}
}

// Gateway wires together authentication, quota admission, the upstream
// adapter, and the durable write queue behind one websocket endpoint.
type Gateway struct {
	auth           *sessionauth.Authenticator
	quota          *quota.Service
	transcriptions *store.TranscriptionStore
	queue          *writequeue.Queue
	writeSink      provider.Sink[writequeue.Operation]
	upstreamCfg    upstream.Config
	upstreamDial   provider.Duplex[upstream.OutboundFrame, transport.Frame]

	allowedOrigins       []string
	periodicSaveInterval time.Duration

	log *logger.Logger

	mu         sync.Mutex
	finalizing map[string]bool
}

// New constructs a Gateway. The caller owns starting/stopping queue and
// any background components.
func New(
	auth *sessionauth.Authenticator,
	quotaSvc *quota.Service,
	transcriptions *store.TranscriptionStore,
	queue *writequeue.Queue,
	upstreamCfg upstream.Config,
	cfg Config,
	log *logger.Logger,
) *Gateway {
	cfg.ApplyDefaults()

	writeSink := provider.WithSinkResilience[writequeue.Operation](queue, provider.ResilienceConfig{
		Bulkhead: &resilience.BulkheadConfig{Name: "writequeue-enqueue", MaxConcurrent: 64},
	})

	cbCfg := resilience.DefaultCircuitBreakerConfig("upstream-stt")
	upstreamDial := provider.WithDuplexResilience[upstream.OutboundFrame, transport.Frame](
		upstream.NewDuplex(upstreamCfg),
		provider.ResilienceConfig{CircuitBreaker: &cbCfg},
	)

	return &Gateway{
		auth:                 auth,
		quota:                quotaSvc,
		transcriptions:       transcriptions,
		queue:                queue,
		writeSink:            writeSink,
		upstreamCfg:          upstreamCfg,
		upstreamDial:         upstreamDial,
		allowedOrigins:       cfg.AllowedOrigins,
		periodicSaveInterval: cfg.PeriodicSaveInterval,
		log:                  log.WithComponent("gateway"),
		finalizing:           make(map[string]bool),
	}
}

// HandleConnection is the http.HandlerFunc mounted at the websocket
// upgrade route. It performs the full [Connect]->[Ready] handshake and, on
// success, blocks running the session actor until disconnect.
func (g *Gateway) HandleConnection(w http.ResponseWriter, r *http.Request) {
	claims, err := g.auth.FromRequest(r)
	if err != nil {
		g.log.Debug("connect: auth failed", map[string]interface{}{"error": err.Error()})
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if claims.ActiveOrganizationID == "" {
		g.log.Debug("connect: no active organization", map[string]interface{}{"user_id": claims.UserID})
		http.Error(w, "no active organization", http.StatusForbidden)
		return
	}

	conversationID := r.URL.Query().Get("conversationId")
	targetLanguage := r.URL.Query().Get("targetLanguage")
	v := validation.New().Required("conversationId", conversationID).Required("targetLanguage", targetLanguage)
	if appErr := v.Validate(); appErr != nil {
		http.Error(w, "missing session parameters", http.StatusBadRequest)
		return
	}
	vocabularies := parseVocabularies(r.URL.Query().Get("vocabularies"), g.log)

	conn, err := transport.Upgrade(w, r, g.allowedOrigins)
	if err != nil {
		g.log.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	avail, quotaErr := g.quota.CheckQuotaAvailability(r.Context(), claims.ActiveOrganizationID)
	if quotaErr != nil {
		if appErr, ok := apperrors.AsAppError(quotaErr); ok && appErr.Code == apperrors.ErrCodeQuotaExceeded {
			_ = conn.SendJSON(quotaExceededEvent{
				Event: "quota:exceeded",
				Error: appErr.Message,
				Data: quotaData{
					CurrentPlan:     avail.PlanName,
					QuotaMinutes:    avail.QuotaMinutes,
					UsedMinutes:     avail.UsedMinutes,
					UpgradeRequired: true,
				},
			})
		}
		_ = conn.Close()
		return
	}

	ctx := authctx.Set(r.Context(), claims)
	sess := newSession(g, conn, conversationID, claims.ActiveOrganizationID, targetLanguage, "", vocabularies)
	sess.run(ctx)
}

func parseVocabularies(raw string, log *logger.Logger) string {
	if raw == "" {
		return ""
	}
	var js json.RawMessage
	if err := json.Unmarshal([]byte(raw), &js); err != nil {
		log.Warn("malformed vocabularies parameter, treating as null", map[string]interface{}{"error": err.Error()})
		return ""
	}
	return raw
}

// beginFinalize returns true and marks conversationID as finalizing if no
// finalization is already in flight for it, guaranteeing finalize() runs
// at most once per session even under duplicate disconnect signals.
func (g *Gateway) beginFinalize(conversationID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finalizing[conversationID] {
		return false
	}
	g.finalizing[conversationID] = true
	return true
}

func (g *Gateway) endFinalize(conversationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.finalizing, conversationID)
}

// schedulePeriodicSave enqueues a checkpoint write if the accumulator has
// any live content and a target language, skipping otherwise.
func (g *Gateway) schedulePeriodicSave(ctx context.Context, conversationID, orgID string, acc *accumulator.Accumulator, m *meter.Meter) {
	snap := acc.Snapshot()
	if (snap.LiveOriginal == "" && snap.LiveTranslation == "") || snap.TargetLanguage == "" {
		g.log.Debug("periodic save skipped: no content yet", map[string]interface{}{"conversation_id": conversationID})
		return
	}

	write := store.TranscriptionWrite{
		ID:             conversationID,
		OrganizationID: orgID,
		ModelName:      modelName,
		TargetLanguage: strPtr(snap.TargetLanguage),
		SourceLanguage: strPtrOrNil(snap.SourceLanguage),
		DurationInMs:   m.CurrentDurationMs(),
		Status:         store.StatusInProgress,
	}
	if b, err := json.Marshal(snap.FinalOriginalSegments); err == nil {
		s := string(b)
		write.TranscriptionResult = &s
	}
	if b, err := json.Marshal(snap.FinalTranslationSegments); err == nil {
		s := string(b)
		write.TranslationResult = &s
	}
	if snap.Vocabularies != "" {
		write.Vocabularies = strPtr(snap.Vocabularies)
	}

	_ = g.writeSink.Send(ctx, writequeue.Operation{
		ID:       conversationID,
		Priority: writequeue.PriorityPeriodic,
		Exec: func(execCtx context.Context) error {
			return g.transcriptions.Upsert(execCtx, write)
		},
	})
}

func strPtr(s string) *string { return &s }

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
