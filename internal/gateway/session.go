package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kbukum/sttrelay/internal/accumulator"
	"github.com/kbukum/sttrelay/internal/authctx"
	apperrors "github.com/kbukum/sttrelay/internal/errors"
	"github.com/kbukum/sttrelay/internal/logger"
	"github.com/kbukum/sttrelay/internal/meter"
	"github.com/kbukum/sttrelay/internal/observability"
	"github.com/kbukum/sttrelay/internal/sessionauth"
	"github.com/kbukum/sttrelay/internal/store"
	"github.com/kbukum/sttrelay/internal/transport"
	"github.com/kbukum/sttrelay/internal/upstream"
	"github.com/kbukum/sttrelay/internal/writequeue"
)

const modelName = "stt-rt-v3"

// session is one connected client, bound to its own accumulator, meter,
// and upstream adapter. All mutation of this state happens on the single
// goroutine running run(), so no locking is needed at this level — this is
// the per-session actor the concurrency model requires.
type session struct {
	gw *Gateway

	conversationID string
	orgID          string
	targetLanguage string
	sourceHint     string
	vocabularies   string

	conn     *transport.Conn
	acc      *accumulator.Accumulator
	meter    *meter.Meter
	adapter  *upstream.Adapter
	subscribed bool

	log *logger.Logger
}

func newSession(gw *Gateway, conn *transport.Conn, conversationID, orgID, targetLanguage, sourceHint, vocabularies string) *session {
	acc := accumulator.New(targetLanguage, vocabularies)
	if sourceHint != "" {
		acc.SourceLanguage = sourceHint
	}
	return &session{
		gw:             gw,
		conversationID: conversationID,
		orgID:          orgID,
		targetLanguage: targetLanguage,
		sourceHint:     sourceHint,
		vocabularies:   vocabularies,
		conn:           conn,
		acc:            acc,
		meter:          meter.New(gw.log),
		log:            gw.log.WithComponent("session"),
	}
}

// run is the session actor's event loop. It multiplexes client frames,
// upstream adapter events, and periodic-save ticks onto a single linear
// sequence, then finalizes exactly once on exit.
func (s *session) run(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, "gateway.session")
	observability.SetSpanAttribute(ctx, "conversation_id", s.conversationID)
	observability.SetSpanAttribute(ctx, "organization_id", s.orgID)
	if claims, ok := authctx.Get[*sessionauth.SessionClaims](ctx); ok {
		observability.SetSpanAttribute(ctx, "user_id", claims.UserID)
	}
	defer span.End()

	s.adapter = upstream.New(s.gw.upstreamCfg, s.gw.upstreamDial, s.gw.log)
	s.adapter.OnTokens = s.handleTokens

	frames := make(chan transport.Frame)
	recvErrs := make(chan error, 1)
	go func() {
		for {
			f, err := s.conn.Recv()
			if err != nil {
				recvErrs <- err
				return
			}
			frames <- f
		}
	}()

	ticker := time.NewTicker(s.gw.periodicSaveInterval)
	defer ticker.Stop()

	defer s.finalize(ctx)

	// events is nilled out once the adapter closes it, so the case below
	// parks instead of firing on every loop iteration with ok=false.
	events := s.adapter.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-recvErrs:
			s.log.Debug("client disconnected", map[string]interface{}{
				"conversation_id": s.conversationID,
				"reason":          fmt.Sprint(err),
			})
			return
		case f := <-frames:
			s.handleClientFrame(f)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleUpstreamEvent(ctx, ev)
		case <-ticker.C:
			s.gw.schedulePeriodicSave(ctx, s.conversationID, s.orgID, s.acc, s.meter)
		}
	}
}

func (s *session) handleClientFrame(f transport.Frame) {
	if f.Type == transport.FrameBinary {
		s.handleAudioChunk(f.Data)
		return
	}

	var env inboundEnvelope
	if err := json.Unmarshal(f.Data, &env); err != nil {
		s.log.Warn("malformed control frame", map[string]interface{}{"error": err.Error()})
		s.send(recordingErrorEvent{Event: "recording:error", Message: "malformed control frame"})
		return
	}

	switch env.Event {
	case "start_recording":
		s.meter.Start()
		s.send(recordingStartedEvent{Event: "recording:started", ConversationID: s.conversationID, Timestamp: time.Now().UnixMilli()})
	case "stop_recording":
		s.meter.Stop()
		s.gw.schedulePeriodicSave(context.Background(), s.conversationID, s.orgID, s.acc, s.meter)
		s.send(recordingStoppedEvent{
			Event:          "recording:stopped",
			ConversationID: s.conversationID,
			DurationMs:     s.meter.CurrentDurationMs(),
			Timestamp:      time.Now().UnixMilli(),
		})
	}
}

func (s *session) handleAudioChunk(data []byte) {
	if !s.meter.IsRecording() {
		s.send(transcriptionErrorEvent{Event: "transcription:error", Code: string(apperrors.ErrCodeRecordingNotStarted)})
		return
	}

	if !s.subscribed {
		s.subscribed = true
		s.adapter.Open(context.Background(), s.conversationID, s.targetLanguage, s.sourceHint, s.vocabularies)
	}

	if err := s.adapter.SendAudio(context.Background(), data); err != nil {
		s.log.Warn("send audio failed", map[string]interface{}{"conversation_id": s.conversationID, "error": err.Error()})
	}
}

// handleTokens is the upstream adapter's callback, invoked on its read
// loop goroutine. It appends to the Accumulator (safe: Accumulator guards
// its own state with a mutex) and sends each live preview event straight
// to the client via deliverResult.
func (s *session) handleTokens(tokens []accumulator.Token) {
	for _, tok := range tokens {
		result, ok := s.acc.HandleToken(tok, func() (time.Duration, bool) {
			if !s.meter.HasStarted() {
				return 0, false
			}
			return time.Duration(s.meter.CurrentDurationMs()) * time.Millisecond, true
		})
		if !ok {
			continue
		}
		s.deliverResult(result)
	}
}

// deliverResult sends a live preview straight to the client. Token
// processing already happens off the actor goroutine (inside the
// upstream adapter's read loop), but the Accumulator is internally
// synchronized and the websocket connection serializes writes, so this is
// safe without routing through the session's select loop.
func (s *session) deliverResult(r accumulator.Result) {
	s.send(translationResultEvent{
		Event:          "translation:result",
		Text:           r.Text,
		Type:           string(r.Type),
		Language:       r.Language,
		SourceLanguage: r.SourceLanguage,
		Timestamp:      r.Timestamp.UnixMilli(),
		IsFinal:        r.IsFinal,
		Speaker:        r.Speaker,
	})
}

func (s *session) handleUpstreamEvent(ctx context.Context, ev upstream.Event) {
	switch {
	case ev.Err != nil:
		observability.SetSpanError(ctx, ev.Err)
		s.acc.MarkError()
		s.send(transcriptionErrorEvent{
			Event:          "transcription:error",
			Message:        ev.Err.Message,
			Code:           string(ev.Err.Code),
			ConversationID: s.conversationID,
		})
	case ev.Finished:
		s.send(conversationCompleteEvent{Event: "conversation:complete", ConversationID: s.conversationID})
	}
}

func (s *session) send(v interface{}) {
	if err := s.conn.SendJSON(v); err != nil {
		s.log.Debug("send failed, client likely gone", map[string]interface{}{"error": err.Error()})
	}
}

// finalize runs exactly once per session on actor exit: it tears down the
// adapter, computes the final durable write, and records usage.
func (s *session) finalize(ctx context.Context) {
	if !s.gw.beginFinalize(s.conversationID) {
		return
	}
	defer s.gw.endFinalize(s.conversationID)

	if s.adapter != nil {
		_ = s.adapter.Close()
	}

	if !s.meter.HasStarted() {
		s.log.Debug("recording never started, skipping durable write", map[string]interface{}{"conversation_id": s.conversationID})
		return
	}
	durationMs := s.meter.CurrentDurationMs()

	snap := s.acc.Snapshot()
	if snap.TargetLanguage == "" {
		s.log.Warn("missing target language at finalization, skipping write", map[string]interface{}{"conversation_id": s.conversationID})
		return
	}

	finalStatus := store.StatusNoData
	switch {
	case snap.HasReceivedData:
		finalStatus = store.StatusCompleted
	case snap.HasError:
		finalStatus = store.StatusFailed
	}

	write := buildWrite(s.conversationID, s.orgID, durationMs, snap, finalStatus)
	_ = s.gw.writeSink.Send(ctx, writequeue.Operation{
		ID:       s.conversationID,
		Priority: writequeue.PriorityFinal,
		Exec: func(execCtx context.Context) error {
			return s.gw.transcriptions.Upsert(execCtx, write)
		},
	})

	if err := s.gw.quota.RecordUsage(ctx, s.orgID, durationMs); err != nil {
		s.log.Error("record usage failed", map[string]interface{}{"conversation_id": s.conversationID, "error": err.Error()})
	}
}

func buildWrite(conversationID, orgID string, durationMs int64, snap accumulator.Snapshot, status store.TranscriptionStatus) store.TranscriptionWrite {
	w := store.TranscriptionWrite{
		ID:             conversationID,
		OrganizationID: orgID,
		ModelName:      modelName,
		DurationInMs:   durationMs,
		Status:         status,
		IsFinal:        true,
	}
	if snap.TargetLanguage != "" {
		w.TargetLanguage = &snap.TargetLanguage
	}
	if snap.SourceLanguage != "" {
		w.SourceLanguage = &snap.SourceLanguage
	}
	if snap.Vocabularies != "" {
		w.Vocabularies = &snap.Vocabularies
	}
	if snap.HasReceivedData {
		if b, err := json.Marshal(snap.FinalOriginalSegments); err == nil {
			s := string(b)
			w.TranscriptionResult = &s
		}
		if b, err := json.Marshal(snap.FinalTranslationSegments); err == nil {
			s := string(b)
			w.TranslationResult = &s
		}
	}
	return w
}
