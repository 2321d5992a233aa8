// Package upstream owns the single streaming duplex connection a session
// holds open against the speech-to-text provider: sending configuration and
// audio out, and decoding token messages in.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/kbukum/sttrelay/internal/accumulator"
	apperrors "github.com/kbukum/sttrelay/internal/errors"
	"github.com/kbukum/sttrelay/internal/logger"
	"github.com/kbukum/sttrelay/internal/provider"
	"github.com/kbukum/sttrelay/internal/transport"
)

// Config holds the upstream provider's connection parameters.
type Config struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// configFrame is the single JSON frame sent immediately after the
// transport opens, per the upstream provider's wire contract.
type configFrame struct {
	APIKey                     string          `json:"api_key"`
	Model                      string          `json:"model"`
	EnableLanguageID           bool            `json:"enable_language_identification"`
	EnableSpeakerDiarization   bool            `json:"enable_speaker_diarization"`
	EnableEndpointDetection    bool            `json:"enable_endpoint_detection"`
	AudioFormat                string          `json:"audio_format"`
	SampleRate                 int             `json:"sample_rate"`
	NumChannels                int             `json:"num_channels"`
	Translation                translationCfg  `json:"translation"`
	LanguageHints              []string        `json:"language_hints"`
}

type translationCfg struct {
	Type           string `json:"type"`
	TargetLanguage string `json:"target_language"`
}

// incomingMessage is the decoded shape of any JSON frame the upstream sends.
type incomingMessage struct {
	Tokens           []wireToken `json:"tokens,omitempty"`
	DetectedLanguage string      `json:"detected_language,omitempty"`
	ErrorCode        string      `json:"error_code,omitempty"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	Finished         bool        `json:"finished,omitempty"`
}

type wireToken struct {
	Text              string `json:"text"`
	TranslationStatus string `json:"translation_status,omitempty"`
	IsFinal           bool   `json:"is_final,omitempty"`
	Speaker           *int   `json:"speaker,omitempty"`
}

// Event is one item delivered on a session's event channel: either a
// terminal error or stream completion. Live token previews bypass this
// channel entirely — they go through OnTokens straight into the session's
// Accumulator.
type Event struct {
	Err      *apperrors.AppError
	Finished bool
}

// OutboundFrame is a frame sent on the upstream duplex: either the JSON
// configuration frame (JSON set) or a raw PCM16-LE audio frame (Binary
// set). It is the I type of the provider.Duplex this package exposes.
type OutboundFrame struct {
	JSON   interface{}
	Binary []byte
}

// duplexConn adapts *transport.Conn to provider.DuplexStream so the
// upstream connection is described through the same generic interaction
// shape as any other provider in this service.
type duplexConn struct {
	conn *transport.Conn
}

func (d *duplexConn) Send(f OutboundFrame) error {
	if f.JSON != nil {
		return d.conn.SendJSON(f.JSON)
	}
	return d.conn.SendBinary(f.Binary)
}

func (d *duplexConn) Recv() (transport.Frame, error) { return d.conn.Recv() }
func (d *duplexConn) Close() error                   { return d.conn.Close() }

var _ provider.DuplexStream[OutboundFrame, transport.Frame] = (*duplexConn)(nil)

// frameIterator adapts a DuplexStream's Recv to provider.Iterator, so
// readLoop pulls inbound frames through the same generic shape the provider
// package defines for any pull-based source.
type frameIterator struct {
	stream provider.DuplexStream[OutboundFrame, transport.Frame]
}

func (it *frameIterator) Next(_ context.Context) (transport.Frame, bool, error) {
	frame, err := it.stream.Recv()
	if err != nil {
		return transport.Frame{}, false, err
	}
	return frame, true, nil
}

func (it *frameIterator) Close() error { return it.stream.Close() }

var _ provider.Iterator[transport.Frame] = (*frameIterator)(nil)

// dialer is the raw, un-wrapped provider.Duplex for one upstream base URL.
// NewDuplex returns one; the gateway wraps it once with
// provider.WithDuplexResilience and shares the wrapped value across every
// session's Adapter, so a single circuit breaker still guards every dial
// attempt against this upstream regardless of which session triggers it.
type dialer struct {
	cfg Config
}

func (d *dialer) Name() string { return "upstream-stt" }

func (d *dialer) IsAvailable(_ context.Context) bool { return true }

func (d *dialer) Open(ctx context.Context) (provider.DuplexStream[OutboundFrame, transport.Frame], error) {
	wsURL, err := buildWebsocketURL(d.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	conn, err := transport.Dial(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, err
	}
	return &duplexConn{conn: conn}, nil
}

var _ provider.Duplex[OutboundFrame, transport.Frame] = (*dialer)(nil)

// NewDuplex builds the dial-only provider.Duplex for cfg, before any
// resilience wrapping.
func NewDuplex(cfg Config) provider.Duplex[OutboundFrame, transport.Frame] {
	return &dialer{cfg: cfg}
}

// Adapter owns one upstream connection for one session. Open is
// asynchronous but audio arrives eagerly, so the connection is held behind
// a future: the first sendAudio call awaits it, and the adapter guarantees
// a single underlying writer thereafter.
type Adapter struct {
	cfg  Config
	log  *logger.Logger
	dial provider.Duplex[OutboundFrame, transport.Frame]

	openOnce sync.Once
	openErr  error
	openDone chan struct{}
	stream   provider.DuplexStream[OutboundFrame, transport.Frame]

	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex

	events chan Event

	// speakerHints fills in a speaker id for tokens the upstream leaves
	// undiarized. Defaults to NoopSpeakerHints, which is never available,
	// so the inline per-token speaker field from the upstream is used as-is
	// until a real hint source is wired in.
	speakerHints SpeakerHintProvider

	// OnTokens is invoked once per inbound token batch. The session gateway
	// sets it before the first audio chunk is sent so it can route tokens
	// into the session's Accumulator.
	OnTokens func(tokens []accumulator.Token)
}

// New constructs an Adapter over dial, the (typically resilience-wrapped)
// provider.Duplex shared across every session dialing the same upstream.
func New(cfg Config, dial provider.Duplex[OutboundFrame, transport.Frame], log *logger.Logger) *Adapter {
	return &Adapter{
		cfg:          cfg,
		log:          log.WithComponent("upstream"),
		dial:         dial,
		openDone:     make(chan struct{}),
		events:       make(chan Event, 32),
		speakerHints: NoopSpeakerHints(),
	}
}

var _ provider.Provider = (*Adapter)(nil)

// Name implements provider.Provider.
func (a *Adapter) Name() string { return "upstream-stt" }

// IsAvailable implements provider.Provider by delegating to the dial's
// resilience-wrapped availability check (e.g. the circuit breaker's state).
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	return a.dial.IsAvailable(ctx)
}

// Events returns the channel upstream errors and stream completion are
// delivered on. Live tokens do not pass through it; they go to OnTokens.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// Open establishes the upstream connection and sends the configuration
// frame. It is safe to call exactly once; Open resolves the shared future
// that SendAudio waits on.
func (a *Adapter) Open(ctx context.Context, conversationID, targetLanguage, sourceLangHint string, vocabularies string) {
	a.openOnce.Do(func() {
		defer close(a.openDone)

		stream, err := a.dial.Open(ctx)
		if err != nil {
			a.openErr = apperrors.UpstreamConnectFailed(err)
			a.log.Warn("upstream open failed", map[string]interface{}{
				"conversation_id": conversationID,
				"error":           err.Error(),
			})
			return
		}

		hints := []string{}
		if sourceLangHint != "" {
			hints = []string{sourceLangHint}
		}
		frame := configFrame{
			APIKey:                   a.cfg.APIKey,
			Model:                    "stt-rt-v3",
			EnableLanguageID:         true,
			EnableSpeakerDiarization: true,
			EnableEndpointDetection:  true,
			AudioFormat:              "pcm_s16le",
			SampleRate:               16000,
			NumChannels:              1,
			Translation:              translationCfg{Type: "one_way", TargetLanguage: targetLanguage},
			LanguageHints:            hints,
		}
		if err := stream.Send(OutboundFrame{JSON: frame}); err != nil {
			_ = stream.Close()
			a.openErr = apperrors.UpstreamConnectFailed(err)
			a.log.Warn("upstream open failed", map[string]interface{}{
				"conversation_id": conversationID,
				"error":           err.Error(),
			})
			return
		}

		a.stream = stream
		go a.readLoop(conversationID)
	})
}

// SendAudio forwards a raw PCM16-LE frame, waiting for Open to complete if
// it has not yet resolved. It drops the frame with a warning if the
// connection failed to open or has since closed.
func (a *Adapter) SendAudio(ctx context.Context, data []byte) error {
	select {
	case <-a.openDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	if a.openErr != nil {
		a.log.Warn("dropping audio: upstream not open")
		return a.openErr
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if a.closed {
		a.log.Warn("dropping audio: upstream connection closed")
		return nil
	}
	return a.stream.Send(OutboundFrame{Binary: data})
}

// Close gracefully closes the upstream connection. Idempotent.
func (a *Adapter) Close() error {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.stream != nil {
		return a.stream.Close()
	}
	return nil
}

func (a *Adapter) readLoop(conversationID string) {
	defer close(a.events)

	it := &frameIterator{stream: a.stream}
	for {
		frame, ok, err := it.Next(context.Background())
		if err != nil || !ok {
			return
		}
		if frame.Type != transport.FrameText {
			continue
		}

		var msg incomingMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			a.log.Warn("malformed upstream frame", map[string]interface{}{"error": err.Error()})
			continue
		}

		if msg.ErrorCode != "" {
			a.events <- Event{Err: apperrors.UpstreamStreamError(msg.ErrorCode, msg.ErrorMessage)}
			continue
		}
		if msg.Finished {
			a.events <- Event{Finished: true}
			return
		}

		if a.OnTokens != nil {
			tokens := make([]accumulator.Token, 0, len(msg.Tokens))
			for _, t := range msg.Tokens {
				speaker := t.Speaker
				if speaker == nil && a.speakerHints.IsAvailable(context.Background()) {
					if hint, ok := a.speakerHints.SpeakerFor(context.Background(), conversationID, 0); ok {
						speaker = hint
					}
				}
				tokens = append(tokens, accumulator.Token{
					Text:              t.Text,
					TranslationStatus: t.TranslationStatus,
					IsFinal:           t.IsFinal,
					Speaker:           speaker,
					DetectedLanguage:  msg.DetectedLanguage,
				})
			}
			a.OnTokens(tokens)
		}
	}
}

func buildWebsocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid upstream base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
