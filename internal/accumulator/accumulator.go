// Package accumulator reconstructs speaker-attributed transcript and
// translation segments from an interleaved stream of partial and final
// speech-to-text tokens.
package accumulator

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TrackType distinguishes the original-language track from the translation track.
type TrackType string

const (
	TrackOriginal    TrackType = "original"
	TrackTranslation TrackType = "translation"
)

// Segment is a finalized, speaker-attributed run of text.
type Segment struct {
	Role        string `json:"role"`
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Token is one entry of an upstream token batch.
type Token struct {
	Text              string
	TranslationStatus string
	IsFinal           bool
	Speaker           *int
	DetectedLanguage  string
}

// Result is a live preview event emitted after processing each token.
type Result struct {
	Text           string
	Type           TrackType
	Language       string
	SourceLanguage string
	Timestamp      time.Time
	IsFinal        bool
	Speaker        *int
}

type track struct {
	live        strings.Builder
	lastSpeaker *int
	finals      []Segment
}

// Accumulator holds the mutable per-session transcript state. Every method
// takes mu, so the upstream read loop, the session actor and the periodic
// save may call it from different goroutines; Snapshot returns a consistent
// copy.
type Accumulator struct {
	mu sync.Mutex

	original    track
	translation track

	hasReceivedData bool
	hasError        bool

	TargetLanguage string
	SourceLanguage string
	Vocabularies   string
}

// New creates an Accumulator for a session with the given required target
// language and optional vocabularies payload.
func New(targetLanguage, vocabularies string) *Accumulator {
	return &Accumulator{TargetLanguage: targetLanguage, Vocabularies: vocabularies}
}

// RecordingElapsed returns the elapsed time since recording started, or
// zero if recording has not started. Supplied by the caller (the
// RecordingMeter) so the accumulator stays decoupled from metering state.
type RecordingElapsed func() (time.Duration, bool)

// HandleToken classifies and appends one token to the live and final
// buffers, returning the live preview event to forward to the client.
// elapsed reports whether recording has started and, if so, for how long.
func (a *Accumulator) HandleToken(tok Token, elapsed RecordingElapsed) (Result, bool) {
	if tok.Text == "" || tok.Text == "<end>" {
		return Result{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	trackType := TrackOriginal
	if tok.TranslationStatus == "translation" {
		trackType = TrackTranslation
	}
	tr := a.trackFor(trackType)

	a.hasReceivedData = true

	if tok.Speaker != nil && (tr.lastSpeaker == nil || *tr.lastSpeaker != *tok.Speaker) {
		if tr.lastSpeaker != nil {
			tr.live.WriteString("\n\n")
		}
		tr.lastSpeaker = tok.Speaker
		fmt.Fprintf(&tr.live, "Speaker %d: ", *tok.Speaker)
	}
	tr.live.WriteString(tok.Text)

	if tok.IsFinal && tok.Speaker != nil {
		var tsMs int64
		if d, started := elapsed(); started {
			tsMs = d.Milliseconds()
		}
		role := fmt.Sprintf("Speaker %d", *tok.Speaker)
		if n := len(tr.finals); n > 0 && tr.finals[n-1].Role == role {
			tr.finals[n-1].Text += tok.Text
		} else {
			tr.finals = append(tr.finals, Segment{Role: role, Text: tok.Text, TimestampMs: tsMs})
		}
	}

	if tok.DetectedLanguage != "" && a.SourceLanguage == "" && trackType == TrackOriginal {
		a.SourceLanguage = tok.DetectedLanguage
	}

	res := Result{
		Text:           tok.Text,
		Type:           trackType,
		Language:       a.TargetLanguage,
		SourceLanguage: a.SourceLanguage,
		Timestamp:      time.Now(),
		IsFinal:        tok.IsFinal,
		Speaker:        tok.Speaker,
	}
	return res, true
}

func (a *Accumulator) trackFor(t TrackType) *track {
	if t == TrackTranslation {
		return &a.translation
	}
	return &a.original
}

// MarkError records that the upstream reported an error_code. Accumulated
// data is preserved: finalization still reads it for the durable write.
func (a *Accumulator) MarkError() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hasError = true
}

// HasReceivedData reports whether any token with non-empty text was observed.
func (a *Accumulator) HasReceivedData() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasReceivedData
}

// HasError reports whether the upstream signaled an error_code.
func (a *Accumulator) HasError() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasError
}

// Snapshot is a point-in-time, immutable copy of accumulator state for the
// periodic-save and finalization paths.
type Snapshot struct {
	LiveOriginal             string
	LiveTranslation          string
	FinalOriginalSegments    []Segment
	FinalTranslationSegments []Segment
	TargetLanguage           string
	SourceLanguage           string
	Vocabularies             string
	HasReceivedData          bool
	HasError                 bool
}

// Snapshot returns a copy of the current accumulator state.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		LiveOriginal:             a.original.live.String(),
		LiveTranslation:          a.translation.live.String(),
		FinalOriginalSegments:    append([]Segment(nil), a.original.finals...),
		FinalTranslationSegments: append([]Segment(nil), a.translation.finals...),
		TargetLanguage:           a.TargetLanguage,
		SourceLanguage:           a.SourceLanguage,
		Vocabularies:             a.Vocabularies,
		HasReceivedData:          a.hasReceivedData,
		HasError:                 a.hasError,
	}
}
