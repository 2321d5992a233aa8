package upstream

import (
	"context"

	"github.com/kbukum/sttrelay/internal/provider"
)

// SpeakerHintProvider is a provider.Provider with one speaker lookup. The
// upstream STT provider already returns inline speaker labels per token
// (see configFrame.EnableSpeakerDiarization), so Adapter.readLoop only
// consults a SpeakerHintProvider when a token arrives with no speaker set.
// NoopSpeakerHints is the default and is never available, so a future
// upstream that returns plain, undiarized text could be paired with a real
// hint source without touching internal/accumulator.
type SpeakerHintProvider interface {
	provider.Provider // embeds Name() and IsAvailable()

	// SpeakerFor returns a best-effort speaker id for the audio offset in
	// conversationId's stream, or (nil, false) if no hint is available.
	SpeakerFor(ctx context.Context, conversationID string, offsetMs int64) (*int, bool)
}

// noopSpeakerHints is the default SpeakerHintProvider: never available,
// so callers always fall back to the upstream's inline speaker field.
type noopSpeakerHints struct{}

// NoopSpeakerHints returns a SpeakerHintProvider that never supplies a hint.
func NoopSpeakerHints() SpeakerHintProvider { return noopSpeakerHints{} }

func (noopSpeakerHints) Name() string { return "noop-speaker-hints" }

func (noopSpeakerHints) IsAvailable(_ context.Context) bool { return false }

func (noopSpeakerHints) SpeakerFor(_ context.Context, _ string, _ int64) (*int, bool) {
	return nil, false
}

var _ SpeakerHintProvider = noopSpeakerHints{}
