package config

import (
	"errors"
	"fmt"
	"strings"
)

// SpeakerMode selects the model variant and the channel layout of the prompt.
type SpeakerMode int

const (
	SpeakerSingle SpeakerMode = iota
	SpeakerTwo
	SpeakerPureAudioAblation
)

// ErrConflictingModes is returned when both the two-speaker and the pure
// audio ablation switches are set. Only a single-speaker ablation exists.
var ErrConflictingModes = errors.New("two-speaker mode and pure audio ablation are mutually exclusive")

func (m SpeakerMode) String() string {
	switch m {
	case SpeakerSingle:
		return "single"
	case SpeakerTwo:
		return "two-speaker"
	case SpeakerPureAudioAblation:
		return "pure-audio-ablation"
	default:
		return fmt.Sprintf("SpeakerMode(%d)", int(m))
	}
}

// Channels is the channel count the model expects for this mode.
func (m SpeakerMode) Channels() int {
	if m == SpeakerTwo {
		return 2
	}
	return 1
}

// Split reports whether the model consumes per-channel latents concatenated
// on the feature axis.
func (m SpeakerMode) Split() bool { return m == SpeakerTwo }

// Variant names the model bundle directory for this mode.
func (m SpeakerMode) Variant() string {
	switch m {
	case SpeakerTwo:
		return "split"
	case SpeakerPureAudioAblation:
		return "ablation"
	default:
		return "base"
	}
}

func ParseSpeakerMode(raw string) (SpeakerMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "single", "mono", "base":
		return SpeakerSingle, nil
	case "two-speaker", "two", "stereo", "split":
		return SpeakerTwo, nil
	case "pure-audio-ablation", "ablation", "pure-audio":
		return SpeakerPureAudioAblation, nil
	default:
		return SpeakerSingle, fmt.Errorf(
			"invalid speaker mode %q (expected single|two-speaker|pure-audio-ablation)",
			raw,
		)
	}
}

// ResolveSpeakerMode combines the speaker-mode string with the legacy
// boolean switches. The switches win over the default string but must not
// contradict an explicit non-default one.
func ResolveSpeakerMode(raw string, twoSpeaker, pureAudioAblation bool) (SpeakerMode, error) {
	if twoSpeaker && pureAudioAblation {
		return SpeakerSingle, ErrConflictingModes
	}

	mode, err := ParseSpeakerMode(raw)
	if err != nil {
		return SpeakerSingle, err
	}

	var fromFlags SpeakerMode
	switch {
	case twoSpeaker:
		fromFlags = SpeakerTwo
	case pureAudioAblation:
		fromFlags = SpeakerPureAudioAblation
	default:
		return mode, nil
	}

	if mode != SpeakerSingle && mode != fromFlags {
		return SpeakerSingle, fmt.Errorf("%w: --speaker-mode=%s conflicts with the %s switch", ErrConflictingModes, mode, fromFlags)
	}
	return fromFlags, nil
}

// SpeakerMode resolves the configured speaker mode.
func (c Config) SpeakerMode() (SpeakerMode, error) {
	return ResolveSpeakerMode(c.Generate.SpeakerMode, c.Generate.TwoSpeaker, c.Generate.PureAudioAblation)
}
