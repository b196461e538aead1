package core

import (
	"errors"
	"fmt"
)

// Gender selects the broad voice category for attribute-based generation.
type Gender string

// Supported genders.
const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// Level is a five-step scale used for both pitch and speed descriptors.
type Level string

// Supported levels, from lowest to highest.
const (
	LevelVeryLow  Level = "very_low"
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very_high"
)

// VoiceAttributes describes a synthetic voice procedurally, without any
// reference audio.
type VoiceAttributes struct {
	Gender Gender
	Pitch  Level
	Speed  Level
}

// Static validation errors for voice attributes.
var (
	// ErrUnsupportedGender indicates a gender outside the known set.
	ErrUnsupportedGender = errors.New("unsupported gender")
	// ErrUnsupportedPitch indicates a pitch level outside the known set.
	ErrUnsupportedPitch = errors.New("unsupported pitch")
	// ErrUnsupportedSpeed indicates a speed level outside the known set.
	ErrUnsupportedSpeed = errors.New("unsupported speed")
)

// DefaultVoiceAttributes returns the baseline attribute tuple: a female voice
// at moderate pitch and speed.
func DefaultVoiceAttributes() VoiceAttributes {
	return VoiceAttributes{
		Gender: GenderFemale,
		Pitch:  LevelModerate,
		Speed:  LevelModerate,
	}
}

// Validate checks every descriptor against its vocabulary.
func (a VoiceAttributes) Validate() error {
	switch a.Gender {
	case GenderFemale, GenderMale:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedGender, a.Gender)
	}

	if !a.Pitch.valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedPitch, a.Pitch)
	}

	if !a.Speed.valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedSpeed, a.Speed)
	}

	return nil
}

func (l Level) valid() bool {
	switch l {
	case LevelVeryLow, LevelLow, LevelModerate, LevelHigh, LevelVeryHigh:
		return true
	default:
		return false
	}
}
