package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidMode is returned when a mode name is not recognised.
var ErrInvalidMode = errors.New("invalid pipeline mode")

// Mode selects what a pipeline run does.
type Mode int

const (
	ModeFitInit Mode = iota + 1
	ModeFit
	ModePredict
	ModePredictActive
	ModeTransform
)

var modeNames = map[Mode]string{
	ModeFitInit:       "fit-init",
	ModeFit:           "fit",
	ModePredict:       "predict",
	ModePredictActive: "predict-active",
	ModeTransform:     "transform",
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// IsFit reports whether the mode trains a model and therefore requires target values.
func (m Mode) IsFit() bool {
	return m == ModeFitInit || m == ModeFit
}

// UsesStore reports whether the mode materialises a working store.
func (m Mode) UsesStore() bool {
	return m != ModeTransform
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
