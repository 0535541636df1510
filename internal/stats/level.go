package stats

import (
	"fmt"
	"strings"

	"MacroPanel/internal/domain/models"
)

// Level is the neutral reference a value is measured against.
type Level int

const (
	Zero Level = iota
	Mean
	Median
)

var levelNames = [...]string{Zero: "zero", Mean: "mean", Median: "median"}

func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

func (l Level) Valid() bool { return l >= Zero && l <= Median }

// ParseLevel maps mean, median or zero to a Level.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(l), nil
		}
	}
	return 0, fmt.Errorf("%w: neutral %q not one of mean, median, zero", models.ErrConfig, s)
}

// Mode selects whole-sample or expanding-window estimation.
type Mode int

const (
	Sequential Mode = iota
	Static
)

func (m Mode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Static:
		return "static"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) Valid() bool { return m == Sequential || m == Static }

// Scope selects whether statistics pool all cross-sections or treat each alone.
type Scope int

const (
	PanelScope Scope = iota
	CrossScope
)

func (s Scope) String() string {
	if s == CrossScope {
		return "cross"
	}
	return "panel"
}

// Spec is a validated estimation policy.
type Spec struct {
	Level Level
	Mode  Mode
}

func (s Spec) Validate() error {
	if !s.Level.Valid() {
		return fmt.Errorf("%w: unknown neutral level %d", models.ErrConfig, int(s.Level))
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: unknown estimation mode %d", models.ErrConfig, int(s.Mode))
	}
	return nil
}
