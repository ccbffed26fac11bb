package timedhit

import (
	"strconv"
	"strings"
	"time"
)

// WindowEvent describes a timed-hit window raised by presentation code.
// Normalized positions are fractions of the animation timeline.
type WindowEvent struct {
	Actor             string  `json:"actor"`
	Tag               string  `json:"tag"`
	Payload           string  `json:"payload,omitempty"`
	StartNormalized   float64 `json:"start"`
	EndNormalized     float64 `json:"end"`
	PerfectNormalized float64 `json:"perfect,omitempty"`
	HasPerfect        bool    `json:"has_perfect,omitempty"`
	Index             int     `json:"index"`
	Count             int     `json:"count"`
	ToleranceID       string  `json:"tolerance,omitempty"`
}

// ActiveWindow is an opened window waiting for its close event.
type ActiveWindow struct {
	WindowEvent
	ID       string
	OpenedAt time.Duration
}

// Center returns the judgment center for a window closed at closedAt: the
// perfect point mapped onto [OpenedAt, closedAt] when declared, else the midpoint.
func (w *ActiveWindow) Center(closedAt time.Duration) time.Duration {
	span := closedAt - w.OpenedAt
	if w.HasPerfect && w.EndNormalized > w.StartNormalized {
		frac := (w.PerfectNormalized - w.StartNormalized) / (w.EndNormalized - w.StartNormalized)
		if frac < 0 {
			frac = 0
		} else if frac > 1 {
			frac = 1
		}
		return w.OpenedAt + time.Duration(frac*float64(span))
	}
	return w.OpenedAt + span/2
}

// IsFinal reports whether the window is the last of its sequence.
func (w *ActiveWindow) IsFinal() bool {
	return w.Count <= 1 || w.Index >= w.Count-1
}

// InputEvent is a button press published on the bus.
type InputEvent struct {
	Actor  string `json:"actor"`
	Source string `json:"source"`
}

func decodeWindowEvent(payload any) (WindowEvent, bool) {
	switch v := payload.(type) {
	case WindowEvent:
		return v, true
	case *WindowEvent:
		if v == nil {
			return WindowEvent{}, false
		}
		return *v, true
	case map[string]string:
		ev := WindowEvent{
			Actor:       v["actor"],
			Tag:         v["tag"],
			Payload:     v["payload"],
			ToleranceID: v["tolerance"],
		}
		ev.StartNormalized = parseFloat(v["start"])
		ev.EndNormalized = parseFloat(v["end"])
		if p, ok := v["perfect"]; ok && strings.TrimSpace(p) != "" {
			ev.PerfectNormalized = parseFloat(p)
			ev.HasPerfect = true
		}
		ev.Index = parseInt(v["index"])
		ev.Count = parseInt(v["count"])
		return ev, true
	default:
		return WindowEvent{}, false
	}
}

func decodeInputEvent(payload any) (InputEvent, bool) {
	switch v := payload.(type) {
	case InputEvent:
		return v, true
	case *InputEvent:
		if v == nil {
			return InputEvent{}, false
		}
		return *v, true
	case map[string]string:
		return InputEvent{Actor: v["actor"], Source: v["source"]}, true
	default:
		return InputEvent{}, false
	}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseInt(s string) int {
	i, _ := strconv.Atoi(strings.TrimSpace(s))
	return i
}
