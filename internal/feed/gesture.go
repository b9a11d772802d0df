package feed

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownGesture is returned for gestures with no registered action
var ErrUnknownGesture = errors.New("unknown gesture")

// Gesture is a row-level interaction
type Gesture int

const (
	GestureFavorite Gesture = iota
	GestureOpenBrowser
	GestureExplain
	GestureTranscript
	GestureShare
	GestureSpeak
	GestureStopSpeaking
)

var gestureNames = map[Gesture]string{
	GestureFavorite:     "favorite",
	GestureOpenBrowser:  "open",
	GestureExplain:      "explain",
	GestureTranscript:   "transcript",
	GestureShare:        "share",
	GestureSpeak:        "speak",
	GestureStopSpeaking: "stop",
}

func (g Gesture) String() string {
	if name, ok := gestureNames[g]; ok {
		return name
	}
	return fmt.Sprintf("gesture(%d)", int(g))
}

// ParseGesture maps a gesture name back to its value
func ParseGesture(name string) (Gesture, error) {
	for g, n := range gestureNames {
		if n == name {
			return g, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownGesture, name)
}

// Host performs the interactions that leave the list: browser, share
// sheet, dialogs and speech.
type Host interface {
	OpenURL(ctx context.Context, url string) error
	Share(ctx context.Context, subject, body string) error
	ShowTranscript(ctx context.Context, title, content string) error
	Speak(ctx context.Context, text string) error
	StopSpeaking(ctx context.Context) error
}

// action handles a gesture on row i
type action func(l *List, ctx context.Context, i int) error

var actions = map[Gesture]action{
	GestureFavorite: (*List).toggleFavorite,
	GestureOpenBrowser: func(l *List, ctx context.Context, i int) error {
		return l.host.OpenURL(ctx, l.comics[i].URL())
	},
	GestureExplain: func(l *List, ctx context.Context, i int) error {
		return l.host.OpenURL(ctx, l.comics[i].ExplainURL())
	},
	GestureTranscript: func(l *List, ctx context.Context, i int) error {
		row := MapRow(l.comics[i], l.style)
		return l.host.ShowTranscript(ctx, row.Title, row.Transcript)
	},
	GestureShare: func(l *List, ctx context.Context, i int) error {
		return l.host.Share(ctx, l.comics[i].Title, l.comics[i].Img)
	},
	GestureSpeak: func(l *List, ctx context.Context, i int) error {
		return l.host.Speak(ctx, MapRow(l.comics[i], l.style).Transcript)
	},
	GestureStopSpeaking: func(l *List, ctx context.Context, i int) error {
		return l.host.StopSpeaking(ctx)
	},
}
