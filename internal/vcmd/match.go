// Package vcmd matches recognized transcripts against configured control
// phrases and resolves them to session actions.
package vcmd

import "strings"

// Action is the control intent resolved from a recognized utterance.
type Action int

const (
	ActionNone Action = iota
	ActionStop
	ActionStart
	ActionStatus
	ActionToggle
)

func (a Action) String() string {
	switch a {
	case ActionStop:
		return "stop"
	case ActionStart:
		return "start"
	case ActionStatus:
		return "status"
	case ActionToggle:
		return "toggle"
	default:
		return "none"
	}
}

// Table holds the trigger phrases for each action, normalized once at
// construction. It is immutable for the lifetime of a session.
type Table struct {
	stop   []string
	start  []string
	status []string
	toggle []string
}

// NewTable normalizes each phrase set (lowercase, surrounding whitespace
// trimmed). Phrases that trim to empty are kept: an empty phrase matches any
// transcript, which is a legal if unusual toggle configuration.
func NewTable(start, stop, status, toggle []string) Table {
	return Table{
		stop:   normalizePhrases(stop),
		start:  normalizePhrases(start),
		status: normalizePhrases(status),
		toggle: normalizePhrases(toggle),
	}
}

// Empty reports whether no phrases are configured at all.
func (t Table) Empty() bool {
	return len(t.stop)+len(t.start)+len(t.status)+len(t.toggle) == 0
}

// Match resolves a transcript to the highest-priority matching action and
// the phrase that matched. A transcript matches a phrase when, after both
// sides are lowercased and trimmed, the transcript equals or contains it.
// Categories are checked in fixed priority order stop > start > status >
// toggle so overlapping phrase sets resolve deterministically. Absence of a
// match returns ActionNone, never an error.
func Match(transcript string, table Table) (Action, string) {
	text := normalize(transcript)

	categories := []struct {
		action  Action
		phrases []string
	}{
		{ActionStop, table.stop},
		{ActionStart, table.start},
		{ActionStatus, table.status},
		{ActionToggle, table.toggle},
	}

	for _, category := range categories {
		for _, phrase := range category.phrases {
			if phrase == "" || strings.Contains(text, phrase) {
				return category.action, phrase
			}
		}
	}
	return ActionNone, ""
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizePhrases(phrases []string) []string {
	if len(phrases) == 0 {
		return nil
	}
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, normalize(p))
	}
	return out
}
