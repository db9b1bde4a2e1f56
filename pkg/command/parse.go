// Package command interprets final voice transcripts: reminders, location
// questions, item searches and a conversational sub-mode.
package command

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies what a transcript asks for.
type Kind int

const (
	Unrecognized Kind = iota
	SetReminder
	QueryLocation
	LocateItem
	EnterSubMode
	ExitSubMode
	PassthroughSubModeQuery
)

var kindNames = [...]string{
	Unrecognized:            "unrecognized",
	SetReminder:             "set_reminder",
	QueryLocation:           "query_location",
	LocateItem:              "locate_item",
	EnterSubMode:            "enter_sub_mode",
	ExitSubMode:             "exit_sub_mode",
	PassthroughSubModeQuery: "passthrough",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Intent is a parsed transcript.
type Intent struct {
	Kind Kind

	// Seconds is the reminder delay for SetReminder.
	Seconds int

	// Text is the trimmed transcript.
	Text string
}

// MaxReminderSeconds caps reminder delays at one day.
const MaxReminderSeconds = 24 * 60 * 60

var reminderRE = regexp.MustCompile(`(\d+)\s*(second|seconds|sec|min|minute|minutes|hour|hours)?`)

// ParseReminder extracts the delay from "remind me ..." phrases. The unit
// defaults to seconds. It reports false when the phrase is not a reminder,
// has no number, or the delay is zero or longer than MaxReminderSeconds.
func ParseReminder(text string) (int, bool) {
	t := strings.ToLower(text)
	if !strings.Contains(t, "remind me") {
		return 0, false
	}
	m := reminderRE.FindStringSubmatch(t)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil || v <= 0 {
		return 0, false
	}

	scale := 1
	switch unit := m[2]; {
	case strings.Contains(unit, "min"):
		scale = 60
	case strings.Contains(unit, "hour"):
		scale = 3600
	}
	if v > MaxReminderSeconds/scale {
		return 0, false
	}
	return v * scale, true
}

// Parser holds the vocabulary that varies per deployment.
type Parser struct {
	// SubMode names the conversational mode; "exit <SubMode>" leaves it.
	SubMode string

	// EnterPhrase enters the sub-mode.
	EnterPhrase string

	// ItemWords are substrings that mark a question about the item.
	ItemWords []string
}

// DefaultParser matches the spectacles assistant.
func DefaultParser() Parser {
	return Parser{
		SubMode:     "voiceflow",
		EnterPhrase: "start",
		ItemWords:   []string{"spec", "spectacle", "glasses"},
	}
}

// ExitPhrase is the exact command that leaves the sub-mode.
func (p Parser) ExitPhrase() string {
	return "exit " + p.SubMode
}

// Parse classifies a transcript. subModeActive selects the sub-mode table,
// where everything but the mode commands is passed through.
func (p Parser) Parse(text string, subModeActive bool) Intent {
	text = strings.TrimSpace(text)
	low := strings.ToLower(text)
	in := Intent{Kind: Unrecognized, Text: text}

	switch low {
	case p.EnterPhrase:
		in.Kind = EnterSubMode
		return in
	case p.ExitPhrase():
		in.Kind = ExitSubMode
		return in
	}

	if subModeActive {
		in.Kind = PassthroughSubModeQuery
		return in
	}

	if secs, ok := ParseReminder(low); ok {
		in.Kind = SetReminder
		in.Seconds = secs
		return in
	}

	if strings.Contains(low, "where am i") || strings.Contains(low, "what is my location") {
		in.Kind = QueryLocation
		return in
	}

	if strings.Contains(low, "where") {
		for _, w := range p.ItemWords {
			if strings.Contains(low, w) {
				in.Kind = LocateItem
				return in
			}
		}
	}

	return in
}

// Parse classifies text in the idle state with the default vocabulary.
func Parse(text string) Intent {
	return DefaultParser().Parse(text, false)
}
