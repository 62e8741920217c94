package language

import (
	"strings"
	"unicode"

	"github.com/montroyal-labs/frontdesk/src/session"
)

// Classification is the per-fragment result of lexical scoring
type Classification int

const (
	ClassAmbiguous Classification = iota
	ClassEnglish
	ClassFrench
)

func (c Classification) String() string {
	switch c {
	case ClassEnglish:
		return "english"
	case ClassFrench:
		return "french"
	default:
		return "ambiguous"
	}
}

// DetectorParams are the tunable classification thresholds. The boundary
// between ambiguous and confirmed is a heuristic, so it is configuration
// rather than hardcoded.
type DetectorParams struct {
	Window       int     // Rolling window of caller utterances (default: 3)
	StrongMargin float64 // Normalized cue-score margin for a strong signal (default: 0.25)
	AmbiguousRun int     // Consecutive same-leaning ambiguous fragments that trigger a switch (default: 2)
}

// DefaultDetectorParams returns default parameters
func DefaultDetectorParams() *DetectorParams {
	return &DetectorParams{
		Window:       3,
		StrongMargin: 0.25,
		AmbiguousRun: 2,
	}
}

// Result is the session-level language state after observing a fragment
type Result struct {
	State    session.Language // english, french, or mixed
	Respond  session.Language // language the model should answer in next turn
	Switched bool             // respond language changed on this fragment
}

// Detector maintains a rolling classification over recent caller utterances.
// Switches are sticky: a single ambiguous fragment never flips the state.
type Detector struct {
	params *DetectorParams

	window  []Classification
	respond session.Language

	// Run of consecutive ambiguous fragments leaning away from the
	// current respond language
	leanRun  int
	leanWhat session.Language
}

// NewDetector creates a detector starting in the given language
func NewDetector(initial session.Language, params *DetectorParams) *Detector {
	if params == nil {
		params = DefaultDetectorParams()
	}
	if initial != session.LanguageFrench {
		initial = session.LanguageEnglish
	}
	return &Detector{
		params:  params,
		respond: initial,
	}
}

// Observe classifies one caller transcript fragment and updates the
// session-level language state
func (d *Detector) Observe(text string) Result {
	class, lean := Classify(text, d.params.StrongMargin)

	d.window = append(d.window, class)
	if len(d.window) > d.params.Window {
		d.window = d.window[1:]
	}

	switched := false
	switch {
	case class == ClassEnglish && d.respond != session.LanguageEnglish:
		d.respond = session.LanguageEnglish
		d.leanRun = 0
		switched = true
	case class == ClassFrench && d.respond != session.LanguageFrench:
		d.respond = session.LanguageFrench
		d.leanRun = 0
		switched = true
	case class == ClassAmbiguous && lean != "" && lean != d.respond:
		if d.leanWhat == lean {
			d.leanRun++
		} else {
			d.leanWhat = lean
			d.leanRun = 1
		}
		if d.leanRun >= d.params.AmbiguousRun {
			d.respond = lean
			d.leanRun = 0
			switched = true
		}
	default:
		// Strong fragment in the current language, or ambiguous with no
		// opposite lean: any pending switch run is broken
		d.leanRun = 0
	}

	return Result{
		State:    d.state(),
		Respond:  d.respond,
		Switched: switched,
	}
}

// Respond returns the current response language without observing anything
func (d *Detector) Respond() session.Language {
	return d.respond
}

func (d *Detector) state() session.Language {
	var sawEN, sawFR bool
	for _, c := range d.window {
		switch c {
		case ClassEnglish:
			sawEN = true
		case ClassFrench:
			sawFR = true
		}
	}
	if sawEN && sawFR {
		return session.LanguageMixed
	}
	return d.respond
}

// Lexical cue tables. Function words dominate short conversational
// utterances, which makes them reliable cues for telephone speech.
var englishCues = map[string]struct{}{}
var frenchCues = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"the a an is are was i you we they it and or but with for to of in on at " +
			"hello hi thanks thank yes no looking buy sell rent would like want need " +
			"can could please house condo down downtown my me speak talk") {
		englishCues[w] = struct{}{}
	}
	for _, w := range strings.Fields(
		"le la les un une des du de je tu il elle nous vous ils est sont et ou mais " +
			"avec pour dans sur bonjour merci oui non acheter vendre louer je voudrais " +
			"veux besoin peux pouvez s'il plait maison condo centre-ville mon ma parler") {
		frenchCues[w] = struct{}{}
	}
}

// Classify scores a fragment against both cue tables. It returns the
// classification and, for ambiguous fragments, which language the weak
// score leans toward ("" when neutral).
func Classify(text string, strongMargin float64) (Classification, session.Language) {
	words := tokenize(text)
	if len(words) == 0 {
		return ClassAmbiguous, ""
	}

	var en, fr float64
	for _, w := range words {
		if _, ok := englishCues[w]; ok {
			en++
		}
		if _, ok := frenchCues[w]; ok {
			fr++
		}
	}

	// Accented characters are a strong orthographic cue for French
	for _, r := range text {
		switch unicode.ToLower(r) {
		case 'é', 'è', 'ê', 'à', 'ç', 'ô', 'û', 'ù', 'î', 'ë', 'ï':
			fr += 0.5
		}
	}

	score := (fr - en) / float64(len(words))
	switch {
	case score >= strongMargin:
		return ClassFrench, session.LanguageFrench
	case score <= -strongMargin:
		return ClassEnglish, session.LanguageEnglish
	case score > 0:
		return ClassAmbiguous, session.LanguageFrench
	case score < 0:
		return ClassAmbiguous, session.LanguageEnglish
	default:
		return ClassAmbiguous, ""
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '-'
	})
}
