package language

import (
	"testing"

	"github.com/montroyal-labs/frontdesk/src/session"
)

func TestClassifyStrongSignals(t *testing.T) {
	params := DefaultDetectorParams()

	class, _ := Classify("I would like to buy a house downtown", params.StrongMargin)
	if class != ClassEnglish {
		t.Fatalf("Classify(english sentence) = %v, want %v", class, ClassEnglish)
	}

	class, _ = Classify("Bonjour, je voudrais vendre ma maison", params.StrongMargin)
	if class != ClassFrench {
		t.Fatalf("Classify(french sentence) = %v, want %v", class, ClassFrench)
	}
}

func TestClassifyEmptyIsAmbiguous(t *testing.T) {
	class, lean := Classify("", 0.25)
	if class != ClassAmbiguous || lean != "" {
		t.Fatalf("Classify(empty) = %v lean %q, want ambiguous with no lean", class, lean)
	}
}

func TestStrongFragmentSwitchesImmediately(t *testing.T) {
	d := NewDetector(session.LanguageEnglish, nil)

	res := d.Observe("Bonjour, je voudrais acheter une maison avec vous")
	if !res.Switched {
		t.Fatal("strong French fragment did not switch the response language")
	}
	if res.Respond != session.LanguageFrench {
		t.Fatalf("Respond = %v, want %v", res.Respond, session.LanguageFrench)
	}
}

func TestSingleAmbiguousFragmentDoesNotSwitch(t *testing.T) {
	d := NewDetector(session.LanguageEnglish, nil)

	// One weakly French-leaning fragment must not flip the language
	res := d.Observe("hmm oui maybe around there")
	if res.Switched {
		t.Fatal("single ambiguous fragment flipped the response language")
	}
	if res.Respond != session.LanguageEnglish {
		t.Fatalf("Respond = %v, want %v", res.Respond, session.LanguageEnglish)
	}
}

func TestConsecutiveAmbiguousLeanSwitches(t *testing.T) {
	d := NewDetector(session.LanguageEnglish, nil)

	res := d.Observe("ok oui fine then alright")
	if res.Switched {
		t.Fatal("switched after one ambiguous fragment")
	}
	res = d.Observe("ah oui ok sure alright")
	if !res.Switched {
		t.Fatal("did not switch after two consecutive French-leaning fragments")
	}
	if res.Respond != session.LanguageFrench {
		t.Fatalf("Respond = %v, want %v", res.Respond, session.LanguageFrench)
	}
}

func TestSameLanguageFragmentBreaksLeanRun(t *testing.T) {
	d := NewDetector(session.LanguageEnglish, nil)

	d.Observe("ok oui fine then alright")
	// A clear English utterance resets the pending switch run
	d.Observe("yes I would like to see the house please")
	res := d.Observe("ok oui fine then alright")
	if res.Switched {
		t.Fatal("lean run survived an intervening English utterance")
	}
	if res.Respond != session.LanguageEnglish {
		t.Fatalf("Respond = %v, want %v", res.Respond, session.LanguageEnglish)
	}
}

func TestMixedStateWhenBothLanguagesInWindow(t *testing.T) {
	d := NewDetector(session.LanguageEnglish, nil)

	d.Observe("I want to buy a house with a yard and the works")
	res := d.Observe("bonjour je voudrais une maison avec un jardin")
	if res.State != session.LanguageMixed {
		t.Fatalf("State = %v, want %v", res.State, session.LanguageMixed)
	}
}

func TestSwitchBackAfterReturnToEnglish(t *testing.T) {
	d := NewDetector(session.LanguageEnglish, nil)

	d.Observe("bonjour je voudrais vendre ma maison avec vous")
	if d.Respond() != session.LanguageFrench {
		t.Fatalf("Respond = %v, want %v", d.Respond(), session.LanguageFrench)
	}

	res := d.Observe("actually can we speak in english please, thank you")
	if res.Respond != session.LanguageEnglish {
		t.Fatalf("Respond = %v, want %v", res.Respond, session.LanguageEnglish)
	}
}
