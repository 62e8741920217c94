package session

import "testing"

func TestNewSessionConfirmsCallerIDPhone(t *testing.T) {
	s := New("CA100", "+15145551234")

	f, ok := s.Field(FieldPhone)
	if !ok {
		t.Fatal("phone field missing after create")
	}
	if f.Value != "+15145551234" || !f.Confirmed {
		t.Fatalf("phone = %+v, want confirmed caller ID", f)
	}
}

func TestAnonymousCallerHasNoPhone(t *testing.T) {
	s := New("CA101", "")

	if _, ok := s.Field(FieldPhone); ok {
		t.Fatal("phone field present for anonymous caller")
	}
}

func TestSetFieldResetsConfirmationOnChange(t *testing.T) {
	s := New("CA102", "")
	s.SetField(FieldBudget, "600k")
	s.ConfirmField(FieldBudget)

	s.SetField(FieldBudget, "750k")
	f, _ := s.Field(FieldBudget)
	if f.Confirmed {
		t.Fatal("changed value kept its confirmation")
	}

	// Restating the identical value must not reset anything
	s.ConfirmField(FieldBudget)
	s.SetField(FieldBudget, "750k")
	f, _ = s.Field(FieldBudget)
	if !f.Confirmed {
		t.Fatal("identical restatement reset the confirmation")
	}
}

func TestConfirmedAndUnconfirmed(t *testing.T) {
	s := New("CA103", "")
	s.SetField(FieldArea, "Westmount")
	s.ConfirmField(FieldArea)
	s.SetField(FieldBudget, "800k")

	if s.Confirmed(FieldArea, FieldBudget) {
		t.Fatal("Confirmed() = true with an unconfirmed field")
	}
	missing := s.Unconfirmed(FieldArea, FieldBudget, FieldTimeline)
	if len(missing) != 2 {
		t.Fatalf("len(Unconfirmed) = %d, want 2", len(missing))
	}
	if missing[0] != FieldBudget || missing[1] != FieldTimeline {
		t.Fatalf("Unconfirmed = %v, want [budget timeline] in order", missing)
	}
}

func TestTranscriptOrdering(t *testing.T) {
	s := New("CA104", "")
	s.AppendTranscript("caller", "hello")
	s.AppendTranscript("assistant", "hi there")
	s.AppendTranscript("caller", "I want to buy")

	tr := s.Transcript()
	if len(tr) != 3 {
		t.Fatalf("len(transcript) = %d, want 3", len(tr))
	}
	if tr[0].Text != "hello" || tr[2].Speaker != "caller" {
		t.Fatalf("transcript order broken: %+v", tr)
	}
}

func TestStoreRejectsDuplicateCreate(t *testing.T) {
	st := NewStore()
	if _, err := st.Create("CA200", "+15145550000"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := st.Create("CA200", "+15145550000"); err == nil {
		t.Fatal("duplicate Create() did not error")
	}
	if st.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", st.Len())
	}
}

func TestStoreEvictIsIdempotent(t *testing.T) {
	st := NewStore()
	st.Create("CA201", "")

	st.Evict("CA201")
	st.Evict("CA201")
	if st.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", st.Len())
	}
	if _, ok := st.Get("CA201"); ok {
		t.Fatal("Get() found an evicted session")
	}

	// The SID is reusable for a fresh call after eviction
	if _, err := st.Create("CA201", ""); err != nil {
		t.Fatalf("Create() after evict error = %v", err)
	}
}
