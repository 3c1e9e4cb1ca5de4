package arena

import "testing"

func TestInternAndString(t *testing.T) {
	a := NewArena()
	o1 := a.Intern("hello")
	o2 := a.Intern("world")

	if o1.String() != "hello" {
		t.Errorf("got %q, want hello", o1.String())
	}
	if o2.String() != "world" {
		t.Errorf("got %q, want world", o2.String())
	}
}

func TestZeroValueIsEmptyString(t *testing.T) {
	var o OwnedString
	if o.String() != "" {
		t.Errorf("got %q, want empty string for zero value", o.String())
	}
}

func TestReleaseRejectsFurtherIntern(t *testing.T) {
	a := NewArena()
	a.Intern("kept")
	a.Release()

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected Intern after Release to panic")
		}
	}()
	a.Intern("too late")
}

func TestStringsSurviveRelease(t *testing.T) {
	a := NewArena()
	o := a.Intern("still here")
	a.Release()

	if o.String() != "still here" {
		t.Errorf("got %q after Release, want the original value to still be readable", o.String())
	}
}
