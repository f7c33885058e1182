package caller

import "testing"

func callSite(d *Distinct_t) (bool, string) {
	return d.Distinct()
}

func TestDisabledAlwaysFalse(t *testing.T) {
	var d Distinct_t
	if first, _ := callSite(&d); first {
		t.Fatal("a disabled Distinct_t should never report first-seen")
	}
}

func TestFirstCallIsDistinct(t *testing.T) {
	d := Distinct_t{Enabled: true}
	first, trace := callSite(&d)
	if !first {
		t.Fatal("the first call from a given path should be distinct")
	}
	if trace == "" {
		t.Fatal("a distinct call should come with a non-empty trace")
	}
}

func TestRepeatedCallIsNotDistinct(t *testing.T) {
	d := Distinct_t{Enabled: true}
	var second bool
	var trace string
	// Both calls come from this one line, so they share a call path.
	for i := 0; i < 2; i++ {
		second, trace = callSite(&d)
	}
	if second {
		t.Fatal("a repeated call from the same path should not be distinct")
	}
	if trace != "" {
		t.Fatal("a non-distinct call should return an empty trace")
	}
}

func TestDifferentCallSitesAreBothDistinct(t *testing.T) {
	d := Distinct_t{Enabled: true}
	first1, _ := callSite(&d)
	first2, _ := d.Distinct() // a different call site than callSite's wrapper
	if !first1 || !first2 {
		t.Fatal("two genuinely different call paths should each be distinct once")
	}
}
