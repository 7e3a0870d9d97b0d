package logger

import "testing"

func TestRedactor_RedactsWhenEnabled(t *testing.T) {
	r := NewRedactor(true)

	got := r.RedactString("contact jane.doe@example.com about ticket 123-45-6789")
	if got == "contact jane.doe@example.com about ticket 123-45-6789" {
		t.Fatalf("expected redaction, got unchanged string: %q", got)
	}
}

func TestRedactor_NoOpWhenDisabled(t *testing.T) {
	r := NewRedactor(false)

	in := "jane.doe@example.com"
	if got := r.RedactString(in); got != in {
		t.Fatalf("RedactString = %q, want unchanged %q", got, in)
	}
}

func TestRedactor_LeavesIPAddressesAlone(t *testing.T) {
	r := NewRedactor(true)

	in := "203.0.113.7"
	if got := r.RedactString(in); got != in {
		t.Fatalf("RedactString = %q, want unchanged %q", got, in)
	}
}
