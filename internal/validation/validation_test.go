package validation

import "testing"

func TestIsValidEmail(t *testing.T) {
	valid := []string{"ops@example.com", "a.b+tag@sub.domain.org"}
	invalid := []string{"", "plain", "two@@example.com", "spaces in@example.com", "no-domain@"}

	for _, s := range valid {
		if !IsValidEmail(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range invalid {
		if IsValidEmail(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestIsValidPhone(t *testing.T) {
	valid := []string{"+14155552671", "14155552671", "+44 7911 123456"}
	invalid := []string{"", "12345", "phone", "+1-415-555"}

	for _, s := range valid {
		if !IsValidPhone(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range invalid {
		if IsValidPhone(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestIsValidAdminID(t *testing.T) {
	if !IsValidAdminID("ADM10101") {
		t.Error("expected ADM10101 to be valid")
	}
	if !IsValidAdminID("REQ101001") {
		t.Error("expected REQ101001 to be valid")
	}
	if IsValidAdminID("adm10101") {
		t.Error("lowercase prefix should be invalid")
	}
	if IsValidAdminID("ADM") {
		t.Error("missing sequence should be invalid")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("got %q", got)
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("email", ""),
		ValidEmail("email", ""),
		ValidPhone("phone", "bogus"),
		MaxLength("reason", "ok", 10),
	)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs.Error() != "email: is required" {
		t.Errorf("unexpected error string %q", errs.Error())
	}
}
