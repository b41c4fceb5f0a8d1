package i18n

import (
	"context"
	"testing"
)

func TestDetectLanguage(t *testing.T) {
	if DetectLanguage("en-US,en;q=0.9") != "en" {
		t.Fatalf("expected en")
	}
	if DetectLanguage("EN-gb") != "en" {
		t.Fatalf("expected en for EN-gb")
	}
	if DetectLanguage("si-LK,ta;q=0.8,en;q=0.5") != "en" {
		t.Fatalf("expected en from a later entry")
	}
	if DetectLanguage("") != "en" {
		t.Fatalf("expected default en")
	}
}

func TestTranslations(t *testing.T) {
	if T("en", "required") != "Required" {
		t.Fatalf("expected Required")
	}
	if T("en", "critical") != "Critical" {
		t.Fatalf("expected Critical")
	}
	// unknown code -> fallback to code
	if T("en", "__nope__") != "__nope__" {
		t.Fatalf("expected fallback to code")
	}
	// unknown language -> default catalogue
	if T("si", "blood_bank") != "Blood bank" {
		t.Fatalf("expected en fallback for si lang")
	}
}

func TestLangContext(t *testing.T) {
	if LangFromContext(context.Background()) != DefaultLang {
		t.Fatalf("expected default lang")
	}
	if LangFromContext(WithLang(context.Background(), "en")) != "en" {
		t.Fatalf("expected en from context")
	}
}

func TestPhoneViolationAndLabelAreDistinct(t *testing.T) {
	if T("en", "phone") != "Invalid phone number" {
		t.Fatalf("expected the phone violation text, got %q", T("en", "phone"))
	}
	if T("en", "phone_label") != "Phone" {
		t.Fatalf("expected the phone field label, got %q", T("en", "phone_label"))
	}
}
