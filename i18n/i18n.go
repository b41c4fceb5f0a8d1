// Package i18n holds the UI label catalogue and the request language.
package i18n

import (
	"context"
	"strings"
)

// DefaultLang is used when the request names no supported language.
const DefaultLang = "en"

type langKey struct{}

var catalogue = map[string]map[string]string{
	"en": {
		// validation codes
		"required":      "Required",
		"invalid":       "Invalid value",
		"invalid_email": "Invalid email address",
		"too_short":     "Too short",
		"phone":         "Invalid phone number",
		"oneof":         "Not an allowed value",

		// shortage status
		"critical": "Critical",
		"low":      "Low",
		"normal":   "Normal",

		// membership roles
		"admin":  "Admin",
		"editor": "Editor",

		// account types
		"blood_bank": "Blood bank",
		"official":   "Official",

		// audit actions and tables
		"create":          "Created",
		"update":          "Updated",
		"delete":          "Deleted",
		"centers":         "Centers",
		"shortages":       "Shortages",
		"user_centers":    "Memberships",
		"auth_identities": "Accounts",

		// page chrome
		"app_name":       "Blood Shortage Board",
		"all":            "All",
		"search":         "Search",
		"blood_type":     "Blood type",
		"district":       "District",
		"status":         "Status",
		"notes":          "Notes",
		"clear_filters":  "Clear filters",
		"login":          "Sign in",
		"logout":         "Sign out",
		"signup":         "Create account",
		"dashboard":      "Dashboard",
		"audit_log":      "Audit log",
		"export":         "Export",
		"save":           "Save",
		"remove":         "Delete",
		"officials":      "Officials",
		"last_updated":   "Last updated",
		"send_code":      "Send code",
		"verify_code":    "Verify code",
		"email":          "Email",
		"password":       "Password",
		"center":         "Blood bank center",
		"center_name":    "Center name",
		"address":        "Address",
		"phone_label":    "Phone",
		"opening_hours":  "Opening hours",
		"account_type":   "Account type",
		"date_from":      "From",
		"date_to":        "To",
		"action":         "Action",
		"table":          "Table",
		"user":           "User",
		"ip_address":     "IP address",
		"timestamp":      "Time",
		"no_audit_logs":  "No audit entries match these filters",
	},
}

// Supported reports whether lang has a catalogue.
func Supported(lang string) bool {
	_, ok := catalogue[lang]
	return ok
}

// DetectLanguage picks the first supported language of an Accept-Language header.
func DetectLanguage(acceptLanguage string) string {
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		base := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if Supported(base) {
			return base
		}
	}
	return DefaultLang
}

// T returns the label for code in lang, falling back to the default language and then to code.
func T(lang, code string) string {
	if m, ok := catalogue[lang]; ok {
		if s, ok := m[code]; ok {
			return s
		}
	}
	if s, ok := catalogue[DefaultLang][code]; ok {
		return s
	}
	return code
}

// WithLang stores the request language in ctx.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, langKey{}, lang)
}

// LangFromContext returns the request language, or DefaultLang.
func LangFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(langKey{}).(string); ok && lang != "" {
		return lang
	}
	return DefaultLang
}
