package view

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/diewo77/bloodboard/auth"
	"github.com/diewo77/bloodboard/i18n"
	"github.com/diewo77/bloodboard/internal/models"
)

// Context key for theme
type themeKey struct{}

// WithTheme returns a new context with the given theme.
func WithTheme(ctx context.Context, theme string) context.Context {
	return context.WithValue(ctx, themeKey{}, theme)
}

// ThemeFromContext retrieves the theme from context, defaulting to "light".
func ThemeFromContext(ctx context.Context) string {
	if theme, ok := ctx.Value(themeKey{}).(string); ok {
		return theme
	}
	return "light"
}

// partialFiles are parsed alongside every page and by RenderPartial.
var partialFiles = []string{
	"header.html",
	"errors-alert.html",
	"filters.html",
	"shortage-list.html",
}

var (
	baseDir  string
	once     sync.Once
	tplCache = struct {
		sync.RWMutex
		m map[string]*template.Template
	}{m: map[string]*template.Template{}}
	assetManifest     map[string]string
	assetManifestOnce sync.Once

	langResolver  = func(r *http.Request) string { return i18n.LangFromContext(r.Context()) }
	themeResolver = func(r *http.Request) string { return ThemeFromContext(r.Context()) }
	// permission resolvers can be set by the host app to allow templates to check auth
	canProfileResolver func(*http.Request, string, string) bool
	isAdminResolver    func(*http.Request) bool
)

// SetCanProfileResolver sets a callback used by templates to check membership permissions.
func SetCanProfileResolver(f func(*http.Request, string, string) bool) {
	if f != nil {
		canProfileResolver = f
	}
}

// SetIsAdminResolver sets a callback used by templates to detect center admins.
func SetIsAdminResolver(f func(*http.Request) bool) {
	if f != nil {
		isAdminResolver = f
	}
}

// SetLangResolver allows the host app to provide a custom language resolver.
func SetLangResolver(f func(*http.Request) string) {
	if f != nil {
		langResolver = f
	}
}

// SetThemeResolver allows the host app to provide a custom theme resolver.
func SetThemeResolver(f func(*http.Request) string) {
	if f != nil {
		themeResolver = f
	}
}

// layoutBase walks upward from a template path to find the directory that contains layout.html.
// If none is found, it returns the template's own directory.
func layoutBase(mainPath string) string {
	d := filepath.Dir(mainPath)
	for {
		lp := filepath.Join(d, "layout.html")
		if fi, err := os.Stat(lp); err == nil && !fi.IsDir() {
			return d
		}
		p := filepath.Dir(d)
		if p == d {
			return filepath.Dir(mainPath)
		}
		d = p
	}
}

func detectBase() {
	candidates := []string{"templates", "../templates", "../../templates"}
	for _, c := range candidates {
		if fi, err := os.Stat(filepath.Clean(c)); err == nil && fi.IsDir() {
			baseDir = filepath.Clean(c)
			return
		}
	}
	baseDir = "templates"
}

// Funcs returns the standard func map including i18n and simple helpers.
func Funcs(r *http.Request) template.FuncMap {
	lang := langResolver(r)
	theme := themeResolver(r)
	return template.FuncMap{
		"t":    func(code string) string { return i18n.T(lang, code) },
		"lang": func() string { return lang },
		// can checks a membership permission (resource, action) -> bool
		"can": func(resource string, action string) bool {
			if canProfileResolver == nil {
				return false
			}
			return canProfileResolver(r, resource, action)
		},
		// isAdmin returns true if the user is an admin of their center
		"isAdmin": func() bool {
			if isAdminResolver == nil {
				return false
			}
			return isAdminResolver(r)
		},
		"theme": func() string { return theme },
		"year":  func() int { return time.Now().Year() },
		"asset": func(path string) string { return resolveAsset(path) },
		"deref": models.Deref,
		"fmtTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("2006-01-02 15:04")
		},
		"statusClass": statusClass,
		"bloodTypes":  func() []models.BloodType { return models.BloodTypes },
		"statuses":    func() []models.ShortageStatus { return models.Statuses },
		"toJSON": func(v any) string {
			b, err := json.Marshal(v)
			if err != nil {
				return ""
			}
			return string(b)
		},
		// dict creates a map from key-value pairs for passing to sub-templates.
		// Usage: {{ template "partial" (dict "Key1" val1 "Key2" val2) }}
		"dict": func(values ...any) map[string]any {
			if len(values)%2 != 0 {
				return nil
			}
			m := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					continue
				}
				m[key] = values[i+1]
			}
			return m
		},
	}
}

// statusClass maps a shortage status to its badge class.
func statusClass(s models.ShortageStatus) string {
	switch s {
	case models.StatusCritical:
		return "badge badge-critical"
	case models.StatusLow:
		return "badge badge-low"
	default:
		return "badge badge-normal"
	}
}

// versionedAsset returns /static/<name>?v=<hash> for cache busting.
func versionedAsset(rel string) string {
	if strings.HasPrefix(rel, "http://") || strings.HasPrefix(rel, "https://") || strings.HasPrefix(rel, "//") {
		return rel
	}
	p := filepath.Join("static", rel)
	b, err := os.ReadFile(p)
	if err != nil {
		return "/static/" + rel
	}
	h := sha1.Sum(b)
	return "/static/" + rel + "?v=" + fmt.Sprintf("%x", h[:8])
}

// resolveAsset prefers a hashed filename from manifest.json then falls back to query param versioning.
func resolveAsset(rel string) string {
	if devMode() {
		parseManifest()
	} else {
		assetManifestOnce.Do(parseManifest)
	}
	if assetManifest != nil {
		if h, ok := assetManifest[rel]; ok {
			return "/static/" + h
		}
	}
	return versionedAsset(rel)
}

func parseManifest() {
	mf := filepath.Join("static", "manifest.json")
	b, err := os.ReadFile(mf)
	if err != nil {
		return
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return
	}
	assetManifest = m
}

func devMode() bool { return os.Getenv("DEV") == "1" }

// SetBaseDir overrides the template base directory (useful for tests or custom setups).
func SetBaseDir(path string) {
	if path == "" {
		return
	}
	baseDir = filepath.Clean(path)
	once = sync.Once{}
}

// ResetForTests clears caches and forces base dir detection to rerun.
func ResetForTests() {
	tplCache.Lock()
	tplCache.m = map[string]*template.Template{}
	tplCache.Unlock()
	baseDir = ""
	once = sync.Once{}
}

// cached returns a copy of a parsed template bound to the funcs of r.
// Parsed templates keep the funcs of the request that parsed them, so they are rebound.
func cached(key string, r *http.Request) *template.Template {
	if devMode() {
		return nil
	}
	tplCache.RLock()
	t, ok := tplCache.m[key]
	tplCache.RUnlock()
	if !ok || t == nil {
		return nil
	}
	c, err := t.Clone()
	if err != nil {
		return nil
	}
	return c.Funcs(Funcs(r))
}

// store caches the unexecuted template and returns a clone to execute,
// since html/template cannot clone a template once it has run.
func store(key string, t *template.Template) *template.Template {
	if devMode() {
		return t
	}
	tplCache.Lock()
	tplCache.m[key] = t
	tplCache.Unlock()
	c, err := t.Clone()
	if err != nil {
		return t
	}
	return c
}

func existingPartials(dir string) []string {
	var files []string
	for _, name := range partialFiles {
		p := filepath.Join(dir, "partials", name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			files = append(files, p)
		}
	}
	return files
}

func withDefaults(r *http.Request, data map[string]any) map[string]any {
	if data == nil {
		data = map[string]any{}
	}
	if _, exists := data["Year"]; !exists {
		data["Year"] = time.Now().Year()
	}
	if _, exists := data["IsLoggedIn"]; !exists {
		_, loggedIn := auth.UserIDFromContext(r.Context())
		data["IsLoggedIn"] = loggedIn
	}
	return data
}

// Render parses and executes a single template file with shared funcs.
// name should be the filename (e.g., "dashboard.html").
func Render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) error {
	if baseDir == "" {
		once.Do(detectBase)
	}
	data = withDefaults(r, data)
	if t := cached(name, r); t != nil {
		return execute(w, t, "", data)
	}

	mainPath := filepath.Join(baseDir, name)
	if _, err := os.Stat(mainPath); err != nil {
		candidates := []string{
			filepath.Join("templates", name),
			filepath.Join("../templates", name),
			filepath.Join("../../templates", name),
			filepath.Join("../../../templates", name),
		}
		for _, c := range candidates {
			if fi, e2 := os.Stat(c); e2 == nil && !fi.IsDir() {
				mainPath = c
				break
			}
		}
		if _, err2 := os.Stat(mainPath); err2 != nil {
			return err
		}
	}
	// Align baseDir to the directory that owns layout.html (typically the templates root)
	baseDir = layoutBase(mainPath)
	layoutPath := filepath.Join(baseDir, "layout.html")
	funcMap := Funcs(r)
	contentBytes, _ := os.ReadFile(mainPath)
	useLayout := !bytes.Contains(bytes.ToLower(contentBytes), []byte("<!doctype"))

	var t *template.Template
	if useLayout {
		if fi, err := os.Stat(layoutPath); err == nil && !fi.IsDir() {
			files := append([]string{layoutPath, mainPath}, existingPartials(baseDir)...)
			parsed, err := template.New("layout.html").Funcs(funcMap).ParseFiles(files...)
			if err != nil {
				return err
			}
			t = parsed
		} else {
			useLayout = false
		}
	}
	if !useLayout {
		files := append([]string{mainPath}, existingPartials(baseDir)...)
		parsed, err := template.New(name).Funcs(funcMap).ParseFiles(files...)
		if err != nil {
			return err
		}
		t = parsed
	}
	return execute(w, store(name, t), "", data)
}

// RenderPartial executes a named {{define}} block from the partials directory without the layout.
// It serves HTML fragments that the browser swaps in place.
func RenderPartial(w http.ResponseWriter, r *http.Request, name string, data map[string]any) error {
	if baseDir == "" {
		once.Do(detectBase)
	}
	data = withDefaults(r, data)
	key := "partial:" + name
	if t := cached(key, r); t != nil {
		return execute(w, t, name, data)
	}
	files := existingPartials(baseDir)
	if len(files) == 0 {
		return fmt.Errorf("no partials found under %s", baseDir)
	}
	t, err := template.New(name).Funcs(Funcs(r)).ParseFiles(files...)
	if err != nil {
		return err
	}
	if d := t.Lookup(name); d == nil || d.Tree == nil {
		return fmt.Errorf("partial %q is not defined", name)
	}
	return execute(w, store(key, t), name, data)
}

// execute buffers the output so template errors surface before anything is written.
func execute(w http.ResponseWriter, t *template.Template, name string, data map[string]any) error {
	if t == nil {
		return errors.New("template not cached")
	}
	var buf bytes.Buffer
	var err error
	if name == "" {
		err = t.Execute(&buf, data)
	} else {
		err = t.ExecuteTemplate(&buf, name, data)
	}
	if err != nil {
		return err
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	_, err = buf.WriteTo(w)
	return err
}
