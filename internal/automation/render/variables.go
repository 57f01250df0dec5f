package render

import (
	"strconv"
	"strings"
	"time"

	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/events"
	"recruitment_backend/platform/phone"
)

type resolver struct {
	aliases map[string]string
	entity  domain.Snapshot
	static  map[string]string
	system  map[string]string
	locale  string
}

func newResolver(b Bindings) *resolver {
	r := &resolver{
		aliases: entityAliases(b.EntityType, b.Entity, b.Locale),
		entity:  b.Entity,
		static:  b.Static,
		system:  map[string]string{"current_date": FormatDate(b.Now, b.Locale)},
		locale:  b.Locale,
	}
	if b.SystemName != "" {
		r.system["system_name"] = b.SystemName
	}
	return r
}

func (r *resolver) resolve(name string) (string, bool) {
	if v, ok := r.aliases[name]; ok {
		return v, true
	}
	if raw, ok := r.entity.Lookup(name); ok {
		if v, ok := formatValue(raw, r.locale); ok {
			return v, true
		}
	}
	if v, ok := r.static[name]; ok {
		return v, true
	}
	if v, ok := r.system[name]; ok {
		return v, true
	}
	return "", false
}

// entityAliases derives the friendly variable names admins use in templates
// from the raw snapshot columns.
func entityAliases(entityType events.EntityType, s domain.Snapshot, locale string) map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}

	text := func(path string) (string, bool) {
		raw, ok := s.Lookup(path)
		if !ok {
			return "", false
		}
		v, ok := formatValue(raw, locale)
		return v, ok && v != ""
	}
	set := func(alias string, paths ...string) {
		for _, p := range paths {
			if v, ok := text(p); ok {
				out[alias] = v
				return
			}
		}
	}

	set("first_name", "first_name")
	set("last_name", "last_name")
	set("email", "email")
	set("status", "status")
	set("summary", "summary")
	set("score", "score")

	if v, ok := text("name"); ok {
		out["name"] = v
	} else if full := strings.TrimSpace(out["first_name"] + " " + out["last_name"]); full != "" {
		out["name"] = full
	}

	if raw, ok := text("phone"); ok {
		out["phone"] = phone.NormalizeE164In(raw, regionOf(locale))
	}

	set("company_name", "company.name", "project.company.name")
	if entityType == events.EntityProject {
		set("project_name", "name")
	} else {
		set("project_name", "project.name")
	}
	return out
}

// formatValue renders scalars, times and slices of scalars. Maps have no
// textual form and do not resolve.
func formatValue(v any, locale string) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case time.Time:
		return FormatDate(t, locale), true
	case []string:
		return strings.Join(t, ", "), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := formatValue(item, locale)
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ", "), true
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String(), true
	}
	return "", false
}
