package featureflags

import (
	"os"
	"strings"
)

// Known flags.
const (
	// PublicRegistration opens POST /api/auth/register for self-service signup.
	PublicRegistration = "public_registration"
	// EnforceUserLimit rejects user creation once a tenant reaches its plan's user limit.
	EnforceUserLimit = "enforce_user_limit"
)

// Flags reads flags from env as FLAG_<NAME>=true/1/yes/on (case-insensitive).
type Flags struct {
	lookup func(string) string
}

// FromEnv reads flags from the process environment on every call.
func FromEnv() *Flags {
	return &Flags{lookup: os.Getenv}
}

// Static returns flags backed by a fixed map, for tests and tooling.
func Static(values map[string]bool) *Flags {
	return &Flags{lookup: func(key string) string {
		name := strings.ToLower(strings.TrimPrefix(key, "FLAG_"))
		if values[name] {
			return "true"
		}
		return ""
	}}
}

// Enabled reports whether the named flag is on.
func (f *Flags) Enabled(name string) bool {
	if f == nil {
		return false
	}
	v := f.lookup("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
