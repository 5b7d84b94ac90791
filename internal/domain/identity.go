package domain

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxDatabaseNameLength is the longest database name the deriver produces.
// It matches the PostgreSQL identifier limit, which is also below MySQL's.
const MaxDatabaseNameLength = 63

const tenantSeparator = "_tenant_"

// DeriveDatabaseName computes the canonical database name of a tenant:
// "{normalized name}_tenant_{id}". The id suffix keeps names unique when
// two tenants share a display name.
func DeriveDatabaseName(rawName string, id TenantID) (string, error) {
	if id <= 0 {
		return "", &IdentityError{TenantID: id, Reason: "tenant has no id yet"}
	}

	trimmed := strings.TrimSpace(rawName)
	if trimmed == "" {
		return "", &IdentityError{TenantID: id, Reason: "tenant name is empty"}
	}

	suffix := tenantSeparator + strconv.FormatInt(int64(id), 10)
	token := normalizeName(trimmed, MaxDatabaseNameLength-len(suffix))
	if token == "" {
		return "", &IdentityError{TenantID: id, Reason: "tenant name has no database-safe characters"}
	}

	return token + suffix, nil
}

// normalizeName lowercases name, strips accents and collapses every run of
// characters outside [a-z0-9] into a single underscore.
func normalizeName(name string, limit int) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	out := b.String()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return strings.TrimRight(out, "_")
}
