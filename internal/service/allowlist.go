package service

import (
	"sort"
	"strings"
)

// Allowlist es la lista fija de emails admin. Es la autoridad final del rol:
// ningun dato del perfil puede degradar a un email listado.
type Allowlist struct {
	emails map[string]struct{}
}

func NewAllowlist(emails []string) Allowlist {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = normalizeEmail(e)
		if e == "" {
			continue
		}
		set[e] = struct{}{}
	}
	return Allowlist{emails: set}
}

// Contains compara exacto tras trim + lowercase.
func (a Allowlist) Contains(email string) bool {
	if len(a.emails) == 0 {
		return false
	}
	_, ok := a.emails[normalizeEmail(email)]
	return ok
}

func (a Allowlist) Emails() []string {
	out := make([]string, 0, len(a.emails))
	for e := range a.emails {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
