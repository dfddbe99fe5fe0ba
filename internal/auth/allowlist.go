package auth

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Entry is one operator permitted to sign in.
type Entry struct {
	Email        string `yaml:"email"`
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Role         string `yaml:"role"`
	RoleLabel    string `yaml:"role_label"`
	PasswordHash string `yaml:"password_hash"`
}

// Verifier checks a credential pair and returns the matching entry. Lookup
// serves delegated sign-in, where no password is presented.
type Verifier interface {
	Verify(ctx context.Context, email, password string) (Entry, error)
	Lookup(email string) (Entry, bool)
}

// AllowList is the static table of operators, keyed by normalized email. It
// is not modified after construction.
type AllowList struct {
	entries map[string]Entry
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAllowList builds an AllowList from entries.
func NewAllowList(entries ...Entry) (*AllowList, error) {
	a := &AllowList{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		e.Email = NormalizeEmail(e.Email)
		if e.Email == "" || e.ID == "" {
			return nil, fmt.Errorf("auth: allow-list entry needs email and id")
		}
		if _, dup := a.entries[e.Email]; dup {
			return nil, fmt.Errorf("auth: duplicate allow-list email %s", e.Email)
		}
		a.entries[e.Email] = e
	}
	return a, nil
}

// DefaultAllowList returns the built-in operators.
func DefaultAllowList() *AllowList {
	a, _ := NewAllowList(
		Entry{Email: "jason@cascadeprojects.com", ID: "jgolden", Name: "Jason Golden", Role: "admin", RoleLabel: "System Administrator"},
		Entry{Email: "doug@cascadeprojects.com", ID: "dmino", Name: "Doug Mino", Role: "property_manager", RoleLabel: "Property Manager"},
	)
	return a
}

type allowListFile struct {
	Users []Entry `yaml:"users"`
}

// LoadAllowList reads an allow-list from a YAML file with a top-level users
// sequence.
func LoadAllowList(path string) (*AllowList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read allow-list: %w", err)
	}
	var file allowListFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("auth: parse allow-list: %w", err)
	}
	if len(file.Users) == 0 {
		return nil, fmt.Errorf("auth: allow-list %s has no users", path)
	}
	return NewAllowList(file.Users...)
}

// Lookup returns the entry for email after normalization.
func (a *AllowList) Lookup(email string) (Entry, bool) {
	e, ok := a.entries[NormalizeEmail(email)]
	return e, ok
}

// Emails lists the allowed addresses in sorted order.
func (a *AllowList) Emails() []string {
	out := make([]string, 0, len(a.entries))
	for email := range a.entries {
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}

// Verify accepts any password for entries without a password hash. Entries
// carrying a bcrypt hash must match it.
func (a *AllowList) Verify(ctx context.Context, email, password string) (Entry, error) {
	e, ok := a.Lookup(email)
	if !ok {
		return Entry{}, ErrUnauthorized
	}
	if e.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(e.PasswordHash), []byte(password)); err != nil {
			return Entry{}, ErrUnauthorized
		}
	}
	return e, nil
}

var _ Verifier = (*AllowList)(nil)
