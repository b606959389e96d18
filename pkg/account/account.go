package account

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCookie is returned when an account has no session cookie
var ErrEmptyCookie = errors.New("session cookie is empty")

// ErrDuplicateName is returned when two accounts share the same name
var ErrDuplicateName = errors.New("duplicate account name")

// Account is one sub-account whose wish is performed with a pre-authenticated session cookie
type Account struct {
	Name    string
	Cookie  string
	Enabled bool
}

// New creates an enabled account
func New(name, cookie string) Account {
	return Account{
		Name:    name,
		Cookie:  cookie,
		Enabled: true,
	}
}

// Validate checks the invariants of a single account
func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("account name is empty")
	}
	if strings.TrimSpace(a.Cookie) == "" {
		return fmt.Errorf("account %q: %w", a.Name, ErrEmptyCookie)
	}
	return nil
}

// MaskedCookie returns the cookie with everything but the cookie names hidden
func (a Account) MaskedCookie() string {
	return MaskCookie(a.Cookie)
}

// String implements fmt.Stringer without exposing the cookie
func (a Account) String() string {
	return a.Name
}

// MaskCookie hides cookie values, keeping only names and the first two characters of each value
func MaskCookie(cookie string) string {
	parts := strings.Split(cookie, ";")
	masked := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		if !found {
			masked = append(masked, "***")
			continue
		}
		if len(value) > 2 {
			value = value[:2]
		}
		masked = append(masked, name+"="+value+"***")
	}
	return strings.Join(masked, "; ")
}

// ValidateSet checks every account and the uniqueness of names within the set
func ValidateSet(accounts []Account) error {
	seen := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateName, a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	return nil
}

// Enabled returns the enabled accounts in their configured order
func Enabled(accounts []Account) []Account {
	result := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Enabled {
			result = append(result, a)
		}
	}
	return result
}
