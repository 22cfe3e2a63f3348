package query

import (
	"fmt"
	"net/url"
	"strings"
)

// Key identifies one cached read. Scope partitions the cache per user so a
// shared cache never serves one account's data to another; Parts is the
// namespace followed by ids or filter values.
type Key struct {
	Scope string
	Parts []string
}

// NewKey builds a key from a scope and its parts
func NewKey(scope string, parts ...string) Key {
	return Key{Scope: scope, Parts: parts}
}

// Namespace is the entity type the key belongs to
func (k Key) Namespace() string {
	if len(k.Parts) == 0 {
		return ""
	}
	return k.Parts[0]
}

// String encodes the key so that every part survives a round trip through ParseKey
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(url.QueryEscape(k.Scope))
	b.WriteByte('|')
	for i, p := range k.Parts {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(url.QueryEscape(p))
	}
	return b.String()
}

// HasPrefix reports whether k lies under prefix, comparing whole parts
func (k Key) HasPrefix(prefix Key) bool {
	if k.Scope != prefix.Scope || len(prefix.Parts) > len(k.Parts) {
		return false
	}
	for i, p := range prefix.Parts {
		if k.Parts[i] != p {
			return false
		}
	}
	return true
}

// Equal reports whether both keys name the same entry
func (k Key) Equal(other Key) bool {
	return len(k.Parts) == len(other.Parts) && k.HasPrefix(other)
}

// ParseKey reverses Key.String
func ParseKey(s string) (Key, error) {
	scope, rest, ok := strings.Cut(s, "|")
	if !ok {
		return Key{}, fmt.Errorf("malformed cache key %q", s)
	}
	var k Key
	var err error
	if k.Scope, err = url.QueryUnescape(scope); err != nil {
		return Key{}, fmt.Errorf("malformed cache key %q: %w", s, err)
	}
	if rest == "" {
		return k, nil
	}
	for _, raw := range strings.Split(rest, ":") {
		part, err := url.QueryUnescape(raw)
		if err != nil {
			return Key{}, fmt.Errorf("malformed cache key %q: %w", s, err)
		}
		k.Parts = append(k.Parts, part)
	}
	return k, nil
}

// Namespaces
const (
	nsRequests = "requests"
	nsWebsites = "websites"
	nsSupport  = "support"
)

// RequestsKey is the caller's request list
func RequestsKey(scope string) Key { return NewKey(scope, nsRequests) }

// RequestKey is one request by id
func RequestKey(scope, id string) Key { return NewKey(scope, nsRequests, "detail", id) }

// LimitKey is the submission rate-limit check
func LimitKey(scope string) Key { return NewKey(scope, nsRequests, "limit") }

// WebsitesKey is the caller's website list
func WebsitesKey(scope string) Key { return NewKey(scope, nsWebsites) }

// WebsiteKey is one website by id
func WebsiteKey(scope, id string) Key { return NewKey(scope, nsWebsites, "detail", id) }

// WebsitesByPlanKey is the website list filtered by plan label
func WebsitesByPlanKey(scope, plan string) Key { return NewKey(scope, nsWebsites, "plan", plan) }

// SupportListPrefix covers every filtered ticket list
func SupportListPrefix(scope string) Key { return NewKey(scope, nsSupport, "list") }

// SupportListKey is the ticket list for one filter tuple
func SupportListKey(scope, status, websiteID, category string) Key {
	return NewKey(scope, nsSupport, "list", status, websiteID, category)
}

// SupportKey is one ticket by id
func SupportKey(scope, id string) Key { return NewKey(scope, nsSupport, "detail", id) }

// SupportByWebsiteKey is the ticket list of one website
func SupportByWebsiteKey(scope, websiteID string) Key {
	return NewKey(scope, nsSupport, "website", websiteID)
}
