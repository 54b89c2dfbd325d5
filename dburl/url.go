// Package dburl parses the connection descriptor consumed by the pool and
// driver adapters:
//
//	protocol://[user[:password]@][host|[ipv6]][:port][/path][?k=v&k=v...]
//
// A URL is immutable once parsed and cheaply clonable. Percent-decoding
// (RFC 2396) is applied to credentials, path, and parameter values only —
// never to parameter names, the host, or the protocol.
package dburl

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/karolsteve/libzdb/zerr"
)

// Param is one k=v pair from the query string, kept in insertion order.
type Param struct {
	Name  string
	Value string
}

// URL is an immutable, parsed connection descriptor.
type URL struct {
	raw      string
	protocol string
	user     string
	hasUser  bool
	password string
	hasPass  bool
	host     string
	port     int
	path     string
	rawQuery string
	params   []Param
}

// Parse parses raw into a URL, failing with a zerr.Error of kind SQL if the
// protocol is absent or the string is otherwise malformed.
func Parse(raw string) (*URL, error) {
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd <= 0 {
		return nil, zerr.New("invalid URL %q -- missing protocol", raw)
	}
	u := &URL{raw: raw, protocol: raw[:schemeEnd], port: -1}
	rest := raw[schemeEnd+3:]

	// Split off the query string first; everything after the first '?'.
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		u.rawQuery = rest[i+1:]
		rest = rest[:i]
	}

	// Split off the path; everything from the first '/'.
	var authority string
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority = rest[:i]
		path, err := decode(rest[i:])
		if err != nil {
			return nil, zerr.New("invalid URL %q -- bad path escape: %s", raw, err)
		}
		u.path = path
	} else {
		authority = rest
	}

	if err := u.parseAuthority(authority); err != nil {
		return nil, err
	}
	if err := u.parseParams(); err != nil {
		return nil, err
	}
	// auth-part credentials win over same-named query parameters.
	if !u.hasUser {
		if v, ok := u.Parameter("user"); ok {
			u.user, u.hasUser = v, true
		}
	}
	if !u.hasPass {
		if v, ok := u.Parameter("password"); ok {
			u.password, u.hasPass = v, true
		}
	}
	return u, nil
}

func (u *URL) parseAuthority(authority string) error {
	hostport := authority
	if i := strings.LastIndexByte(authority, '@'); i >= 0 {
		creds := authority[:i]
		hostport = authority[i+1:]
		userPart, passPart, hasPass := strings.Cut(creds, ":")
		user, err := decode(userPart)
		if err != nil {
			return zerr.New("invalid URL %q -- bad user escape: %s", u.raw, err)
		}
		u.user, u.hasUser = user, true
		if hasPass {
			pass, err := decode(passPart)
			if err != nil {
				return zerr.New("invalid URL %q -- bad password escape: %s", u.raw, err)
			}
			u.password, u.hasPass = pass, true
		}
	}
	if hostport == "" {
		return nil
	}
	if strings.HasPrefix(hostport, "[") {
		// bracketed IPv6 literal, kept bracketed; optional :port after ']'.
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return zerr.New("invalid URL %q -- unterminated IPv6 literal", u.raw)
		}
		u.host = hostport[:end+1]
		remainder := hostport[end+1:]
		if strings.HasPrefix(remainder, ":") {
			return u.setPort(remainder[1:])
		}
		return nil
	}
	host, port, hasPort := strings.Cut(hostport, ":")
	u.host = host
	if hasPort {
		return u.setPort(port)
	}
	return nil
}

func (u *URL) setPort(s string) error {
	p, err := strconv.Atoi(s)
	if err != nil {
		return zerr.New("invalid URL %q -- bad port %q", u.raw, s)
	}
	u.port = p
	return nil
}

func (u *URL) parseParams() error {
	if u.rawQuery == "" {
		return nil
	}
	seen := make(map[string]bool)
	for _, kv := range strings.Split(u.rawQuery, "&") {
		if kv == "" {
			continue
		}
		name, value, _ := strings.Cut(kv, "=")
		// Parameter names are never percent-decoded.
		if seen[name] {
			continue // first occurrence wins on duplicate keys
		}
		seen[name] = true
		decoded, err := decode(value)
		if err != nil {
			return zerr.New("invalid URL %q -- bad parameter escape: %s", u.raw, err)
		}
		u.params = append(u.params, Param{Name: name, Value: decoded})
	}
	return nil
}

func decode(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	return url.QueryUnescape(s)
}

// Protocol returns the URL's scheme, e.g. "mysql", "postgres", "sqlite".
func (u *URL) Protocol() string { return u.protocol }

// User returns the decoded username and whether one was present.
func (u *URL) User() (string, bool) { return u.user, u.hasUser }

// Password returns the decoded password and whether one was present.
func (u *URL) Password() (string, bool) { return u.password, u.hasPass }

// Host returns the hostname, bracketed verbatim for IPv6 literals.
func (u *URL) Host() string { return u.host }

// Port returns the port number, or -1 if one was not specified.
func (u *URL) Port() int { return u.port }

// Path returns the decoded path component, including its leading slash.
func (u *URL) Path() string { return u.path }

// RawQuery returns the un-decoded query string.
func (u *URL) RawQuery() string { return u.rawQuery }

// Parameter returns the first value for name, matched byte-for-byte.
func (u *URL) Parameter(name string) (string, bool) {
	for _, p := range u.params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// ParameterNames returns parameter keys in insertion order.
func (u *URL) ParameterNames() []string {
	names := make([]string, len(u.params))
	for i, p := range u.params {
		names[i] = p.Name
	}
	return names
}

// String returns the original, un-decoded URL string.
func (u *URL) String() string { return u.raw }

// Clone returns a shallow, independent copy. URLs are immutable, so this
// is cheap and mainly useful when a caller wants their own params slice.
func (u *URL) Clone() *URL {
	c := *u
	c.params = append([]Param(nil), u.params...)
	return &c
}

// FetchSizeOf reads the well-known `fetch-size` parameter (§6.1, §6.3),
// falling back to def when it is absent or not a positive integer. The
// pool reads it for every connection it opens, whatever the backend, as
// that connection's default ResultSet fetch size; the backend adapters
// do not pass it on to their drivers.
func (u *URL) FetchSizeOf(def int) int {
	v, ok := u.Parameter("fetch-size")
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
