// Package curl implements the URL grammar consumed by every channel
// constructor, per spec.md §6:
//
//	url := proto "://" host (";" kv)*
//	kv  := key "=" value             ; key: dotted path, value: raw text
//
// This is deliberately narrower than a general hierarchical config tree
// with links/imports/callbacks (the external "A" component spec.md scopes
// out): curl.URL only ever needs to answer "what protocol, what host, what
// value does this dotted key have" for a single URL string.
package curl

import (
	"fmt"
	"strconv"
	"strings"
)

// URL is a parsed `proto://host;k=v;...` string.
type URL struct {
	Proto string
	Host  string
	Raw   string
	kv    map[string]string
}

// Parse splits s into protocol, host, and a flat dotted-key/value map.
func Parse(s string) (URL, error) {
	schemeIdx := strings.Index(s, "://")
	if schemeIdx < 0 {
		return URL{}, fmt.Errorf("curl: missing \"://\" in %q", s)
	}
	proto := s[:schemeIdx]
	rest := s[schemeIdx+3:]

	parts := strings.Split(rest, ";")
	host := parts[0]

	kv := make(map[string]string, len(parts)-1)
	for _, seg := range parts[1:] {
		if seg == "" {
			continue
		}
		eq := strings.IndexByte(seg, '=')
		if eq < 0 {
			kv[seg] = ""
			continue
		}
		kv[seg[:eq]] = seg[eq+1:]
	}

	return URL{Proto: proto, Host: host, Raw: s, kv: kv}, nil
}

// Get returns the raw string value for a dotted key, and whether it was
// present.
func (u URL) Get(key string) (string, bool) {
	v, ok := u.kv[key]
	return v, ok
}

// GetDefault returns the value for key, or def if absent.
func (u URL) GetDefault(key, def string) string {
	if v, ok := u.kv[key]; ok {
		return v
	}
	return def
}

// GetBool parses a boolean-valued key ("yes"/"true"/"1" are true,
// everything else false), defaulting to def when absent.
func (u URL) GetBool(key string, def bool) bool {
	v, ok := u.kv[key]
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "yes", "true", "1":
		return true
	case "no", "false", "0":
		return false
	default:
		return def
	}
}

// GetInt parses an integer-valued key, defaulting to def on absence or
// parse failure.
func (u URL) GetInt(key string, def int64) int64 {
	v, ok := u.kv[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// GetSize parses a size-suffixed value ("64kb", "1mb", "512") into bytes.
func (u URL) GetSize(key string, def int64) int64 {
	v, ok := u.kv[key]
	if !ok {
		return def
	}
	n, err := ParseSize(v)
	if err != nil {
		return def
	}
	return n
}

// ParseSize parses values like "64kb", "1mb", "1gb", or a bare integer
// (bytes), matching the `size` URL key used by ring/buffer-sized channels.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "kb"):
		mult = 1 << 10
		s = strings.TrimSuffix(s, "kb")
	case strings.HasSuffix(s, "mb"):
		mult = 1 << 20
		s = strings.TrimSuffix(s, "mb")
	case strings.HasSuffix(s, "gb"):
		mult = 1 << 30
		s = strings.TrimSuffix(s, "gb")
	case strings.HasSuffix(s, "b"):
		s = strings.TrimSuffix(s, "b")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("curl: invalid size %q: %w", s, err)
	}
	return n * mult, nil
}

// ChannelList parses a `tll.channel.<tag>` value (comma-separated channel
// names) into a slice, per spec.md §6.
func ChannelList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ChannelTags returns every `tll.channel.*` tag present, mapped to its
// parsed channel-name list.
func (u URL) ChannelTags() map[string][]string {
	const prefix = "tll.channel."
	out := make(map[string][]string)
	for k, v := range u.kv {
		if strings.HasPrefix(k, prefix) {
			tag := strings.TrimPrefix(k, prefix)
			out[tag] = ChannelList(v)
		}
	}
	return out
}

// String returns the original input string, unchanged.
func (u URL) String() string { return u.Raw }
