package robots

import (
	"net/url"
	"strconv"
	"strings"
)

// Parse parses a robots.txt document per §4.B's grammar:
//
//   - Lines are case-insensitive on keys; '#' starts a comment; a
//     blank line separates records.
//   - A record is one or more consecutive user-agent lines followed by
//     rule lines.
//   - disallow/allow before any user-agent is discarded.
//   - crawl-delay is clamped to max(0, int(v)); non-integer values are
//     discarded.
//   - An empty "disallow:" means allow-all, stored as "Allow: /".
//   - Values are URL-decoded once on ingest, then re-encoded so
//     comparisons are over percent-encoded forms.
func Parse(body string) *Record {
	rec := &Record{}

	const (
		stateNone = iota
		stateAgent
		stateRules
	)

	state := stateNone
	entry := &Entry{}

	flush := func() {
		if len(entry.UserAgents) == 0 {
			return
		}
		addEntry(rec, entry)
		entry = &Entry{}
	}

	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")

	for _, raw := range lines {
		line := raw
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)

		if line == "" {
			if state == stateAgent {
				entry = &Entry{}
				state = stateNone
			} else if state == stateRules {
				flush()
				state = stateNone
			}
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(parts[0]))
		value := percentDecodeOnce(strings.TrimSpace(parts[1]))

		switch key {
		case "user-agent":
			if state == stateRules {
				flush()
			}
			entry.UserAgents = append(entry.UserAgents, value)
			state = stateAgent
		case "disallow":
			if state == stateNone {
				continue
			}
			entry.Rules = append(entry.Rules, newRule(value, false))
			state = stateRules
		case "allow":
			if state == stateNone {
				continue
			}
			entry.Rules = append(entry.Rules, newRule(value, true))
			state = stateRules
		case "crawl-delay":
			if state == stateNone {
				continue
			}
			if n, err := strconv.Atoi(value); err == nil {
				if n < 0 {
					n = 0
				}
				entry.CrawlDelay = n
				state = stateRules
			}
		default:
			// unknown key, ignored.
		}
	}

	if state == stateAgent || state == stateRules {
		addEntry(rec, entry)
	}

	return rec
}

func addEntry(rec *Record, entry *Entry) {
	for _, ua := range entry.UserAgents {
		if ua == "*" {
			d := *entry
			rec.Default = &d
			return
		}
	}
	rec.Entries = append(rec.Entries, *entry)
}

func newRule(path string, allow bool) Rule {
	if path == "" && !allow {
		return Rule{Path: "/", Allow: true}
	}
	return Rule{Path: percentEncode(path), Allow: allow}
}

func percentDecodeOnce(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}

func percentDecode(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}

func percentEncode(s string) string {
	u := &url.URL{Path: s}
	return u.EscapedPath()
}
