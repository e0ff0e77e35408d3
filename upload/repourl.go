package upload

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Repo identifies a hosted repository.
type Repo struct {
	// Host is empty when the input was a bare owner/name.
	Host  string
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

var repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ParseRepoURL accepts web URLs (https://host/owner/name, optionally with
// a .git suffix or trailing path such as /tree/main), scp-like SSH remotes
// (git@host:owner/name.git), host/owner/name and plain owner/name.
func ParseRepoURL(raw string) (Repo, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Repo{}, ErrMissingRepository
	}

	var out Repo
	var rest string
	switch {
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil {
			return Repo{}, fmt.Errorf("%w %q: %v", ErrInvalidRepoURL, raw, err)
		}
		out.Host = u.Hostname()
		rest = u.Path
	case strings.HasPrefix(s, "git@"):
		host, p, ok := strings.Cut(strings.TrimPrefix(s, "git@"), ":")
		if !ok {
			return Repo{}, fmt.Errorf("%w %q", ErrInvalidRepoURL, raw)
		}
		out.Host = host
		rest = p
	default:
		rest = s
		first, remainder, _ := strings.Cut(s, "/")
		if strings.Contains(first, ".") && strings.Count(s, "/") >= 2 {
			out.Host = first
			rest = remainder
		}
	}

	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) < 2 {
		return Repo{}, fmt.Errorf("%w %q: expected owner/name", ErrInvalidRepoURL, raw)
	}
	out.Owner = segments[0]
	out.Name = strings.TrimSuffix(segments[1], ".git")

	for _, part := range []string{out.Owner, out.Name} {
		if !repoNamePattern.MatchString(part) || part == "." || part == ".." {
			return Repo{}, fmt.Errorf("%w %q: bad owner or name %q", ErrInvalidRepoURL, raw, part)
		}
	}
	return out, nil
}

// CheckAPIHost rejects a repository whose URL names a different host than
// the API at apiBaseURL. A bare owner/name is accepted by any API. The API
// of host may also live on api.<host>, as api.github.com does for
// github.com.
func (r Repo) CheckAPIHost(apiBaseURL string) error {
	if r.Host == "" {
		return nil
	}
	u, err := url.Parse(apiBaseURL)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("invalid API base URL %q", apiBaseURL)
	}

	host := strings.ToLower(r.Host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "www.")
	apiHost := strings.ToLower(u.Hostname())

	if apiHost == host || apiHost == "api."+host {
		return nil
	}
	return fmt.Errorf("%w: %s is on %s but the API is %s", ErrHostMismatch, r, r.Host, apiHost)
}
