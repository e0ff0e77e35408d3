package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v72/github"
)

// RemoteAPIError is returned for every non-2xx response.
type RemoteAPIError struct {
	Method           string
	Path             string
	Status           int
	Message          string
	DocumentationURL string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s %s: remote API error (%d): %s", e.Method, e.Path, e.Status, e.Message)
}

const (
	emptyRepositoryMessage = "git repository is empty"
	alreadyExistsMessage   = "already exists"
	notFastForwardMessage  = "not a fast forward"
)

func asRemoteAPIError(method, path string, err error) *RemoteAPIError {
	out := &RemoteAPIError{
		Method: method,
		Path:   path,
	}

	var (
		errResp  *github.ErrorResponse
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
		httpResp *http.Response
	)
	switch {
	case errors.As(err, &errResp):
		httpResp = errResp.Response
		out.Message = errResp.Message
		out.DocumentationURL = errResp.DocumentationURL
		if len(errResp.Errors) > 0 && out.Message != "" {
			var details []string
			for _, e := range errResp.Errors {
				if e.Message != "" {
					details = append(details, e.Message)
				} else if e.Code != "" {
					details = append(details, fmt.Sprintf("%s %s", e.Field, e.Code))
				}
			}
			if len(details) > 0 {
				out.Message = fmt.Sprintf("%s (%s)", out.Message, strings.Join(details, "; "))
			}
		}
	case errors.As(err, &rateErr):
		httpResp = rateErr.Response
		out.Message = rateErr.Message
	case errors.As(err, &abuseErr):
		httpResp = abuseErr.Response
		out.Message = abuseErr.Message
	default:
		return nil
	}

	if httpResp != nil {
		out.Status = httpResp.StatusCode
	}
	if out.Message == "" {
		out.Message = http.StatusText(out.Status)
	}
	return out
}

// StatusCode returns the remote status carried by err, or 0.
func StatusCode(err error) int {
	var remoteErr *RemoteAPIError
	if errors.As(err, &remoteErr) {
		return remoteErr.Status
	}
	return 0
}

func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsEmptyRepository reports whether the remote refused the call because the
// repository exists but holds no commits.
func IsEmptyRepository(err error) bool {
	var remoteErr *RemoteAPIError
	if !errors.As(err, &remoteErr) {
		return false
	}
	return strings.Contains(strings.ToLower(remoteErr.Message), emptyRepositoryMessage)
}

func IsAlreadyExists(err error) bool {
	var remoteErr *RemoteAPIError
	if !errors.As(err, &remoteErr) {
		return false
	}
	return remoteErr.Status == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(remoteErr.Message), alreadyExistsMessage)
}

func IsNotFastForward(err error) bool {
	var remoteErr *RemoteAPIError
	if !errors.As(err, &remoteErr) {
		return false
	}
	return strings.Contains(strings.ToLower(remoteErr.Message), notFastForwardMessage)
}
