package processing

import (
	"strings"

	"ssw-access-monitor/pkg/errors"
)

// ParsedRequest is an HTTP request line split into its parts.
type ParsedRequest struct {
	Verb    string `json:"verb"`
	Path    string `json:"path"`
	Section string `json:"section"`
	Version string `json:"version"`
}

// ParseRequest splits "VERB PATH VERSION". Exactly three whitespace
// separated tokens are required and PATH must start with "/".
func ParseRequest(request string) (ParsedRequest, error) {
	tokens := strings.Fields(request)
	if len(tokens) != 3 {
		return ParsedRequest{}, errors.ProcessingError("ParseRequest", "request line must have exactly 3 tokens").
			WithMetadata("request", request).
			WithMetadata("tokens", len(tokens))
	}

	section, err := ParseSection(tokens[1])
	if err != nil {
		return ParsedRequest{}, err
	}

	return ParsedRequest{
		Verb:    tokens[0],
		Path:    tokens[1],
		Section: section,
		Version: tokens[2],
	}, nil
}

// ParseSection returns path up to, but not including, its second "/".
// A path with a single "/" is its own section.
func ParseSection(path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", errors.ProcessingError("ParseSection", "path must start with /").
			WithMetadata("path", path)
	}

	if i := strings.IndexByte(path[1:], '/'); i >= 0 {
		return path[:i+1], nil
	}
	return path, nil
}
