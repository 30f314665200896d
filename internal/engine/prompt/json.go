package prompt

import (
	"encoding/json"
	"strings"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
)

// ExtractJSON returns the first JSON object candidate in s, preferring one
// inside a ```json fence. Braces inside JSON strings are ignored.
func ExtractJSON(s string) (string, bool) {
	candidates := jsonCandidates(s)
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[0], true
}

const jsonFence = "```json"

// jsonCandidates lists balanced objects inside ```json fences first and then
// every top-level balanced object in s, each in order of appearance.
func jsonCandidates(s string) []string {
	var out []string
	rest := s
	for {
		i := strings.Index(rest, jsonFence)
		if i < 0 {
			break
		}
		body := rest[i+len(jsonFence):]
		if j := strings.Index(body, "```"); j >= 0 {
			out = append(out, balancedObjects(body[:j])...)
			rest = body[j+3:]
			continue
		}
		out = append(out, balancedObjects(body)...)
		break
	}
	return append(out, balancedObjects(s)...)
}

func balancedObjects(s string) []string {
	var out []string
	for start := strings.IndexByte(s, '{'); start >= 0; {
		from := start + 1
		if end := matchBrace(s, start); end > 0 {
			out = append(out, s[start:end+1])
			from = end + 1
		}
		next := strings.IndexByte(s[from:], '{')
		if next < 0 {
			break
		}
		start = from + next
	}
	return out
}

func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// DecodeResponse decodes the first candidate object that carries a
// file_content. Every failure is a PARSE_ERROR reported against the first
// candidate.
func DecodeResponse(raw string) (model.AIResponse, error) {
	candidates := jsonCandidates(raw)
	if len(candidates) == 0 {
		return model.AIResponse{}, errors.New(errors.CodeParseError, "no JSON object in response")
	}

	var first error
	for _, obj := range candidates {
		var resp model.AIResponse
		err := json.Unmarshal([]byte(obj), &resp)
		switch {
		case err != nil:
			err = errors.Wrap(err, errors.CodeParseError, "invalid JSON in response")
		case strings.TrimSpace(resp.FileContent) == "":
			err = errors.New(errors.CodeParseError, "response has no file_content")
		default:
			return resp, nil
		}
		if first == nil {
			first = err
		}
	}
	return model.AIResponse{}, first
}
