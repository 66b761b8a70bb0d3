// Package reportparse turns a raw model completion into a structured report
// record. Parsing never fails: truncated JSON is repaired when possible and
// anything else degrades to a record carrying the raw text.
package reportparse

import (
	"errors"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	fence = "```"

	// Keys of a degraded record.
	KeyRawContent = "rawContent"
	KeyParseError = "parseError"

	UnknownVIN   = "Unknown"
	FailedBrand  = "Parsing failed"
	UnknownBrand = "Unknown"
)

var (
	errNoObject  = errors.New("no JSON object found")
	errNotObject = errors.New("top-level JSON value is not an object")
)

// Result is a parsed record plus the diagnostics of how it was obtained.
type Result struct {
	Record      Record
	Candidate   string
	Repaired    string
	WasRepaired bool
	Degraded    bool
	// Err is the last strict-parse failure. It is nil when the candidate
	// parsed on the first attempt.
	Err error
}

// Outcome is "strict", "repaired" or "degraded".
func (r Result) Outcome() string {
	switch {
	case r.Degraded:
		return "degraded"
	case r.WasRepaired:
		return "repaired"
	default:
		return "strict"
	}
}

// ParseRecord returns the structured record for raw. It never panics.
func ParseRecord(raw string) Record {
	return Parse(raw).Record
}

// Parse runs fence extraction, candidate selection, strict parse and repair.
func Parse(raw string) Result {
	candidate, ok := Candidate(raw)
	if !ok {
		return degrade(raw, Result{Err: errNoObject})
	}

	res := Result{Candidate: candidate}
	fields, err := strictParse(candidate)
	if err == nil {
		res.Record = NewRecord(fields)
		return res
	}
	res.Err = err

	repaired, changed := Repair(candidate)
	if !changed {
		return degrade(raw, res)
	}
	res.Repaired = repaired

	fields, err = strictParse(repaired)
	if err != nil {
		res.Err = err
		return degrade(raw, res)
	}
	res.Record = NewRecord(fields)
	res.WasRepaired = true
	return res
}

// Candidate extracts the outermost object span from raw: the interior of the
// first fenced block if there is one, then first '{' through last '}'. When
// no '}' follows the first '{', the span runs to the end of the text.
func Candidate(raw string) (string, bool) {
	text := unfence(raw)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		return strings.TrimRightFunc(text[start:], isSpace), true
	}
	return text[start : end+1], true
}

// unfence returns the interior of the first ``` block, skipping an optional
// language tag. An unterminated fence yields everything after the opener.
func unfence(raw string) string {
	open := strings.Index(raw, fence)
	if open < 0 {
		return raw
	}
	body := raw[open+len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isFenceTag(body[:nl]) {
		body = body[nl+1:]
	} else if strings.HasPrefix(body, "json") {
		body = body[len("json"):]
	}
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return body
}

func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

func strictParse(s string) (map[string]any, error) {
	var v any
	if err := sonic.ConfigStd.UnmarshalFromString(s, &v); err != nil {
		return nil, err
	}
	fields, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return fields, nil
}

func degrade(raw string, res Result) Result {
	reason := errNoObject.Error()
	if res.Err != nil {
		reason = res.Err.Error()
	}
	res.Degraded = true
	res.Record = newDegradedRecord(map[string]any{
		KeyRawContent: raw,
		KeyParseError: reason,
		"vin":         UnknownVIN,
		"brand":       FailedBrand,
		"model":       "",
	})
	return res
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
