package reportparse

import "strings"

// scanState is the result of walking a JSON candidate outside of string
// literals.
type scanState struct {
	inString  bool
	lastQuote int // index of the last unescaped '"', -1 if none
	braces    int // unmatched '{' minus '}'
	brackets  int // unmatched '[' minus ']'
}

func scan(s string) scanState {
	st := scanState{lastQuote: -1}
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				st.inString = false
				st.lastQuote = i
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
			st.lastQuote = i
		case '{':
			st.braces++
		case '}':
			st.braces--
		case '[':
			st.brackets++
		case ']':
			st.brackets--
		}
	}
	return st
}

// Repair closes a JSON object cut off by an output-length limit. A dangling
// partial string is dropped, together with the separator or key it belonged
// to. Surplus trailing closers are removed and missing ones appended: all
// brackets first, then all braces. Repair reports whether it changed s.
//
// Appending brackets before braces matches the report shape, where arrays
// live inside objects. Deeper mixed nesting may still fail to parse.
func Repair(candidate string) (string, bool) {
	s := candidate
	st := scan(s)

	if st.inString {
		s = s[:st.lastQuote]
		s = trimDangling(s)
		st = scan(s)
	} else if trimmed := trimDangling(s); trimmed != s {
		s = trimmed
		st = scan(s)
	}

	for st.braces < 0 || st.brackets < 0 {
		s = strings.TrimRightFunc(s, isSpace)
		if s == "" {
			break
		}
		last := s[len(s)-1]
		if last == '}' && st.braces < 0 {
			st.braces++
		} else if last == ']' && st.brackets < 0 {
			st.brackets++
		} else {
			break
		}
		s = s[:len(s)-1]
	}

	if st.brackets > 0 {
		s += strings.Repeat("]", st.brackets)
	}
	if st.braces > 0 {
		s += strings.Repeat("}", st.braces)
	}
	return s, s != candidate
}

// trimDangling removes trailing separators left behind by truncation. A
// trailing ':' takes its key with it, so `{"a":1, "b": ` becomes `{"a":1`,
// and so does a bare key: `{"a":1, "b"` also becomes `{"a":1`.
func trimDangling(s string) string {
	for {
		s = strings.TrimRightFunc(s, isSpace)
		if s == "" {
			return s
		}
		switch s[len(s)-1] {
		case ',':
			s = s[:len(s)-1]
		case ':':
			s = dropKey(strings.TrimRightFunc(s[:len(s)-1], isSpace))
		case '"':
			rest, ok := dropBareKey(s)
			if !ok {
				return s
			}
			s = rest
		default:
			return s
		}
	}
}

// dropBareKey removes a trailing string literal that can only be an object
// key: it directly follows '{' or ',' inside an object. Array elements are
// kept.
func dropBareKey(s string) (string, bool) {
	rest := dropKey(s)
	if rest == s {
		return s, false
	}
	rest = strings.TrimRightFunc(rest, isSpace)
	if rest == "" {
		return s, false
	}
	if last := rest[len(rest)-1]; last != '{' && last != ',' {
		return s, false
	}
	if innermostOpen(rest) != '{' {
		return s, false
	}
	return rest, true
}

// innermostOpen returns the innermost unclosed '{' or '[' of s, or 0.
func innermostOpen(s string) byte {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
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
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 {
		return 0
	}
	return stack[len(stack)-1]
}

// dropKey removes a trailing string literal from s, if s ends with one.
func dropKey(s string) string {
	if !strings.HasSuffix(s, `"`) {
		return s
	}
	for i := len(s) - 2; i >= 0; i-- {
		if s[i] != '"' {
			continue
		}
		backslashes := 0
		for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return s[:i]
		}
	}
	return s
}
