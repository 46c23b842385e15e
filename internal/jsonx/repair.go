package jsonx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoObject is returned when the text holds no balanced JSON object
	ErrNoObject = errors.New("no JSON object found")

	// ErrUnrepairable is returned when neither repair pass yields valid JSON
	ErrUnrepairable = errors.New("JSON could not be repaired")
)

// RepairNewlines rewrites raw line feeds inside string literals as \n and
// drops raw carriage returns there. Text outside strings is untouched.
func RepairNewlines(text string) string {
	var sc scanner
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch sc.state {
		case stateInString:
			if c == '\r' {
				continue
			}
			if c == '\n' {
				sc.step(c)
				b.WriteString(`\n`)
				continue
			}
		case stateEscaped:
			// The backslash is already written; keep it attached to the
			// next real character.
			if c == '\r' {
				continue
			}
			if c == '\n' {
				sc.step(c)
				b.WriteByte('n')
				continue
			}
		}
		sc.step(c)
		b.WriteByte(c)
	}
	return b.String()
}

// RepairEscapes drops the backslash from any escape sequence inside a string
// literal that JSON does not define, keeping the escaped character as is.
func RepairEscapes(text string) string {
	var sc scanner
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch sc.step(c) {
		case stateInString:
			if c == '\\' {
				// Defer the backslash until the next byte is known.
				continue
			}
		case stateEscaped:
			if isValidEscape(c) {
				b.WriteByte('\\')
			}
		}
		b.WriteByte(c)
	}
	if sc.state == stateEscaped {
		b.WriteByte('\\')
	}
	return b.String()
}

func isValidEscape(c byte) bool {
	switch c {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
		return true
	}
	return false
}

// Stage names the step of the parse chain that produced a value.
type Stage string

const (
	StageDirect   Stage = "direct"
	StageNewlines Stage = "repair_newlines"
	StageEscapes  Stage = "repair_escapes"
)

// Parse extracts the first JSON object from text and decodes it, applying
// RepairNewlines and then RepairEscapes only when the previous attempt fails.
func Parse(text string) (map[string]interface{}, Stage, error) {
	candidate, ok := Extract(text)
	if !ok {
		return nil, "", ErrNoObject
	}

	obj, err := decodeObject(candidate)
	if err == nil {
		return obj, StageDirect, nil
	}

	candidate = RepairNewlines(candidate)
	if obj, err = decodeObject(candidate); err == nil {
		return obj, StageNewlines, nil
	}

	candidate = RepairEscapes(candidate)
	if obj, err = decodeObject(candidate); err == nil {
		return obj, StageEscapes, nil
	}

	return nil, "", fmt.Errorf("%w: %v", ErrUnrepairable, err)
}

func decodeObject(text string) (map[string]interface{}, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("decoded value is not an object")
	}
	return obj, nil
}
