package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/models"
)

// errNotJSON marks a model answer that is not parseable JSON even after
// fence stripping and balanced-block recovery. It triggers the single
// repair resubmission; schema violations never do.
var errNotJSON = errors.New("extract: payload is not valid JSON")

var fenceRe = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// stripCodeFences removes a Markdown-style ```json fence if present.
func stripCodeFences(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// extractBalancedBlock returns the first balanced open...close block in
// text, respecting string literals and escapes so braces inside values
// do not confuse the depth count.
func extractBalancedBlock(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start == -1 {
		return "", false
	}
	depth := 0
	inStr := false
	esc := false
	var quote byte
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == quote:
				inStr = false
			}
			continue
		}
		switch ch {
		case '"', '\'':
			inStr = true
			quote = ch
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// firstJSONBlock recovers the most plausible JSON payload from a model
// answer: fences are stripped, then the balanced block starting at the
// earliest '[' or '{' is extracted, so an object answer keeps its inner
// arrays. When no block is found the trimmed answer itself is returned
// so the caller can attempt a parse (and fail informatively).
func firstJSONBlock(text string) string {
	cleaned := strings.TrimLeft(stripCodeFences(text), " \t\r\n")
	iArr := strings.IndexByte(cleaned, '[')
	iObj := strings.IndexByte(cleaned, '{')
	if iArr != -1 && (iObj == -1 || iArr < iObj) {
		if block, ok := extractBalancedBlock(cleaned, '[', ']'); ok {
			return block
		}
	} else if iObj != -1 {
		if block, ok := extractBalancedBlock(cleaned, '{', '}'); ok {
			return block
		}
	}
	return strings.TrimSpace(cleaned)
}

// parseNote decodes a recovered JSON candidate into a ParsedNote.
//
// A syntax error returns errNotJSON. A well-formed payload with missing
// or mistyped required fields wraps apperr.ErrBadSchema. An array answer
// uses its first element; extras reports how many trailing elements were
// dropped (one note per file).
func parseNote(candidate string) (models.ParsedNote, int, error) {
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return models.ParsedNote{}, 0, errNotJSON
	}

	extras := 0
	var obj map[string]any
	switch t := v.(type) {
	case map[string]any:
		obj = t
	case []any:
		if len(t) == 0 {
			return models.ParsedNote{}, 0, fmt.Errorf("extract: empty array payload: %w", apperr.ErrBadSchema)
		}
		first, ok := t[0].(map[string]any)
		if !ok {
			return models.ParsedNote{}, 0, fmt.Errorf("extract: array element is not an object: %w", apperr.ErrBadSchema)
		}
		obj = first
		extras = len(t) - 1
	default:
		return models.ParsedNote{}, 0, fmt.Errorf("extract: payload is not an object: %w", apperr.ErrBadSchema)
	}

	// "body" is accepted as an alias for "content".
	if _, ok := obj["content"]; !ok {
		if v, ok := obj["body"]; ok {
			obj["content"] = v
		}
	}

	if err := validation.Validate(obj, noteRules); err != nil {
		return models.ParsedNote{}, 0, fmt.Errorf("extract: %v: %w", err, apperr.ErrBadSchema)
	}

	// Types are guaranteed by the rules above.
	arr := obj["tags"].([]any)
	tags := make([]string, 0, len(arr))
	for _, e := range arr {
		tags = append(tags, e.(string))
	}

	return models.ParsedNote{
		Title:   obj["title"].(string),
		Summary: obj["summary"].(string),
		Tags:    tags,
		Content: obj["content"].(string),
	}, extras, nil
}

// noteRules is the field schema for a decoded model answer: every key
// present, title non-empty, tags an array of strings. Extra keys are
// tolerated since the request schema already discourages them.
var noteRules = validation.Map(
	validation.Key("title", validation.Required, validation.By(beString)),
	validation.Key("summary", validation.By(beString)),
	validation.Key("tags", validation.By(beStringArray)),
	validation.Key("content", validation.By(beString)),
).AllowExtraKeys()

func beString(v interface{}) error {
	if _, ok := v.(string); !ok {
		return errors.New("must be a string")
	}
	return nil
}

func beStringArray(v interface{}) error {
	arr, ok := v.([]any)
	if !ok {
		return errors.New("must be an array of strings")
	}
	for _, e := range arr {
		if _, ok := e.(string); !ok {
			return errors.New("must contain only strings")
		}
	}
	return nil
}
