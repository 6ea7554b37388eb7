package conversation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxQuestionLength bounds a question, in characters, when the
// settings leave it unset.
const DefaultMaxQuestionLength = 500

var (
	// ErrEmptyQuestion rejects a question with nothing left to ask once
	// normalized.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrQuestionTooLong rejects a question above the length limit.
	ErrQuestionTooLong = errors.New("question is too long")
)

// NormalizeQuestion turns typed or spoken input into the single line shown in
// the transcript and sent to the answer service. Every run of whitespace,
// line breaks included, becomes one space. Control characters, invisible
// formatting characters (zero-width joiners, bidi overrides) and invalid
// UTF-8 are dropped. The result is rejected when empty or longer than
// maxLen characters; maxLen <= 0 disables the limit.
func NormalizeQuestion(question string, maxLen int) (string, error) {
	visible := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r), r == utf8.RuneError:
			return -1
		}
		return r
	}, strings.ToValidUTF8(question, ""))

	text := strings.Join(strings.Fields(visible), " ")
	if text == "" {
		return "", ErrEmptyQuestion
	}
	if n := utf8.RuneCountInString(text); maxLen > 0 && n > maxLen {
		return "", fmt.Errorf("%w: %d characters, limit %d", ErrQuestionTooLong, n, maxLen)
	}
	return text, nil
}
