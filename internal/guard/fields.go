package guard

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	MaxAuthorNameLength     = 50
	MaxWallNameLength       = 100
	MaxCommentLength        = 500
	MaxMemoryContentLength  = 2000
	MaxEmojiLength          = 16
	wallNamePunctuation     = "-_'.!?"
	authorNamePunctuation   = "-_"
	reasonInvalidContent    = "Invalid content"
	reasonInvalidEmoji      = "Reaction must be an emoji"
	reasonAuthorInvalid     = "Author name contains invalid characters"
	reasonAuthorRequired    = "Author name is required"
	reasonAuthorTooLong     = "Author name must be less than 50 characters"
	reasonNameInvalid       = "Name contains invalid characters"
	reasonNameRequired      = "Name is required"
	reasonNameTooLong       = "Name must be less than 50 characters"
	reasonWallNameInvalid   = "Wall name contains invalid characters"
	reasonWallNameRequired  = "Wall name is required"
	reasonWallNameTooLong   = "Wall name must be less than 100 characters"
	reasonCommentEmpty      = "Comment cannot be empty"
	reasonCommentTooLong    = "Comment must be less than 500 characters"
	reasonContentTooLong    = "Content must be less than 2000 characters"
	reasonContentRequired   = "Please enter some text."
	reasonEmojiRequired     = "Reaction is required"
	reasonThemeColorInvalid = "Theme color is not supported"
)

// NormalizeText trims surrounding space and composes text to NFC so that length limits and the
// character allow-list see one code point per accented letter.
func NormalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(stripControl(text)))
}

// ValidateAuthorName checks a memory author name.
func ValidateAuthorName(name string) *ValidationError {
	return validateName("authorName", name, MaxAuthorNameLength, authorNamePunctuation,
		reasonAuthorRequired, reasonAuthorTooLong, reasonAuthorInvalid)
}

// ValidateCommenterName checks the display name attached to a comment.
func ValidateCommenterName(name string) *ValidationError {
	return validateName("authorName", name, MaxAuthorNameLength, authorNamePunctuation,
		reasonNameRequired, reasonNameTooLong, reasonNameInvalid)
}

// ValidateWallName checks a wall title.
func ValidateWallName(name string) *ValidationError {
	return validateName("name", name, MaxWallNameLength, wallNamePunctuation,
		reasonWallNameRequired, reasonWallNameTooLong, reasonWallNameInvalid)
}

// ValidateCommentBody checks a comment.
func ValidateCommentBody(body string) *ValidationError {
	body = NormalizeText(body)
	switch {
	case body == "":
		return reject("content", reasonCommentEmpty)
	case utf8.RuneCountInString(body) > MaxCommentLength:
		return reject("content", reasonCommentTooLong)
	case ContainsUnsafeMarkup(body):
		return reject("content", reasonInvalidContent)
	}
	return nil
}

// ValidateMemoryContent checks optional memory text. Emptiness is decided by the memory type.
func ValidateMemoryContent(content string) *ValidationError {
	content = NormalizeText(content)
	switch {
	case utf8.RuneCountInString(content) > MaxMemoryContentLength:
		return reject("content", reasonContentTooLong)
	case ContainsUnsafeMarkup(content):
		return reject("content", reasonInvalidContent)
	}
	return nil
}

// ValidateEmoji accepts short runs of pictographic symbols and their modifiers.
func ValidateEmoji(emoji string) *ValidationError {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return reject("emoji", reasonEmojiRequired)
	}
	if utf8.RuneCountInString(emoji) > MaxEmojiLength || !utf8.ValidString(emoji) {
		return reject("emoji", reasonInvalidEmoji)
	}
	symbols := 0
	for _, r := range emoji {
		switch {
		case unicode.Is(unicode.So, r), unicode.Is(unicode.Sk, r):
			symbols++
		case unicode.Is(unicode.Mn, r), unicode.Is(unicode.Me, r), unicode.Is(unicode.Cf, r):
			// selectors, keycaps, joiners
		default:
			return reject("emoji", reasonInvalidEmoji)
		}
	}
	if symbols == 0 {
		return reject("emoji", reasonInvalidEmoji)
	}
	return nil
}

func validateName(field, value string, maxLen int, punctuation, required, tooLong, invalid string) *ValidationError {
	value = NormalizeText(value)
	if value == "" {
		return reject(field, required)
	}
	if utf8.RuneCountInString(value) > maxLen {
		return reject(field, tooLong)
	}
	for _, r := range value {
		if !nameRuneAllowed(r, punctuation) {
			return reject(field, invalid)
		}
	}
	return nil
}

// nameRuneAllowed admits Latin-script letters, ASCII digits, space and the given punctuation.
func nameRuneAllowed(r rune, punctuation string) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == ' ':
		return true
	case unicode.IsLetter(r) && unicode.Is(unicode.Latin, r):
		return true
	}
	return strings.ContainsRune(punctuation, r)
}
