package guard

import (
	"net/url"
	"strings"
)

// MemoryType enumerates the kinds of contribution a wall accepts.
type MemoryType string

const (
	MemoryTypeText   MemoryType = "text"
	MemoryTypeImage  MemoryType = "image"
	MemoryTypeVideo  MemoryType = "video"
	MemoryTypeSketch MemoryType = "sketch"
	MemoryTypeGIF    MemoryType = "gif"
)

// IsValid reports whether t is a known memory type.
func (t MemoryType) IsValid() bool {
	switch t {
	case MemoryTypeText, MemoryTypeImage, MemoryTypeVideo, MemoryTypeSketch, MemoryTypeGIF:
		return true
	}
	return false
}

// HasMedia reports whether the type is backed by an uploaded object.
func (t MemoryType) HasMedia() bool {
	return t != MemoryTypeText
}

// DefaultThemeColor is applied to walls created without a color.
const DefaultThemeColor = "#6366f1"

// ThemeColors is the palette a wall may use.
var ThemeColors = []string{
	"#6366f1", "#8b5cf6", "#ec4899", "#ef4444", "#f97316", "#eab308",
	"#22c55e", "#06b6d4", "#3b82f6", "#64748b", "#84cc16", "#f59e0b",
}

// IsThemeColor reports whether color belongs to ThemeColors.
func IsThemeColor(color string) bool {
	color = strings.ToLower(strings.TrimSpace(color))
	for _, candidate := range ThemeColors {
		if candidate == color {
			return true
		}
	}
	return false
}

// CreateWallRequest is the host's input when opening a wall.
type CreateWallRequest struct {
	Name       string `json:"name"`
	ThemeColor string `json:"themeColor"`
}

// Validate normalises the request in place and reports the first problem.
func (r *CreateWallRequest) Validate() error {
	if err := ValidateWallName(r.Name); err != nil {
		return err
	}
	r.Name = NormalizeText(r.Name)
	r.ThemeColor = strings.ToLower(strings.TrimSpace(r.ThemeColor))
	if r.ThemeColor == "" {
		r.ThemeColor = DefaultThemeColor
	}
	if !IsThemeColor(r.ThemeColor) {
		return reject("themeColor", reasonThemeColorInvalid)
	}
	return nil
}

// UpdateWallRequest carries the host's optional changes to a wall.
type UpdateWallRequest struct {
	ThemeColor *string `json:"themeColor,omitempty"`
	IsActive   *bool   `json:"isActive,omitempty"`
}

// Validate checks whichever fields are present.
func (r *UpdateWallRequest) Validate() error {
	if r.ThemeColor == nil && r.IsActive == nil {
		return reject("", "Nothing to update")
	}
	if r.ThemeColor != nil {
		color := strings.ToLower(strings.TrimSpace(*r.ThemeColor))
		if !IsThemeColor(color) {
			return reject("themeColor", reasonThemeColorInvalid)
		}
		r.ThemeColor = &color
	}
	return nil
}

// CreateMemoryRequest is a visitor's contribution to a wall.
type CreateMemoryRequest struct {
	Type       MemoryType `json:"type"`
	Content    string     `json:"content"`
	AuthorName string     `json:"authorName"`
	MediaURL   string     `json:"mediaUrl"`
	MediaType  string     `json:"mediaType"`
}

// Validate normalises the request in place and reports the first problem.
func (r *CreateMemoryRequest) Validate() error {
	r.Type = MemoryType(strings.ToLower(strings.TrimSpace(string(r.Type))))
	if !r.Type.IsValid() {
		return reject("type", "Memory type is not supported")
	}
	if err := ValidateMemoryContent(r.Content); err != nil {
		return err
	}
	if err := ValidateAuthorName(r.AuthorName); err != nil {
		return err
	}
	r.Content = NormalizeText(r.Content)
	r.AuthorName = NormalizeText(r.AuthorName)
	r.MediaURL = strings.TrimSpace(r.MediaURL)
	r.MediaType = NormalizeContentType(r.MediaType)

	if !r.Type.HasMedia() {
		if r.Content == "" {
			return reject("content", reasonContentRequired)
		}
		r.MediaURL = ""
		r.MediaType = ""
		return nil
	}
	if r.MediaURL == "" {
		return reject("mediaUrl", "Media is required for this memory type")
	}
	if ContainsUnsafeMarkup(r.MediaURL) || !isHTTPURL(r.MediaURL) {
		return reject("mediaUrl", "Media URL is not allowed")
	}
	if r.MediaType != "" {
		if _, ok := AllowedFileTypes[r.MediaType]; !ok {
			return reject("mediaType", ReasonFileTypeForbidden)
		}
	}
	return nil
}

// CreateCommentRequest is a visitor's comment on a memory.
type CreateCommentRequest struct {
	Content    string `json:"content"`
	AuthorName string `json:"authorName"`
}

// Validate normalises the request in place and reports the first problem.
func (r *CreateCommentRequest) Validate() error {
	if err := ValidateCommentBody(r.Content); err != nil {
		return err
	}
	if err := ValidateCommenterName(r.AuthorName); err != nil {
		return err
	}
	r.Content = NormalizeText(r.Content)
	r.AuthorName = NormalizeText(r.AuthorName)
	return nil
}

// CreateReactionRequest is a visitor's emoji reaction on a memory.
type CreateReactionRequest struct {
	Emoji string `json:"emoji"`
}

// Validate normalises the request in place and reports the first problem.
func (r *CreateReactionRequest) Validate() error {
	if err := ValidateEmoji(r.Emoji); err != nil {
		return err
	}
	r.Emoji = strings.TrimSpace(r.Emoji)
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
