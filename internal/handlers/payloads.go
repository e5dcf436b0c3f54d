package handlers

import (
	"github.com/Piyushhbhutoria/memory-wall/internal/services"
)

type wallPayload struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ThemeColor    string `json:"themeColor"`
	CoverPhotoURL string `json:"coverPhotoUrl,omitempty"`
	HostUserID    string `json:"hostUserId,omitempty"`
	CreatedAt     string `json:"createdAt"`
	ExpiresAt     string `json:"expiresAt"`
	IsPaid        bool   `json:"isPaid"`
	MaxMemories   int    `json:"maxMemories"`
	MemoryCount   int    `json:"memoryCount"`
	IsActive      bool   `json:"isActive"`
}

type wallListResponse struct {
	Items         []wallPayload `json:"items"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

type memoryPayload struct {
	ID         string `json:"id"`
	WallID     string `json:"wallId"`
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	MediaURL   string `json:"mediaUrl,omitempty"`
	MediaType  string `json:"mediaType,omitempty"`
	AuthorName string `json:"authorName"`
	CreatedAt  string `json:"createdAt"`
}

type memoryListResponse struct {
	Items         []memoryPayload `json:"items"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
}

type commentPayload struct {
	ID         string `json:"id"`
	MemoryID   string `json:"memoryId"`
	Content    string `json:"content"`
	AuthorName string `json:"authorName"`
	CreatedAt  string `json:"createdAt"`
}

type reactionPayload struct {
	ID        string `json:"id"`
	MemoryID  string `json:"memoryId"`
	Emoji     string `json:"emoji"`
	CreatedAt string `json:"createdAt"`
}

type reactionCountPayload struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

type uploadPayload struct {
	URL        string `json:"url"`
	Path       string `json:"path"`
	MemoryType string `json:"memoryType"`
	MediaType  string `json:"mediaType"`
	Size       int64  `json:"size"`
}

// buildWallPayload omits the host uid on visitor responses.
func buildWallPayload(wall services.Wall, includeHost bool) wallPayload {
	payload := wallPayload{
		ID:            wall.ID,
		Name:          wall.Name,
		ThemeColor:    wall.ThemeColor,
		CoverPhotoURL: wall.CoverPhotoURL,
		CreatedAt:     formatTime(wall.CreatedAt),
		ExpiresAt:     formatTime(wall.ExpiresAt),
		IsPaid:        wall.IsPaid,
		MaxMemories:   wall.MaxMemories,
		MemoryCount:   wall.MemoryCount,
		IsActive:      wall.IsActive,
	}
	if includeHost {
		payload.HostUserID = wall.HostUserID
	}
	return payload
}

// buildMemoryPayload never exposes the author fingerprint.
func buildMemoryPayload(memory services.Memory) memoryPayload {
	return memoryPayload{
		ID:         memory.ID,
		WallID:     memory.WallID,
		Type:       memory.Type,
		Content:    memory.Content,
		MediaURL:   memory.MediaURL,
		MediaType:  memory.MediaType,
		AuthorName: memory.AuthorName,
		CreatedAt:  formatTime(memory.CreatedAt),
	}
}

func buildCommentPayload(comment services.Comment) commentPayload {
	return commentPayload{
		ID:         comment.ID,
		MemoryID:   comment.MemoryID,
		Content:    comment.Content,
		AuthorName: comment.AuthorName,
		CreatedAt:  formatTime(comment.CreatedAt),
	}
}
