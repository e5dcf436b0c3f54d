package guard

import (
	"mime"
	"path"
	"strings"
)

// MaxFileSize caps uploads at 20 MiB.
const MaxFileSize int64 = 20 * 1024 * 1024

const (
	ReasonFileTooLarge      = "File size must be less than 20MB"
	ReasonFileTypeForbidden = "File type not allowed. Only images and videos are permitted."
	ReasonFileExtension     = "File name contains a disallowed extension"
	ReasonFileDoubleExt     = "File name must have a single extension"
	ReasonFileNameRequired  = "File name is required"
)

// AllowedFileTypes lists the accepted MIME types.
var AllowedFileTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/gif":       {},
	"image/webp":      {},
	"video/mp4":       {},
	"video/webm":      {},
	"video/quicktime": {},
}

var suspiciousExtensions = map[string]struct{}{
	"exe": {}, "bat": {}, "cmd": {}, "com": {}, "scr": {}, "pif": {},
	"js": {}, "vbs": {}, "jar": {}, "msi": {}, "sh": {}, "php": {},
	"ps1": {}, "dll": {}, "apk": {}, "html": {}, "htm": {}, "svg": {},
}

// FileInfo is the declared metadata of an upload.
type FileInfo struct {
	Name        string
	Size        int64
	ContentType string
}

// ValidateFile checks size, declared type, then the file name, and reports the first failure.
func ValidateFile(file FileInfo) Outcome {
	if file.Size > MaxFileSize {
		return Rejected(reject("file", ReasonFileTooLarge))
	}
	if _, ok := AllowedFileTypes[NormalizeContentType(file.ContentType)]; !ok {
		return Rejected(reject("file", ReasonFileTypeForbidden))
	}

	name := strings.TrimSpace(path.Base(strings.ReplaceAll(file.Name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return Rejected(reject("file", ReasonFileNameRequired))
	}

	segments := strings.Split(strings.ToLower(name), ".")
	for _, segment := range segments[1:] {
		if _, bad := suspiciousExtensions[strings.TrimSpace(segment)]; bad {
			return Rejected(reject("file", ReasonFileExtension))
		}
	}
	if len(segments) > 2 {
		return Rejected(reject("file", ReasonFileDoubleExt))
	}
	return Accepted()
}

// NormalizeContentType lower-cases a MIME type and drops its parameters.
func NormalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		return parsed
	}
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// FileExtension returns the lower-cased extension of name without the dot.
func FileExtension(name string) string {
	ext := strings.TrimPrefix(path.Ext(strings.TrimSpace(name)), ".")
	return strings.ToLower(ext)
}

// MemoryTypeForContentType maps an upload MIME type onto a memory type.
func MemoryTypeForContentType(contentType string) MemoryType {
	ct := NormalizeContentType(contentType)
	switch {
	case strings.HasPrefix(ct, "video/"):
		return MemoryTypeVideo
	case ct == "image/gif":
		return MemoryTypeGIF
	default:
		return MemoryTypeImage
	}
}
