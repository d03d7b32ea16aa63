package s3gateway

import "strings"

// contentTypesByExtension covers the file kinds the browse/preview surface
// needs a correct Content-Type for; anything else falls back to the
// generic octet stream type.
var contentTypesByExtension = map[string]string{
	"html": "text/html", "htm": "text/html",
	"css":  "text/css",
	"js":   "application/javascript", "mjs": "application/javascript",
	"json": "application/json",
	"xml":  "application/xml",
	"csv":  "text/csv",
	"txt":  "text/plain", "log": "text/plain",
	"md":   "text/markdown",
	"yaml": "application/yaml", "yml": "application/yaml",
	"toml": "application/toml",
	"pdf":  "application/pdf",
	"zip":  "application/zip",
	"gz":   "application/gzip", "gzip": "application/gzip",
	"tar": "application/x-tar",
	"7z":  "application/x-7z-compressed",
	"rar": "application/x-rar-compressed",
	"png": "image/png",
	"jpg": "image/jpeg", "jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"bmp":  "image/bmp",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"mkv":  "video/x-matroska",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"woff": "font/woff", "woff2": "font/woff2",
	"ttf": "font/ttf", "otf": "font/otf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// guessContentType infers a Content-Type from key's extension, defaulting
// to application/octet-stream for anything not in the table.
func guessContentType(key string) string {
	ext := key
	if idx := strings.LastIndex(key, "."); idx >= 0 {
		ext = key[idx+1:]
	} else {
		ext = ""
	}
	ext = strings.ToLower(ext)

	if ct, ok := contentTypesByExtension[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
