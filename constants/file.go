package constants

import (
	"path"
	"strings"
)

// AllowedImageExtensions holds the image formats the OCR providers accept.
var AllowedImageExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"pdf":  "application/pdf",
}

// ArtifactContentType is used for every OCR artifact written to storage.
const ArtifactContentType = "application/json"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ContentTypeForKey maps an object key (or URL path) to a content type.
// Unknown extensions report ok=false.
func ContentTypeForKey(key string) (string, bool) {
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	ct, ok := AllowedImageExtensions[NormalizeExt(path.Ext(key))]
	return ct, ok
}
