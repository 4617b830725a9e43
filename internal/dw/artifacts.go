package dw

import "strings"

const (
	thumbnailPrefix = "thumb_"
	previewPrefix   = "preview_"
	artifactSuffix  = ".jpg"
)

// ThumbnailKey is the artifact key of the thumbnail for filename.
func ThumbnailKey(filename string) string {
	return thumbnailPrefix + filename + artifactSuffix
}

// PreviewKey is the artifact key of the preview for filename.
func PreviewKey(filename string) string {
	return previewPrefix + filename + artifactSuffix
}

// SourceFromArtifactKey recovers the document filename an artifact key was
// generated for. ok is false for keys outside the naming convention.
func SourceFromArtifactKey(key string) (filename string, ok bool) {
	rest, found := strings.CutSuffix(key, artifactSuffix)
	if !found {
		return "", false
	}
	for _, prefix := range []string{thumbnailPrefix, previewPrefix} {
		if name, found := strings.CutPrefix(rest, prefix); found && name != "" {
			return name, true
		}
	}
	return "", false
}
