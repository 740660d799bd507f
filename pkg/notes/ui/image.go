package ui

import (
	"path/filepath"
	"strings"
)

// ImageMIMETypes lists the clipboard types an image can be pasted from, in
// order of preference
var ImageMIMETypes = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/bmp",
	"image/tga",
	"image/psd",
	"image/hdr",
	"image/pic",
	"image/ppm",
	"image/pgm",
}

// ImageValid reports whether path names an image. Paths pointing at the
// plugin's own state files are rejected.
func ImageValid(path string) bool {
	if path == "" {
		return false
	}
	lower := strings.ToLower(path)
	return !strings.Contains(lower, "notes.ttl") && !strings.Contains(lower, "state.ttl")
}

// MIMEType returns the image MIME type for the suffix of path
func MIMEType(path string) (string, bool) {
	suffix := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	switch suffix {
	case "jpg":
		return "image/jpeg", true
	case "jpeg", "png", "tga", "bmp", "psd", "gif", "hdr", "pic", "ppm", "pgm":
		return "image/" + suffix, true
	}
	return "", false
}

// MIMESuffix returns the file suffix for an image MIME type
func MIMESuffix(mime string) (string, bool) {
	suffix, ok := strings.CutPrefix(strings.ToLower(mime), "image/")
	if !ok || suffix == "" || strings.ContainsAny(suffix, "/;. ") {
		return "", false
	}
	return suffix, true
}
