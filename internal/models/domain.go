package models

import (
	"fmt"
	"path"
	"strings"
)

// FileType is the fixed category a stored file is bucketed under.
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeDocument FileType = "document"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeOther    FileType = "other"
)

// FileTypes lists every category in display order.
var FileTypes = []FileType{
	FileTypeImage,
	FileTypeDocument,
	FileTypeVideo,
	FileTypeAudio,
	FileTypeOther,
}

var validFileTypes = map[FileType]struct{}{
	FileTypeImage:    {},
	FileTypeDocument: {},
	FileTypeVideo:    {},
	FileTypeAudio:    {},
	FileTypeOther:    {},
}

var extensionTypes = map[string]FileType{}

func init() {
	register := func(t FileType, exts ...string) {
		for _, ext := range exts {
			extensionTypes[ext] = t
		}
	}
	register(FileTypeDocument,
		"pdf", "doc", "docx", "txt", "xls", "xlsx", "csv", "rtf", "ods", "ppt", "odp", "md",
		"html", "htm", "epub", "pages", "fig", "psd", "ai", "indd", "xd", "sketch", "afdesign", "afphoto",
	)
	register(FileTypeImage, "jpg", "jpeg", "png", "gif", "bmp", "svg", "webp")
	register(FileTypeVideo, "mp4", "avi", "mov", "mkv", "webm")
	register(FileTypeAudio, "mp3", "wav", "ogg", "flac")
}

func IsValidFileType(t FileType) bool {
	_, ok := validFileTypes[t]
	return ok
}

func ParseFileType(raw string) (FileType, error) {
	value := FileType(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("type is required")
	}
	if !IsValidFileType(value) {
		return "", fmt.Errorf("invalid type: %s", value)
	}
	return value, nil
}

// FileExtension returns the lowercase suffix after the last dot, or "".
func FileExtension(filename string) string {
	ext := path.Ext(strings.TrimSpace(filename))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ClassifyFile returns the category and extension for a filename.
func ClassifyFile(filename string) (FileType, string) {
	ext := FileExtension(filename)
	if ext == "" {
		return FileTypeOther, ""
	}
	if t, ok := extensionTypes[ext]; ok {
		return t, ext
	}
	return FileTypeOther, ext
}
