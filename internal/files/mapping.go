package files

import (
	"encoding/json"
	"fmt"
	"math"

	"stash/internal/backend"
	"stash/internal/models"
)

func fileFromDocument(doc backend.Document) models.File {
	f := doc.Fields
	return models.File{
		ID:           doc.ID,
		Name:         stringField(f, "name"),
		Extension:    stringField(f, "extension"),
		Type:         models.FileType(stringField(f, "type")),
		Size:         int64Field(f, "size"),
		URL:          stringField(f, "url"),
		Owner:        stringField(f, "owner"),
		AccountID:    stringField(f, "accountId"),
		SharedWith:   stringsField(f, "users"),
		BucketFileID: stringField(f, "bucketFileId"),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func int64Field(fields map[string]any, key string) int64 {
	switch v := fields[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(math.Round(f))
		}
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(math.Round(v))
	}
	return 0
}

func stringsField(fields map[string]any, key string) []string {
	switch v := fields[key].(type) {
	case []string:
		return append([]string{}, v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}
