package vectorindex

import (
	"studyvault/internal/core"
	"studyvault/internal/models"
)

// ParseChunkMetadata validates the raw metadata bag stored alongside a chunk
// and projects it onto the typed struct. A missing or mistyped required field
// fails with METADATA_INVALID: the index and its metadata have drifted, and
// coercing would hide corruption.
func ParseChunkMetadata(raw map[string]any) (models.ChunkMetadata, error) {
	var meta models.ChunkMetadata
	if raw == nil {
		return meta, core.Errf(core.CodeMetadataInvalid, "chunk metadata is missing")
	}

	var err error
	if meta.UserID, err = requireString(raw, "user_id"); err != nil {
		return meta, err
	}
	if meta.MaterialID, err = requireString(raw, "material_id"); err != nil {
		return meta, err
	}
	if meta.MaterialTitle, err = requireString(raw, "material_title"); err != nil {
		return meta, err
	}
	if meta.ChunkIndex, err = requireInt(raw, "chunk_index"); err != nil {
		return meta, err
	}

	meta.OriginalFilename = optionalString(raw, "original_filename")
	meta.MimeType = optionalString(raw, "mime_type")
	meta.Source = optionalString(raw, "source")
	if v, ok := raw["page_number"]; ok {
		n, err := asInt(v)
		if err != nil {
			return meta, core.Errf(core.CodeMetadataInvalid, "chunk metadata field page_number has wrong type")
		}
		meta.PageNumber = n
	}
	return meta, nil
}

func requireString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", core.Errf(core.CodeMetadataInvalid, "chunk metadata field %s is missing", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", core.Errf(core.CodeMetadataInvalid, "chunk metadata field %s is missing or has wrong type", key)
	}
	return s, nil
}

func requireInt(raw map[string]any, key string) (int, error) {
	v, ok := raw[key]
	if !ok {
		return 0, core.Errf(core.CodeMetadataInvalid, "chunk metadata field %s is missing", key)
	}
	n, err := asInt(v)
	if err != nil {
		return 0, core.Errf(core.CodeMetadataInvalid, "chunk metadata field %s has wrong type", key)
	}
	return n, nil
}

// asInt accepts the numeric types json decoding can produce.
func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, core.Errf(core.CodeMetadataInvalid, "not an integer")
		}
		return int(n), nil
	default:
		return 0, core.Errf(core.CodeMetadataInvalid, "not a number")
	}
}

func optionalString(raw map[string]any, key string) string {
	if s, ok := raw[key].(string); ok {
		return s
	}
	return ""
}

// MetadataMap serializes the typed metadata back into the stored shape.
func MetadataMap(m models.ChunkMetadata) map[string]any {
	out := map[string]any{
		"user_id":        m.UserID,
		"material_id":    m.MaterialID,
		"material_title": m.MaterialTitle,
		"source":         m.Source,
		"chunk_index":    m.ChunkIndex,
	}
	if m.OriginalFilename != "" {
		out["original_filename"] = m.OriginalFilename
	}
	if m.MimeType != "" {
		out["mime_type"] = m.MimeType
	}
	if m.PageNumber > 0 {
		out["page_number"] = m.PageNumber
	}
	return out
}
