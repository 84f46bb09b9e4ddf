// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// ATTACHMENT ENCODING
// =============================================================================

// mimeByExtension maps the supported attachment file extensions to their
// MIME types. Anything else is rejected.
var mimeByExtension = map[string]string{
	".jpg": "image/jpeg",
	".png": "image/png",
	".pdf": "application/pdf",
}

// MIMEForFile returns the MIME type for a file path based on its
// extension, or a ValidationError for unsupported extensions.
func MIMEForFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := mimeByExtension[ext]
	if !ok {
		return "", &ValidationError{Field: path, Message: "not supported extension"}
	}
	return mime, nil
}

// EncodeAttachment reads a file and returns it as an inline base64 content
// part with a MIME type derived from the file extension.
func EncodeAttachment(path string) (Part, error) {
	mime, err := MIMEForFile(path)
	if err != nil {
		return Part{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Part{}, err
	}

	return Part{
		Kind: PartData,
		MIME: mime,
		Data: base64.StdEncoding.EncodeToString(data),
	}, nil
}

// EncodeAttachments encodes several files, failing on the first
// unsupported or unreadable one.
func EncodeAttachments(paths []string) ([]Part, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	parts := make([]Part, 0, len(paths))
	for _, path := range paths {
		part, err := EncodeAttachment(path)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}
