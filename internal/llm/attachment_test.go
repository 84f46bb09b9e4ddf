// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMIMEForFile(t *testing.T) {
	tests := []struct {
		path    string
		mime    string
		wantErr bool
	}{
		{"photo.jpg", "image/jpeg", false},
		{"PHOTO.JPG", "image/jpeg", false},
		{"chart.png", "image/png", false},
		{"report.pdf", "application/pdf", false},
		{"notes.txt", "", true},
		{"archive.tar.gz", "", true},
		{"extensionless", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			mime, err := MIMEForFile(tt.path)
			if tt.wantErr {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				require.Contains(t, vErr.Message, "not supported extension")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.mime, mime)
		})
	}
}

func TestEncodeAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pic.png")
	content := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	require.NoError(t, os.WriteFile(path, content, 0644))

	part, err := EncodeAttachment(path)
	require.NoError(t, err)
	require.Equal(t, PartData, part.Kind)
	require.Equal(t, "image/png", part.MIME)

	decoded, err := base64.StdEncoding.DecodeString(part.Data)
	require.NoError(t, err)
	require.Equal(t, content, decoded)

	require.Equal(t, "data:image/png;base64,"+part.Data, part.DataURI())
}

func TestEncodeAttachment_MissingFile(t *testing.T) {
	_, err := EncodeAttachment(filepath.Join(t.TempDir(), "absent.jpg"))
	require.Error(t, err)
}

// TestEncodeAttachments_FailFast: one bad extension fails the batch before
// any part is returned.
func TestEncodeAttachments_FailFast(t *testing.T) {
	good := filepath.Join(t.TempDir(), "ok.jpg")
	require.NoError(t, os.WriteFile(good, []byte("jpeg"), 0644))

	parts, err := EncodeAttachments([]string{good, "bad.exe"})
	require.Error(t, err)
	require.Nil(t, parts)
}

func TestEncodeAttachments_Empty(t *testing.T) {
	parts, err := EncodeAttachments(nil)
	require.NoError(t, err)
	require.Nil(t, parts)
}
