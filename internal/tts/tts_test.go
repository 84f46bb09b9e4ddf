// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/puppet/internal/config"
	"github.com/jeranaias/puppet/internal/llm"
)

func newTestClient(t *testing.T, provider, url string) *Client {
	t.Helper()
	c, err := NewClient(config.TTSConfig{
		Provider: provider,
		URL:      url,
		APIKey:   "voice-key",
		Voice:    "en-US-Neural2-A",
		Language: "en-US",
	})
	require.NoError(t, err)
	return c
}

func TestSynthesize_Google(t *testing.T) {
	audio := []byte("RIFF-fake-wav-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "voice-key", r.Header.Get("x-goog-api-key"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Input struct {
				Text string `json:"text"`
			} `json:"input"`
			Voice struct {
				LanguageCode string `json:"languageCode"`
				Name         string `json:"name"`
			} `json:"voice"`
			AudioConfig struct {
				AudioEncoding string `json:"audioEncoding"`
			} `json:"audioConfig"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "the door is closed", req.Input.Text)
		require.Equal(t, "en-US", req.Voice.LanguageCode)
		require.Equal(t, "en-US-Neural2-A", req.Voice.Name)
		require.Equal(t, "LINEAR16", req.AudioConfig.AudioEncoding)

		fmt.Fprintf(w, `{"audioContent":%q}`, base64.StdEncoding.EncodeToString(audio))
	}))
	t.Cleanup(srv.Close)

	got, err := newTestClient(t, "google", srv.URL).Synthesize(context.Background(), "the door is closed")
	require.NoError(t, err)
	require.Equal(t, audio, got)
}

// TestSynthesize_Azure: the Azure endpoint takes SSML and returns raw audio
// with no JSON envelope.
func TestSynthesize_Azure(t *testing.T) {
	audio := []byte("RIFF-raw-response")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "voice-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		require.Equal(t, "application/ssml+xml", r.Header.Get("Content-Type"))
		require.Equal(t, "riff-16khz-16bit-mono-pcm", r.Header.Get("X-Microsoft-OutputFormat"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "<speak version='1.0'")
		require.Contains(t, string(body), "name='en-US-Neural2-A'")
		require.Contains(t, string(body), "hello")

		w.Write(audio)
	}))
	t.Cleanup(srv.Close)

	got, err := newTestClient(t, "azure", srv.URL).Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, audio, got)
}

// TestSynthesize_AzureMarkupCharacters: ampersands and angle brackets in
// the spoken text must not corrupt the SSML document.
func TestSynthesize_AzureMarkupCharacters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "<![CDATA[AT&T says 2 < 3]]>")

		var doc struct {
			Voice struct {
				Text string `xml:",chardata"`
			} `xml:"voice"`
		}
		require.NoError(t, xml.Unmarshal(body, &doc))
		require.Equal(t, "AT&T says 2 < 3", doc.Voice.Text)

		w.Write([]byte("RIFF"))
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(t, "azure", srv.URL).Synthesize(context.Background(), "AT&T says 2 < 3")
	require.NoError(t, err)
}

func TestSynthesize_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(t, "google", srv.URL).Synthesize(context.Background(), "hi")
	var tErr *llm.TransportError
	require.ErrorAs(t, err, &tErr)
	require.Equal(t, http.StatusTooManyRequests, tErr.Status)
	require.Contains(t, tErr.Body, "quota exceeded")
}

func TestSynthesize_NotConfigured(t *testing.T) {
	c, err := NewClient(config.TTSConfig{})
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), "hi")
	require.ErrorIs(t, err, ErrNotConfigured)
}
