package whisper

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

func TestTranscribe(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, "https://oai.test/v1/audio/transcriptions",
		func(req *http.Request) (*http.Response, error) {
			if err := req.ParseMultipartForm(1 << 20); err != nil {
				return nil, err
			}
			if req.FormValue("model") != Model || req.FormValue("language") != Language {
				return httpmock.NewStringResponse(http.StatusBadRequest, "fields"), nil
			}
			f, h, err := req.FormFile("file")
			if err != nil {
				return nil, err
			}
			data, _ := io.ReadAll(f)
			if h.Filename != "note.webm" || string(data) != "RIFFdata" {
				return httpmock.NewStringResponse(http.StatusBadRequest, "file"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"text":" Le chant du loriot. "}`), nil
		})

	c := New(upstream.New(upstream.Config{Service: "openai", HTTPClient: &http.Client{Transport: mt}}), "https://oai.test/", "sk")
	text, err := c.Transcribe(context.Background(), "/tmp/note.webm", []byte("RIFFdata"))
	require.NoError(t, err)
	assert.Equal(t, "Le chant du loriot.", text)
}

func TestTranscribe_Validation(t *testing.T) {
	hc := upstream.New(upstream.Config{Service: "openai"})
	ctx := context.Background()

	_, err := New(hc, "", "").Transcribe(ctx, "a.webm", []byte("x"))
	require.ErrorIs(t, err, ErrMissingKey)

	c := New(hc, "", "sk")
	_, err = c.Transcribe(ctx, "a.webm", nil)
	require.ErrorIs(t, err, ErrEmptyAudio)
	_, err = c.Transcribe(ctx, "a.webm", make([]byte, MaxAudioSize+1))
	require.ErrorIs(t, err, ErrAudioTooLarge)
}
