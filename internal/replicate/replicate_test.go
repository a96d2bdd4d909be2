package replicate

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

func newClient(mt *httpmock.MockTransport) *Client {
	return New(
		upstream.New(upstream.Config{Service: "replicate", HTTPClient: &http.Client{Transport: mt}}),
		Config{BaseURL: "https://rep.test", APIToken: "tok", Model: "acme/flux", PollInterval: time.Millisecond},
	)
}

func TestOutputs(t *testing.T) {
	for _, tt := range []struct {
		name string
		raw  string
		want []string
	}{
		{"Empty", ``, []string{}},
		{"Null", `null`, []string{}},
		{"Single", `"https://img/1.webp"`, []string{"https://img/1.webp"}},
		{"Array", `["https://img/1.webp", 3, "", "https://img/2.webp"]`, []string{"https://img/1.webp", "https://img/2.webp"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Outputs([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Outputs([]byte(`{"a":1}`))
	require.Error(t, err)
}

func TestGenerate_ImmediateSuccess(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, "https://rep.test/v1/models/acme/flux/predictions",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Prefer") != "wait" || req.Header.Get("Authorization") != "Bearer tok" {
				return httpmock.NewStringResponse(http.StatusBadRequest, "headers"), nil
			}
			return httpmock.NewStringResponse(http.StatusCreated,
				`{"id":"p1","status":"succeeded","output":["https://img/1.webp"]}`), nil
		})

	v, err := newClient(mt).Generate(context.Background(), "un héron dans la brume", "")
	require.NoError(t, err)
	assert.Equal(t, &Visual{PredictionID: "p1", Images: []string{"https://img/1.webp"}}, v)
}

func TestGenerate_Polls(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, "https://rep.test/v1/models/acme/flux/predictions",
		httpmock.NewStringResponder(http.StatusCreated,
			`{"id":"p2","status":"starting","urls":{"get":"https://rep.test/v1/predictions/p2"}}`))
	mt.RegisterResponder(http.MethodGet, "https://rep.test/v1/predictions/p2",
		httpmock.ResponderFromMultipleResponses([]*http.Response{
			httpmock.NewStringResponse(http.StatusOK, `{"id":"p2","status":"processing","urls":{"get":"https://rep.test/v1/predictions/p2"}}`),
			httpmock.NewStringResponse(http.StatusOK, `{"id":"p2","status":"succeeded","output":"https://img/2.webp"}`),
		}))

	v, err := newClient(mt).Generate(context.Background(), "prompt", "1:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/2.webp"}, v.Images)
	assert.Equal(t, 3, mt.GetTotalCallCount())
}

func TestGenerate_Failed(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, "https://rep.test/v1/models/acme/flux/predictions",
		httpmock.NewStringResponder(http.StatusCreated, `{"id":"p3","status":"failed","error":"NSFW content"}`))

	_, err := newClient(mt).Generate(context.Background(), "prompt", "")
	var pe *PredictionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StatusFailed, pe.Status)
	assert.Equal(t, "NSFW content", pe.Reason)
}

func TestGenerate_ContextDone(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, "https://rep.test/v1/models/acme/flux/predictions",
		httpmock.NewStringResponder(http.StatusCreated, `{"id":"p4","status":"starting"}`))
	mt.RegisterResponder(http.MethodGet, "https://rep.test/v1/predictions/p4",
		httpmock.NewStringResponder(http.StatusOK, `{"id":"p4","status":"processing"}`))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := newClient(mt).Generate(ctx, "prompt", "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_MissingToken(t *testing.T) {
	c := New(upstream.New(upstream.Config{Service: "replicate"}), Config{})
	_, err := c.Generate(context.Background(), "prompt", "")
	require.ErrorIs(t, err, ErrMissingToken)
}
