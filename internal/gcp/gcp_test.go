package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("DEF_TEST_SET", "value")
	t.Setenv("DEF_TEST_EMPTY", "")

	assert.Equal(t, "value", GetEnv("DEF_TEST_SET", "fallback"))
	assert.Equal(t, "", GetEnv("DEF_TEST_EMPTY", "fallback"), "an empty variable is still set")
	assert.Equal(t, "fallback", GetEnv("DEF_TEST_UNSET_42", "fallback"))
}

func TestGetDurationEnv(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty uses fallback", value: "", want: 5 * time.Second},
		{name: "parsed", value: "90s", want: 90 * time.Second},
		{name: "zero disables", value: "0s", want: 0},
		{name: "garbage", value: "soon", wantErr: true},
		{name: "negative", value: "-1s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DEF_TEST_TIMEOUT", tt.value)
			got, err := GetDurationEnv("DEF_TEST_TIMEOUT", 5*time.Second)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "DEF_TEST_TIMEOUT")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsPreconditionFailed(t *testing.T) {
	assert.True(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusPreconditionFailed}))
	assert.True(t, isPreconditionFailed(fmt.Errorf("close: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})))
	assert.False(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isPreconditionFailed(errors.New("412")))
}

func TestResourceNames(t *testing.T) {
	assert.Equal(t, "projects/p/locations/eu/processors/abc", ProcessorName("p", "eu", "abc"))

	id := DocumentID("gs://docs/uploads/a.pdf")
	assert.Len(t, id, 64)
	assert.Equal(t, id, DocumentID("gs://docs/uploads/a.pdf"))
	assert.NotEqual(t, id, DocumentID("gs://docs/uploads/b.pdf"))
	assert.NotContains(t, id, "/")
}

func TestDefaultModelID(t *testing.T) {
	assert.Contains(t, DefaultModelID(ProviderAnthropic), "claude")
	assert.Contains(t, DefaultModelID(ProviderGemini), "gemini")
	assert.Equal(t, DefaultModelID(ProviderAnthropic), DefaultModelID(""))
}

func TestVertexClientClose(t *testing.T) {
	assert.NoError(t, (&VertexClient{}).Close())

	predictions, err := aiplatform.NewPredictionClient(context.Background(),
		option.WithEndpoint("localhost:1"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	assert.NoError(t, (&VertexClient{Predictions: predictions}).Close())
}

func TestNewVertexClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewVertexClient(context.Background(), "p", "us-east5", "mistral", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral")

	_, err = NewVertexClient(context.Background(), "", "us-east5", ProviderAnthropic, "m")
	assert.Error(t, err)
}
