package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]string

func (m mapSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	data, ok := m[name]
	if !ok {
		return nil, errors.New("BlobNotFound")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func TestDataURL(t *testing.T) {
	url, err := DataURL(context.Background(), mapSource{"tent.webp": "RIFF"}, "tent.webp")
	require.NoError(t, err)
	require.Equal(t, "data:image/webp;base64,UklGRg==", url)
}

func TestDataURLMissing(t *testing.T) {
	_, err := DataURL(context.Background(), mapSource{}, "nope.webp")
	require.Error(t, err)
}

type staticCredential struct{}

func (staticCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "test"}, nil
}

func TestNewAzureSource(t *testing.T) {
	src, err := NewAzureSource("shopimages", "products", staticCredential{})
	require.NoError(t, err)
	require.Equal(t, "products", src.container)
	require.Equal(t, "https://shopimages.blob.core.windows.net/", src.client.URL())
}
