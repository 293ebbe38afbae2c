// Package blob reads product images from Azure Blob Storage.
package blob

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// ImageMediaType is the media type product images are stored as.
const ImageMediaType = "image/webp"

// Source opens named blobs.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// AzureSource reads blobs from one storage container.
type AzureSource struct {
	client    *azblob.Client
	container string
}

// NewAzureSource creates a source for container in the given storage account,
// authenticating with cred.
func NewAzureSource(account, container string, cred azcore.TokenCredential) (*AzureSource, error) {
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &AzureSource{client: client, container: container}, nil
}

// Open starts a download of name. The caller closes the body.
func (s *AzureSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", s.container, name, err)
	}
	return resp.Body, nil
}

// DataURL reads name from src and encodes it as a base64 data URL.
func DataURL(ctx context.Context, src Source, name string) (string, error) {
	body, err := src.Open(ctx, name)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read blob %s: %w", name, err)
	}
	return "data:" + ImageMediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
