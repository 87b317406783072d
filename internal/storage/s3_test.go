package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Store_GenerateDownloadURL(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		Bucket:          "hr-documents",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	url, err := store.GenerateDownloadURL(context.Background(), "company-1/doc-1.pdf")
	require.NoError(t, err)

	assert.Contains(t, url, "localhost:9000/hr-documents/company-1/doc-1.pdf")
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestS3Store_RejectsInvalidKey(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		Bucket:          "hr-documents",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "../secret")
	assert.Error(t, err)
	assert.Error(t, store.Delete(context.Background(), ""))
}
