package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, DetectType("https://abc.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, DetectType("s3.eu-west-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3, DetectType(""))
	assert.Equal(t, StorageTypeS3Compatible, DetectType("localhost:9000"))
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "localhost:9000", normalizeEndpoint("http://localhost:9000/"))
	assert.Equal(t, "host.example", normalizeEndpoint("https://host.example/some/path"))
}

func TestNewStorageWithoutBucketIsLocal(t *testing.T) {
	s, err := NewStorage(&S3Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = NewStorage(nil)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGetURL(t *testing.T) {
	s, err := NewS3Storage(&S3Config{
		Type:      StorageTypeS3Compatible,
		Endpoint:  "http://localhost:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "exports",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/exports/csv/job-1.csv", s.GetURL("csv/job-1.csv"))

	s, err = NewS3Storage(&S3Config{
		Endpoint:  "localhost:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "exports",
		PublicURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/job-2.csv", s.GetURL("job-2.csv"))
}
