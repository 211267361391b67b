package s3

import (
	"context"
	"testing"

	"tasklist/internal/blob/blobtest"
	"tasklist/internal/blob/core"
)

func TestS3StoreContractAgainstMock(t *testing.T) {
	s := NewMockForTests()
	if s.Driver() != core.DriverS3 || s.Bucket() != "mock-bucket" {
		t.Fatalf("unexpected store identity %s %s", s.Driver(), s.Bucket())
	}
	blobtest.RunStoreContract(t, s)
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestNewWithStaticCredentials(t *testing.T) {
	s, err := New(context.Background(), Config{
		Bucket:          "archives",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	creds, err := s.client.Options().Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "minio" {
		t.Fatalf("static credentials not wired: %+v", creds)
	}
}
