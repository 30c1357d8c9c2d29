package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"dms-go/internal/config"
	"dms-go/internal/dms"
)

// fakeS3 keeps objects in memory. Only single-part uploads are supported.
type fakeS3 struct {
	mu          sync.Mutex
	objects     map[string][]byte
	contentType map[string]string
	deleteErr   error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), contentType: make(map[string]string)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.contentType[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Store(t *testing.T) {
	cfg := config.BlobConfig{Type: "s3", S3Bucket: "company-docs", S3Prefix: "/dms/", S3Region: "eu-west-1"}

	exerciseStore(t, func(t *testing.T) dms.BlobStore {
		return NewS3StoreWithClient(newFakeS3(), cfg)
	})

	t.Run("objects live under the prefix", func(t *testing.T) {
		fake := newFakeS3()
		s := NewS3StoreWithClient(fake, cfg)
		if err := s.Put(context.Background(), "u1/a.pdf", strings.NewReader("%PDF"), 4, "application/pdf"); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if _, ok := fake.objects["company-docs/dms/u1/a.pdf"]; !ok {
			t.Errorf("objects = %v, want key company-docs/dms/u1/a.pdf", fake.objects)
		}
		if got := fake.contentType["company-docs/dms/u1/a.pdf"]; got != "application/pdf" {
			t.Errorf("content type = %q, want application/pdf", got)
		}
	})

	t.Run("delete failure is reported", func(t *testing.T) {
		fake := newFakeS3()
		fake.deleteErr = errors.New("access denied")
		s := NewS3StoreWithClient(fake, cfg)
		if err := s.Delete(context.Background(), "u1/a.pdf"); err == nil {
			t.Error("Delete() expected error")
		}
	})
}

func TestS3Store_PublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.BlobConfig
		want string
	}{
		{
			name: "aws virtual-hosted",
			cfg:  config.BlobConfig{S3Bucket: "docs", S3Region: "us-east-2"},
			want: "https://docs.s3.us-east-2.amazonaws.com/u1/a.txt",
		},
		{
			name: "custom endpoint is path-style",
			cfg:  config.BlobConfig{S3Bucket: "docs", S3Endpoint: "http://localhost:9000/", S3Prefix: "p"},
			want: "http://localhost:9000/docs/p/u1/a.txt",
		},
		{
			name: "public base url wins",
			cfg:  config.BlobConfig{S3Bucket: "docs", S3Endpoint: "http://localhost:9000", PublicBaseURL: "https://cdn.example.com"},
			want: "https://cdn.example.com/u1/a.txt",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewS3StoreWithClient(newFakeS3(), tt.cfg)
			if got := s.PublicURL("u1/a.txt"); got != tt.want {
				t.Errorf("PublicURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
