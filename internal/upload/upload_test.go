package upload

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func fakeJPEG(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00})
	return data
}

func fakePNG() []byte {
	data := make([]byte, 64)
	copy(data, []byte("\x89PNG\r\n\x1a\n"))
	return data
}

func fakeWebP() []byte {
	data := make([]byte, 64)
	copy(data, []byte("RIFF\x00\x00\x00\x00WEBPVP8 "))
	return data
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     string
		wantErr  error
	}{
		{"2MB jpeg", fakeJPEG(2 * 1024 * 1024), "image/jpeg", "image/jpeg", nil},
		{"png without declared type", fakePNG(), "", "image/png", nil},
		{"webp", fakeWebP(), "image/webp", "image/webp", nil},
		{"10MB jpeg", fakeJPEG(10 * 1024 * 1024), "image/jpeg", "", ErrTooLarge},
		{"gif", []byte("GIF89a............"), "", "", ErrUnsupportedType},
		{"declared gif", fakePNG(), "image/gif", "", ErrUnsupportedType},
		{"text disguised as jpeg", []byte("hello world"), "image/jpeg", "", ErrUnsupportedType},
		{"empty", nil, "image/png", "", ErrUploadRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.data, tt.declared, DefaultMaxSize)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, ErrUploadRejected) {
					t.Fatalf("expected %v wrapped in ErrUploadRejected, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestFilesystemUploader(t *testing.T) {
	dir := t.TempDir()
	up, err := NewFilesystemUploader(dir, "https://clips.example.com/", DefaultMaxSize, nil)
	if err != nil {
		t.Fatalf("NewFilesystemUploader failed: %v", err)
	}

	data := fakeJPEG(2 * 1024 * 1024)
	url, err := up.Upload(context.Background(), data, "image/jpeg")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if !strings.HasPrefix(url, "https://clips.example.com/blobs/") || !strings.HasSuffix(url, ".jpg") {
		t.Errorf("unexpected url %q", url)
	}

	stored, err := os.ReadFile(filepath.Join(up.Dir(), filepath.Base(url)))
	if err != nil {
		t.Fatalf("blob not written: %v", err)
	}
	if !bytes.Equal(stored, data) {
		t.Error("stored blob differs from upload")
	}
}

func TestFilesystemUploader_RejectWritesNothing(t *testing.T) {
	up, err := NewFilesystemUploader(t.TempDir(), "http://localhost:8080", DefaultMaxSize, nil)
	if err != nil {
		t.Fatalf("NewFilesystemUploader failed: %v", err)
	}

	_, err = up.Upload(context.Background(), fakeJPEG(10*1024*1024), "image/jpeg")
	if !errors.Is(err, ErrUploadRejected) {
		t.Fatalf("expected ErrUploadRejected, got %v", err)
	}
	entries, _ := os.ReadDir(up.Dir())
	if len(entries) != 0 {
		t.Errorf("expected no blobs, found %d", len(entries))
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestNewS3Uploader_EmptyBucket(t *testing.T) {
	if _, err := NewS3Uploader("", "prefix", "", DefaultMaxSize, nil); err == nil {
		t.Error("expected error for empty bucket")
	}
}

func TestS3Uploader_Upload(t *testing.T) {
	fake := &fakeS3{}
	up := newS3Uploader(fake, "bucket", "/clips", "", DefaultMaxSize, nil)

	url, err := up.Upload(context.Background(), fakePNG(), "image/png")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	key := aws.ToString(fake.input.Key)
	if !strings.HasPrefix(key, "clips/") || !strings.HasSuffix(key, ".png") {
		t.Errorf("unexpected key %q", key)
	}
	if aws.ToString(fake.input.ContentType) != "image/png" {
		t.Errorf("unexpected content type %q", aws.ToString(fake.input.ContentType))
	}
	if url != "https://bucket.s3.amazonaws.com/"+key {
		t.Errorf("unexpected url %q", url)
	}
}

func TestS3Uploader_RemoteFailure(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	up := newS3Uploader(fake, "bucket", "", "https://cdn.example.com", DefaultMaxSize, nil)

	_, err := up.Upload(context.Background(), fakePNG(), "image/png")
	if !errors.Is(err, ErrUploadRejected) {
		t.Errorf("expected ErrUploadRejected, got %v", err)
	}
}

func TestS3Uploader_ValidationSkipsRemote(t *testing.T) {
	fake := &fakeS3{}
	up := newS3Uploader(fake, "bucket", "", "", DefaultMaxSize, nil)
	if _, err := up.Upload(context.Background(), []byte("plain text"), "text/plain"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
	if fake.input != nil {
		t.Error("rejected upload must not reach S3")
	}
}

func TestNormalizeS3Prefix(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"prefix", "prefix/"},
		{"/prefix/", "prefix/"},
		{"prefix/", "prefix/"},
		{"/prefix", "prefix/"},
	}
	for _, c := range cases {
		got := normalizeS3Prefix(c.in)
		if got != c.want {
			t.Errorf("normalizeS3Prefix(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestApplyS3Prefix(t *testing.T) {
	cases := []struct {
		prefix, name, want string
	}{
		{"", "foo", "foo"},
		{"prefix/", "bar", "prefix/bar"},
		{"prefix", "bar", "prefix/bar"},
		{"", "", ""},
	}
	for _, c := range cases {
		got := applyS3Prefix(c.prefix, c.name)
		if got != c.want {
			t.Errorf("applyS3Prefix(%q, %q) = %q, want %q", c.prefix, c.name, got, c.want)
		}
	}
}
