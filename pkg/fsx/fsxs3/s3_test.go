package fsxs3_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Abraxas-365/jobrunner/pkg/errx"
	"github.com/Abraxas-365/jobrunner/pkg/fsx"
	"github.com/Abraxas-365/jobrunner/pkg/fsx/fsxs3"
)

type fakeS3 struct {
	objects map[string][]byte
	gotKeys []string
	err     error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gotKeys = append(f.gotKeys, aws.ToString(in.Key))
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(time.Unix(1700000000, 0)),
	}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	out := &s3.ListObjectsV2Output{}
	dirs := map[string]bool{}
	for key, data := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			dir := prefix + rest[:i+1]
			if !dirs[dir] {
				dirs[dir] = true
				out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(dir)})
			}
			continue
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(data)))})
	}
	return out, nil
}

func newFake() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{
		"uploads/in/a.csv":     []byte("x,y\n1,2\n"),
		"uploads/in/sub/b.csv": []byte("z\n"),
	}}
}

func TestS3_ReadUsesPrefix(t *testing.T) {
	fake := newFake()
	fs := fsxs3.NewS3FileSystem(fake, "bucket", "/uploads/")

	rc, err := fs.Open(context.Background(), "/in/a.csv")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "x,y\n1,2\n" {
		t.Fatalf("unexpected content %q", data)
	}
	if fake.gotKeys[0] != "uploads/in/a.csv" {
		t.Fatalf("unexpected key %q", fake.gotKeys[0])
	}
}

func TestS3_Stat(t *testing.T) {
	fs := fsxs3.NewS3FileSystem(newFake(), "bucket", "uploads")
	ctx := context.Background()

	info, err := fs.Stat(ctx, "in/a.csv")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Name != "a.csv" || info.Size != 8 || info.ContentType != "text/csv" {
		t.Fatalf("unexpected info %+v", info)
	}

	if _, err := fs.Stat(ctx, "in/missing.csv"); !errx.IsCode(err, fsx.ErrNotFound) {
		t.Fatalf("expected not found from head, got %v", err)
	}
}

func TestS3_List(t *testing.T) {
	fs := fsxs3.NewS3FileSystem(newFake(), "bucket", "uploads")

	infos, err := fs.List(context.Background(), "in")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 entries, got %+v", infos)
	}
	var sawDir, sawFile bool
	for _, info := range infos {
		switch {
		case info.IsDir && info.Name == "sub":
			sawDir = true
		case !info.IsDir && info.Name == "a.csv":
			sawFile = true
		}
	}
	if !sawDir || !sawFile {
		t.Fatalf("unexpected entries %+v", infos)
	}
}

func TestS3_Errors(t *testing.T) {
	ctx := context.Background()
	fs := fsxs3.NewS3FileSystem(newFake(), "bucket", "")

	if _, err := fs.Open(ctx, "missing.csv"); !errx.IsCode(err, fsx.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := fs.Open(ctx, "../secret"); !errx.IsCode(err, fsx.ErrInvalidPath) {
		t.Fatalf("expected invalid path, got %v", err)
	}

	broken := fsxs3.NewS3FileSystem(&fakeS3{err: errors.New("timeout")}, "bucket", "")
	if _, err := broken.Open(ctx, "a.csv"); !errx.IsCode(err, fsx.ErrRead) {
		t.Fatalf("expected read error, got %v", err)
	}
}
