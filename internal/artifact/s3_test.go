package artifact

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/eduramirezh/adk-go/internal/llm"
)

type fakeObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// fakeS3 implements s3API over a map. pageSize > 0 forces ListObjectsV2
// to paginate so the continuation loop gets exercised.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]fakeObject{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: aws.String(obj.contentType),
		Metadata:    obj.metadata,
	}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		n, err := strconv.Atoi(aws.ToString(in.ContinuationToken))
		if err != nil {
			return nil, err
		}
		start = n
	}
	end := len(keys)
	truncated := false
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
		truncated = true
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(truncated)}
	if truncated {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	delim := aws.ToString(in.Delimiter)
	seen := map[string]bool{}
	for _, k := range keys[start:end] {
		rest := strings.TrimPrefix(k, aws.ToString(in.Prefix))
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				cp := aws.ToString(in.Prefix) + rest[:i+len(delim)]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, s3types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, aws.ToString(in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Config_Validate(t *testing.T) {
	if err := (S3Config{}).Validate(); err == nil {
		t.Fatal("empty config validated")
	}
	if err := (S3Config{Bucket: "b"}).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestS3Service_SaveLoadRoundTrip(t *testing.T) {
	fake := newFakeS3()
	svc := NewS3ServiceWithClient(fake, "bucket", "artifacts")
	ctx := context.Background()

	v0, err := svc.Save(ctx, "app", "alice", "s1", "notes.txt", llm.TextPart("first"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	v1, err := svc.Save(ctx, "app", "alice", "s1", "notes.txt", llm.TextPart("second"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if v0 != 0 || v1 != 1 {
		t.Fatalf("versions = %d, %d, want 0, 1", v0, v1)
	}

	if _, ok := fake.objects["artifacts/app/alice/s1/notes.txt/0"]; !ok {
		t.Fatalf("expected key layout under prefix, have %v", fake.objects)
	}

	latest, err := svc.Load(ctx, "app", "alice", "s1", "notes.txt", nil)
	if err != nil {
		t.Fatalf("Load latest: %v", err)
	}
	if latest == nil || latest.Kind != llm.PartText || latest.Text != "second" {
		t.Fatalf("Load latest = %+v", latest)
	}

	zero := 0
	first, err := svc.Load(ctx, "app", "alice", "s1", "notes.txt", &zero)
	if err != nil {
		t.Fatalf("Load v0: %v", err)
	}
	if first == nil || first.Text != "first" {
		t.Fatalf("Load v0 = %+v", first)
	}
}

func TestS3Service_MetadataCarriesKindAndMIME(t *testing.T) {
	fake := newFakeS3()
	svc := NewS3ServiceWithClient(fake, "bucket", "")
	ctx := context.Background()

	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	if _, err := svc.Save(ctx, "app", "alice", "s1", "chart.png", llm.BlobPart("image/png", raw)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	obj, ok := fake.objects["app/alice/s1/chart.png/0"]
	if !ok {
		t.Fatalf("object missing, have %v", fake.objects)
	}
	if obj.contentType != "image/png" {
		t.Fatalf("ContentType = %q, want image/png", obj.contentType)
	}
	if obj.metadata[s3MetaKind] != string(llm.PartBlob) {
		t.Fatalf("metadata kind = %q, want %q", obj.metadata[s3MetaKind], llm.PartBlob)
	}

	got, err := svc.Load(ctx, "app", "alice", "s1", "chart.png", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.Kind != llm.PartBlob || got.Blob == nil {
		t.Fatalf("Load = %+v, want blob part", got)
	}
	if got.Blob.MIMEType != "image/png" || !bytes.Equal(got.Blob.Data, raw) {
		t.Fatalf("blob = %+v", got.Blob)
	}
}

func TestS3Service_LoadMissingReturnsNil(t *testing.T) {
	svc := NewS3ServiceWithClient(newFakeS3(), "bucket", "artifacts")
	ctx := context.Background()

	got, err := svc.Load(ctx, "app", "alice", "s1", "nope.txt", nil)
	if err != nil {
		t.Fatalf("Load latest of missing: %v", err)
	}
	if got != nil {
		t.Fatalf("Load = %+v, want nil", got)
	}

	// An explicit version skips the listing and hits NoSuchKey directly.
	v3 := 3
	got, err = svc.Load(ctx, "app", "alice", "s1", "nope.txt", &v3)
	if err != nil {
		t.Fatalf("Load explicit version of missing: %v", err)
	}
	if got != nil {
		t.Fatalf("Load = %+v, want nil", got)
	}
}

func TestS3Service_ListKeysUsesCommonPrefixes(t *testing.T) {
	fake := newFakeS3()
	svc := NewS3ServiceWithClient(fake, "bucket", "artifacts")
	ctx := context.Background()

	for _, f := range []string{"zebra.txt", "alpha.txt", "user:prefs.json"} {
		if _, err := svc.Save(ctx, "app", "alice", "s1", f, llm.TextPart("x")); err != nil {
			t.Fatalf("Save %q: %v", f, err)
		}
	}
	if _, err := svc.Save(ctx, "app", "alice", "s2", "elsewhere.txt", llm.TextPart("x")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	keys, err := svc.ListKeys(ctx, "app", "alice", "s1")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	want := []string{"alpha.txt", "user:prefs.json", "zebra.txt"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("ListKeys = %v, want %v", keys, want)
	}
}

func TestS3Service_PaginatedVersionListing(t *testing.T) {
	fake := newFakeS3()
	fake.pageSize = 2
	svc := NewS3ServiceWithClient(fake, "bucket", "artifacts")
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := svc.Save(ctx, "app", "alice", "s1", "log.txt", llm.TextPart("x")); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	versions, err := svc.ListVersions(ctx, "app", "alice", "s1", "log.txt")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	want := []int{0, 1, 2, 3, 4, 5, 6}
	if !reflect.DeepEqual(versions, want) {
		t.Fatalf("ListVersions = %v, want %v", versions, want)
	}
}

func TestS3Service_DeleteRemovesAllVersions(t *testing.T) {
	fake := newFakeS3()
	svc := NewS3ServiceWithClient(fake, "bucket", "artifacts")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Save(ctx, "app", "alice", "s1", "doomed.txt", llm.TextPart("x")); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := svc.Delete(ctx, "app", "alice", "s1", "doomed.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.objects) != 0 {
		t.Fatalf("objects remain after delete: %v", fake.objects)
	}
}

func TestS3Service_UserNamespace(t *testing.T) {
	fake := newFakeS3()
	svc := NewS3ServiceWithClient(fake, "bucket", "")
	ctx := context.Background()

	if _, err := svc.Save(ctx, "app", "alice", "s1", "user:prefs.json", llm.TextPart("{}")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := fake.objects["app/alice/user/user:prefs.json/0"]; !ok {
		t.Fatalf("expected user-scoped key, have %v", fake.objects)
	}

	got, err := svc.Load(ctx, "app", "alice", "s2", "user:prefs.json", nil)
	if err != nil {
		t.Fatalf("Load from other session: %v", err)
	}
	if got == nil || got.Text != "{}" {
		t.Fatalf("Load = %+v", got)
	}
}
