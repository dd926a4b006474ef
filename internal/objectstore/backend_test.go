package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"tides/internal/models"
)

// testBackendContract runs the behaviour every backend must share
func testBackendContract(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	if _, err := b.Get(ctx, "tides/missing.json"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing object, got %v", err)
	}
	if err := b.Delete(ctx, "tides/missing.json"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound deleting missing object, got %v", err)
	}

	body := []byte(`{"id":"tide_1","name":"Deep Work"}`)
	if err := b.Put(ctx, "tides/tide_1.json", body); err != nil {
		t.Fatalf("Failed to put object: %v", err)
	}

	got, err := b.Get(ctx, "tides/tide_1.json")
	if err != nil {
		t.Fatalf("Failed to get object: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("Expected %s, got %s", body, got)
	}

	// Overwrite
	updated := []byte(`{"id":"tide_1","name":"Shallow Work"}`)
	if err := b.Put(ctx, "tides/tide_1.json", updated); err != nil {
		t.Fatalf("Failed to overwrite object: %v", err)
	}
	got, _ = b.Get(ctx, "tides/tide_1.json")
	if string(got) != string(updated) {
		t.Errorf("Expected overwritten body %s, got %s", updated, got)
	}

	for _, key := range []string{"tides/tide_2.json", "tides/tide_3.json", "index/user-1.json"} {
		if err := b.Put(ctx, key, []byte(`{}`)); err != nil {
			t.Fatalf("Failed to put %s: %v", key, err)
		}
	}

	keys, err := b.List(ctx, "tides/")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	want := []string{"tides/tide_1.json", "tides/tide_2.json", "tides/tide_3.json"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}

	if err := b.Delete(ctx, "tides/tide_2.json"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := b.Get(ctx, "tides/tide_2.json"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected deleted object to be gone, got %v", err)
	}

	keys, _ = b.List(ctx, "index/")
	if len(keys) != 1 || keys[0] != "index/user-1.json" {
		t.Errorf("Expected only index/user-1.json, got %v", keys)
	}

	keys, _ = b.List(ctx, "nothing-here/")
	if len(keys) != 0 {
		t.Errorf("Expected empty listing, got %v", keys)
	}
}

func TestMemoryBackend_Contract(t *testing.T) {
	testBackendContract(t, NewMemoryBackend("test"))
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend("test")

	body := []byte("original")
	b.Put(ctx, "k", body)
	body[0] = 'X'

	got, _ := b.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("Put must copy the body, got %s", got)
	}

	got[0] = 'Y'
	again, _ := b.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("Get must return a copy, got %s", again)
	}
}

func TestSQLBackend_SQLiteContract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.db")

	b, err := Open(context.Background(), "sqlite://"+path)
	if err != nil {
		t.Fatalf("Failed to open sqlite backend: %v", err)
	}
	defer Close(context.Background(), b)

	testBackendContract(t, b)
}

func TestMongoBackend_Contract(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set, skipping MongoDB backend test")
	}

	b, err := Open(context.Background(), uri)
	if err != nil {
		t.Fatalf("Failed to open mongo backend: %v", err)
	}
	defer Close(context.Background(), b)

	mb := b.(*MongoBackend)
	mb.collection.Drop(context.Background())

	testBackendContract(t, b)
}

func TestRedisBackend_Contract(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set, skipping Redis backend test")
	}

	b, err := Open(context.Background(), url)
	if err != nil {
		t.Fatalf("Failed to open redis backend: %v", err)
	}
	defer Close(context.Background(), b)

	rb := b.(*RedisBackend)
	rb.keyPrefix = fmt.Sprintf("tides:test:%d:", os.Getpid())

	testBackendContract(t, b)
}

// fakeS3 is a minimal path-style S3 server
type fakeS3 struct {
	mu        sync.Mutex
	bucket    string
	objects   map[string][]byte
	pageSize  int
	failWith  int
	requests  int
	lastAuthz string
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: make(map[string][]byte), pageSize: 2}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests++
	f.lastAuthz = r.Header.Get("Authorization")

	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "<Error><Code>NoSuchBucket</Code></Error>")
		return
	}

	if key == "" && r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2" {
		f.list(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		body, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodGet {
			w.Write(body)
		}
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) list(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	start, _ := strconv.Atoi(r.URL.Query().Get("continuation-token"))

	keys := make([]string, 0)
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	end := start + f.pageSize
	truncated := end < len(keys)
	if !truncated {
		end = len(keys)
	}

	var b strings.Builder
	b.WriteString("<ListBucketResult>")
	for _, k := range keys[start:end] {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key></Contents>", k)
	}
	fmt.Fprintf(&b, "<IsTruncated>%t</IsTruncated>", truncated)
	if truncated {
		fmt.Fprintf(&b, "<NextContinuationToken>%d</NextContinuationToken>", end)
	}
	b.WriteString("</ListBucketResult>")
	io.WriteString(w, b.String())
}

func newTestS3Backend(t *testing.T, fake *fakeS3) *S3Backend {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	b, err := NewS3Backend(S3Config{
		Bucket:          fake.bucket,
		Region:          "us-east-1",
		Endpoint:        server.URL,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("Failed to create S3 backend: %v", err)
	}
	return b
}

func TestS3Backend_Contract(t *testing.T) {
	fake := newFakeS3("tides")
	b := newTestS3Backend(t, fake)

	testBackendContract(t, b)

	if !strings.HasPrefix(fake.lastAuthz, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/") {
		t.Errorf("Expected SigV4 authorization header, got %q", fake.lastAuthz)
	}
}

func TestS3Backend_ListPaginates(t *testing.T) {
	fake := newFakeS3("tides")
	b := newTestS3Backend(t, fake)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Put(ctx, fmt.Sprintf("tides/t%d.json", i), []byte("{}"))
	}

	keys, err := b.List(ctx, "tides/")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(keys) != 5 {
		t.Errorf("Expected 5 keys across pages, got %d: %v", len(keys), keys)
	}
}

func TestS3Backend_ServerErrorsAreUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		fake := newFakeS3("tides")
		fake.failWith = status
		b := newTestS3Backend(t, fake)

		_, err := b.Get(context.Background(), "tides/x.json")
		if !errors.Is(err, models.ErrStoreUnavailable) {
			t.Errorf("Status %d: expected ErrStoreUnavailable, got %v", status, err)
		}
		if errors.Is(err, models.ErrNotFound) {
			t.Errorf("Status %d must not be reported as not found", status)
		}
	}
}

func TestS3Backend_ForbiddenIsPermanent(t *testing.T) {
	fake := newFakeS3("tides")
	fake.failWith = http.StatusForbidden
	b := newTestS3Backend(t, fake)

	err := b.Put(context.Background(), "tides/x.json", []byte("{}"))
	if err == nil {
		t.Fatal("Expected error for 403")
	}
	if errors.Is(err, models.ErrStoreUnavailable) || errors.Is(err, models.ErrNotFound) {
		t.Errorf("403 should be a permanent error, got %v", err)
	}
}

func TestS3Backend_UnreachableIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	b, _ := NewS3Backend(S3Config{Bucket: "tides", Endpoint: endpoint})
	_, err := b.Get(context.Background(), "tides/x.json")
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable for unreachable endpoint, got %v", err)
	}
}

func TestCanonicalQuery(t *testing.T) {
	q := map[string][]string{
		"prefix":    {"tides/a b"},
		"list-type": {"2"},
	}
	got := canonicalQuery(q)
	want := "list-type=2&prefix=tides%2Fa%20b"
	if got != want {
		t.Errorf("canonicalQuery = %q, want %q", got, want)
	}
}

func TestOpen_Schemes(t *testing.T) {
	ctx := context.Background()

	b, err := Open(ctx, "memory://primary")
	if err != nil {
		t.Fatalf("Failed to open memory backend: %v", err)
	}
	if b.Name() != "memory:primary" {
		t.Errorf("Expected name memory:primary, got %s", b.Name())
	}

	b, err = Open(ctx, "s3://my-bucket?region=eu-west-1")
	if err != nil {
		t.Fatalf("Failed to open s3 backend: %v", err)
	}
	s3b := b.(*S3Backend)
	if s3b.cfg.Bucket != "my-bucket" || s3b.cfg.Region != "eu-west-1" {
		t.Errorf("Unexpected s3 config: %+v", s3b.cfg)
	}

	for _, bad := range []string{"no-scheme", "ftp://host/x"} {
		if _, err := Open(ctx, bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}
