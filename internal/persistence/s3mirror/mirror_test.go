package s3mirror

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	fails int
}

func (f *fakeUploader) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("transient")
	}
	f.keys = append(f.keys, key)
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeFile(t *testing.T, p string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte("snap"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestMirrorUploadsRelativeKeys(t *testing.T) {
	dataDir := t.TempDir()
	local := filepath.Join(dataDir, "ranch", "snapshots", "32.snap.zst")
	writeFile(t, local)
	outside := filepath.Join(t.TempDir(), "x.snap.zst")
	writeFile(t, outside)

	up := &fakeUploader{fails: 1}
	m := NewMirror(up, dataDir, "/backups/", 1, quietLogger())
	m.backoff = 0
	m.Enqueue(local)
	m.Enqueue(outside)
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "backups/ranch/snapshots/32.snap.zst" {
		t.Fatalf("keys = %v", up.keys)
	}
	st := m.Stats()
	if st.UploadSuccessTotal != 1 || st.UploadFailTotal != 0 || st.EnqueuedTotal != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestMirrorCountsFailures(t *testing.T) {
	dataDir := t.TempDir()
	local := filepath.Join(dataDir, "a.snap.zst")
	writeFile(t, local)

	up := &fakeUploader{fails: 10}
	m := NewMirror(up, dataDir, "", 1, quietLogger())
	m.backoff = 0
	m.Enqueue(local)
	m.Close()
	if st := m.Stats(); st.UploadFailTotal != 1 || st.LastErrorUnix == 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestNilMirrorIsNoop(t *testing.T) {
	var m *Mirror
	m.Enqueue("x")
	m.Close()
	if m.Stats() != (Stats{}) {
		t.Fatalf("nil mirror stats")
	}
}

func TestNormalizeObjectKey(t *testing.T) {
	cases := map[string]string{
		"a/b":         "a/b",
		"/a//b/":      "a/b",
		`a\b`:         "a/b",
		"../x":        "x",
		"":            "",
		"  ":          "",
		"a/../../b/c": "b/c",
	}
	for in, want := range cases {
		if got := normalizeObjectKey(in); got != want {
			t.Fatalf("normalizeObjectKey(%q) = %q, want %q", in, got, want)
		}
	}
}

type recordingTransport struct {
	mu      sync.Mutex
	methods []string
	paths   []string
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.methods = append(rt.methods, req.Method)
	rt.paths = append(rt.paths, req.URL.Path)
	rt.mu.Unlock()
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
		_ = req.Body.Close()
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Etag": []string{`"x"`}},
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

func TestClientPutFile(t *testing.T) {
	rt := &recordingTransport{}
	c, err := New(context.Background(), Config{
		Bucket:          "ranch-backups",
		Endpoint:        "https://mock.s3.local",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	local := filepath.Join(t.TempDir(), "64.snap.zst")
	writeFile(t, local)
	if err := c.PutFile(context.Background(), "/ranch/snapshots/64.snap.zst", local); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if len(rt.paths) != 1 || rt.methods[0] != http.MethodPut || rt.paths[0] != "/ranch-backups/ranch/snapshots/64.snap.zst" {
		t.Fatalf("requests = %v %v", rt.methods, rt.paths)
	}

	if err := c.PutFile(context.Background(), "", local); err == nil {
		t.Fatalf("expected empty key error")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("RANCH_S3_BUCKET", "")
	if _, ok := ConfigFromEnv(); ok {
		t.Fatalf("mirror should be disabled without a bucket")
	}
	t.Setenv("RANCH_S3_BUCKET", "b")
	t.Setenv("RANCH_S3_PATH_STYLE", "TRUE")
	t.Setenv("RANCH_S3_PREFIX", "p")
	cfg, ok := ConfigFromEnv()
	if !ok || cfg.Bucket != "b" || !cfg.PathStyle || cfg.Prefix != "p" {
		t.Fatalf("cfg = %+v", cfg)
	}
}
