package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectScheme(t *testing.T) {
	tests := []struct {
		location string
		want     Scheme
	}{
		{"-", SchemeStdio},
		{"data.csv", SchemeLocal},
		{"/tmp/data.csv", SchemeLocal},
		{"file:///tmp/data.csv", SchemeFile},
		{"http://example.com/data.csv", SchemeHTTP},
		{"HTTPS://example.com/data.csv", SchemeHTTPS},
		{"s3://bucket/key.csv", SchemeS3},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			if got := DetectScheme(tt.location); got != tt.want {
				t.Errorf("DetectScheme(%q) = %q, want %q", tt.location, got, tt.want)
			}
		})
	}
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		url        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{"s3://bucket/data.csv", "bucket", "data.csv", false},
		{"s3://bucket/nested/path/data.csv.gz", "bucket", "nested/path/data.csv.gz", false},
		{"s3://bucket", "", "", true},
		{"s3://bucket/", "", "", true},
		{"s3:///key", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			bucket, key, err := ParseS3URL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseS3URL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Errorf("ParseS3URL() = (%q, %q), want (%q, %q)", bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestOpenReaderHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/data.csv" {
			w.Write([]byte("a,b\n1,2\n"))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	rc, err := OpenReader(context.Background(), srv.URL+"/data.csv", Config{})
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "a,b\n1,2\n" {
		t.Errorf("body = %q", body)
	}

	if _, err := OpenReader(context.Background(), srv.URL+"/secret.csv", Config{}); err == nil {
		t.Error("OpenReader() expected error for non-200 status")
	}
}

func TestLocalRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.csv")

	for _, loc := range []string{path, "file://" + path} {
		w, err := OpenWriter(context.Background(), loc, Config{})
		if err != nil {
			t.Fatalf("OpenWriter(%q) error = %v", loc, err)
		}
		w.Write([]byte("x\n1\n"))
		if err := w.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		r, err := OpenReader(context.Background(), loc, Config{})
		if err != nil {
			t.Fatalf("OpenReader(%q) error = %v", loc, err)
		}
		got, _ := io.ReadAll(r)
		r.Close()
		if string(got) != "x\n1\n" {
			t.Errorf("read back %q", got)
		}
	}
}

func TestOpenWriterRejectsHTTP(t *testing.T) {
	if _, err := OpenWriter(context.Background(), "https://example.com/out.csv", Config{}); err == nil {
		t.Error("OpenWriter() expected error for HTTP location")
	}
}

func TestOpenWriterStdout(t *testing.T) {
	for _, loc := range []string{"", Stdio} {
		w, err := OpenWriter(context.Background(), loc, Config{})
		if err != nil {
			t.Fatalf("OpenWriter(%q) error = %v", loc, err)
		}
		if err := w.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}
	// stdout must still be usable after closing the wrapper
	if _, err := os.Stdout.Stat(); err != nil {
		t.Errorf("stdout closed: %v", err)
	}
}

func TestIsRemote(t *testing.T) {
	if IsRemote("data.csv") || IsRemote("-") {
		t.Error("local locations reported remote")
	}
	if !IsRemote("s3://b/k") || !IsRemote("http://h/x") {
		t.Error("remote locations reported local")
	}
}
