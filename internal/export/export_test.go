package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/fpang/mentor-metrics-cli/internal/api"
)

type fakeDownloader struct {
	body []byte
	err  error
	kind api.ExportKind
	id   string
}

func (f *fakeDownloader) Download(ctx context.Context, kind api.ExportKind, sessionID string, w io.Writer) (int64, error) {
	f.kind, f.id = kind, sessionID
	if f.err != nil {
		w.Write([]byte("partial"))
		return 7, f.err
	}
	n, err := w.Write(f.body)
	return int64(n), err
}

func TestTarget(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		kind api.ExportKind
		opts Options
		want string
	}{
		{"default report", api.ExportReport, Options{}, "report-s1.pdf"},
		{"default raw compressed", api.ExportRaw, Options{Compress: true}, "mentor-metrics-session-s1.json.zst"},
		{"directory", api.ExportReport, Options{OutPath: dir}, filepath.Join(dir, "report-s1.pdf")},
		{"explicit file", api.ExportRaw, Options{OutPath: "out.json", Compress: true}, "out.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Target(tt.kind, "s1", tt.opts); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSave_Plain(t *testing.T) {
	dir := t.TempDir()
	d := &fakeDownloader{body: []byte("%PDF-1.7 report")}

	f, err := Save(context.Background(), d, api.ExportReport, "s1", Options{OutPath: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.kind != api.ExportReport || d.id != "s1" {
		t.Errorf("unexpected download call: %s %s", d.kind, d.id)
	}
	if f.ContentType != "application/pdf" || f.ContentEncoding != "" {
		t.Errorf("unexpected content headers: %+v", f)
	}
	got, _ := os.ReadFile(f.Path)
	if string(got) != "%PDF-1.7 report" {
		t.Errorf("unexpected file content %q", got)
	}
}

func TestSave_Compressed(t *testing.T) {
	dir := t.TempDir()
	body := bytes.Repeat([]byte(`{"segment":"hello class"}`), 200)
	d := &fakeDownloader{body: body}

	f, err := Save(context.Background(), d, api.ExportRaw, "s2", Options{OutPath: dir, Compress: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(f.Path) != "mentor-metrics-session-s2.json.zst" {
		t.Errorf("unexpected path %s", f.Path)
	}
	if f.ContentEncoding != "zstd" || f.Bytes != int64(len(body)) {
		t.Errorf("unexpected file info: %+v", f)
	}

	raw, err := os.Open(f.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()
	dec, err := zstd.NewReader(raw)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	got, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Error("round-tripped content differs")
	}
}

func TestSave_FailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	want := errors.New("connection reset")
	_, err := Save(context.Background(), &fakeDownloader{err: want}, api.ExportReport, "s3", Options{OutPath: dir})
	if !errors.Is(err, want) {
		t.Fatalf("expected download error, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty directory, found %d entries", len(entries))
	}
}
