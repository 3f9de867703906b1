package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// uploadField is the multipart form field the backend reads the video from.
const uploadField = "file"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload streams f to POST /upload/ as a multipart form. onProgress, when
// non-nil, receives integer percentages of the file bytes sent: 0 before
// the first byte, then non-decreasing values up to 100.
//
// The body is never buffered in full. Its length is computed up front so
// the request carries a Content-Length.
func (c *Client) Upload(ctx context.Context, f UploadFile, onProgress func(int)) (*UploadResponse, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("upload %s: no file source", f.Name)
	}
	head, tail, contentType, err := multipartFrame(f)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()

	var src io.ReadCloser
	defer func() {
		if src != nil {
			src.Close()
		}
	}()
	var progress *progressReader

	// A rejected bearer token gets one retry with a refreshed session and a
	// reopened file.
	for attempt := 1; ; attempt++ {
		if src != nil {
			src.Close()
		}
		src, err = f.Open()
		if err != nil {
			src = nil
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		if progress == nil {
			progress = newProgressReader(src, f.Size, onProgress)
		} else {
			progress.reset(src)
		}
		body := io.MultiReader(bytes.NewReader(head), progress, bytes.NewReader(tail))

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/", body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.ContentLength = int64(len(head)) + f.Size + int64(len(tail))
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		bearer, err := c.authorize(ctx, req)
		if err != nil {
			return nil, err
		}

		log.Debug().
			Str("filename", f.Name).
			Str("mimeType", f.MIMEType).
			Int64("size", f.Size).
			Int("attempt", attempt).
			Msg("Uploading file")

		resp, err := c.send(req, "/upload/")
		if err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
		if attempt == 1 && c.refreshAfter401(ctx, resp, bearer, "/upload/") {
			continue
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("upload: %w", c.errorFrom(resp, http.MethodPost, "/upload/"))
		}
		progress.finish()

		var out UploadResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("upload: decode response: %w", err)
		}
		if out.SessionID == "" {
			return nil, fmt.Errorf("upload: response missing session_id")
		}
		log.Info().Str("sessionId", out.SessionID).Str("filename", f.Name).Msg("Upload complete")
		return &out, nil
	}
}

// multipartFrame renders everything in the multipart body except the file
// bytes: the part header before them and the closing boundary after.
func multipartFrame(f UploadFile) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, uploadField, quoteEscaper.Replace(f.Name)))
	mimeType := f.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	if _, err := mw.CreatePart(h); err != nil {
		return nil, nil, "", err
	}
	head = append([]byte(nil), buf.Bytes()...)

	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, nil, "", err
	}
	tail = append([]byte(nil), buf.Bytes()...)
	return head, tail, mw.FormDataContentType(), nil
}

// progressReader reports the share of total bytes read as a percentage.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  int
	fn    func(int)
	once  sync.Once
}

func newProgressReader(r io.Reader, total int64, fn func(int)) *progressReader {
	p := &progressReader{r: r, total: total, last: -1, fn: fn}
	p.report(0)
	return p
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		p.report(pct)
	}
	if err == io.EOF {
		p.report(100)
	}
	return n, err
}

// reset restarts the count over a reopened source. Reported percentages
// never go backwards.
func (p *progressReader) reset(r io.Reader) {
	p.r = r
	p.read = 0
}

// finish reports 100 once the server has accepted the body.
func (p *progressReader) finish() {
	p.once.Do(func() { p.report(100) })
}

func (p *progressReader) report(pct int) {
	if p.fn == nil || pct <= p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}

// --- Downloads ---

// ExportKind selects one of the download endpoints.
type ExportKind string

const (
	ExportReport ExportKind = "report"
	ExportRaw    ExportKind = "raw"
)

// FileName returns the conventional local file name for an export.
func (k ExportKind) FileName(sessionID string) string {
	if k == ExportReport {
		return fmt.Sprintf("report-%s.pdf", sessionID)
	}
	return fmt.Sprintf("mentor-metrics-session-%s.json", sessionID)
}

// ParseExportKind validates a kind given on the command line.
func ParseExportKind(s string) (ExportKind, error) {
	switch ExportKind(s) {
	case ExportReport, ExportRaw:
		return ExportKind(s), nil
	}
	return "", fmt.Errorf("unknown export kind %q (expected report or raw)", s)
}

// DownloadReport streams the PDF report of a session into w.
func (c *Client) DownloadReport(ctx context.Context, sessionID string, w io.Writer) (int64, error) {
	return c.Download(ctx, ExportReport, sessionID, w)
}

// DownloadRaw streams the raw JSON export of a session into w.
func (c *Client) DownloadRaw(ctx context.Context, sessionID string, w io.Writer) (int64, error) {
	return c.Download(ctx, ExportRaw, sessionID, w)
}

// Download streams GET /download/{kind}/{id} into w and returns the number
// of bytes written.
func (c *Client) Download(ctx context.Context, kind ExportKind, sessionID string, w io.Writer) (int64, error) {
	path := fmt.Sprintf("/download/%s/%s", kind, url.PathEscape(sessionID))

	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return 0, fmt.Errorf("create request: %w", err)
		}
		bearer, err := c.authorize(ctx, req)
		if err != nil {
			return 0, err
		}

		resp, err := c.send(req, path)
		if err != nil {
			return 0, fmt.Errorf("download %s: %w", kind, err)
		}
		// Nothing has reached w yet, so a refreshed session can start over.
		if attempt == 1 && c.refreshAfter401(ctx, resp, bearer, path) {
			continue
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return 0, fmt.Errorf("download %s: %w", kind, c.errorFrom(resp, http.MethodGet, path))
		}

		n, err := io.Copy(w, resp.Body)
		if err != nil {
			return n, fmt.Errorf("download %s: copy body: %w", kind, err)
		}
		log.Debug().Str("sessionId", sessionID).Str("kind", string(kind)).Int64("bytes", n).Msg("Download complete")
		return n, nil
	}
}
