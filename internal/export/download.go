// Package export produces files from the agenda: iCalendar feeds, PDFs
// printed from the local agenda page, and PDFs downloaded from the
// registry backend.
package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"civcal/internal/api"
	appLog "civcal/internal/log"
)

const (
	DefaultCacheEntries = 16
	maxPDFBytes         = 32 << 20
)

var ErrNotPDF = errors.New("export: response is not a PDF document")

// Downloader fetches PDF documents with the user's bearer token. Results
// are cached by URL; the cache holds at most a fixed number of documents
// and evicts the oldest first.
type Downloader struct {
	http       *http.Client
	creds      api.Credentials
	maxEntries int

	mu    sync.Mutex
	cache map[string][]byte
	order []string

	jobs      chan job
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type job struct {
	ctx    context.Context
	url    string
	result chan<- result
}

type result struct {
	data []byte
	err  error
}

type DownloaderOption func(*Downloader)

func WithDownloadClient(h *http.Client) DownloaderOption {
	return func(d *Downloader) { d.http = h }
}

// WithCacheEntries bounds the cache. Zero or less disables caching.
func WithCacheEntries(n int) DownloaderOption {
	return func(d *Downloader) { d.maxEntries = n }
}

// WithWorker runs fetch and decode on a background goroutine instead of
// the caller's.
func WithWorker() DownloaderOption {
	return func(d *Downloader) { d.jobs = make(chan job) }
}

func NewDownloader(creds api.Credentials, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		http:       &http.Client{Timeout: 60 * time.Second},
		creds:      creds,
		maxEntries: DefaultCacheEntries,
		cache:      make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.jobs != nil {
		d.done = make(chan struct{})
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Downloader) worker() {
	defer d.wg.Done()
	for {
		select {
		case j := <-d.jobs:
			data, err := d.fetch(j.ctx, j.url)
			j.result <- result{data: data, err: err}
		case <-d.done:
			return
		}
	}
}

// Download fetches url and writes the document to dest.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	data, err := d.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(dest, data, 0o644); err != nil {
		return fmt.Errorf("export: save %s: %w", dest, err)
	}
	appLog.Info("pdf downloaded", "path", dest, "bytes", len(data))
	return nil
}

// Fetch returns the PDF bytes for url, from the cache when possible.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	if data, ok := d.cached(url); ok {
		appLog.Debug("pdf cache hit", "url", url)
		return data, nil
	}

	var (
		data []byte
		err  error
	)
	if d.jobs != nil {
		data, err = d.fetchOnWorker(ctx, url)
	} else {
		data, err = d.fetch(ctx, url)
	}
	if err != nil {
		return nil, err
	}

	d.store(url, data)
	return data, nil
}

func (d *Downloader) fetchOnWorker(ctx context.Context, url string) ([]byte, error) {
	ch := make(chan result, 1)
	select {
	case d.jobs <- job{ctx: ctx, url: url, result: ch}:
	case <-d.done:
		return d.fetch(ctx, url)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	token := ""
	if d.creds != nil {
		t, err := d.creds.Token()
		if err != nil {
			return nil, fmt.Errorf("export: read credential: %w", err)
		}
		token = strings.TrimSpace(t)
	}
	if token == "" {
		return nil, api.ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/pdf, application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, &api.FetchError{Message: "Impossible de télécharger le document", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, &api.FetchError{Status: resp.StatusCode, Message: "Impossible de télécharger le document", Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, api.ErrUnauthenticated
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &api.FetchError{Status: resp.StatusCode, Message: "Impossible de télécharger le document"}
	}

	return decodePDF(resp.Header.Get("Content-Type"), body)
}

// decodePDF accepts a raw PDF body or a JSON envelope carrying the
// document base64-encoded in "pdf", "data" or "file".
func decodePDF(contentType string, body []byte) ([]byte, error) {
	if strings.Contains(contentType, "json") || bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		var env struct {
			PDF  string `json:"pdf"`
			Data string `json:"data"`
			File string `json:"file"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, api.ErrMalformedResponse
		}
		enc := env.PDF
		if enc == "" {
			enc = env.Data
		}
		if enc == "" {
			enc = env.File
		}
		if i := strings.Index(enc, "base64,"); i >= 0 {
			enc = enc[i+len("base64,"):]
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(enc))
		if err != nil {
			return nil, api.ErrMalformedResponse
		}
		body = raw
	}
	if !bytes.HasPrefix(body, []byte("%PDF-")) {
		return nil, ErrNotPDF
	}
	return body, nil
}

func (d *Downloader) cached(url string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.cache[url]
	return data, ok
}

func (d *Downloader) store(url string, data []byte) {
	if d.maxEntries <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.cache[url]; ok {
		return
	}
	d.cache[url] = data
	d.order = append(d.order, url)
	for len(d.order) > d.maxEntries {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.cache, oldest)
	}
}

// CacheLen reports the number of cached documents.
func (d *Downloader) CacheLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cache)
}

// Close stops the worker, if any. Later fetches run on the caller.
func (d *Downloader) Close() {
	d.closeOnce.Do(func() {
		if d.done != nil {
			close(d.done)
			d.wg.Wait()
		}
	})
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
