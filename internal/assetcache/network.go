package assetcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrNetwork = errors.New("network failure")

// Network fetches a response for a GET request. 5xx answers and transport
// errors come back as ErrNetwork.
type Network interface {
	Fetch(ctx context.Context, r *http.Request) (Entry, error)
}

type handlerNetwork struct{ h http.Handler }

// FromHandler fetches from an in-process handler, such as the embedded asset server.
func FromHandler(h http.Handler) Network { return handlerNetwork{h: h} }

type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (w *recorder) Header() http.Header { return w.header }
func (w *recorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(b)
}
func (w *recorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (n handlerNetwork) Fetch(ctx context.Context, r *http.Request) (Entry, error) {
	rec := &recorder{header: http.Header{}}
	n.h.ServeHTTP(rec, r.Clone(ctx))
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return toEntry(rec.status, rec.header.Get("Content-Type"), rec.body.Bytes())
}

type originNetwork struct {
	client *http.Client
	base   string
}

// FromOrigin fetches from a remote asset origin.
func FromOrigin(client *http.Client, base string) Network {
	if client == nil {
		client = http.DefaultClient
	}
	return originNetwork{client: client, base: strings.TrimRight(base, "/")}
}

func (n originNetwork) Fetch(ctx context.Context, r *http.Request) (Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.base+r.URL.RequestURI(), nil)
	if err != nil {
		return Entry{}, err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return toEntry(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

func toEntry(status int, ct string, body []byte) (Entry, error) {
	if status >= 500 {
		return Entry{}, fmt.Errorf("%w: status %d", ErrNetwork, status)
	}
	return Entry{Status: status, ContentType: ct, Body: append([]byte(nil), body...)}, nil
}
