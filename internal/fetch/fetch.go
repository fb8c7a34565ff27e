// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fetch provides frame fetchers for local files, HTTP and data
// URIs.
package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kortschak/flipbook/internal/animation"
)

// Fetcher fetches and decodes a single frame.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// Mux is a Fetcher that dispatches on the scheme of the requested URL.
// Requests with a scheme that has no registered Fetcher are passed to
// Default.
type Mux struct {
	Schemes map[string]Fetcher
	Default Fetcher
}

// NewMux returns a Mux handling http, https, file and data URLs. Paths
// with no scheme are treated as files relative to root.
func NewMux(root string, client *http.Client) *Mux {
	files := Files{Root: root}
	web := HTTP{Client: client}
	return &Mux{
		Schemes: map[string]Fetcher{
			"http":  web,
			"https": web,
			"file":  files,
			"data":  Data{},
		},
		Default: files,
	}
}

// Fetch implements the Fetcher interface.
func (m *Mux) Fetch(ctx context.Context, rawURL string) (image.Image, error) {
	scheme, _, ok := strings.Cut(rawURL, ":")
	if ok {
		f, ok := m.Schemes[strings.ToLower(scheme)]
		if ok {
			return f.Fetch(ctx, rawURL)
		}
	}
	if m.Default == nil {
		return nil, fmt.Errorf("no fetcher for %s", rawURL)
	}
	return m.Default.Fetch(ctx, rawURL)
}

// Files fetches frames from the local file system. Paths are opened
// relative to Root unless they are absolute. A leading "~/" is expanded
// to the user's home directory and a file: scheme is stripped.
type Files struct {
	Root string
}

// Fetch implements the Fetcher interface.
func (f Files) Fetch(ctx context.Context, path string) (image.Image, error) {
	if strings.HasPrefix(path, "file:") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("file: %w", err)
		}
		path = u.Path
	}
	path, ok := strings.CutPrefix(path, "~/")
	if ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("file: %w", err)
		}
		path = filepath.Join(home, path)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.Root, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	defer r.Close()
	img, err := animation.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// HTTP fetches frames over HTTP. If Client is nil, http.DefaultClient
// is used.
type HTTP struct {
	Client *http.Client
}

// StatusError is returned by HTTP.Fetch when the server responds with
// a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Fetch implements the Fetcher interface.
func (h HTTP) Fetch(ctx context.Context, url string) (image.Image, error) {
	cli := h.Client
	if cli == nil {
		cli = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	img, err := animation.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	return img, nil
}

// Data decodes frames held in base64 encoded data URIs of the form
//
//	data:image/<type>;base64,<data>
type Data struct{}

// Fetch implements the Fetcher interface.
func (Data) Fetch(_ context.Context, uri string) (image.Image, error) {
	mtyp, val, err := parseDataURI(uri)
	if err != nil {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	img, err := animation.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mtyp, err)
	}
	return img, nil
}

// ErrNotImage is returned for data URIs that do not hold image data.
var ErrNotImage = errors.New("not an image data uri")

func parseDataURI(uri string) (mtyp, val string, err error) {
	u, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", "", fmt.Errorf("invalid scheme: %s", uri)
	}
	mtyp, val, ok = strings.Cut(u, ",")
	if !ok {
		return "", "", fmt.Errorf("invalid data uri: %s", uri)
	}
	typ, _, ok := strings.Cut(mtyp, "/")
	if !ok {
		return "", "", fmt.Errorf("invalid data uri: %s", uri)
	}
	if typ != "image" {
		return "", "", fmt.Errorf("%w: %s", ErrNotImage, mtyp)
	}
	mtyp, enc, ok := cutLast(mtyp, ";")
	if !ok || enc != "base64" {
		return "", "", fmt.Errorf("invalid encoding in image uri: %s", uri)
	}
	mtyp, _, _ = strings.Cut(mtyp, ";")
	return mtyp, val, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
