package onedrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/stonefire/cloudsync/internal/chunk"
	"github.com/stonefire/cloudsync/internal/syncerr"
	"github.com/stonefire/cloudsync/internal/version"
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
	DefaultTimeout = 30 * time.Second

	rootDeltaPath = "/me/drive/root/delta"
	contentPath   = "/me/drive/items/%s/content"
)

// ErrDeltaExpired is returned when the service no longer honours a saved delta link.
var ErrDeltaExpired = errors.New("onedrive: delta link expired, resync required")

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the Graph drive API. It does not follow redirects: the
// content endpoint answers with a 302 whose Location is the download locator.
type Client struct {
	client  *req.Client
	baseURL string
}

func New(cfg *Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := req.C().
		SetTimeout(timeout).
		SetUserAgent(version.UserAgent()).
		SetRedirectPolicy(func(r *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	return &Client{
		client:  client,
		baseURL: baseURL,
	}
}

// RootDeltaURL is the delta feed entry point that enumerates the whole drive.
func (c *Client) RootDeltaURL() string {
	return c.baseURL + rootDeltaPath
}

// DeltaPage fetches one page of the delta feed. pageURL is either RootDeltaURL,
// a next link or a saved delta link.
func (c *Client) DeltaPage(ctx context.Context, token, pageURL string) (*DeltaPage, error) {
	var page DeltaPage
	var apiErr graphError

	resp, err := c.client.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetSuccessResult(&page).
		SetErrorResult(&apiErr).
		Get(pageURL)
	if err != nil {
		// a body that fails to decode still carries the 2xx response
		if resp != nil && resp.Response != nil && resp.IsSuccessState() {
			return nil, syncerr.Protocol("DeltaPage", "", err)
		}
		return nil, syncerr.Network("DeltaPage", "", err)
	}

	if resp.StatusCode == http.StatusGone || apiErr.Error.Code == "resyncRequired" {
		return nil, syncerr.Protocol("DeltaPage", "", fmt.Errorf("%w: %s", ErrDeltaExpired, apiErr.Error.Message))
	}
	if !resp.IsSuccessState() {
		return nil, syncerr.Network("DeltaPage", "", statusError(resp, &apiErr))
	}

	return &page, nil
}

// DownloadLocator resolves the short-lived pre-authenticated URL for an item's content.
func (c *Client) DownloadLocator(ctx context.Context, token, itemID string) (string, error) {
	var apiErr graphError

	resp, err := c.client.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetErrorResult(&apiErr).
		Get(c.baseURL + fmt.Sprintf(contentPath, url.PathEscape(itemID)))
	if err != nil {
		return "", syncerr.Network("DownloadLocator", itemID, err)
	}

	switch resp.StatusCode {
	case http.StatusFound, http.StatusMovedPermanently, http.StatusSeeOther, http.StatusTemporaryRedirect:
		location := resp.Header.Get("Location")
		if location == "" {
			return "", syncerr.Protocol("DownloadLocator", itemID, errors.New("redirect without location"))
		}
		return location, nil
	}

	if resp.IsSuccessState() {
		return "", syncerr.Protocol("DownloadLocator", itemID, fmt.Errorf("expected redirect, got status %d", resp.StatusCode))
	}
	return "", syncerr.Network("DownloadLocator", itemID, statusError(resp, &apiErr))
}

// ReadRange reads the inclusive byte range r from a download locator.
// The response must be 206 with exactly r.Len() bytes; a server that ignores
// the Range header is caught before its body is read.
func (c *Client) ReadRange(ctx context.Context, locator string, r chunk.Range) ([]byte, error) {
	resp, err := c.client.R().
		DisableAutoReadResponse().
		SetContext(ctx).
		SetHeader("Range", r.Header()).
		Get(locator)
	if err != nil {
		return nil, syncerr.Network("ReadRange", r.Header(), err)
	}
	defer resp.Body.Close()

	if !resp.IsSuccessState() {
		return nil, syncerr.Network("ReadRange", r.Header(), fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusPartialContent {
		return nil, syncerr.Protocol("ReadRange", r.Header(), fmt.Errorf("range not honoured: status %d", resp.StatusCode))
	}
	if resp.ContentLength >= 0 && resp.ContentLength != r.Len() {
		return nil, syncerr.Integrity("ReadRange", r.Header(), fmt.Errorf("content length %d, expected %d", resp.ContentLength, r.Len()))
	}

	// one extra byte so an overlong body still fails the caller's length check
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.Len()+1))
	if err != nil {
		return nil, syncerr.Network("ReadRange", r.Header(), err)
	}
	return data, nil
}

// ReadAll reads the full content behind a download locator.
func (c *Client) ReadAll(ctx context.Context, locator string) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(locator)
	if err != nil {
		return nil, syncerr.Network("ReadAll", "", err)
	}
	if !resp.IsSuccessState() {
		return nil, syncerr.Network("ReadAll", "", fmt.Errorf("status %d", resp.StatusCode))
	}
	return resp.Bytes(), nil
}

func statusError(resp *req.Response, apiErr *graphError) error {
	if apiErr.Error.Code != "" {
		return fmt.Errorf("status %d: %s: %s", resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}
