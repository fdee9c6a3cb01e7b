// Package fetch downloads media referenced by inbound messages.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"

	"mediarelay/internal/domain"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 50 << 20
)

// DefaultAuthHosts receive basic auth when Config.AuthHosts is empty.
var DefaultAuthHosts = []string{"api.twilio.com"}

// botToken matches the /bot<id>:<secret>/ segment of Telegram file URLs.
var botToken = regexp.MustCompile(`^bot\d+:.+$`)

// Config configures a Fetcher.
type Config struct {
	Timeout  time.Duration
	MaxBytes int64
	Username string // optional basic auth, e.g. Twilio account SID
	Password string
	// AuthHosts lists the hosts, and their subdomains, that get basic auth.
	AuthHosts []string
	Client   *http.Client // optional; Timeout is applied per request
	Logger   *slog.Logger
}

// Fetcher performs one GET per media reference. It never retries.
type Fetcher struct {
	timeout  time.Duration
	maxBytes int64
	username  string
	password  string
	authHosts []string
	client   *http.Client
	logger   *slog.Logger
}

func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.AuthHosts) == 0 {
		cfg.AuthHosts = DefaultAuthHosts
	}
	return &Fetcher{
		timeout:   cfg.Timeout,
		maxBytes:  cfg.MaxBytes,
		username:  cfg.Username,
		password:  cfg.Password,
		authHosts: lo.Map(cfg.AuthHosts, func(h string, _ int) string { return strings.ToLower(strings.TrimSpace(h)) }),
		client:    cfg.Client,
		logger:    cfg.Logger.With(slog.String("component", "fetch")),
	}
}

// Fetch downloads rawURL. Non-2xx responses and transport failures are
// returned as *domain.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.FetchedResource, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.Validationf("URL de mídia inválida: %s", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	if f.username != "" && f.sendsAuth(u) {
		req.SetBasicAuth(f.username, f.password)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		// *url.Error repeats the full URL
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		f.logger.Warn("media download failed", "url", redact(u), "error", err)
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		f.logger.Warn("media download rejected", "url", redact(u), "status", resp.StatusCode)
		return nil, &domain.FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := ReadAllWithLimit(resp.Body, f.maxBytes)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}

	res := &domain.FetchedResource{
		Data:        data,
		ContentType: ResolveContentType(resp.Header.Get("Content-Type"), data),
		SourceURL:   rawURL,
		Filename:    baseName(u.Path),
	}
	f.logger.Debug("media downloaded",
		"url", redact(u),
		"bytes", len(data),
		"content_type", res.ContentType,
		"elapsed", time.Since(start),
	)
	return res, nil
}

// Resolve returns the bytes behind ref: inline data as-is, otherwise a download.
func (f *Fetcher) Resolve(ctx context.Context, ref domain.MediaReference) (*domain.FetchedResource, error) {
	if ref.HasInlineData() {
		return FromReference(ref), nil
	}
	if strings.TrimSpace(ref.SourceURL) == "" {
		return nil, domain.Validationf(`Campo "twilio_url" é obrigatório`)
	}
	res, err := f.Fetch(ctx, ref.SourceURL)
	if err != nil {
		return nil, err
	}
	if ref.ContentType != "" && res.ContentType == "application/octet-stream" {
		res.ContentType = ref.ContentType
	}
	return res, nil
}

// FromReference wraps inline bytes without any network call.
func FromReference(ref domain.MediaReference) *domain.FetchedResource {
	return &domain.FetchedResource{
		Data:        ref.Data,
		ContentType: ResolveContentType(ref.ContentType, ref.Data),
		SourceURL:   ref.SourceURL,
		Filename:    ref.Filename,
	}
}

// ResolveContentType prefers the declared type and sniffs the bytes otherwise.
func ResolveContentType(declared string, data []byte) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	return mimetype.Detect(data).String()
}

// ReadAllWithLimit reads r fully, failing once more than maxBytes arrive.
func ReadAllWithLimit(r io.Reader, maxBytes int64) ([]byte, error) {
	if r == nil {
		return nil, errors.New("reader is required")
	}
	limited := &io.LimitedReader{R: r, N: maxBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", domain.ErrMediaTooLarge, maxBytes)
	}
	return data, nil
}

func baseName(p string) string {
	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func (f *Fetcher) sendsAuth(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return lo.ContainsBy(f.authHosts, func(h string) bool {
		return host == h || strings.HasSuffix(host, "."+h)
	})
}

// redact drops credentials, the query string and bot tokens from logged URLs.
func redact(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	c.Fragment = ""
	segs := strings.Split(c.Path, "/")
	for i, s := range segs {
		if botToken.MatchString(s) {
			segs[i] = "bot***"
		}
	}
	c.Path = strings.Join(segs, "/")
	c.RawPath = ""
	return c.String()
}
