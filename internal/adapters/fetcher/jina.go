// Package fetcher busca o texto de páginas de vagas através de um leitor (Jina Reader).
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

const (
	DefaultReaderURL = "https://r.jina.ai"

	minContentLength = 200
	maxBodyBytes     = 2 << 20
)

var protectedKeywords = []string{
	"sign in", "signin", "login", "log in",
	"join now", "joinnow", "register",
	"verify you are human", "security check",
	"access denied", "please log in", "authentication required",
	"linkedin", "indeed", "glassdoor",
	"recaptcha", "captcha", "human verification",
	"blocked", "restricted", "unauthorized",
}

// FetchError é retornado quando o leitor responde com status inesperado.
type FetchError struct {
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("reader failed with status: %d", e.StatusCode)
}

type Config struct {
	ReaderURL string
	APIKey    string
	Timeout   time.Duration
}

type Client struct {
	readerURL  string
	apiKey     string
	httpClient *http.Client
}

var _ ports.ContentFetcher = (*Client)(nil)

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	readerURL := strings.TrimRight(strings.TrimSpace(cfg.ReaderURL), "/")
	if readerURL == "" {
		readerURL = DefaultReaderURL
	}
	return &Client{
		readerURL:  readerURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
	}
}

func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.readerURL+"/"+strings.TrimSpace(url), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	content := string(body)

	if IsProtected(resp.StatusCode, content) {
		log.WithField("status", resp.StatusCode).Info("fetcher: protected content detected")
		return "", domain.ErrProtectedURL
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{StatusCode: resp.StatusCode}
	}
	return content, nil
}

// IsProtected detecta páginas de login, bloqueio ou captcha no lugar do anúncio.
func IsProtected(status int, content string) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	if len(content) < minContentLength {
		return true
	}

	lower := strings.ToLower(content)
	for _, keyword := range protectedKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
