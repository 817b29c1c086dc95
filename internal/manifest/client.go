package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"mtsgrab/internal/logger"
)

// recordURLPatterns match the recording page URLs users copy from the
// browser. The first capture group is the event-session id, the optional
// second the record-file id.
var recordURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://my\.mts-link\.ru/(?:[^/]+/)?\d+/\d+/record-new/(\d+)(?:/record-file/(\d+))?$`),
	regexp.MustCompile(`^https://my\.mts-link\.ru/\d+/\d+/record-new/(\d+)(?:/record-file/(\d+))?$`),
}

// apiError is the in-body error envelope some endpoints return with HTTP 200.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://my.mts-link.ru"

// Client talks to the recording API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	log        logger.Logger
	userAgent  string
	baseURL    string
}

// NewClient creates a manifest API client.
func NewClient(log logger.Logger, timeout time.Duration, userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		userAgent:  userAgent,
		baseURL:    DefaultBaseURL,
	}
}

// SetBaseURL overrides the API host, for tests and proxies.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// ExtractIDs pulls the event-session id and optional record-file id out of a
// recording page URL. Returns an error when the URL does not match any known
// recording link format.
func ExtractIDs(pageURL string) (eventSession, recordFile string, err error) {
	for _, re := range recordURLPatterns {
		if m := re.FindStringSubmatch(pageURL); m != nil {
			return m[1], m[2], nil
		}
	}
	return "", "", fmt.Errorf("unrecognized recording URL format: %s", pageURL)
}

// APIPath builds the manifest endpoint path for the extracted ids.
func APIPath(eventSession, recordFile string) string {
	if recordFile != "" {
		return fmt.Sprintf("/api/event-sessions/%s/record-files/%s/flow?withoutCuts=false", eventSession, recordFile)
	}
	return fmt.Sprintf("/api/eventsessions/%s/record?withoutCuts=false", eventSession)
}

// FetchManifest retrieves the manifest for the given recording ids.
func (c *Client) FetchManifest(ctx context.Context, eventSession, recordFile, sessionID string) (*Manifest, error) {
	return c.Fetch(ctx, c.baseURL+APIPath(eventSession, recordFile), sessionID)
}

// Fetch retrieves and parses a manifest document. sessionID, when non-empty,
// is passed as the sessionId cookie for private recordings.
func (c *Client) Fetch(ctx context.Context, apiURL, sessionID string) (*Manifest, error) {
	c.log.Debugf("Fetching manifest from %s", apiURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Referer", "https://my.mts-link.ru/")
	req.Header.Set("Origin", "https://my.mts-link.ru")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "sessionId", Value: sessionID})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest from %s: %w", apiURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest request to %s returned status %d", apiURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest response: %w", err)
	}

	// Some endpoints report access failures inside a 200 body.
	var apiErr apiError
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Code == http.StatusForbidden {
		return nil, fmt.Errorf("access denied by API (code 403): a valid session id may be required")
	}

	m, err := Parse(data)
	if err != nil {
		return nil, err
	}

	c.log.Debugf("Fetched manifest %q: duration %.2fs, %d event log entries", m.Name, m.Duration, len(m.EventLogs))
	return m, nil
}
