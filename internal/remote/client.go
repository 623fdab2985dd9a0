package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrMissingFileID is returned when a file was never uploaded
	ErrMissingFileID = errors.New("file has no remote file id")
	// ErrNoVerdict is returned when the backend has no result for a pair
	ErrNoVerdict = errors.New("remote backend returned no result for pair")
)

const (
	uploadPath = "/api/plagiarism/CodeUpload/batch/"
	queryPath  = "/api/plagiarism/query/fileresult/"
	checkPath  = "/api/plagiarism/check/"
)

// Client talks to the external comparison backend
type Client struct {
	baseURL    string
	apiKey     string
	uploader   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithUploader(name string) Option {
	return func(c *Client) { c.uploader = name }
}

// NewClient creates a client issuing at most rps requests per second
func NewClient(baseURL, apiKey string, rps float64, opts ...Option) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		uploader: "twinscan",
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: rate.NewLimiter(limit, max(1, int(rps))),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload sends the files in one batch and returns filename -> file id
func (c *Client) Upload(ctx context.Context, files []*models.SourceFile) (map[string]string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("uploader_id", "0"); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if err := mw.WriteField("uploader_name", c.uploader); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.WriteString(part, f.Raw); err != nil {
			return nil, fmt.Errorf("failed to write form file: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	var resp models.UploadResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+uploadPath, mw.FormDataContentType(), &body, &resp); err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(resp.Results))
	for _, r := range resp.Results {
		ids[r.Filename] = r.FileID
	}
	log.Debug().Int("files", len(files)).Int("ids", len(ids)).Msg("Uploaded files to remote backend")
	return ids, nil
}

// QueryResult asks for the verdict of one pair
func (c *Client) QueryResult(ctx context.Context, mainID, subID string) (*models.PairVerdict, error) {
	query := models.ResultQuery{FileIDList: []models.FilePair{{MainFileID: mainID, SubFileID: subID}}}
	reqBody, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp models.ResultQueryResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+queryPath, "application/json", bytes.NewReader(reqBody), &resp); err != nil {
		return nil, err
	}
	if !resp.Success || len(resp.Results) == 0 {
		return nil, ErrNoVerdict
	}
	return &resp.Results[0], nil
}

// SubmitCheck starts a comparison task on the backend
func (c *Client) SubmitCheck(ctx context.Context, taskName string, mode int, fileIDs []string) error {
	payload := map[string]any{
		"user_name": c.uploader,
		"task_name": taskName,
		"mode":      mode,
	}
	if len(fileIDs) > 0 {
		payload["file_id_list"] = fileIDs
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+checkPath, "application/json", bytes.NewReader(reqBody), nil)
}

// FetchReport downloads a report page
func (c *Client) FetchReport(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	if err := c.do(ctx, http.MethodGet, url, "", nil, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// Compare returns the backend similarity of a pair
func (c *Client) Compare(ctx context.Context, a, b *models.SourceFile) (float64, error) {
	verdict, err := c.verdict(ctx, a, b)
	if err != nil {
		return 0, err
	}
	if verdict.Similarity == nil {
		return 0, ErrNoVerdict
	}
	score := *verdict.Similarity
	// some deployments report percentages
	if score > 1 && score <= 100 {
		score /= 100
	}
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("remote similarity %v out of range", *verdict.Similarity)
	}
	return score, nil
}

// BuildReport fetches the backend's report page for a pair
func (c *Client) BuildReport(ctx context.Context, a, b *models.SourceFile) ([]byte, error) {
	verdict, err := c.verdict(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if verdict.ResultURL == "" {
		return nil, fmt.Errorf("%w: no result_url", ErrNoVerdict)
	}
	return c.FetchReport(ctx, verdict.ResultURL)
}

func (c *Client) verdict(ctx context.Context, a, b *models.SourceFile) (*models.PairVerdict, error) {
	if a.ExternalID == "" || b.ExternalID == "" {
		return nil, fmt.Errorf("%w: %s or %s", ErrMissingFileID, a.Name, b.Name)
	}
	return c.QueryResult(ctx, a.ExternalID, b.ExternalID)
}

// do executes a request and decodes the JSON response into out. A *[]byte
// out receives the raw body.
func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusUnsupportedMediaType ||
		resp.StatusCode == http.StatusUnprocessableEntity {
		var errResp models.RemoteError
		if err := json.Unmarshal(respBody, &errResp); err != nil || errResp.Error == "" {
			return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("API error: %s - %s", errResp.Error, errResp.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, truncate(respBody))
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*dst = respBody
		return nil
	default:
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return nil
	}
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "... (" + strconv.Itoa(len(body)) + " bytes)"
}
