package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
)

const (
	// DefaultPollInterval is the wait between result polls.
	DefaultPollInterval = 10 * time.Second
	// DefaultMaxPollAttempts bounds the polling loop (10 minutes at the
	// default interval).
	DefaultMaxPollAttempts = 60

	apiMode = "vlm"
)

// APIClient runs layout extraction against a remote HTTP service:
// request an upload URL, upload the chunk, poll until done, download
// the result archive and keep its layout JSON as the middle JSON.
type APIClient struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	outputDir       string
	pollInterval    time.Duration
	maxPollAttempts int
}

// APIConfig 提取服务客户端配置，零值字段取默认。
type APIConfig struct {
	BaseURL         string
	APIKey          string
	OutputDir       string
	HTTPClient      *http.Client
	PollInterval    time.Duration
	MaxPollAttempts int
}

// NewAPIClient creates a client for the extraction service.
func NewAPIClient(cfg APIConfig) *APIClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultMaxPollAttempts
	}
	return &APIClient{
		httpClient:      cfg.HTTPClient,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		outputDir:       cfg.OutputDir,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
	}
}

type applyRequest struct {
	ModelVersion string      `json:"model_version"`
	Files        []applyFile `json:"files"`
}

type applyFile struct {
	Name   string `json:"name"`
	DataID string `json:"data_id"`
}

type applyResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		BatchID  string   `json:"batch_id"`
		FileURLs []string `json:"file_urls"`
	} `json:"data"`
}

type pollResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ExtractResult []struct {
			State      string `json:"state"`
			FullZipURL string `json:"full_zip_url"`
			ErrMsg     string `json:"err_msg"`
			Progress   struct {
				ExtractedPages int `json:"extracted_pages"`
				TotalPages     int `json:"total_pages"`
			} `json:"extract_progress"`
		} `json:"extract_result"`
	} `json:"data"`
}

// Mode implements Engine. The HTTP service always parses with its
// vision model, so chunks processed here are vlm regardless of what a
// text probe would say.
func (c *APIClient) Mode() string {
	return apiMode
}

// Process implements Engine. An existing non-empty middle JSON short
// circuits the whole round trip.
func (c *APIClient) Process(ctx context.Context, chunkPath string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(chunkPath), filepath.Ext(chunkPath))
	middlePath := MiddleJSONPath(c.outputDir, stem, apiMode)

	if alreadyProcessed(middlePath) {
		logger.Info("middle JSON already exists, skipping extraction",
			logger.String("chunk", stem))
		return middlePath, nil
	}

	batchID, uploadURL, err := c.applyUploadURL(ctx, chunkPath, stem)
	if err != nil {
		return "", err
	}

	if err := c.upload(ctx, uploadURL, chunkPath); err != nil {
		return "", err
	}
	logger.Info("chunk uploaded, extraction running", logger.String("chunk", stem))

	zipURL, err := c.pollResult(ctx, batchID, stem)
	if err != nil {
		return "", err
	}

	return c.downloadMiddleJSON(ctx, zipURL, stem)
}

func (c *APIClient) applyUploadURL(ctx context.Context, chunkPath, stem string) (batchID, uploadURL string, err error) {
	payload := applyRequest{
		ModelVersion: apiMode,
		Files: []applyFile{{
			Name:   filepath.Base(chunkPath),
			DataID: fmt.Sprintf("%s_%d", stem, time.Now().Unix()),
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", block.NewPipeError(block.ErrExtractFailed, "failed to encode upload request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/file-urls/batch", bytes.NewReader(body))
	if err != nil {
		return "", "", block.NewPipeError(block.ErrExtractFailed, "failed to build upload request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", block.NewPipeError(block.ErrExtractFailed, "upload URL request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", block.NewPipeError(block.ErrExtractFailed,
			fmt.Sprintf("upload URL request returned status %d", resp.StatusCode), nil)
	}

	var applied applyResponse
	if err := json.NewDecoder(resp.Body).Decode(&applied); err != nil {
		return "", "", block.NewPipeError(block.ErrExtractFailed, "failed to parse upload URL response", err)
	}
	if applied.Code != 0 {
		return "", "", block.NewPipeErrorWithDetails(block.ErrExtractFailed,
			"upload URL request rejected", applied.Msg, nil)
	}
	if len(applied.Data.FileURLs) == 0 {
		return "", "", block.NewPipeError(block.ErrExtractFailed, "no upload URL returned", nil)
	}

	return applied.Data.BatchID, applied.Data.FileURLs[0], nil
}

func (c *APIClient) upload(ctx context.Context, uploadURL, chunkPath string) error {
	f, err := os.Open(chunkPath)
	if err != nil {
		return block.NewPipeError(block.ErrExtractFailed, "failed to open chunk for upload", err)
	}
	defer f.Close()

	// Content-Type 留空，部分对象存储会校验签名
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, f)
	if err != nil {
		return block.NewPipeError(block.ErrExtractFailed, "failed to build upload", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return block.NewPipeError(block.ErrExtractFailed, "chunk upload failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return block.NewPipeError(block.ErrExtractFailed,
			fmt.Sprintf("chunk upload returned status %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *APIClient) pollResult(ctx context.Context, batchID, stem string) (string, error) {
	pollURL := fmt.Sprintf("%s/extract-results/batch/%s", c.baseURL, batchID)

	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return "", block.NewPipeError(block.ErrExtractFailed, "failed to build poll request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			logger.Warn("poll request failed", logger.Err(err))
			continue
		}

		var polled pollResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&polled)
		resp.Body.Close()
		if decodeErr != nil || resp.StatusCode != http.StatusOK || polled.Code != 0 {
			continue
		}
		if len(polled.Data.ExtractResult) == 0 {
			continue
		}

		result := polled.Data.ExtractResult[0]
		switch result.State {
		case "done":
			if result.FullZipURL == "" {
				return "", block.NewPipeError(block.ErrExtractFailed,
					"extraction finished but returned no result archive", nil)
			}
			return result.FullZipURL, nil
		case "failed":
			return "", block.NewPipeErrorWithDetails(block.ErrExtractFailed,
				"extraction failed remotely", result.ErrMsg, nil)
		case "running":
			logger.Info("extraction progress",
				logger.String("chunk", stem),
				logger.Int("extracted", result.Progress.ExtractedPages),
				logger.Int("total", result.Progress.TotalPages))
		}
	}

	return "", block.NewPipeError(block.ErrExtractFailed, "extraction polling timed out", nil)
}

// downloadMiddleJSON fetches the result archive, unpacks it next to the
// middle JSON and keeps the archive's layout JSON under the
// {stem}_middle.json convention.
func (c *APIClient) downloadMiddleJSON(ctx context.Context, zipURL, stem string) (string, error) {
	targetDir := filepath.Join(c.outputDir, stem, apiMode)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", block.NewPipeError(block.ErrExtractFailed, "failed to create extraction output directory", err)
	}

	zipPath := filepath.Join(targetDir, stem+".zip")
	middlePath := filepath.Join(targetDir, stem+"_middle.json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, zipURL, nil)
	if err != nil {
		return "", block.NewPipeError(block.ErrExtractFailed, "failed to build archive request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", block.NewPipeError(block.ErrExtractFailed, "failed to download result archive", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", block.NewPipeError(block.ErrExtractFailed,
			fmt.Sprintf("archive download returned status %d", resp.StatusCode), nil)
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return "", block.NewPipeError(block.ErrExtractFailed, "failed to create archive file", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return "", block.NewPipeError(block.ErrExtractFailed, "failed to save result archive", err)
	}
	out.Close()

	if err := extractLayoutJSON(zipPath, middlePath); err != nil {
		return "", err
	}

	logger.Info("middle JSON saved", logger.String("path", middlePath))
	return middlePath, nil
}

// extractLayoutJSON pulls the first layout.json entry out of the
// archive and writes it to middlePath.
func extractLayoutJSON(zipPath, middlePath string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return block.NewPipeError(block.ErrExtractFailed, "failed to open result archive", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if filepath.Base(f.Name) != "layout.json" {
			continue
		}

		src, err := f.Open()
		if err != nil {
			return block.NewPipeError(block.ErrExtractFailed, "failed to read layout JSON from archive", err)
		}

		dst, err := os.Create(middlePath)
		if err != nil {
			src.Close()
			return block.NewPipeError(block.ErrExtractFailed, "failed to create middle JSON", err)
		}

		_, copyErr := io.Copy(dst, src)
		src.Close()
		dst.Close()
		if copyErr != nil {
			return block.NewPipeError(block.ErrExtractFailed, "failed to write middle JSON", copyErr)
		}
		return nil
	}

	return block.NewPipeError(block.ErrExtractFailed, "layout.json not found in result archive", nil)
}
