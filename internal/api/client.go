// Package api uploads exported session files to the team's collector server.
package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	healthPath = "/healthcheck"
	uploadPath = "/api/v1/sessions/add"
)

// UploadMetadata describes the session an export belongs to.
type UploadMetadata struct {
	SessionID string
	FieldID   string
	RobotID   string
	Duration  time.Duration
	Throws    int
}

func (m UploadMetadata) fields() [][2]string {
	return [][2]string{
		{"sessionId", m.SessionID},
		{"fieldId", m.FieldID},
		{"robotId", m.RobotID},
		{"duration", strconv.FormatFloat(m.Duration.Seconds(), 'f', 3, 64)},
		{"throws", strconv.Itoa(m.Throws)},
	}
}

// Client talks to the collector.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the collector is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus("healthcheck", resp)
}

// Upload streams an exported session file as a multipart form.
func (c *Client) Upload(ctx context.Context, filePath string, meta UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	name := filepath.Base(filePath)
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(form, file, name, append([][2]string{
			{"secret", c.apiKey},
			{"filename", name},
		}, meta.fields()...)))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus("upload", resp)
}

// writeForm writes fields then the file part and closes the form.
func writeForm(form *multipart.Writer, file io.Reader, name string, fields [][2]string) error {
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return form.Close()
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("%s returned status %d: %s", op, resp.StatusCode, msg)
	}
	return fmt.Errorf("%s returned status %d", op, resp.StatusCode)
}
