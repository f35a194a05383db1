// Package gateway uploads assembled documents to the external
// document-storage service.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
)

const (
	Extension   = "pdf"
	ContentType = "application/pdf"

	maxErrorBody = 4 << 10
)

var (
	ErrUnsupportedFormat = errors.New("only pdf files are supported")
	ErrEmptyBaseURL      = errors.New("gateway base url is empty")
	ErrNoPages           = errors.New("document has no pages")
)

// Metadata is returned to the client once the document is stored.
type Metadata struct {
	ID            *uuid.UUID `json:"id"`
	NumberOfPages int        `json:"numberOfPages"`
}

type uploadResponse struct {
	ID *uuid.UUID `json:"id"`
}

type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, uploadPath, token string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(uploadPath, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// CheckFileName requires the part after the last '.' to be "pdf" in any case.
func CheckFileName(fileName string) error {
	idx := strings.LastIndex(fileName, ".")
	if !strings.EqualFold(fileName[idx+1:], Extension) {
		return fault.New(fault.KindUnsupportedFormat, "upload", "%v: %q", ErrUnsupportedFormat, fileName)
	}
	return nil
}

// Upload sends doc as a multipart form and returns the assigned id with
// the page count read back from doc. No retries.
func (c *Client) Upload(ctx context.Context, doc []byte, fileName string) (*Metadata, error) {
	if err := CheckFileName(fileName); err != nil {
		return nil, err
	}

	pages, err := CountPages(doc)
	if err != nil {
		return nil, err
	}

	body, contentType, err := c.buildForm(doc, fileName)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, "upload", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	logger.InfoF("Upload file %s (%d bytes, %d pages) to %s", fileName, len(doc), pages, c.endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, "upload", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fault.New(fault.KindUpstream, "upload", "unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fault.Wrap(fault.KindUpstream, "upload", fmt.Errorf("decode response: %w", err))
	}

	return &Metadata{ID: decoded.ID, NumberOfPages: pages}, nil
}

func (c *Client) buildForm(doc []byte, fileName string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(fileName)))
	header.Set("Content-Type", ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(doc); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := writer.WriteField("token", c.token); err != nil {
		return nil, "", fmt.Errorf("write token field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// CountPages reopens doc and returns its page count.
func CountPages(doc []byte) (int, error) {
	parsed, err := fitz.NewFromMemory(doc)
	if err != nil {
		return 0, fault.Wrap(fault.KindDecode, "count pages", err)
	}
	defer func() { _ = parsed.Close() }()

	pages := parsed.NumPage()
	if pages <= 0 {
		return 0, fault.Wrap(fault.KindDecode, "count pages", ErrNoPages)
	}
	return pages, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
