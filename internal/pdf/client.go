// Package pdf calls the external HTML-to-PDF rendering service.
package pdf

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"car-report/internal/apperr"

	"github.com/go-resty/resty/v2"
)

type generateRequest struct {
	HTMLContent string `json:"htmlContent"`
}

type generateResponse struct {
	Success   bool   `json:"success"`
	PDFBase64 string `json:"pdfBase64"`
	Error     string `json:"error"`
}

type Client struct {
	http *resty.Client
	url  string
}

func NewClient(serviceURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= 500
			}),
		url: serviceURL,
	}
}

// Generate renders html to PDF bytes.
func (c *Client) Generate(ctx context.Context, html string) ([]byte, error) {
	if html == "" {
		return nil, apperr.Validation("no HTML content provided", nil)
	}

	var out generateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(generateRequest{HTMLContent: html}).
		SetResult(&out).
		SetError(&out).
		Post(c.url)
	if err != nil {
		return nil, apperr.API("pdf service request failed", err)
	}
	if resp.IsError() || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = resp.Status()
		}
		return nil, apperr.API(fmt.Sprintf("pdf service returned %d: %s", resp.StatusCode(), msg), nil)
	}

	pdf, err := base64.StdEncoding.DecodeString(out.PDFBase64)
	if err != nil {
		return nil, apperr.Decode("pdf service returned invalid base64", err)
	}
	if len(pdf) == 0 {
		return nil, apperr.API("pdf service returned an empty document", nil)
	}
	return pdf, nil
}
