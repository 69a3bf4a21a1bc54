// Package detect annotates frames with results from an object-detection service.
package detect

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Detection is one object found in a frame. Box is x1, y1, x2, y2 in pixels
// of the submitted image.
type Detection struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

type detectResponse struct {
	Model       string      `json:"model"`
	InferenceMS float64     `json:"inference_ms"`
	Detections  []Detection `json:"detections"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// ClientConfig points at the detection service.
type ClientConfig struct {
	BaseURL       string
	Timeout       time.Duration
	MinConfidence float64 // server-side threshold, sent as ?conf=
	APIKey        string
}

// Client calls POST {BaseURL}/detect with a JPEG body.
type Client struct {
	http *resty.Client
	conf string
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("detector base url is required")
	}
	r := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if cfg.APIKey != "" {
		r.SetAuthToken(cfg.APIKey)
	}
	return &Client{
		http: r,
		conf: strconv.FormatFloat(cfg.MinConfidence, 'f', 2, 64),
	}, nil
}

// Detect submits one JPEG image and returns what the model found.
func (c *Client) Detect(ctx context.Context, jpeg []byte) ([]Detection, error) {
	var (
		out  detectResponse
		fail errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "image/jpeg").
		SetQueryParam("conf", c.conf).
		SetBody(jpeg).
		SetResult(&out).
		SetError(&fail).
		Post("/detect")
	if err != nil {
		return nil, fmt.Errorf("detect request: %w", err)
	}
	if resp.IsError() {
		msg := fail.Message
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("detect: status %d: %s", resp.StatusCode(), msg)
	}
	return out.Detections, nil
}
