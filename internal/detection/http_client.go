package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/example/face-detect/internal/logging"
)

var errMissingOriginalImage = errors.New("response has no originalImage")

// HTTPClient calls the hosted detection endpoint with a single GET per image.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPClient returns a client for endpoint. A nil httpClient uses http.DefaultClient.
func NewHTTPClient(endpoint string, httpClient *http.Client, logger *zap.Logger) (*HTTPClient, error) {
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse detection endpoint: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{endpoint: endpoint, client: httpClient, logger: logger.Named("detection")}, nil
}

// Detect asks the endpoint for the faces found in the image at imagePath.
// Any non-2xx answer is logged and returned as *StatusError. A 2xx answer
// without an original image counts as a failure. No retry is made.
func (c *HTTPClient) Detect(ctx context.Context, imagePath string) (*Result, error) {
	reqURL, err := c.requestURL(imagePath)
	if err != nil {
		return nil, logging.NewOperationError(ctx, "detection.build_request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, logging.NewOperationError(ctx, "detection.build_request", "", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.client.Do(req)
	if err != nil {
		wrapped := logging.NewOperationError(ctx, "detection.fetch", "", err)
		logging.WithOperation(ctx, c.logger, "detection.fetch", "").Error("detection request failed", zap.Error(wrapped), zap.String("image_path", imagePath))
		return nil, wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		opLogger := logging.WithOperation(ctx, c.logger, "detection.status", "")
		body, readErr := io.ReadAll(resp.Body)
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if readErr != nil {
			opLogger.Warn("failed to read error response body", zap.Error(readErr))
			statusErr.Body = fmt.Sprintf("%s(body unreadable: %v)", statusErr.Body, readErr)
		}
		opLogger.Error(statusErr.Error(),
			zap.String("api", APIName),
			zap.Int("status", resp.StatusCode),
			zap.String("body", statusErr.Body),
		)
		return nil, statusErr
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		wrapped := logging.NewOperationError(ctx, "detection.decode", "", fmt.Errorf("decode response: %w", err))
		logging.WithOperation(ctx, c.logger, "detection.decode", "").Error("detection response unreadable", zap.Error(wrapped))
		return nil, wrapped
	}
	if result.OriginalImage == "" {
		wrapped := logging.NewOperationError(ctx, "detection.decode", "", errMissingOriginalImage)
		logging.WithOperation(ctx, c.logger, "detection.decode", "").Error("detection response incomplete", zap.Error(wrapped))
		return nil, wrapped
	}
	if result.Faces == nil {
		result.Faces = []string{}
	}
	return &result, nil
}

func (c *HTTPClient) requestURL(imagePath string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	query := u.Query()
	query.Set("imagePath", imagePath)
	u.RawQuery = query.Encode()
	return u.String(), nil
}
