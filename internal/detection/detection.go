package detection

import (
	"context"
	"fmt"
)

// APIName identifies the detection service in log lines.
const APIName = "Face Detect"

// Result is the payload of a successful detection call.
type Result struct {
	OriginalImage string   `json:"originalImage"`
	Faces         []string `json:"faces"`
}

// Client exposes the detection call used by the annotation flow.
type Client interface {
	Detect(ctx context.Context, imagePath string) (*Result, error)
}

// StatusError reports a non-2xx answer from the detection endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("Error from %s: %d %s", APIName, e.StatusCode, e.Body)
}
