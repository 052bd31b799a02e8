package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Remote calls an embedding service over HTTP. Unlike the classifier there is
// no meaningful local fallback at a different dimension, so failures surface
// as errors and degrade the evidence branch.
type Remote struct {
	url    string
	dim    int
	client *http.Client
}

func NewRemote(url string, dim int, timeout time.Duration) *Remote {
	return &Remote{
		url:    url,
		dim:    dim,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *Remote) Dimension() int {
	return r.dim
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Vector []float32 `json:"vector"`
}

func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encoding embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embedder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder returned status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if len(out.Vector) != r.dim {
		return nil, fmt.Errorf("embedder returned %d dimensions, want %d", len(out.Vector), r.dim)
	}
	return out.Vector, nil
}
