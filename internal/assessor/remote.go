package assessor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Remote calls a served classifier over HTTP. When the model endpoint is
// unreachable or answers garbage, the heuristic scorer takes over so the
// structured branch keeps producing assessments.
type Remote struct {
	url      string
	client   *http.Client
	fallback *Heuristic
	logger   *slog.Logger
}

func NewRemote(url string, timeout time.Duration, logger *slog.Logger) *Remote {
	return &Remote{
		url:      url,
		client:   &http.Client{Timeout: timeout},
		fallback: NewHeuristic(),
		logger:   logger,
	}
}

type remoteRequest struct {
	Features map[string]float64 `json:"features"`
}

type remoteResponse struct {
	RiskScore  float64 `json:"risk_score"`
	RiskLevel  string  `json:"risk_level"`
	Prediction string  `json:"prediction"`
	ModelUsed  string  `json:"model_used"`
}

// Assess posts the feature map to the model endpoint.
func (r *Remote) Assess(ctx context.Context, f map[string]float64) (*domain.StructuredAssessment, error) {
	assessment, err := r.call(ctx, f)
	if err != nil {
		r.logger.Warn("remote classifier unavailable, using heuristic fallback", "error", err)
		return r.fallback.Assess(ctx, f)
	}
	return assessment, nil
}

func (r *Remote) call(ctx context.Context, f map[string]float64) (*domain.StructuredAssessment, error) {
	body, err := json.Marshal(remoteRequest{Features: f})
	if err != nil {
		return nil, fmt.Errorf("encoding features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding classifier response: %w", err)
	}
	if out.RiskScore < 0 || out.RiskScore > 1 {
		return nil, fmt.Errorf("classifier risk_score %v out of range", out.RiskScore)
	}

	assessment := &domain.StructuredAssessment{
		RiskScore: out.RiskScore,
		RiskLevel: domain.RiskLevel(out.RiskLevel),
		ModelUsed: out.ModelUsed,
	}
	if assessment.RiskLevel == "" {
		assessment.RiskLevel = riskLevel(out.RiskScore)
	}
	switch out.Prediction {
	case string(domain.PredictAccept):
		assessment.Prediction = domain.PredictAccept
	case string(domain.PredictReject):
		assessment.Prediction = domain.PredictReject
	case "":
		assessment.Prediction = domain.PredictAccept
		if out.RiskScore > rejectThreshold {
			assessment.Prediction = domain.PredictReject
		}
	default:
		return nil, fmt.Errorf("classifier returned unknown prediction %q", out.Prediction)
	}
	return assessment, nil
}
