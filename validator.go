package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-print"
)

const (
	defaultValidatePath = "/auth/validate"
	maxResponseBytes    = 1 << 20
)

// ResponseShape identifies which body format the validator accepted.
type ResponseShape string

const (
	ShapeEnvelope ResponseShape = "envelope"
	ShapeLegacy   ResponseShape = "legacy"
)

// ValidationResult is the normalized outcome of a successful validation.
type ValidationResult struct {
	User  CurrentUser
	Kind  Kind
	Shape ResponseShape
}

// HTTPValidatorConfig configures an HTTPValidator.
type HTTPValidatorConfig struct {
	BaseURL    string
	Path       string
	HTTPClient *http.Client
	Logger     Logger
}

// HTTPValidator calls the backend validation endpoint.
type HTTPValidator struct {
	endpoint   string
	httpClient *http.Client
	logger     Logger
}

// NewHTTPValidator returns a validator for GET {base}/auth/validate.
func NewHTTPValidator(cfg HTTPValidatorConfig) *HTTPValidator {
	path := cfg.Path
	if path == "" {
		path = defaultValidatePath
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = defLogger{}
	}

	return &HTTPValidator{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + path,
		httpClient: client,
		logger:     logger,
	}
}

// Validate performs the round trip. Every failure is returned as an error:
// non-2xx is ErrSessionInvalid, transport errors ErrBackendUnavailable and a
// body that is not a user ErrUnparseableResponse.
func (v *HTTPValidator) Validate(ctx context.Context, token string) (*ValidationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return nil, withDetails(ErrBackendUnavailable, err, map[string]any{"endpoint": v.endpoint})
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, withDetails(ErrBackendUnavailable, err, map[string]any{"endpoint": v.endpoint})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, withDetails(ErrBackendUnavailable, err, map[string]any{"endpoint": v.endpoint})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		v.logger.Debug("validate rejected token: status=%d", resp.StatusCode)
		return nil, withDetails(ErrSessionInvalid, nil, map[string]any{
			"status":  resp.StatusCode,
			"message": backendMessage(body),
		})
	}

	result, err := ParseValidationBody(body)
	if err != nil {
		return nil, err
	}

	v.logger.Debug("validate accepted token: shape=%s kind=%s user=%s", result.Shape, result.Kind, print.MaybePrettyJSON(result.User))
	return result, nil
}

// ParseValidationBody normalizes both accepted success bodies.
func ParseValidationBody(body []byte) (*ValidationResult, error) {
	shape, err := decodeShape(body)
	if err != nil {
		return nil, err
	}

	userType, hasType := shape["userType"]
	userData, hasData := shape["userData"]
	if hasType && hasData {
		data, ok := userData.(map[string]any)
		if !ok {
			return nil, withDetails(ErrUnparseableResponse, nil, map[string]any{"reason": "userData is not an object"})
		}
		hint, _ := userType.(string)
		user, err := UserFromShape(data, Kind(hint))
		if err != nil {
			return nil, err
		}
		return &ValidationResult{User: user, Kind: user.Kind(), Shape: ShapeEnvelope}, nil
	}

	user, err := UserFromShape(shape, "")
	if err != nil {
		return nil, err
	}
	return &ValidationResult{User: user, Kind: user.Kind(), Shape: ShapeLegacy}, nil
}

// ErrorBody is the backend error payload.
type ErrorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func backendMessage(body []byte) string {
	var eb ErrorBody
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&eb); err != nil {
		return ""
	}
	return eb.Message
}
