// Package client implements the FoundryNet protocol client: machine
// registration, job submission and signed completion against the
// remote verification service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/foundrynet/go-foundry/config"
	"github.com/foundrynet/go-foundry/keystore"
	"github.com/foundrynet/go-foundry/proof"
	"github.com/foundrynet/go-foundry/retry"
)

const (
	// MinComplexity and MaxComplexity bound the relative difficulty a
	// job may claim; ComplexityTolerance absorbs float rounding.
	MinComplexity       = 0.5
	MaxComplexity       = 2.0
	ComplexityTolerance = 0.01
)

var (
	// ErrNotInitialized is returned by operations that need a machine
	// identity before Init established one.
	ErrNotInitialized = errors.New("client: machine not initialized")
	// ErrInvalidComplexity is returned for complexity values outside
	// [MinComplexity, MaxComplexity]. Never retried.
	ErrInvalidComplexity = errors.New("client: complexity out of range")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("service returned status %d: %s", e.Status, e.Body)
}

// InitResult reports how Init established the machine identity.
type InitResult struct {
	Existing  bool   `json:"existing"`
	MachineID string `json:"machine_uuid"`
	PublicKey string `json:"public_key"`
}

// SubmitResult is the outcome of a job submission. Duplicate marks the
// defined non-error outcome of resubmitting an already known job.
type SubmitResult struct {
	Success   bool            `json:"success"`
	Duplicate bool            `json:"duplicate"`
	JobHash   string          `json:"job_hash"`
	Raw       json.RawMessage `json:"-"`
}

// Client runs the registration/submission/completion lifecycle. A
// Client is meant for sequential use by one machine process.
type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	logger        *zap.Logger
	exec          *retry.Executor
	credentialDir string

	identity *keystore.Identity
}

// Opt modifies Client.
type Opt func(*Client)

// WithLogger sets the client logger. The retry executor inherits it
// unless WithExecutor overrides that too.
func WithLogger(logger *zap.Logger) Opt {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Opt {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithExecutor substitutes the retry executor.
func WithExecutor(exec *retry.Executor) Opt {
	return func(c *Client) {
		c.exec = exec
	}
}

// New creates a protocol client from cfg. The identity is not touched
// until Init.
func New(cfg config.Config, opts ...Opt) (*Client, error) {
	baseURL, err := url.Parse(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("parsing api url: %w", err)
	}
	if baseURL.Scheme == "" {
		baseURL.Scheme = "https"
	}

	c := &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{},
		logger:        zap.NewNop(),
		credentialDir: cfg.CredentialDir,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = retry.New(cfg.RetryAttempts, cfg.RetryDelay, retry.WithLogger(c.logger))
	}
	return c, nil
}

// MachineID returns the machine id, or "" before Init.
func (c *Client) MachineID() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.MachineID
}

// PublicKey returns the base58 public key, or "" before Init.
func (c *Client) PublicKey() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.PublicKey.String()
}

// Init establishes the machine identity. An existing credential is
// reused as-is with no re-registration. Otherwise a fresh identity is
// generated, persisted and registered; a registration failure is fatal
// for Init but leaves the credentials persisted, so the next Init
// reattempts registration through the load path only after the remote
// confirms (the remote treats re-registration idempotently).
func (c *Client) Init(ctx context.Context, metadata map[string]any) (*InitResult, error) {
	id, err := keystore.Load(c.credentialDir)
	switch {
	case err == nil:
		c.identity = id
		c.logger.Info("using existing machine credentials",
			zap.String("machine_uuid", id.MachineID),
			zap.String("public_key", id.PublicKey.ShortString()),
		)
		return &InitResult{Existing: true, MachineID: id.MachineID, PublicKey: id.PublicKey.String()}, nil
	case errors.Is(err, keystore.ErrNotFound):
		// first run, fall through to generation
	default:
		return nil, err
	}

	id, err = keystore.Generate()
	if err != nil {
		return nil, err
	}
	if err := keystore.Save(id, c.credentialDir); err != nil {
		return nil, err
	}
	c.logger.Info("generated new machine identity",
		zap.String("machine_uuid", id.MachineID),
		zap.String("public_key", id.PublicKey.ShortString()),
	)

	if err := c.register(ctx, id, metadata); err != nil {
		return nil, fmt.Errorf("registering new machine: %w", err)
	}
	c.identity = id
	return &InitResult{Existing: false, MachineID: id.MachineID, PublicKey: id.PublicKey.String()}, nil
}

// RegisterMachine registers the initialized identity with the service.
func (c *Client) RegisterMachine(ctx context.Context, metadata map[string]any) error {
	if c.identity == nil {
		return ErrNotInitialized
	}
	return c.register(ctx, c.identity, metadata)
}

func (c *Client) register(ctx context.Context, id *keystore.Identity, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	body := map[string]any{
		"machine_uuid":          id.MachineID,
		"machine_pubkey_base58": id.PublicKey.String(),
		"metadata":              metadata,
	}
	_, err := retry.Do(ctx, c.exec, "machine registration", func(ctx context.Context) ([]byte, error) {
		return c.req(ctx, http.MethodPost, "/register-machine", body)
	})
	if err != nil {
		return err
	}
	c.logger.Info("machine registered", zap.String("machine_uuid", id.MachineID))
	return nil
}

// SubmitJob announces a job to the network. Complexity is rounded to
// two decimals and validated before any network traffic. A 409 from
// the service means the job hash is already known and is reported as a
// duplicate-flagged success, so submission is safely repeatable for
// the same job id.
func (c *Client) SubmitJob(ctx context.Context, jobID string, complexity float64, payload map[string]any) (*SubmitResult, error) {
	if c.identity == nil {
		return nil, ErrNotInitialized
	}

	normalized := math.Round(complexity*100) / 100
	if normalized < MinComplexity-ComplexityTolerance || normalized > MaxComplexity+ComplexityTolerance {
		return nil, fmt.Errorf("%w: must be %.1f-%.1f, got %v",
			ErrInvalidComplexity, MinComplexity, MaxComplexity, normalized)
	}

	if payload == nil {
		payload = map[string]any{}
	}
	body := map[string]any{
		"machine_uuid": c.identity.MachineID,
		"job_hash":     jobID,
		"complexity":   normalized,
		"payload":      payload,
	}

	return retry.Do(ctx, c.exec, "job submission", func(ctx context.Context) (*SubmitResult, error) {
		data, err := c.req(ctx, http.MethodPost, "/submit-job", body)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			c.logger.Warn("job already exists", zap.String("job_hash", jobID))
			return &SubmitResult{Success: true, Duplicate: true, JobHash: jobID}, nil
		}
		if err != nil {
			return nil, err
		}

		res := &SubmitResult{Success: true, JobHash: jobID}
		// Service echoes success/job_hash; keep whatever it said.
		_ = json.Unmarshal(data, res)
		res.Raw = data
		c.logger.Debug("job submitted",
			zap.String("job_hash", jobID),
			zap.Float64("complexity", normalized),
		)
		return res, nil
	})
}

// CompleteJob signs a completion proof for jobID paid out to recipient
// and submits it for settlement. The settlement breakdown is returned
// verbatim; reward splitting is entirely the remote verifier's business.
func (c *Client) CompleteJob(ctx context.Context, jobID, recipient string) (json.RawMessage, error) {
	if c.identity == nil {
		return nil, ErrNotInitialized
	}

	ts := proof.Timestamp(time.Now())
	p, err := proof.Sign(c.identity, jobID, recipient, ts)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"machine_uuid":     c.identity.MachineID,
		"job_hash":         jobID,
		"recipient_wallet": recipient,
		"completion_proof": map[string]any{
			"version":          p.Version,
			"timestamp":        p.Timestamp,
			"signature_base58": p.Signature.String(),
		},
	}

	data, err := retry.Do(ctx, c.exec, "job completion", func(ctx context.Context) ([]byte, error) {
		return c.req(ctx, http.MethodPost, "/complete-job", body)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("job completed", zap.String("job_hash", jobID), zap.String("recipient", recipient))
	return data, nil
}

// JobDetails fetches the service's view of a job, community flags
// included.
func (c *Client) JobDetails(ctx context.Context, jobID string) (json.RawMessage, error) {
	data, err := retry.Do(ctx, c.exec, "fetch job details", func(ctx context.Context) ([]byte, error) {
		return c.req(ctx, http.MethodGet, "/jobs/"+jobID, nil)
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// FlagJob reports a suspicious job. Details, when given, are appended
// to the reason. Member defaults to anonymous.
func (c *Client) FlagJob(ctx context.Context, jobID, reason, details, member string) (json.RawMessage, error) {
	fullReason := reason
	if details != "" {
		fullReason = reason + ": " + details
	}
	if member == "" {
		member = "anonymous"
	}
	body := map[string]any{
		"job_hash":         jobID,
		"flag_reason":      fullReason,
		"community_member": member,
	}

	data, err := retry.Do(ctx, c.exec, "flag job", func(ctx context.Context) ([]byte, error) {
		return c.req(ctx, http.MethodPost, "/flag-job", body)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("job flagged", zap.String("job_hash", jobID), zap.String("reason", reason))
	return data, nil
}

// Metrics fetches real-time network metrics.
func (c *Client) Metrics(ctx context.Context) (json.RawMessage, error) {
	data, err := retry.Do(ctx, c.exec, "fetch metrics", func(ctx context.Context) ([]byte, error) {
		return c.req(ctx, http.MethodGet, "/metrics", nil)
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) req(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doing request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		c.logger.Debug("request failed",
			zap.String("path", path),
			zap.String("status", res.Status),
			zap.String("body", string(data)),
		)
		return nil, &APIError{Status: res.StatusCode, Body: string(data)}
	}
	return data, nil
}
