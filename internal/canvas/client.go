// Package canvas implements grade passback to the LMS grade book over the
// IMS AGS score publish flow. Auth uses OAuth client_credentials.
package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const scoreScope = "https://purl.imsglobal.org/spec/lti-ags/scope/score"

// Score is the payload posted to the scores container of an outcome
// reference, trimmed to the fields this service sends.
type Score struct {
	UserID           string  `json:"userId"`
	Timestamp        string  `json:"timestamp"` // RFC3339
	ScoreGiven       float64 `json:"scoreGiven"`
	ScoreMaximum     float64 `json:"scoreMaximum"`
	ActivityProgress string  `json:"activityProgress"` // Initialized|InProgress|Submitted|Completed
	GradingProgress  string  `json:"gradingProgress"`  // NotReady|Pending|Failed|PendingManual|FullyGraded
	Comment          string  `json:"comment,omitempty"`
}

// DeliveryResult is the platform's answer to one score post. A result exists
// only when the platform actually responded; transport failures surface as
// errors instead.
type DeliveryResult struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Accepted reports whether the platform acknowledged the score.
func (r *DeliveryResult) Accepted() bool {
	return r.StatusCode/100 == 2
}

// Client posts scores to the LMS. PostScore distinguishes a platform
// rejection (result with non-2xx status, not worth retrying) from a
// transport error (no result, retryable).
type Client interface {
	PostScore(ctx context.Context, outcomeRef string, score Score) (*DeliveryResult, error)
}

type httpClient struct {
	http         *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
}

// Config carries the platform OAuth credentials.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// NewClient builds a passback client from platform credentials.
func NewClient(cfg Config) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpClient{
		http:         &http.Client{Timeout: timeout},
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
	}
}

// PostScore publishes one score to "{outcomeRef}/scores".
func (c *httpClient) PostScore(ctx context.Context, outcomeRef string, score Score) (*DeliveryResult, error) {
	if outcomeRef == "" {
		return nil, errors.New("outcomeRef required")
	}
	if score.UserID == "" {
		return nil, errors.New("score.userId required")
	}
	if score.Timestamp == "" {
		score.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if score.ActivityProgress == "" {
		score.ActivityProgress = "Completed"
	}
	if score.GradingProgress == "" {
		score.GradingProgress = "FullyGraded"
	}

	tok, err := c.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	u := strings.TrimRight(outcomeRef, "/") + "/scores"
	body, _ := json.Marshal(score)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/vnd.ims.lis.v1.score+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	result := &DeliveryResult{StatusCode: resp.StatusCode}
	if len(respBody) > 0 && json.Valid(respBody) {
		result.Body = respBody
	}

	return result, nil
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
}

func (c *httpClient) fetchToken(ctx context.Context) (string, error) {
	if c.tokenURL == "" || c.clientID == "" || c.clientSecret == "" {
		return "", errors.New("missing TokenURL/ClientID/ClientSecret")
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", scoreScope)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("fetch token: platform returned %s", resp.Status)
	}
	var tr tokenResp
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	if tr.AccessToken == "" {
		return "", errors.New("empty access_token in token response")
	}
	return tr.AccessToken, nil
}
