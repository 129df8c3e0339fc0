package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/iampjeetsingh/TLE/internal/models"
	"github.com/iampjeetsingh/TLE/pkg/logger"
)

// Client 저지 API HTTP 클라이언트
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 저지 클라이언트 생성
func NewClient(baseURL string, timeout time.Duration) *Client {
	logger.Info("Judge API client configured", "baseURL", baseURL, "timeout", timeout)

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type problemsResponse struct {
	Problems []models.Problem `json:"problems"`
}

type solvedResponse struct {
	Solved bool `json:"solved"`
}

type firstAcceptedResponse struct {
	// Unix seconds of the first accepted submission after `since`; null when none.
	AcceptedAt *int64 `json:"acceptedAt"`
}

// QueryProblems 레이팅 범위 내 문제 조회 (excludeIDs 제외)
func (c *Client) QueryProblems(ctx context.Context, minRating, maxRating int, excludeIDs map[string]struct{}) ([]models.Problem, error) {
	endpoint := fmt.Sprintf("%s/api/problems?minRating=%d&maxRating=%d", c.baseURL, minRating, maxRating)

	var resp problemsResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to query problems: %w", err)
	}

	problems := make([]models.Problem, 0, len(resp.Problems))
	for _, p := range resp.Problems {
		if _, excluded := excludeIDs[p.ID]; excluded {
			continue
		}
		problems = append(problems, p)
	}

	return problems, nil
}

// HasSolved 사용자의 문제 해결/시도 여부 조회
func (c *Client) HasSolved(ctx context.Context, userID, problemID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/users/%s/solved/%s",
		c.baseURL, url.PathEscape(userID), url.PathEscape(problemID))

	var resp solvedResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return false, fmt.Errorf("failed to check solved status: %w", err)
	}

	return resp.Solved, nil
}

// FirstAcceptedAfter returns the timestamp of the user's first accepted
// submission for the problem at or after `since`, or nil when there is none.
func (c *Client) FirstAcceptedAfter(ctx context.Context, userID, problemID string, since time.Time) (*time.Time, error) {
	endpoint := fmt.Sprintf("%s/api/users/%s/first-accepted?problemId=%s&since=%s",
		c.baseURL,
		url.PathEscape(userID),
		url.QueryEscape(problemID),
		strconv.FormatInt(since.Unix(), 10),
	)

	var resp firstAcceptedResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch verdict: %w", err)
	}

	if resp.AcceptedAt == nil {
		return nil, nil
	}

	t := time.Unix(*resp.AcceptedAt, 0).UTC()
	return &t, nil
}

// getJSON GET 요청 후 JSON 디코딩
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("judge API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
