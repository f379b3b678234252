// Package ats implements the ATS Client (C2): authenticated, rate-aware
// access to jobs, tearsheets, candidates, resume files, and notes on
// the external applicant tracking system.
package ats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/httpclient"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	vetcoreerrors "github.com/ternarybob/vetting-core/internal/vetcore/errors"
	"golang.org/x/oauth2"
)

const (
	pageSize             = 200
	maxBackoffAttempts   = 6
	backoffInitialWait   = 500 * time.Millisecond
	backoffMaxWait       = 30 * time.Second
	resumeFetchPerDoc    = 2 * time.Minute
)

// session holds the live REST credentials obtained after login.
type session struct {
	accessToken string
	restToken   string
	restURL     string
	expiresAt   time.Time
}

// Client implements interfaces.ATSClient against a Bullhorn-style REST
// API: an OAuth 2.0 password-grant token exchange followed by a REST
// login call that trades the token for a session token and a
// (potentially pool-specific) REST base URL.
type Client struct {
	cfg     common.ATSConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	oauth   oauth2.Config
	logger  arbor.ILogger

	mu      sync.Mutex
	session *session
}

var _ interfaces.ATSClient = (*Client)(nil)

func NewClient(cfg common.ATSConfig, logger arbor.ILogger) *Client {
	timeout := 60 * time.Second
	if cfg.RequestTimeout != "" {
		if d, err := time.ParseDuration(cfg.RequestTimeout); err == nil {
			timeout = d
		}
	}
	pool := cfg.PoolSize
	if pool <= 0 {
		pool = 8
	}

	return &Client{
		cfg:     cfg,
		http:    httpclient.NewRateLimitedClient(timeout, float64(pool), pool),
		breaker: httpclient.NewCircuitBreaker("ats-client", 5, 30*time.Second),
		logger:  logger,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.BaseURL + "/oauth/authorize",
				TokenURL: cfg.BaseURL + "/oauth/token",
			},
		},
	}
}

// Authenticate performs the password-grant token exchange followed by
// REST login, caching the result. A call when already authenticated
// with a non-expired token is a no-op.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	if c.session != nil && time.Now().Before(c.session.expiresAt) {
		return nil
	}

	tok, err := c.oauth.PasswordCredentialsToken(ctx, c.cfg.User, c.cfg.Password)
	if err != nil {
		return fmt.Errorf("oauth token exchange failed: %w: %w", vetcoreerrors.ErrAuth, err)
	}

	expiresAt := tokenExpiry(tok.AccessToken)

	loginURL := fmt.Sprintf("%s/login?version=2.0&access_token=%s", c.cfg.BaseURL, url.QueryEscape(tok.AccessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w: %w", vetcoreerrors.ErrTransientExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("login rejected: %w", vetcoreerrors.ErrAuth)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login returned status %d: %w", resp.StatusCode, vetcoreerrors.ErrTransientExternal)
	}

	var loginResp struct {
		BhRestToken string `json:"BhRestToken"`
		RestURL     string `json:"restUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return fmt.Errorf("failed to decode login response: %w: %w", vetcoreerrors.ErrData, err)
	}

	c.session = &session{
		accessToken: tok.AccessToken,
		restToken:   loginResp.BhRestToken,
		restURL:     strings.TrimSuffix(loginResp.RestURL, "/"),
		expiresAt:   expiresAt,
	}
	c.logger.Info().Str("rest_url", c.session.restURL).Msg("ATS session established")
	return nil
}

// tokenExpiry reads the exp claim out of the access token without
// signature verification: the token is the ATS's own issuance, handed
// straight back to the ATS on every call, so this client only needs
// the claim to decide when to proactively refresh.
func tokenExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Now().Add(30 * time.Minute)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		return exp.Time
	}
	return time.Now().Add(30 * time.Minute)
}

// doREST issues an authenticated REST call, retrying with backoff on
// transient errors and refreshing the session once on a 401.
func (c *Client) doREST(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	var resp *http.Response

	operation := func() error {
		c.mu.Lock()
		if c.session == nil {
			c.mu.Unlock()
			if err := c.Authenticate(ctx); err != nil {
				return backoff.Permanent(err)
			}
			c.mu.Lock()
		}
		restURL, restToken := c.session.restURL, c.session.restToken
		c.mu.Unlock()

		full := restURL + path
		if len(query) > 0 {
			full += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, method, full, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("BhRestToken", restToken)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		rawResp, doErr := c.breaker.Execute(func() (interface{}, error) {
			return c.http.Do(req)
		})
		if doErr != nil {
			if doErr == gobreaker.ErrOpenState {
				return backoff.Permanent(fmt.Errorf("ATS circuit breaker open: %w", vetcoreerrors.ErrTransientExternal))
			}
			return fmt.Errorf("request failed: %w: %w", vetcoreerrors.ErrTransientExternal, doErr)
		}
		r := rawResp.(*http.Response)

		if r.StatusCode == http.StatusUnauthorized {
			r.Body.Close()
			c.mu.Lock()
			c.session = nil
			authErr := c.authenticateLocked(ctx)
			c.mu.Unlock()
			if authErr != nil {
				return backoff.Permanent(authErr)
			}
			return fmt.Errorf("session expired, retrying: %w", vetcoreerrors.ErrTransientExternal)
		}

		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			if retryAfter := r.Header.Get("Retry-After"); retryAfter != "" {
				if secs, perr := strconv.Atoi(retryAfter); perr == nil {
					select {
					case <-time.After(time.Duration(secs) * time.Second):
					case <-ctx.Done():
					}
				}
			}
			r.Body.Close()
			return fmt.Errorf("ATS returned status %d: %w", r.StatusCode, vetcoreerrors.ErrTransientExternal)
		}

		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffInitialWait
	bo.MaxInterval = backoffMaxWait
	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, maxBackoffAttempts-1), ctx)

	if err := backoff.Retry(operation, wrapped); err != nil {
		return nil, err
	}
	return resp, nil
}

// bullhornAddress mirrors the ATS's free-form address sub-object.
type bullhornAddress struct {
	Address1    string `json:"address1"`
	City        string `json:"city"`
	State       string `json:"state"`
	CountryName string `json:"countryName"`
}

type bullhornUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type bullhornJobOrder struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Address          bullhornAddress `json:"address"`
	EmploymentType   string          `json:"employmentType"`
	IsOpen           bool            `json:"isOpen"`
	Status           string          `json:"status"`
	DateAdded        int64           `json:"dateAdded"`
	Owner            *bullhornUser   `json:"owner"`
	ResponseUser     *bullhornUser   `json:"responseUser"`
	AssignedUsersRaw *struct {
		Data []bullhornUser `json:"data"`
	} `json:"assignedUsers"`
}

func (j *bullhornJobOrder) resolveOwner() models.Owner {
	if j.AssignedUsersRaw != nil && len(j.AssignedUsersRaw.Data) > 0 {
		u := j.AssignedUsersRaw.Data[0]
		return models.Owner{Name: u.Name, Email: u.Email}
	}
	if j.ResponseUser != nil {
		return models.Owner{Name: j.ResponseUser.Name, Email: j.ResponseUser.Email}
	}
	if j.Owner != nil {
		return models.Owner{Name: j.Owner.Name, Email: j.Owner.Email}
	}
	return models.Owner{}
}

func (j *bullhornJobOrder) toModel(tearsheetID string) models.Job {
	workType := models.WorkTypeOnSite
	switch strings.ToLower(j.EmploymentType) {
	case "remote":
		workType = models.WorkTypeRemote
	case "hybrid":
		workType = models.WorkTypeHybrid
	}
	status := j.Status
	if status == "" && j.IsOpen {
		status = "open"
	}
	return models.Job{
		JobID:           j.ID,
		Title:           j.Title,
		DescriptionHTML: j.Description,
		Address1:        j.Address.Address1,
		Location: models.Location{
			City:    j.Address.City,
			State:   j.Address.State,
			Country: j.Address.CountryName,
		},
		WorkType:    workType,
		Owner:       j.resolveOwner(),
		PostedAt:    time.UnixMilli(j.DateAdded),
		Status:      status,
		TearsheetID: tearsheetID,
	}
}

// ListTearsheetJobs paginates through a tearsheet's job orders until
// exhaustion.
func (c *Client) ListTearsheetJobs(ctx context.Context, tearsheetID string) ([]models.Job, error) {
	var jobs []models.Job
	start := 0

	for {
		query := url.Values{
			"start":  {strconv.Itoa(start)},
			"count":  {strconv.Itoa(pageSize)},
			"fields": {"id,title,description,address,employmentType,isOpen,status,dateAdded,owner,responseUser,assignedUsers"},
		}
		resp, err := c.doREST(ctx, http.MethodGet, "/entity/Tearsheet/"+tearsheetID+"/jobOrders", query, nil)
		if err != nil {
			return nil, err
		}

		var page struct {
			Data  []bullhornJobOrder `json:"data"`
			Total int                `json:"total"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("failed to decode tearsheet page: %w: %w", vetcoreerrors.ErrData, decodeErr)
		}

		for i := range page.Data {
			jobs = append(jobs, page.Data[i].toModel(tearsheetID))
		}

		start += len(page.Data)
		if len(page.Data) == 0 || start >= page.Total {
			break
		}
	}

	return jobs, nil
}

// GetJob fetches a single job order directly.
func (c *Client) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	query := url.Values{"fields": {"id,title,description,address,employmentType,isOpen,status,dateAdded,owner,responseUser,assignedUsers"}}
	resp, err := c.doREST(ctx, http.MethodGet, "/entity/JobOrder/"+jobID, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, vetcoreerrors.ErrNotFound
	}

	var wrapper struct {
		Data bullhornJobOrder `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w: %w", vetcoreerrors.ErrData, err)
	}
	job := wrapper.Data.toModel("")
	return &job, nil
}

// fileAttachment is one entry in a candidate's file attachment list.
type fileAttachment struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	ContentType      string `json:"contentType"`
	FileType         string `json:"fileType"`
	DateLastModified int64  `json:"dateLastModified"`
}

// scoreAttachment implements 4.6's resume-selection scoring function:
// name_bonus + format_bonus, ties broken by most-recently-modified by
// the caller's sort, not by byte size (file size is not exposed by the
// attachment list endpoint, only the raw download, so the tiebreaker
// used here is recency rather than bytes).
func scoreAttachment(a fileAttachment) int {
	score := 0
	lowerName := strings.ToLower(a.Name)
	if strings.Contains(lowerName, "resume") || strings.Contains(lowerName, "cv") {
		score += 3
	}
	if strings.Contains(lowerName, "cover") || strings.Contains(lowerName, "letter") {
		score -= 3
	}
	if strings.EqualFold(a.FileType, "pdf") || strings.HasSuffix(lowerName, ".pdf") {
		score++
	}
	return score
}

// DownloadResume selects the best attachment per 4.6's scoring function
// and downloads its raw bytes.
func (c *Client) DownloadResume(ctx context.Context, candidateID string) ([]byte, string, string, error) {
	resp, err := c.doREST(ctx, http.MethodGet, "/entity/Candidate/"+candidateID+"/fileAttachments", url.Values{
		"fields": {"id,name,type,contentType,fileType,dateLastModified"},
	}, nil)
	if err != nil {
		return nil, "", "", err
	}
	var list struct {
		Data []fileAttachment `json:"data"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if decodeErr != nil {
		return nil, "", "", fmt.Errorf("failed to decode attachment list: %w: %w", vetcoreerrors.ErrData, decodeErr)
	}
	if len(list.Data) == 0 {
		return nil, "", "", fmt.Errorf("candidate %s has no attachments: %w", candidateID, vetcoreerrors.ErrNotFound)
	}

	best := list.Data[0]
	bestScore := scoreAttachment(best)
	for _, a := range list.Data[1:] {
		s := scoreAttachment(a)
		if s > bestScore || (s == bestScore && a.DateLastModified > best.DateLastModified) {
			best, bestScore = a, s
		}
	}

	dlCtx, cancel := context.WithTimeout(ctx, resumeFetchPerDoc)
	defer cancel()
	fileResp, err := c.doREST(dlCtx, http.MethodGet, fmt.Sprintf("/file/Candidate/%s/%d/raw", candidateID, best.ID), nil, nil)
	if err != nil {
		return nil, "", "", err
	}
	defer fileResp.Body.Close()

	raw, err := io.ReadAll(fileResp.Body)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to read attachment body: %w", err)
	}
	return raw, best.Name, best.ContentType, nil
}

// CreateCandidateNote writes a non-idempotent note to the candidate
// record. Callers must pre-check the dedup ledger (C11).
func (c *Client) CreateCandidateNote(ctx context.Context, candidateID, title, bodyHTML string) (string, error) {
	payload := map[string]interface{}{
		"action":   title,
		"comments": bodyHTML,
		"personReference": map[string]interface{}{
			"id": candidateID,
		},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal note payload: %w", err)
	}

	resp, err := c.doREST(ctx, http.MethodPut, "/entity/Note", nil, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ChangedEntityID int `json:"changedEntityId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode note creation response: %w: %w", vetcoreerrors.ErrData, err)
	}
	return strconv.Itoa(result.ChangedEntityID), nil
}

// SearchCandidates supports the applicant detector's fallback and
// supplementary discovery strategies.
func (c *Client) SearchCandidates(ctx context.Context, query string, createdSinceMinutes int) ([]models.Candidate, error) {
	q := url.Values{
		"query":  {query},
		"fields": {"id,name,email,phone,owner,dateAdded"},
		"count":  {strconv.Itoa(pageSize)},
	}
	resp, err := c.doREST(ctx, http.MethodGet, "/search/Candidate", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page struct {
		Data []struct {
			ID        int           `json:"id"`
			Name      string        `json:"name"`
			Email     string        `json:"email"`
			Phone     string        `json:"phone"`
			Owner     *bullhornUser `json:"owner"`
			DateAdded int64         `json:"dateAdded"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode candidate search results: %w: %w", vetcoreerrors.ErrData, err)
	}

	cutoff := time.Now().Add(-time.Duration(createdSinceMinutes) * time.Minute)
	candidates := make([]models.Candidate, 0, len(page.Data))
	for _, c := range page.Data {
		if createdSinceMinutes > 0 && time.UnixMilli(c.DateAdded).Before(cutoff) {
			continue
		}
		candidates = append(candidates, models.Candidate{
			CandidateID: strconv.Itoa(c.ID),
			Name:        c.Name,
			Email:       c.Email,
			Phone:       c.Phone,
			CreatedAt:   time.UnixMilli(c.DateAdded).Format(time.RFC3339),
		})
	}
	return candidates, nil
}
