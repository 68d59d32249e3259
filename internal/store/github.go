package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loan-club/internal/common/config"
	"loan-club/internal/common/errors"
	commonhttp "loan-club/internal/common/http"
	"loan-club/internal/models"
)

const rawMediaType = "application/vnd.github.raw+json"

// GitHubGateway stores the Dataset as a file in a repository through the
// contents API. The version token is the blob sha.
type GitHubGateway struct {
	cfg    config.GitHubConfig
	client *commonhttp.Client
	now    func() time.Time
}

type contentsResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type putContentsResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func NewGitHubGateway(cfg config.GitHubConfig, timeout time.Duration) *GitHubGateway {
	client := commonhttp.NewClient(timeout).
		WithHeader("Authorization", "token "+cfg.Token).
		WithHeader("User-Agent", cfg.UserAgent).
		WithHeader("Accept", "application/vnd.github+json")
	return &GitHubGateway{cfg: cfg, client: client, now: time.Now}
}

func (g *GitHubGateway) Name() string { return config.BackendGitHub }

func (g *GitHubGateway) Read(ctx context.Context) (*models.Dataset, string, error) {
	u := g.contentsURL() + "?ref=" + url.QueryEscape(g.cfg.Branch)
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, "", errors.NewInternalError(err)
	}

	resp, err := g.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, "", errors.NewTransportError("read", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.NewTransportError("read", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", g.statusError("read", resp.StatusCode, body)
	}

	var cr contentsResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, "", errors.NewTransportError("read", fmt.Errorf("decode contents response: %w", err))
	}

	var raw []byte
	switch cr.Encoding {
	case "", "base64":
		// The API wraps base64 at 60 columns.
		raw, err = base64.StdEncoding.DecodeString(strings.NewReplacer("\n", "", "\r", "").Replace(cr.Content))
		if err != nil {
			return nil, "", errors.NewTransportError("read", fmt.Errorf("decode content: %w", err))
		}
	case "none":
		// Files over 1 MB come back without content; fetch the bytes separately.
		raw, err = g.readRaw(ctx, u)
		if err != nil {
			return nil, "", err
		}
	default:
		return nil, "", errors.NewTransportError("read", fmt.Errorf("unsupported content encoding %q", cr.Encoding))
	}

	ds, err := decodeDataset(raw)
	if err != nil {
		return nil, "", err
	}
	return ds, cr.SHA, nil
}

// readRaw fetches the file through the raw media type, which has no size cap
// below 100 MB.
func (g *GitHubGateway) readRaw(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	req.Header.Set("Accept", rawMediaType)

	resp, err := g.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, errors.NewTransportError("read", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransportError("read", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, g.statusError("read", resp.StatusCode, body)
	}
	return body, nil
}

func (g *GitHubGateway) Write(ctx context.Context, ds *models.Dataset, token string) (*models.Dataset, string, error) {
	data, err := encodeDataset(ds)
	if err != nil {
		return nil, "", err
	}

	payload, err := json.Marshal(putContentsRequest{
		Message: fmt.Sprintf("%s @ %s", commitMessage(ctx), g.now().UTC().Format(time.RFC3339)),
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     token,
		Branch:  g.cfg.Branch,
	})
	if err != nil {
		return nil, "", errors.NewInternalError(err)
	}

	req, err := http.NewRequest(http.MethodPut, g.contentsURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, "", errors.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, "", errors.NewTransportError("write", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.NewTransportError("write", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, "", g.statusError("write", resp.StatusCode, body)
	}

	var pr putContentsResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, "", errors.NewTransportError("write", fmt.Errorf("decode commit response: %w", err))
	}
	return ds, pr.Content.SHA, nil
}

func (g *GitHubGateway) contentsURL() string {
	segments := strings.Split(strings.Trim(g.cfg.Path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimRight(g.cfg.APIURL, "/"),
		url.PathEscape(g.cfg.Owner),
		url.PathEscape(g.cfg.Repo),
		strings.Join(segments, "/"),
	)
}

func (g *GitHubGateway) statusError(op string, status int, body []byte) error {
	details := fmt.Sprintf("github %s returned %d: %s", op, status, truncate(string(body), 256))
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewUnauthorizedError(details)
	case http.StatusNotFound:
		return errors.NewNotFoundError("Dataset", details)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return errors.NewVersionConflictError(details)
	default:
		return errors.NewTransportError(op, fmt.Errorf("%s", details))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
