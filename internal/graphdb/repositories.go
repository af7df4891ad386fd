package graphdb

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	apperrors "graphseed/internal/errors"
)

// Repository is one entry of the repository listing.
type Repository struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URI      string `json:"uri"`
	Type     string `json:"type"`
	State    string `json:"state"`
	Readable bool   `json:"readable"`
	Writable bool   `json:"writable"`
}

// ListRepositories fetches the repository listing. It doubles as the
// readiness probe: any 2xx answer means the server is up.
func (c *Client) ListRepositories(ctx context.Context) ([]Repository, error) {
	return c.listRepositories(ctx, "/rest/repositories")
}

// ListRepositoriesAt fetches the listing from a custom path, for servers
// mounted behind a prefix or proxies exposing a different probe path.
func (c *Client) ListRepositoriesAt(ctx context.Context, path string) ([]Repository, error) {
	return c.listRepositories(ctx, path)
}

func (c *Client) listRepositories(ctx context.Context, path string) ([]Repository, error) {
	u := c.endpoint(splitPath(path)...)
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, requestError("ListRepositories", "failed to build repository listing request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, requestError("ListRepositories", "repository listing failed", err).WithField("url", u.String())
	}
	defer resp.Body.Close()

	var repos []Repository
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil && err != io.EOF {
		return nil, apperrors.New(apperrors.ErrCategoryNetwork, apperrors.CodeRequestFailed, "malformed repository listing", err).
			WithModule("graphdb").
			WithOperation("ListRepositories").
			WithField("url", u.String())
	}
	return repos, nil
}

// RepositoryExists reports whether a repository with id is listed.
func (c *Client) RepositoryExists(ctx context.Context, id string) (bool, error) {
	repos, err := c.ListRepositories(ctx)
	if err != nil {
		return false, err
	}
	for _, repo := range repos {
		if repo.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// CreateRepository posts a repository definition (Turtle) as the "config"
// form field of a multipart request.
func (c *Client) CreateRepository(ctx context.Context, definition io.Reader, filename string) error {
	if filename == "" {
		filename = "repo-config.ttl"
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("config", filename)
		if err == nil {
			_, err = io.Copy(part, definition)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	u := c.endpoint("rest", "repositories")
	req, err := c.newRequest(ctx, http.MethodPost, u, pr)
	if err != nil {
		pr.CloseWithError(err)
		return requestError("CreateRepository", "failed to build repository creation request", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		pr.CloseWithError(err)
		appErr := requestError("CreateRepository", "repository creation failed", err)
		appErr.Code = apperrors.CodeCreateRepoFail
		return appErr.WithField("file", filename)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Size returns the number of statements in the repository.
func (c *Client) Size(ctx context.Context, id string) (int64, error) {
	u := c.endpoint("repositories", id, "size")
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, requestError("Size", "failed to build size request", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.do(req)
	if err != nil {
		return 0, requestError("Size", "repository size request failed", err).WithField("repository", id)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, requestError("Size", "failed to read repository size", err).WithField("repository", id)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, apperrors.New(apperrors.ErrCategoryNetwork, apperrors.CodeRequestFailed, "malformed repository size", err).
			WithModule("graphdb").
			WithOperation("Size").
			WithField("repository", id)
	}
	return n, nil
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
