package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"awards/bot/internal/document"
)

// GitHubRemote stores the document as a single file in a repository through
// the contents API. The blob sha is the version token; a stale sha on PUT
// comes back as 409.
type GitHubRemote struct {
	url    string
	token  string
	client *http.Client
}

func NewGitHub(repo, token, path string, timeout time.Duration) (*GitHubRemote, error) {
	if repo == "" || token == "" || path == "" {
		return nil, fmt.Errorf("github remote needs repo, token and path")
	}
	return &GitHubRemote{
		url:    fmt.Sprintf("https://api.github.com/repos/%s/contents/%s", repo, path),
		token:  token,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (r *GitHubRemote) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "awards-bot")
}

func (r *GitHubRemote) Load(ctx context.Context) (document.Document, Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return document.Document{}, "", fmt.Errorf("build GET request: %w", err)
	}
	r.setHeaders(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return document.Document{}, "", fmt.Errorf("GET document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return document.Document{}, "", ErrNotFound
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return document.Document{}, "", fmt.Errorf("GET document failed (%d): %s", resp.StatusCode, string(body))
	}

	var payload struct {
		SHA     string `json:"sha"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return document.Document{}, "", fmt.Errorf("decode GET payload: %w", err)
	}

	// The contents API line-wraps the base64 body.
	encoded := strings.Map(func(c rune) rune {
		if c == '\n' || c == '\r' {
			return -1
		}
		return c
	}, payload.Content)
	if encoded == "" {
		doc := document.Default()
		return doc, Version(payload.SHA), nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return document.Document{}, "", fmt.Errorf("decode document content: %w", err)
	}

	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document.Document{}, "", fmt.Errorf("parse document JSON: %w", err)
	}
	return doc, Version(payload.SHA), nil
}

func (r *GitHubRemote) Save(ctx context.Context, doc document.Document, version Version) (Version, error) {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	body := map[string]any{
		"message": "awards-bot: update data",
		"content": base64.StdEncoding.EncodeToString(append(raw, '\n')),
	}
	if version != "" {
		body["sha"] = string(version)
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal PUT body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.url, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build PUT request: %w", err)
	}
	r.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("PUT document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return "", ErrConflict
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("PUT document failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var payload struct {
		Content struct {
			SHA string `json:"sha"`
		} `json:"content"`
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode PUT payload: %w", err)
	}
	if payload.Content.SHA != "" {
		return Version(payload.Content.SHA), nil
	}
	if payload.SHA != "" {
		return Version(payload.SHA), nil
	}
	return version, nil
}
