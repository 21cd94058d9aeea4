package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"awards/bot/internal/document"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const gitDocumentFile = "document.json"

// GitRemote keeps the document in a local git repository, one commit per
// save. The HEAD commit hash is the version token; committing against a
// token that is no longer HEAD is a conflict. Useful for development and for
// deployments that sync the repository out of band.
type GitRemote struct {
	path string
	mu   sync.Mutex
}

func NewGit(dir string) *GitRemote {
	return &GitRemote{path: dir}
}

func (r *GitRemote) Load(ctx context.Context) (document.Document, Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	repo, err := git.PlainOpen(r.path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return document.Document{}, "", ErrNotFound
		}
		return document.Document{}, "", fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return document.Document{}, "", ErrNotFound
		}
		return document.Document{}, "", fmt.Errorf("resolve main: %w", err)
	}

	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return document.Document{}, "", fmt.Errorf("load commit object: %w", err)
	}
	doc, err := readDocumentFromCommit(commitObj)
	if err != nil {
		return document.Document{}, "", err
	}
	return doc, Version(ref.Hash().String()), nil
}

func (r *GitRemote) Save(ctx context.Context, doc document.Document, version Version) (Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	repo, err := git.PlainOpen(r.path)
	if err != nil {
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			return "", fmt.Errorf("open repo: %w", err)
		}
		if version != "" {
			// Caller holds a token for a repo that no longer exists.
			return "", ErrConflict
		}
		return r.initialize(doc)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return "", fmt.Errorf("resolve main: %w", err)
	}
	if string(version) != ref.Hash().String() {
		return "", ErrConflict
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	if err := writeDocumentFile(worktree.Filesystem.Root(), doc); err != nil {
		return "", err
	}
	if _, err := worktree.Add(gitDocumentFile); err != nil {
		return "", fmt.Errorf("git add document: %w", err)
	}
	hash, err := worktree.Commit("awards-bot: update data", &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            gitSignature(),
	})
	if err != nil {
		return "", fmt.Errorf("commit document: %w", err)
	}
	return Version(hash.String()), nil
}

func (r *GitRemote) initialize(doc document.Document) (Version, error) {
	if err := os.MkdirAll(r.path, 0o755); err != nil {
		return "", fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(r.path, false)
	if err != nil {
		return "", fmt.Errorf("init repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	if err := writeDocumentFile(r.path, doc); err != nil {
		return "", err
	}
	if _, err := worktree.Add(gitDocumentFile); err != nil {
		return "", fmt.Errorf("git add document: %w", err)
	}
	hash, err := worktree.Commit("awards-bot: initial data", &git.CommitOptions{Author: gitSignature()})
	if err != nil {
		return "", fmt.Errorf("commit initial document: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return "", fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return "", fmt.Errorf("set HEAD to main: %w", err)
	}
	return Version(hash.String()), nil
}

func writeDocumentFile(root string, doc document.Document) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, gitDocumentFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write document file: %w", err)
	}
	return nil
}

func readDocumentFromCommit(commitObj *object.Commit) (document.Document, error) {
	file, err := commitObj.File(gitDocumentFile)
	if err != nil {
		return document.Document{}, fmt.Errorf("load %s from commit: %w", gitDocumentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return document.Document{}, fmt.Errorf("open document reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return document.Document{}, fmt.Errorf("read document bytes: %w", err)
	}
	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document.Document{}, fmt.Errorf("decode committed document: %w", err)
	}
	return doc, nil
}

func gitSignature() *object.Signature {
	return &object.Signature{
		Name:  "awards-bot",
		Email: "awards-bot@localhost",
		When:  time.Now(),
	}
}
