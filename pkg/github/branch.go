package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// BranchInfo represents a GitHub branch.
//
//nolint:govet // Logical grouping preferred over memory optimization
type BranchInfo struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
	Commit    struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// GetBranch retrieves information about a specific branch.
func (c *Client) GetBranch(ctx context.Context, branch string) (*BranchInfo, error) {
	endpoint := fmt.Sprintf("/repos/%s/branches/%s", c.RepoPath(), branch)
	output, err := c.run(ctx, "api", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get branch %s: %w", branch, err)
	}

	var info BranchInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse branch: %w", err)
	}

	return &info, nil
}

// GetBranchSHA returns the head commit SHA of a branch.
func (c *Client) GetBranchSHA(ctx context.Context, branch string) (string, error) {
	info, err := c.GetBranch(ctx, branch)
	if err != nil {
		return "", err
	}
	return info.Commit.SHA, nil
}

// BranchExists checks if a branch exists.
func (c *Client) BranchExists(ctx context.Context, branch string) (bool, error) {
	_, err := c.GetBranch(ctx, branch)
	if err != nil {
		if strings.Contains(err.Error(), "404") || strings.Contains(err.Error(), "Not Found") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateBranch creates a remote branch pointing at the given commit.
func (c *Client) CreateBranch(ctx context.Context, branch, fromSHA string) error {
	endpoint := fmt.Sprintf("/repos/%s/git/refs", c.RepoPath())
	args := []string{
		"api", "-X", "POST", endpoint,
		"-f", fmt.Sprintf("ref=refs/heads/%s", branch),
		"-f", fmt.Sprintf("sha=%s", fromSHA),
	}
	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	c.logger.Info("Created branch %s at %s in %s", branch, fromSHA, c.RepoPath())
	return nil
}

// DeleteBranch deletes a remote branch.
func (c *Client) DeleteBranch(ctx context.Context, branch string) error {
	endpoint := fmt.Sprintf("/repos/%s/git/refs/heads/%s", c.RepoPath(), branch)
	if _, err := c.run(ctx, "api", "-X", "DELETE", endpoint); err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}
	c.logger.Info("Deleted branch %s from %s", branch, c.RepoPath())
	return nil
}
