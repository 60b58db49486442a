package deploy

import (
	git "github.com/go-git/go-git/v5"
)

// resolveRevision returns the HEAD commit of the repository containing dir,
// or "" when the build output does not live inside a git worktree. The
// revision only annotates logs, history, and the deploy marker.
func resolveRevision(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}
