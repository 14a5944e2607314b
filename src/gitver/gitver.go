// Package gitver reads git metadata of the repository holding the build
// configuration. It is exposed to templates as the _git variable.
package gitver

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/sofmeright/imagebuild/src/value"
)

// Info holds the resolved HEAD metadata.
type Info struct {
	Commit string // full SHA of HEAD
	Short  string // first 7 characters of Commit
	Branch string // "" when HEAD is detached
	Tag    string // a tag pointing exactly at HEAD, "" when none
}

// Detect opens the repository containing dir, searching parent directories.
// It returns nil, nil when dir is not inside a git work tree or the
// repository has no commits yet.
func Detect(dir string) (*Info, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening git repository: %w", err)
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	info := &Info{Commit: head.Hash().String()}
	info.Short = info.Commit
	if len(info.Short) > 7 {
		info.Short = info.Short[:7]
	}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	tag, err := exactTag(repo, head.Hash())
	if err != nil {
		return nil, err
	}
	info.Tag = tag
	return info, nil
}

// exactTag finds a lightweight or annotated tag whose target is commit.
// When several match, the lexically greatest name wins so the result does
// not depend on iteration order.
func exactTag(repo *git.Repository, commit plumbing.Hash) (string, error) {
	iter, err := repo.Tags()
	if err != nil {
		return "", fmt.Errorf("listing tags: %w", err)
	}
	defer iter.Close()

	var best string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if obj, err := repo.TagObject(ref.Hash()); err == nil {
			target = obj.Target
		}
		if target == commit && ref.Name().Short() > best {
			best = ref.Name().Short()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reading tags: %w", err)
	}
	return best, nil
}

// Value converts the info into the _git template variable. A nil receiver
// yields nil so callers can pass the result straight through.
func (i *Info) Value() *value.Map {
	if i == nil {
		return nil
	}
	return value.MapOf(
		"commit", value.String(i.Commit),
		"short", value.String(i.Short),
		"branch", value.String(i.Branch),
		"tag", value.String(i.Tag),
	)
}
