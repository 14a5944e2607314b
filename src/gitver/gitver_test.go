package gitver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/imagebuild/src/value"
)

func TestDetectOutsideRepository(t *testing.T) {
	info, err := Detect(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Nil(t, info.Value())
}

func TestDetectEmptyRepository(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	info, err := Detect(dir)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "image-build.yml"), []byte("builds: []\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("image-build.yml")
	require.NoError(t, err)
	sig := &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Now()}
	hash, err := wt.Commit("initial", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	_, err = repo.CreateTag("v1.2.0", hash, nil)
	require.NoError(t, err)
	_, err = repo.CreateTag("v1.1.0", hash, &git.CreateTagOptions{Tagger: sig, Message: "annotated"})
	require.NoError(t, err)

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))

	info, err := Detect(sub)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, hash.String(), info.Commit)
	assert.Equal(t, hash.String()[:7], info.Short)
	assert.Equal(t, "main", info.Branch)
	assert.Equal(t, "v1.2.0", info.Tag)

	v := info.Value()
	short, _ := v.Get("short")
	assert.Equal(t, value.String(info.Short), short)
}
