package build

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"

	"github.com/sofmeright/imagebuild/src/config"
)

// DockerfileName is the name of the rendered Dockerfile inside the context.
const DockerfileName = "Dockerfile"

// BuildContext lists the files sent to the engine for one plan: the
// configuration directory minus configuration inputs, overlaid with the
// variant override directory.
type BuildContext struct {
	Root       string // absolute configuration directory
	VariantDir string // slash path relative to Root, "" when none

	// RootFiles and VariantFiles are slash paths relative to Root and
	// VariantDir respectively, sorted.
	RootFiles    []string
	VariantFiles []string
}

// NewBuildContext collects the context files for plan. The configuration
// file, every build's variants directory and main template, and anything
// matched by .dockerignore are left out of the root listing. The variant
// listing leaves out its fragment, its template and its own .dockerignore
// matches.
func NewBuildContext(cfg *config.Config, plan *BuildPlan) (*BuildContext, error) {
	bc := &BuildContext{Root: cfg.Dir, VariantDir: plan.VariantDir}

	var excludes []string
	if cfg.Path != "" {
		excludes = append(excludes, filepath.Base(cfg.Path))
	}
	for _, b := range cfg.Builds {
		excludes = append(excludes, path.Clean(filepath.ToSlash(b.VariantsDir)), path.Clean(filepath.ToSlash(b.TemplateFile)))
	}
	files, err := listFiles(cfg.Dir, excludes)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}
	bc.RootFiles = files

	if plan.VariantDir != "" {
		excludes = append([]string{}, config.VariantConfigFiles...)
		if plan.VariantTemplate != "" {
			excludes = append(excludes, strings.TrimPrefix(plan.VariantTemplate, plan.VariantDir+"/"))
		}
		files, err = listFiles(filepath.Join(cfg.Dir, filepath.FromSlash(plan.VariantDir)), excludes)
		if err != nil {
			return nil, fmt.Errorf("variant context: %w", err)
		}
		bc.VariantFiles = files
	}
	return bc, nil
}

// listFiles walks dir and returns regular files and symlinks not matched by
// excludes or dir/.dockerignore.
func listFiles(dir string, excludes []string) ([]string, error) {
	patterns := append([]string{}, excludes...)
	f, err := os.Open(filepath.Join(dir, ".dockerignore"))
	switch {
	case err == nil:
		ignored, readErr := ignorefile.ReadAll(f)
		f.Close()
		if readErr != nil {
			return nil, fmt.Errorf("reading .dockerignore: %w", readErr)
		}
		patterns = append(patterns, ignored...)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}

	var files []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)

		skip, err := pm.MatchesOrParentMatches(rel)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skip && !pm.Exclusions() {
				return filepath.SkipDir
			}
			return nil
		}
		if skip || (!d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0) {
			return nil
		}
		if rel == DockerfileName {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Files returns the merged listing: archive name to source path. Variant
// files replace root files of the same name.
func (bc *BuildContext) Files() map[string]string {
	out := make(map[string]string, len(bc.RootFiles)+len(bc.VariantFiles))
	for _, f := range bc.RootFiles {
		out[f] = filepath.Join(bc.Root, filepath.FromSlash(f))
	}
	for _, f := range bc.VariantFiles {
		out[f] = filepath.Join(bc.Root, filepath.FromSlash(bc.VariantDir), filepath.FromSlash(f))
	}
	return out
}

// WriteTar writes the context as a tar stream with dockerfile stored as
// Dockerfile at the root.
func (bc *BuildContext) WriteTar(w io.Writer, dockerfile string) error {
	tw := tar.NewWriter(w)

	files := bc.Files()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := addFile(tw, name, files[name]); err != nil {
			return fmt.Errorf("adding %s to build context: %w", name, err)
		}
	}

	hdr := &tar.Header{
		Name:     DockerfileName,
		Mode:     0o644,
		Size:     int64(len(dockerfile)),
		ModTime:  time.Unix(0, 0),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := io.WriteString(tw, dockerfile); err != nil {
		return err
	}
	return tw.Close()
}

func addFile(tw *tar.Writer, name, src string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}

	link := ""
	if fi.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(src); err != nil {
			return err
		}
	}
	hdr, err := tar.FileInfoHeader(fi, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
