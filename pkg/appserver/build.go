package appserver

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"testbay/pkg/containerizer"
	"testbay/pkg/logging"
)

const (
	dockerfileName = "Dockerfile"
	archiveName    = "test.war"
)

// FindAppFile returns the single .war archive below dir/target.
func FindAppFile(dir string) (string, error) {
	root := filepath.Join(dir, "target")
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipAll
			}
			return err
		}
		if d.Type().IsRegular() && strings.EqualFold(filepath.Ext(path), ".war") {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to search %s: %w", root, err)
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("no .war files found in %s", root)
	case 1:
		abs, err := filepath.Abs(found[0])
		if err != nil {
			return "", err
		}
		logging.Info(subsystem, "Found application file at %s", abs)
		return abs, nil
	default:
		sort.Strings(found)
		return "", fmt.Errorf("found %d application files in %s, expected exactly one: %s",
			len(found), root, strings.Join(found, ", "))
	}
}

// buildContext assembles a temporary image build context: the archive as
// test.war, the custom build directory's files, the runtime's context files
// and the rendered Dockerfile. The caller removes ContextDir.
func buildContext(s Strategy, opts Options, war string) (*containerizer.BuildConfig, error) {
	dir, err := os.MkdirTemp("", "testbay-build-")
	if err != nil {
		return nil, fmt.Errorf("failed to create build directory: %w", err)
	}
	cfg, err := fillContext(dir, s, opts, war)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return cfg, nil
}

func fillContext(dir string, s Strategy, opts Options, war string) (*containerizer.BuildConfig, error) {
	data := DockerfileData{
		FromImage: s.BaseImage(opts.Version),
		WarName:   filepath.Base(war),
		Debug:     opts.Debug,
	}

	if opts.CustomBuildDir != "" {
		base, err := copyCustomDir(opts.CustomBuildDir, dir)
		if err != nil {
			return nil, err
		}
		data.Base = base
	}

	if err := copyFile(war, filepath.Join(dir, archiveName)); err != nil {
		return nil, fmt.Errorf("failed to copy application archive: %w", err)
	}

	for _, f := range s.ContextFiles() {
		src := filepath.Join(opts.ProjectDir, f.Source)
		if _, err := os.Stat(src); err != nil {
			if errors.Is(err, os.ErrNotExist) && !f.Required {
				logging.Debug(subsystem, "Optional %s not found, skipping", src)
				continue
			}
			return nil, fmt.Errorf("%s requires %s: %w", s.Runtime(), src, err)
		}
		if err := copyFile(src, filepath.Join(dir, f.Target)); err != nil {
			return nil, err
		}
		data.Files = append(data.Files, f.Target)
	}

	content, err := s.Dockerfile(data)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, dockerfileName), []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write Dockerfile: %w", err)
	}
	logging.Debug(subsystem, "Build context %s:\n%s", dir, content)

	return &containerizer.BuildConfig{
		ContextDir: dir,
		Dockerfile: dockerfileName,
		Repo:       "testbay/" + string(s.Runtime()),
		Tag:        imageTag(data.WarName),
	}, nil
}

// copyCustomDir copies every regular file below src into dst, keeping the
// relative layout, and returns the content of src/Dockerfile if there is one.
func copyCustomDir(src, dst string) (string, error) {
	var base string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == dockerfileName {
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			base = string(raw)
			return nil
		}
		return copyFile(path, filepath.Join(dst, rel))
	})
	if err != nil {
		return "", fmt.Errorf("failed to copy custom build directory %s: %w", src, err)
	}
	return base, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

var invalidTagChars = regexp.MustCompile(`[^a-z0-9_.-]+`)

// imageTag derives a valid image tag from an archive name (My App.war -> my-app).
func imageTag(war string) string {
	tag := strings.TrimSuffix(strings.ToLower(war), ".war")
	tag = strings.Trim(invalidTagChars.ReplaceAllString(tag, "-"), "-.")
	if tag == "" {
		return "latest"
	}
	if len(tag) > 128 {
		tag = tag[:128]
	}
	return tag
}
