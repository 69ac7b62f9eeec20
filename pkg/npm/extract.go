package npm

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	rjserrors "github.com/rjspm/rjs/pkg/errors"
)

// npmPackagePrefix is the directory every npm tarball wraps its contents
// in. It is stripped so extraction lands files directly under destDir.
const npmPackagePrefix = "package/"

// Extract decompresses and unpacks the npm tarball at tarballPath into
// destDir. destDir is created if it does not exist. Every archive entry is
// validated against path traversal (zip-slip) before being written.
func Extract(tarballPath, destDir string) error {
	f, err := os.Open(tarballPath)
	if err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "open %s", tarballPath)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeExtract, err, "open gzip stream")
	}
	defer gz.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "create %s", destDir)
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return rjserrors.Wrap(rjserrors.ErrCodeExtract, err, "read tar entry")
		}

		name := strings.TrimPrefix(hdr.Name, npmPackagePrefix)
		if name == "" || name == "." {
			continue
		}
		if err := rjserrors.ValidatePath(name); err != nil {
			return rjserrors.Wrap(rjserrors.ErrCodeExtract, err, "unsafe tar entry %q", hdr.Name)
		}

		target := filepath.Join(destDir, name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return rjserrors.New(rjserrors.ErrCodeExtract, "tar entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "create directory %s", target)
			}
		case tar.TypeReg:
			if err := writeFile(tr, target, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			// npm tarballs do not rely on archive-level links; skip rather
			// than risk extracting a link outside destDir.
			continue
		default:
			continue
		}
	}
}

func writeFile(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "create directory for %s", target)
	}
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "create %s", target)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return rjserrors.Wrap(rjserrors.ErrCodeIO, err, "write %s", target)
	}
	return nil
}
