// Package archive produces the zip artifact uploaded to the hosting platform.
package archive

import (
	"archive/zip"
	"compress/flate"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
)

// compressionLevel balances deploy time against artifact size.
const compressionLevel = flate.BestSpeed + 5 // flate level 6

// Create zips the contents of sourceDir into destPath, overwriting any
// existing file. Entry names are relative to sourceDir (the directory name
// itself never appears in the archive) and always use forward slashes.
// Returns the number of file entries written.
func Create(destPath, sourceDir string) (int, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return 0, deployerrors.Wrap(err, deployerrors.CategoryArchive, deployerrors.SeverityFatal,
			fmt.Sprintf("source directory not readable: %s", sourceDir))
	}
	if !info.IsDir() {
		return 0, deployerrors.New(deployerrors.CategoryArchive, deployerrors.SeverityFatal,
			fmt.Sprintf("source is not a directory: %s", sourceDir))
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, deployerrors.Wrap(err, deployerrors.CategoryArchive, deployerrors.SeverityFatal,
			fmt.Sprintf("cannot create archive: %s", destPath))
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, compressionLevel)
	})

	count := 0
	walkErr := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil // symlinks and specials are not deployable content
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(fi)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, f)
		f.Close()
		if err != nil {
			return err
		}
		count++
		return nil
	})
	if walkErr != nil {
		zw.Close()
		return 0, deployerrors.Wrap(walkErr, deployerrors.CategoryArchive, deployerrors.SeverityFatal, "archive creation failed")
	}

	if err := zw.Close(); err != nil {
		return 0, deployerrors.Wrap(err, deployerrors.CategoryArchive, deployerrors.SeverityFatal, "archive finalization failed")
	}
	if err := out.Close(); err != nil {
		return 0, deployerrors.Wrap(err, deployerrors.CategoryArchive, deployerrors.SeverityFatal, "archive flush failed")
	}
	return count, nil
}

// List returns the entry names of a zip archive in archive order.
func List(zipPath string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategoryArchive, deployerrors.SeverityFatal,
			fmt.Sprintf("cannot open archive: %s", zipPath))
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}
