package pipeline

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/muddy/errors"
)

// isSignature reports whether name is jar signing metadata, which the
// rewritten classes invalidate.
func isSignature(name string) bool {
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "META-INF/") || strings.Count(upper, "/") != 1 {
		return false
	}
	for _, ext := range []string{".SF", ".RSA", ".DSA", ".EC"} {
		if strings.HasSuffix(upper, ext) {
			return true
		}
	}
	return false
}

// TransformArchive transforms the class entries of a zip-based archive.
// Entry order, names, compression methods, comments and timestamps are
// kept; entries that do not change are copied without recompression.
func (p *Processor) TransformArchive(ctx context.Context, in, out string) (rep *Report, err error) {
	zr, err := zip.OpenReader(in)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseIO, errors.KindInvalidData, "open archive "+in, err)
	}
	defer func() { err = multierr.Append(err, zr.Close()) }()

	r := &Report{Input: in, Output: out}
	var items []*item
	byEntry := make(map[*zip.File]*item)
	signed := false
	for _, f := range zr.File {
		if isSignature(f.Name) {
			signed = true
		}
		if f.FileInfo().IsDir() || !IsClassFile(f.Name) {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseIO, errors.KindInvalidData, "read "+f.Name, err)
		}
		it := &item{path: f.Name, data: data}
		items = append(items, it)
		byEntry[f] = it
	}
	if signed {
		r.warn("%s is signed; transformed classes invalidate its signature", in)
	}

	if err := p.transformAll(ctx, items); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, errors.Wrap(errors.PhaseIO, errors.KindInvalidInput, "create directory for "+out, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".muddy-*")
	if err != nil {
		return nil, errors.Wrap(errors.PhaseIO, errors.KindInvalidInput, "create "+out, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	werr := p.writeEntries(zw, zr, byEntry, r)
	if werr == nil {
		werr = zw.SetComment(zr.Comment)
	}
	werr = multierr.Append(werr, zw.Close())
	werr = multierr.Append(werr, tmp.Close())
	if werr != nil {
		return nil, errors.Wrap(errors.PhaseIO, errors.KindInvalidData, "write "+out, werr)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return nil, errors.Wrap(errors.PhaseIO, errors.KindInvalidData, "rename "+out, err)
	}
	Logger().Info("archive written",
		zap.String("output", out),
		zap.Int("classes", r.Totals.Classes),
		zap.Int("changed", r.Totals.Changed))
	return r, nil
}

func (p *Processor) writeEntries(zw *zip.Writer, zr *zip.ReadCloser, byEntry map[*zip.File]*item, r *Report) error {
	for _, f := range zr.File {
		it, ok := byEntry[f]
		if !ok {
			if !f.FileInfo().IsDir() {
				r.Totals.Other++
			}
			if err := zw.Copy(f); err != nil {
				return err
			}
			continue
		}
		r.add(it.result)
		if !it.result.Changed() {
			if err := zw.Copy(f); err != nil {
				return err
			}
			continue
		}
		hdr := &zip.FileHeader{
			Name:          f.Name,
			Comment:       f.Comment,
			Method:        f.Method,
			Modified:      f.Modified,
			ExternalAttrs: f.ExternalAttrs,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if _, err := w.Write(it.output); err != nil {
			return err
		}
	}
	return nil
}

func readEntry(f *zip.File) (data []byte, err error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, rc.Close()) }()
	return io.ReadAll(rc)
}
