package pipeline

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/wippyai/muddy/errors"
)

// writeFileAtomic writes data to a temporary file next to path and
// renames it into place.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.PhaseIO, errors.KindInvalidInput, "create directory for "+path, err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".muddy-*")
	if err != nil {
		return errors.Wrap(errors.PhaseIO, errors.KindInvalidInput, "create "+path, err)
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()
	_, err = f.Write(data)
	err = multierr.Append(err, f.Chmod(perm))
	err = multierr.Append(err, f.Close())
	if err != nil {
		return errors.Wrap(errors.PhaseIO, errors.KindInvalidData, "write "+path, err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return errors.Wrap(errors.PhaseIO, errors.KindInvalidData, "rename "+path, err)
	}
	return nil
}

func copyFile(src, dst string, perm fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, in.Close()) }()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, out.Close()) }()
	_, err = io.Copy(out, in)
	return err
}

// TransformDir transforms every class file under in, writing the tree to
// out. Other files are copied when out differs from in.
func (p *Processor) TransformDir(ctx context.Context, in, out string) (*Report, error) {
	inAbs, err := filepath.Abs(in)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseIO, errors.KindInvalidInput, "resolve "+in, err)
	}
	outAbs, err := filepath.Abs(out)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseIO, errors.KindInvalidInput, "resolve "+out, err)
	}
	inPlace := inAbs == outAbs

	r := &Report{Input: in, Output: out}
	var items []*item
	perms := make(map[string]fs.FileMode)
	err = filepath.WalkDir(inAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(inAbs, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !IsClassFile(path) {
			if !inPlace {
				r.Totals.Other++
				return copyFile(path, filepath.Join(outAbs, rel), info.Mode().Perm())
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		items = append(items, &item{path: rel, data: data})
		perms[rel] = info.Mode().Perm()
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseIO, errors.KindInvalidData, "walk "+in, err)
	}

	if err := p.transformAll(ctx, items); err != nil {
		return nil, err
	}
	for _, it := range items {
		dst := filepath.Join(outAbs, filepath.FromSlash(it.path))
		if inPlace && !it.result.Changed() {
			r.add(it.result)
			continue
		}
		if err := writeFileAtomic(dst, it.output, perms[it.path]); err != nil {
			return nil, err
		}
		r.add(it.result)
	}
	return r, nil
}
