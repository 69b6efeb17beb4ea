// Package pipeline applies the obfuscator to class files, directory trees
// and jar archives.
//
// Classes are transformed concurrently by a bounded worker pool. A class
// that fails to transform is written unchanged and reported; only I/O
// failures and cancellation abort a run.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/muddy/classfile"
	"github.com/wippyai/muddy/errors"
	"github.com/wippyai/muddy/obfuscate"
)

// Event reports the completion of one class.
type Event struct {
	Result ClassResult
	Done   int
	Total  int
}

// Option configures a Processor.
type Option func(*Processor)

// WithWorkers bounds the number of classes transformed at once.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithVerifier checks every changed class with v.
func WithVerifier(v *Verifier) Option {
	return func(p *Processor) {
		p.verifier = v
	}
}

// WithProgress calls fn after each class. Calls are serialized.
func WithProgress(fn func(Event)) Option {
	return func(p *Processor) {
		p.progress = fn
	}
}

// Processor runs a Transformer over files.
type Processor struct {
	transformer *obfuscate.Transformer
	verifier    *Verifier
	progress    func(Event)
	workers     int
}

// New creates a Processor.
func New(t *obfuscate.Transformer, opts ...Option) *Processor {
	p := &Processor{transformer: t, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsClassFile reports whether name is a class file entry.
func IsClassFile(name string) bool {
	return strings.HasSuffix(name, ".class")
}

// IsArchive reports whether name is a zip-based archive.
func IsArchive(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jar", ".zip", ".war", ".ear", ".aar":
		return true
	}
	return false
}

// Run transforms in into out, choosing the mode from in: a directory, an
// archive, or a single class file. out may equal in.
func (p *Processor) Run(ctx context.Context, in, out string) (*Report, error) {
	info, err := os.Stat(in)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseIO, errors.KindNotFound, "stat "+in, err)
	}
	switch {
	case info.IsDir():
		return p.TransformDir(ctx, in, out)
	case IsArchive(in):
		return p.TransformArchive(ctx, in, out)
	case IsClassFile(in):
		return p.TransformClassFile(ctx, in, out)
	}
	return nil, errors.InvalidInput(errors.PhaseIO, "unsupported input "+in)
}

// TransformClassFile transforms a single class file.
func (p *Processor) TransformClassFile(ctx context.Context, in, out string) (*Report, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseIO, errors.KindNotFound, "read "+in, err)
	}
	info, err := os.Stat(in)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseIO, errors.KindNotFound, "stat "+in, err)
	}
	items := []*item{{path: filepath.Base(in), data: data}}
	if err := p.transformAll(ctx, items); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(out, items[0].output, info.Mode().Perm()); err != nil {
		return nil, err
	}
	r := &Report{Input: in, Output: out}
	r.add(items[0].result)
	return r, nil
}

// item is one class moving through the worker pool.
type item struct {
	path   string
	data   []byte
	output []byte
	result ClassResult
}

// transformAll transforms items concurrently. Per-class failures are
// recorded in the item; the returned error is a cancellation.
func (p *Processor) transformAll(ctx context.Context, items []*item) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var mu sync.Mutex
	done := 0
	for _, it := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.transformItem(it)
			if p.progress != nil {
				mu.Lock()
				done++
				p.progress(Event{Result: it.result, Done: done, Total: len(items)})
				mu.Unlock()
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Processor) transformItem(it *item) {
	res := ClassResult{Path: it.path, InputHash: xxh3.Hash(it.data)}
	it.output = it.data

	c, err := classfile.ParseClass(it.data)
	if err != nil {
		res.Err = errors.ParseFailed(it.path, err).Error()
		res.OutputHash = res.InputHash
		it.result = res
		Logger().Warn("class copied unchanged", zap.String("path", it.path), zap.Error(err))
		return
	}
	res.Name = c.Name()
	res.Eligible = p.transformer.Eligible(res.Name)

	if res.Eligible {
		out, st, err := p.transformer.Transform(it.data)
		res.Stats = st
		if err != nil {
			res.Err = err.Error()
			Logger().Warn("class copied unchanged", zap.String("class", res.Name), zap.Error(err))
		} else if p.verifier != nil && st.Changed() {
			if err := p.verifier.VerifyClass(it.data, out); err != nil {
				res.Err = err.Error()
				Logger().Error("verification failed, class copied unchanged",
					zap.String("class", res.Name), zap.Error(err))
			} else {
				res.Verified = true
				it.output = out
			}
		} else {
			it.output = out
		}
	}
	res.OutputHash = xxh3.Hash(it.output)
	if res.Err != "" {
		res.Stats = obfuscate.Stats{}
	}
	it.result = res
	Logger().Debug("class processed",
		zap.String("path", it.path),
		zap.Bool("eligible", res.Eligible),
		zap.Int("literals", res.Stats.Literals),
		zap.Int("fields", res.Stats.Fields))
}
