// Package importer loads messages into the store from RFC 5322 (.eml)
// files and JSON exports.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wesm/tagbox/internal/mailbox"
)

// Writer stores imported messages. *store.Store implements it.
type Writer interface {
	UpsertMessage(ctx context.Context, mbox string, msg mailbox.Message) (string, error)
}

// Options configures an import.
type Options struct {
	// Mailbox receives the imported messages. Empty uses the store default.
	Mailbox string

	// Workers bounds concurrent file parsing. Defaults to GOMAXPROCS.
	Workers int

	// MaxMessageBytes limits the size of a single .eml file.
	// Defaults to 64 MiB.
	MaxMessageBytes int64

	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger
}

const defaultMaxMessageBytes int64 = 64 << 20

// Summary reports the results of an import.
type Summary struct {
	Files    int           `json:"files"`
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"` // unsupported file types
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Importer parses files and writes the messages to a Writer.
type Importer struct {
	w    Writer
	opts Options
	log  *slog.Logger
}

// New creates an Importer writing to w.
func New(w Writer, opts Options) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Importer{w: w, opts: opts, log: log}
}

type fileKind int

const (
	kindUnsupported fileKind = iota
	kindEML
	kindJSON
)

func kindOf(path string) fileKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".eml":
		return kindEML
	case ".json":
		return kindJSON
	default:
		return kindUnsupported
	}
}

// parsed holds the messages decoded from one file.
type parsed struct {
	path string
	msgs []mailbox.Message
	err  error
}

// ImportPaths imports every supported file under paths. Directories are
// walked recursively. Files are parsed concurrently and written in path
// order, so repeated imports of the same tree produce the same store order.
// A file that fails to parse is logged and counted; only walk errors,
// write errors and cancellation abort the import.
func (im *Importer) ImportPaths(ctx context.Context, paths []string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	var files []string
	for _, root := range paths {
		found, skipped, err := collectFiles(root)
		if err != nil {
			return summary, err
		}
		files = append(files, found...)
		summary.Skipped += skipped
	}
	summary.Files = len(files) + summary.Skipped

	results := make([]parsed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			msgs, err := im.parseFile(path)
			results[i] = parsed{path: path, msgs: msgs, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	for _, res := range results {
		if res.err != nil {
			summary.Failed++
			im.log.Warn("skipping file", "path", res.path, "error", res.err)
			continue
		}
		for _, msg := range res.msgs {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			id, err := im.w.UpsertMessage(ctx, im.opts.Mailbox, msg)
			if err != nil {
				return summary, fmt.Errorf("import %s: %w", res.path, err)
			}
			summary.Imported++
			im.log.Debug("imported message", "id", id, "path", res.path)
		}
	}

	summary.Duration = time.Since(start)
	im.log.Info("import complete",
		"files", summary.Files,
		"imported", summary.Imported,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", summary.Duration)
	return summary, nil
}

// collectFiles returns the supported files under root in lexical order and
// the number of unsupported files it passed over. Hidden files and
// directories are ignored.
func collectFiles(root string) ([]string, int, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		if kindOf(root) == kindUnsupported {
			return nil, 1, nil
		}
		return []string{root}, 0, nil
	}

	var files []string
	skipped := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(d.Name(), ".") && path != root
		if d.IsDir() {
			if hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden {
			return nil
		}
		if kindOf(path) == kindUnsupported {
			skipped++
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, skipped, nil
}

var errTooLarge = errors.New("file exceeds size limit")

func (im *Importer) parseFile(path string) ([]mailbox.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch kindOf(path) {
	case kindEML:
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if info.Size() > im.opts.MaxMessageBytes {
			return nil, fmt.Errorf("%w (%d bytes)", errTooLarge, info.Size())
		}
		msg, err := ReadEML(f)
		if err != nil {
			return nil, err
		}
		return []mailbox.Message{msg}, nil
	case kindJSON:
		return ReadJSON(f)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}
