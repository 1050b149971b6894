package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/netra-systems/zen-sub295/internal/events"
)

// Follow reads the JSONL file at path from the start and then keeps reading
// records appended to it, like tail -f. It returns nil when ctx is cancelled
// or the file is removed or renamed. A truncated file is read again from
// the start.
func Follow(ctx context.Context, path string, h Handler, opts ...Option) error {
	o := buildOptions(opts)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch before the first read so no append is missed
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	t := &tailer{
		path:   path,
		file:   f,
		reader: bufio.NewReader(f),
		opts:   o,
		h:      h,
	}
	if err := t.drain(ctx); err != nil {
		return err
	}

	o.Logger.Debug("following file", "path", path, "lines", t.line)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				o.Logger.Info("followed file went away", "path", path, "op", event.Op.String())
				return t.flush(ctx)
			}
			if event.Has(fsnotify.Write) {
				if err := t.drain(ctx); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.Logger.Warn("watcher error", "path", path, "error", err)
		}
	}
}

// tailer reads complete lines from a growing file, holding back a trailing
// partial line until its newline arrives
type tailer struct {
	path    string
	file    *os.File
	reader  *bufio.Reader
	partial []byte
	offset  int64
	line    int

	opts Options
	h    Handler
}

func (t *tailer) drain(ctx context.Context) error {
	if info, err := t.file.Stat(); err == nil && info.Size() < t.offset {
		t.opts.Logger.Info("followed file truncated, rereading", "path", t.path)
		if _, err := t.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind %s: %w", t.path, err)
		}
		t.reader.Reset(t.file)
		t.partial = nil
		t.offset = 0
		t.line = 0
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		chunk, err := t.reader.ReadBytes('\n')
		t.offset += int64(len(chunk))
		if err == io.EOF {
			t.partial = append(t.partial, chunk...)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", t.path, err)
		}

		line := append(t.partial, chunk...)
		t.partial = nil
		if err := t.emit(ctx, line); err != nil {
			return err
		}
	}
}

// flush emits a final line that never got its newline
func (t *tailer) flush(ctx context.Context) error {
	if err := t.drain(ctx); err != nil {
		return err
	}
	if len(t.partial) == 0 {
		return nil
	}
	line := t.partial
	t.partial = nil
	return t.emit(ctx, line)
}

func (t *tailer) emit(ctx context.Context, raw []byte) error {
	t.line++
	line := bytes.TrimSpace(raw)
	if len(line) == 0 || line[0] == '#' {
		return nil
	}

	event, err := events.ParseRecord(line)
	if err != nil {
		return t.opts.handleParseError(&events.ParseError{Line: t.line, Err: err})
	}
	event.SourceLine = t.line
	if event.RunID == "" {
		event.RunID = t.opts.DefaultRunID
	}

	if err := t.h(ctx, event); err != nil {
		return fmt.Errorf("%s:%d: %w", t.path, t.line, err)
	}
	return nil
}
