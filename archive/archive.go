// Package archive rolls dated log files into zip archives and prunes
// archives that have aged out. Log files are expected to be named
// tokengate.YYYY-MM-DD.log; archives come out as tokengate.<date>.zip or
// tokengate.<from>_<to>.zip when a run covers more than one day.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

var (
	datedLog  = regexp.MustCompile(`^tokengate\.(\d{4}-\d{2}-\d{2})\.log$`)
	datedZip  = regexp.MustCompile(`^tokengate\.(\d{4}-\d{2}-\d{2})(?:_(\d{4}-\d{2}-\d{2}))?\.zip$`)
	defaultInterval = 72 * time.Hour
)

// Archiver periodically zips completed daily logs in Dir. Only logs dated
// strictly before today and no older than the run interval are picked up,
// so a run archives at most the window since the previous run.
type Archiver struct {
	dir      string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets the logger used for run reporting.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) { a.logger = l }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// New returns an Archiver over dir running every interval. A non-positive
// interval falls back to 72h.
func New(dir string, interval time.Duration, opts ...Option) *Archiver {
	if interval <= 0 {
		interval = defaultInterval
	}
	a := &Archiver{
		dir:      dir,
		interval: interval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run blocks, executing an archive pass every interval until ctx is
// cancelled. Pass failures are logged and do not stop the loop.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Archive(); err != nil {
				a.logger.Error("log archive pass failed", "dir", a.dir, "error", err)
			}
			if err := a.Prune(); err != nil {
				a.logger.Error("archive prune failed", "dir", a.dir, "error", err)
			}
		}
	}
}

// Archive performs a single pass: dated logs from the current and previous
// month are zipped into one archive per month and the originals removed.
// Logs dated today or older than the run interval are left alone.
func (a *Archiver) Archive() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("read log dir: %w", err)
	}

	today := a.now().Truncate(24 * time.Hour)
	byMonth := make(map[int][]datedFile) // 0 = current month, 1 = previous

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := datedLog.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		day, err := time.Parse(dateLayout, m[1])
		if err != nil {
			a.logger.Warn("skipping log with bad date", "file", e.Name())
			continue
		}
		if !day.Before(today) || today.Sub(day) > a.interval {
			continue
		}
		diff := monthsBetween(day, today)
		if diff > 1 {
			continue
		}
		byMonth[diff] = append(byMonth[diff], datedFile{
			path: filepath.Join(a.dir, e.Name()),
			day:  day,
		})
	}

	for _, group := range byMonth {
		if err := a.zipGroup(group); err != nil {
			return err
		}
	}
	return nil
}

// Prune removes archives whose month is more than one month behind the
// current one. Files outside the archiver's directory are never touched.
func (a *Archiver) Prune() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("read log dir: %w", err)
	}

	today := a.now()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		month, ok := archiveMonth(e.Name())
		if !ok {
			continue
		}
		if monthsBetween(month, today) > 1 {
			path := filepath.Join(a.dir, e.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				a.logger.Error("failed to remove old archive", "file", e.Name(), "error", err)
				continue
			}
			a.logger.Info("removed old archive", "file", e.Name())
		}
	}
	return nil
}

type datedFile struct {
	path string
	day  time.Time
}

func (a *Archiver) zipGroup(group []datedFile) error {
	sort.Slice(group, func(i, j int) bool { return group[i].day.Before(group[j].day) })

	name := "tokengate." + group[0].day.Format(dateLayout)
	if last := group[len(group)-1].day; !last.Equal(group[0].day) {
		name += "_" + last.Format(dateLayout)
	}
	name += ".zip"

	target := filepath.Join(a.dir, name)
	if err := writeZip(target, group); err != nil {
		return fmt.Errorf("create archive %s: %w", name, err)
	}

	for _, f := range group {
		if err := os.Remove(f.path); err != nil {
			a.logger.Error("failed to remove archived log", "file", f.path, "error", err)
		}
	}
	a.logger.Info("archived logs", "archive", name, "count", len(group))
	return nil
}

func writeZip(target string, files []datedFile) error {
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)

	for _, f := range files {
		if err := addEntry(zw, f.path); err != nil {
			zw.Close()
			out.Close()
			os.Remove(target)
			return err
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func addEntry(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// archiveMonth parses the first day of the month an archive covers. Range
// archives spanning two months are not produced by this package and are
// ignored rather than guessed at.
func archiveMonth(name string) (time.Time, bool) {
	m := datedZip.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	first, err := time.Parse(dateLayout, m[1])
	if err != nil {
		return time.Time{}, false
	}
	if m[2] != "" {
		last, err := time.Parse(dateLayout, m[2])
		if err != nil {
			return time.Time{}, false
		}
		if first.Year() != last.Year() || first.Month() != last.Month() {
			return time.Time{}, false
		}
	}
	return time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, first.Location()), true
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
}
