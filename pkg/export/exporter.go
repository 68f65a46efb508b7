package export

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resume-editor/pkg/view"

	"github.com/golang/glog"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	Filename  = "resume.pdf"
	MediaType = "application/pdf"
)

var (
	// ErrEmptyDocument means nothing has compiled successfully yet
	ErrEmptyDocument = errors.New("no compiled document to export yet")
	// ErrBadPayload means the published artifact could not be decoded
	ErrBadPayload = errors.New("artifact payload is not valid base64")
)

// Source yields the latest published artifact
type Source interface {
	LatestArtifact(ctx context.Context) (view.Artifact, bool, error)
}

// Download is a decoded artifact backed by a temporary file that only lives
// for the duration of the trigger call.
type Download struct {
	Filename  string
	MediaType string
	Revision  int64
	Size      int64
	// Pages is 0 when the bytes could not be parsed as a PDF
	Pages   int
	ModTime time.Time

	file *os.File
}

func (d *Download) Read(p []byte) (int, error) {
	return d.file.Read(p)
}

func (d *Download) Seek(offset int64, whence int) (int64, error) {
	return d.file.Seek(offset, whence)
}

// Bytes returns the whole artifact
func (d *Download) Bytes() ([]byte, error) {
	if _, err := d.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(d.file)
}

// Exporter turns the latest artifact into a download
type Exporter struct {
	source Source
	dir    string
	now    func() time.Time
}

// NewExporter stages downloads in dir, or in os.TempDir when dir is empty
func NewExporter(source Source, dir string) *Exporter {
	return &Exporter{source: source, dir: dir, now: time.Now}
}

// Export decodes the latest artifact and hands it to trigger. The temporary
// handle is released whether or not trigger succeeds.
func (e *Exporter) Export(ctx context.Context, trigger func(*Download) error) error {
	artifact, ok, err := e.source.LatestArtifact(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEmptyDocument
	}

	data, err := DecodePayload(artifact.Payload)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(e.dir, "export-*.pdf")
	if err != nil {
		return fmt.Errorf("failed to create export handle: %w", err)
	}
	defer func() {
		f.Close()
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			glog.Warningf("[export]cleanup %s = %s", f.Name(), err)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to stage export: %w", err)
	}

	d := &Download{
		Filename:  Filename,
		MediaType: MediaType,
		Revision:  artifact.Revision,
		Size:      int64(len(data)),
		ModTime:   e.now(),
		file:      f,
	}
	d.Pages = pageCount(f)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind export: %w", err)
	}
	glog.V(1).Infof("[export]r%d %d bytes %d pages", d.Revision, d.Size, d.Pages)

	return trigger(d)
}

// pageCount is informational; the rendering service is the authority on the bytes
func pageCount(rs io.ReadSeeker) (pages int) {
	defer func() {
		if rec := recover(); rec != nil {
			glog.Warningf("[export]pdfcpu panic = %v", rec)
			pages = 0
		}
	}()
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0
	}
	n, err := api.PageCount(rs, model.NewDefaultConfiguration())
	if err != nil {
		glog.V(1).Infof("[export]pdfcpu could not read artifact = %s", err)
		return 0
	}
	return n
}

// DecodePayload accepts raw base64 or a data:<type>;base64, URL
func DecodePayload(payload string) ([]byte, error) {
	p := strings.TrimSpace(payload)
	if strings.HasPrefix(p, "data:") {
		comma := strings.IndexByte(p, ',')
		if comma < 0 || !strings.HasSuffix(p[:comma], ";base64") {
			return nil, fmt.Errorf("%w: malformed data URL", ErrBadPayload)
		}
		p = p[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrBadPayload)
	}
	return data, nil
}

// ToFile returns a trigger that saves the download at path
func ToFile(path string) func(*Download) error {
	return func(d *Download) error {
		tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())

		if _, err := io.Copy(tmp, d); err != nil {
			tmp.Close()
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		return os.Rename(tmp.Name(), path)
	}
}
