package sessions

import (
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/unicode/norm"

	"github.com/jonathan/taxform-extractor/internal/types"
)

var (
	unsafeChars  = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	markupPolicy = bluemonday.StrictPolicy()
	pdfcpuOnce   sync.Once
)

// errTooLarge is returned by the size-limited copy.
var errTooLarge = errors.New("file exceeds the upload size limit")

// SecureFilename reduces a client-supplied name to a safe base name:
// markup is stripped, the name is folded to ASCII, path separators and
// whitespace become underscores and any other character outside
// [A-Za-z0-9_.-] is dropped. The result may be empty.
func SecureFilename(name string) string {
	name = html.UnescapeString(markupPolicy.Sanitize(name))
	name = norm.NFKD.String(name)

	var ascii strings.Builder
	for _, r := range name {
		if r < 0x80 {
			ascii.WriteRune(r)
		}
	}
	name = strings.NewReplacer("/", " ", `\`, " ").Replace(ascii.String())
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// Save stores one uploaded PDF in the session. Files that are not PDFs,
// exceed maxBytes or cannot be parsed come back with status rejected and
// are not kept; only storage failures return an error.
func (s *Store) Save(session *types.Session, filename string, r io.Reader, maxBytes int64) (types.UploadedFile, error) {
	name := SecureFilename(filename)
	rejected := func(reason string) (types.UploadedFile, error) {
		s.logger.Warn("sessions.upload.rejected", "session_id", session.ID, "name", filename, "reason", reason)
		return types.UploadedFile{Name: name, Status: types.UploadStatusRejected, Error: reason}, nil
	}

	if name == "" || !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return rejected("only PDF files are accepted")
	}

	if err := os.MkdirAll(session.Dir, 0o750); err != nil {
		return types.UploadedFile{}, fmt.Errorf("create session directory: %w", err)
	}

	id, err := UniqueName(session.Dir, name)
	if err != nil {
		return types.UploadedFile{}, err
	}
	path := filepath.Join(session.Dir, id)

	size, err := writeLimited(path, r, maxBytes)
	if errors.Is(err, errTooLarge) {
		return rejected(err.Error())
	}
	if err != nil {
		return types.UploadedFile{}, err
	}

	pages, err := pageCount(path)
	if err != nil {
		_ = os.Remove(path)
		s.logger.Debug("sessions.upload.unreadable", "name", filename, "error", err)
		return rejected("not a readable PDF")
	}

	s.logger.Info("sessions.upload.saved", "session_id", session.ID, "id", id, "bytes", size, "pages", pages)
	return types.UploadedFile{
		ID:     id,
		Name:   name,
		Size:   size,
		Pages:  pages,
		Status: types.UploadStatusUploaded,
	}, nil
}

func writeLimited(path string, r io.Reader, maxBytes int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return 0, fmt.Errorf("write %s: %w", filepath.Base(path), copyErr)
	case closeErr != nil:
		_ = os.Remove(path)
		return 0, fmt.Errorf("close %s: %w", filepath.Base(path), closeErr)
	case maxBytes > 0 && n > maxBytes:
		_ = os.Remove(path)
		return 0, errTooLarge
	}
	return n, nil
}

// pageCount parses the file with relaxed validation and returns its page
// count.
func pageCount(path string) (int, error) {
	pdfcpuOnce.Do(api.DisableConfigDir)

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("failed to ensure page count: %w", err)
	}
	if ctx.PageCount < 1 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	return ctx.PageCount, nil
}
