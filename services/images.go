package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

var ErrNotAnImage = errors.New("Not an image! Please upload only images.")

const jpegQuality = 90

// Output sizes for the two upload kinds.
const (
	UserPhotoSize = 500
	TourImageW    = 2000
	TourImageH    = 1333
)

// IsImage checks a declared MIME type such as "image/png".
func IsImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}

// ResizeJPEG crops src to fill w x h around the center and encodes the
// result as JPEG.
func ResizeJPEG(src io.Reader, w, h int) ([]byte, error) {
	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	img = imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ImageJob is one upload waiting to be resized and written.
type ImageJob struct {
	Open     func() (io.ReadCloser, error)
	Filename string
	Width    int
	Height   int
}

// ImageStore writes processed images below a public directory.
type ImageStore struct {
	root string
}

func NewImageStore(root string) *ImageStore {
	return &ImageStore{root: root}
}

func (s *ImageStore) Root() string {
	return s.root
}

// Save resizes one upload into dir/filename.
func (s *ImageStore) Save(dir string, job ImageJob) error {
	rc, err := job.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	data, err := ResizeJPEG(rc, job.Width, job.Height)
	if err != nil {
		return err
	}
	target := filepath.Join(s.root, dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	return os.WriteFile(filepath.Join(target, job.Filename), data, 0o644)
}

// SaveAll processes the jobs concurrently and returns the first failure.
func (s *ImageStore) SaveAll(ctx context.Context, dir string, jobs []ImageJob) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return s.Save(dir, job)
		})
	}
	return g.Wait()
}
