package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/example/plantdx/internal/logging"
)

// FieldName is the multipart field carrying the image.
const FieldName = "image"

const createAttempts = 3

// Image describes a stored submission.
type Image struct {
	OriginalName string
	Extension    string
	ContentType  string
	Size         int64
	StorageName  string
	StoragePath  string
	PublicPath   string
}

// Accepted content types. Every one of them has a registered decoder and must decode.
var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/webp": true,
}

// Gateway validates uploads and writes them into a flat public directory.
type Gateway struct {
	dir          string
	publicPrefix string
	maxBytes     int64
	logger       *zap.Logger
	now          func() time.Time
	suffix       func(n int) (string, error)
}

// NewGateway returns a gateway storing into dir, reporting public paths under publicPrefix.
func NewGateway(dir, publicPrefix string, maxBytes int64, logger *zap.Logger) *Gateway {
	return &Gateway{
		dir:          dir,
		publicPrefix: publicPrefix,
		maxBytes:     maxBytes,
		logger:       logger.Named("upload_gateway"),
		now:          time.Now,
		suffix:       RandomSuffix,
	}
}

// Dir is the directory images are written to.
func (g *Gateway) Dir() string {
	return g.dir
}

// Submit validates file and stores it. Validation failures are *ValidationError and
// happen before the upload directory is touched.
func (g *Gateway) Submit(ctx context.Context, file *multipart.FileHeader) (*Image, error) {
	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(g.logger, "upload.submit", requestID)

	data, contentType, err := g.validate(file)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			opLogger.Info("upload rejected", zap.String("reason", vErr.Reason))
		}
		return nil, err
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, logging.NewOperationError("upload.ensure_dir", requestID, err)
	}

	ext := ClientExtension(file.Filename)
	name, err := g.write(data, ext)
	if err != nil {
		return nil, logging.NewOperationError("upload.store", requestID, err)
	}

	img := &Image{
		OriginalName: file.Filename,
		Extension:    ext,
		ContentType:  contentType,
		Size:         int64(len(data)),
		StorageName:  name,
		StoragePath:  filepath.Join(g.dir, name),
		PublicPath:   path.Join(g.publicPrefix, name),
	}
	opLogger.Info("image stored",
		zap.String("storage_name", img.StorageName),
		zap.String("content_type", img.ContentType),
		zap.Int64("size", img.Size))
	return img, nil
}

func (g *Gateway) validate(file *multipart.FileHeader) ([]byte, string, error) {
	if file == nil {
		return nil, "", MissingField(FieldName)
	}
	if file.Size > g.maxBytes {
		return nil, "", TooLarge(FieldName, g.maxBytes)
	}

	src, err := file.Open()
	if err != nil {
		return nil, "", NotAnImage(FieldName)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, g.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > g.maxBytes {
		return nil, "", TooLarge(FieldName, g.maxBytes)
	}
	if len(data) == 0 {
		return nil, "", NotAnImage(FieldName)
	}

	detected := mimetype.Detect(data)
	var contentType string
	for m := detected; m != nil; m = m.Parent() {
		if imageTypes[m.String()] {
			contentType = m.String()
			break
		}
	}
	if contentType == "" {
		return nil, "", NotAnImage(FieldName)
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, "", NotAnImage(FieldName)
	}
	return data, contentType, nil
}

func (g *Gateway) write(data []byte, ext string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		suffix, err := g.suffix(suffixLength)
		if err != nil {
			return "", fmt.Errorf("generate suffix: %w", err)
		}
		name := StorageName(g.now(), suffix, ext)

		f, err := os.OpenFile(filepath.Join(g.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			lastErr = err
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", err
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return "", err
		}
		return name, nil
	}
	return "", fmt.Errorf("storage name collision after %d attempts: %w", createAttempts, lastErr)
}
