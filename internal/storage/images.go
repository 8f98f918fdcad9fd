package storage

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxImageSize = 5 << 20
	productDir   = "uploads/products"
)

var (
	ErrMissingExtension = errors.New("image file extension is required")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image file too large (max 5MB)")
)

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// ImageStore keeps product media on local disk below a public root. Stored
// paths are relative to that root and always start with "uploads/".
type ImageStore struct {
	root string
}

func NewImageStore(root string) *ImageStore {
	return &ImageStore{root: filepath.Clean(root)}
}

func (s *ImageStore) Save(file *multipart.FileHeader) (string, error) {
	extension := strings.ToLower(filepath.Ext(file.Filename))
	if extension == "" {
		return "", ErrMissingExtension
	}
	if _, ok := allowedExtensions[extension]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, extension)
	}
	if file.Size > MaxImageSize {
		return "", ErrImageTooLarge
	}

	dir := filepath.Join(s.root, filepath.FromSlash(productDir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[UPLOAD] [ERROR] create directory %s: %v", dir, err)
		return "", err
	}

	filename := uuid.NewString() + extension
	fullPath := filepath.Join(dir, filename)

	in, err := file.Open()
	if err != nil {
		log.Printf("[UPLOAD] [ERROR] open upload %s: %v", file.Filename, err)
		return "", err
	}
	defer in.Close()

	out, err := os.Create(fullPath)
	if err != nil {
		log.Printf("[UPLOAD] [ERROR] create file %s: %v", fullPath, err)
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		log.Printf("[UPLOAD] [ERROR] write file %s: %v", fullPath, err)
		os.Remove(fullPath)
		return "", err
	}

	log.Printf("[UPLOAD] [INFO] saved %s (%d bytes)", filename, file.Size)
	return path.Join(productDir, filename), nil
}

// Delete removes a previously saved file. Paths outside uploads/ or outside
// the root are refused; a missing file is not an error.
func (s *ImageStore) Delete(relPath string) error {
	trimmed := strings.TrimSpace(relPath)
	if trimmed == "" {
		return nil
	}

	cleanRel := strings.TrimPrefix(path.Clean("/"+strings.TrimPrefix(trimmed, "/")), "/")
	if !strings.HasPrefix(cleanRel, "uploads/") {
		return fmt.Errorf("refusing to delete non-upload path: %s", relPath)
	}

	target := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(cleanRel)))
	if !strings.HasPrefix(target, s.root+string(os.PathSeparator)) {
		return fmt.Errorf("refusing to delete path outside public root: %s", relPath)
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DeleteAll removes every path, logging failures instead of stopping.
func (s *ImageStore) DeleteAll(paths ...string) {
	for _, p := range paths {
		if err := s.Delete(p); err != nil {
			log.Printf("[UPLOAD] [WARN] delete %s: %v", p, err)
		}
	}
}
