package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/samuelogino/taskpay/internal/config"
)

const (
	FolderSubmissions = "submissions"
	FolderAvatars     = "avatars"

	// LocalUploadPrefix is the URL path the local upload directory is served under.
	LocalUploadPrefix = "/uploads/"
)

var ErrUnsupportedFile = errors.New("unsupported file type")

var allowedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true,
}

// Upload is a file received from a form.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

func (upload Upload) Empty() bool {
	return upload.Content == nil || upload.Size == 0 || upload.Filename == ""
}

// Storage persists uploaded images and returns a reference usable as an
// image URL.
type Storage interface {
	Save(ctx context.Context, folder string, upload Upload) (string, error)
	Delete(ctx context.Context, reference string) error
}

func NewStorage(cfg config.Config) (Storage, error) {
	if cfg.CloudinaryURL == "" {
		slog.Info("storing uploads on local disk", "directory", cfg.UploadDir)
		return NewLocalStorage(cfg.UploadDir), nil
	}

	client, err := cloudinary.NewFromURL(cfg.CloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("creating cloudinary client: %w", err)
	}
	slog.Info("storing uploads on cloudinary", "cloud", client.Config.Cloud.CloudName)
	return &CloudinaryStorage{client: client, rootFolder: "taskpay"}, nil
}

func imageExtension(filename string) (string, error) {
	extension := strings.ToLower(filepath.Ext(filename))
	if !allowedImageExtensions[extension] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, extension)
	}
	return extension, nil
}

type LocalStorage struct {
	directory string
}

func NewLocalStorage(directory string) *LocalStorage {
	return &LocalStorage{directory: directory}
}

func (storage *LocalStorage) Directory() string {
	return storage.directory
}

func (storage *LocalStorage) Save(ctx context.Context, folder string, upload Upload) (string, error) {
	extension, err := imageExtension(upload.Filename)
	if err != nil {
		return "", err
	}

	targetDirectory := filepath.Join(storage.directory, folder)
	if err := os.MkdirAll(targetDirectory, 0755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}

	name := uuid.New().String() + extension
	target := filepath.Join(targetDirectory, name)
	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}

	if _, err := io.Copy(file, upload.Content); err != nil {
		file.Close()
		os.Remove(target)
		return "", fmt.Errorf("writing upload file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("closing upload file: %w", err)
	}

	return LocalUploadPrefix + path.Join(folder, name), nil
}

func (storage *LocalStorage) Delete(ctx context.Context, reference string) error {
	relative, ok := strings.CutPrefix(reference, LocalUploadPrefix)
	if !ok {
		return fmt.Errorf("not a local upload: %q", reference)
	}
	cleaned := filepath.Clean(filepath.FromSlash(relative))
	if strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("upload path escapes storage: %q", reference)
	}
	if err := os.Remove(filepath.Join(storage.directory, cleaned)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing upload: %w", err)
	}
	return nil
}

type CloudinaryStorage struct {
	client     *cloudinary.Cloudinary
	rootFolder string
}

func (storage *CloudinaryStorage) Save(ctx context.Context, folder string, upload Upload) (string, error) {
	if _, err := imageExtension(upload.Filename); err != nil {
		return "", err
	}

	result, err := storage.client.Upload.Upload(ctx, upload.Content, uploader.UploadParams{
		PublicID: uuid.New().String(),
		Folder:   path.Join(storage.rootFolder, folder),
	})
	if err != nil {
		return "", fmt.Errorf("uploading to cloudinary: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("uploading to cloudinary: %s", result.Error.Message)
	}
	return result.SecureURL, nil
}

func (storage *CloudinaryStorage) Delete(ctx context.Context, reference string) error {
	publicID, err := cloudinaryPublicID(reference)
	if err != nil {
		return err
	}
	if _, err := storage.client.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("deleting from cloudinary: %w", err)
	}
	return nil
}

// cloudinaryPublicID extracts "folder/name" from a delivery URL such as
// https://res.cloudinary.com/demo/image/upload/v1712/taskpay/avatars/abc.png.
func cloudinaryPublicID(reference string) (string, error) {
	parsed, err := url.Parse(reference)
	if err != nil {
		return "", fmt.Errorf("parsing cloudinary url: %w", err)
	}
	_, rest, found := strings.Cut(parsed.Path, "/upload/")
	if !found {
		return "", fmt.Errorf("not a cloudinary upload url: %q", reference)
	}
	segments := strings.Split(rest, "/")
	if len(segments) > 1 && isVersionSegment(segments[0]) {
		segments = segments[1:]
	}
	publicID := strings.Join(segments, "/")
	return strings.TrimSuffix(publicID, path.Ext(publicID)), nil
}

func isVersionSegment(segment string) bool {
	digits, ok := strings.CutPrefix(segment, "v")
	if !ok || digits == "" {
		return false
	}
	_, err := strconv.ParseUint(digits, 10, 64)
	return err == nil
}
