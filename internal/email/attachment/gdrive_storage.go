package attachment

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/altafino/attachment-fetcher/internal/email/parser"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// GDriveStorage implements AttachmentStorage for Google Drive
type GDriveStorage struct {
	logger   *slog.Logger
	service  *drive.Service
	parentID string // Google Drive folder ID where files will be stored

	mu      sync.Mutex
	folders map[string]string // relative dir -> folder id
}

// NewGDriveStorage creates a Google Drive storage. With a credentials file
// and no options the service authenticates from that file.
func NewGDriveStorage(ctx context.Context, logger *slog.Logger, parentFolderID, credentialsFile string, opts ...option.ClientOption) (*GDriveStorage, error) {
	if len(opts) == 0 {
		if credentialsFile == "" {
			return nil, fmt.Errorf("gdrive storage requires credentials_file")
		}
		opts = []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
	}
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive client: %w", err)
	}
	if parentFolderID == "" {
		parentFolderID = "root"
	}

	return &GDriveStorage{
		logger:   logger,
		service:  service,
		parentID: parentFolderID,
		folders:  map[string]string{"": parentFolderID},
	}, nil
}

// Save uploads content and returns the Drive file id.
func (gd *GDriveStorage) Save(ctx context.Context, relPath string, content []byte) (string, error) {
	dir, name := path.Split(path.Clean(relPath))
	folderID, err := gd.ensureFolderStructure(ctx, strings.Trim(dir, "/"))
	if err != nil {
		return "", fmt.Errorf("failed to ensure folder structure: %w", err)
	}

	file := &drive.File{
		Name:     name,
		Parents:  []string{folderID},
		MimeType: mimeTypeFor(name),
	}
	uploaded, err := gd.service.Files.Create(file).Media(bytes.NewReader(content)).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	gd.logger.Debug("file uploaded",
		"filename", name,
		"id", uploaded.Id,
		"size", len(content))
	return uploaded.Id, nil
}

// Exists reports whether a file named like relPath exists in its folder.
func (gd *GDriveStorage) Exists(ctx context.Context, relPath string) (bool, error) {
	dir, name := path.Split(path.Clean(relPath))
	folderID, err := gd.ensureFolderStructure(ctx, strings.Trim(dir, "/"))
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(folderID))
	list, err := gd.service.Files.List().Q(query).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("failed to search for file: %w", err)
	}
	return len(list.Files) > 0, nil
}

func (gd *GDriveStorage) ensureFolderStructure(ctx context.Context, dir string) (string, error) {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	if id, ok := gd.folders[dir]; ok {
		return id, nil
	}

	currentParentID := gd.parentID
	walked := ""
	for _, part := range strings.Split(dir, "/") {
		if part == "" {
			continue
		}
		walked = path.Join(walked, part)
		if id, ok := gd.folders[walked]; ok {
			currentParentID = id
			continue
		}

		query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
			escapeQuery(part), escapeQuery(currentParentID), driveFolderMimeType)
		fileList, err := gd.service.Files.List().Q(query).Fields("files(id)").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to search for folder: %w", err)
		}

		if len(fileList.Files) > 0 {
			currentParentID = fileList.Files[0].Id
		} else {
			folder := &drive.File{
				Name:     part,
				MimeType: driveFolderMimeType,
				Parents:  []string{currentParentID},
			}
			created, err := gd.service.Files.Create(folder).Fields("id").Context(ctx).Do()
			if err != nil {
				return "", fmt.Errorf("failed to create folder: %w", err)
			}
			currentParentID = created.Id
		}
		gd.folders[walked] = currentParentID
	}
	return currentParentID, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

var extToMime = func() map[string]string {
	types := make([]string, 0, len(parser.MimeToExt))
	for t := range parser.MimeToExt {
		types = append(types, t)
	}
	sort.Strings(types)
	m := make(map[string]string, len(types))
	for _, t := range types {
		ext := parser.MimeToExt[t]
		if _, ok := m[ext]; !ok {
			m[ext] = t
		}
	}
	return m
}()

func mimeTypeFor(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if t, ok := extToMime[ext]; ok {
		return t
	}
	return "application/octet-stream"
}
