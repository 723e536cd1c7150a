package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/altafino/attachment-fetcher/internal/email"
	"github.com/altafino/attachment-fetcher/internal/email/attachment"
	"github.com/altafino/attachment-fetcher/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastSettings() Settings {
	return Settings{
		Concurrency: 3,
		Retry: RetryPolicy{
			MaxAttempts:  4,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		},
		ShutdownGrace: time.Second,
	}
}

// fakeClient serves fixed pages per folder. The page token is the decimal
// index of the next page.
type fakeClient struct {
	mu sync.Mutex

	pages    map[string][]email.Page
	listErrs []error

	content    map[string][]byte
	fetchErrs  map[string][]error
	fetchCalls map[string]int
	// fetchHook runs before every fetch when set.
	fetchHook func(ctx context.Context, a models.Attachment) error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pages:      map[string][]email.Page{},
		content:    map[string][]byte{},
		fetchErrs:  map[string][]error{},
		fetchCalls: map[string]int{},
	}
}

// addMessage appends msg to the last page of folder, or starts a new page.
func (c *fakeClient) addMessage(folder string, newPage bool, msg models.Message) {
	msg.Folder = folder
	pages := c.pages[folder]
	if newPage || len(pages) == 0 {
		pages = append(pages, email.Page{})
	}
	last := &pages[len(pages)-1]
	last.Messages = append(last.Messages, msg)
	c.pages[folder] = pages
	for _, a := range msg.Attachments {
		c.content[a.Handle] = []byte("content of " + a.Handle)
	}
}

func (c *fakeClient) ListMessages(ctx context.Context, folder, pageToken string) (email.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.listErrs) > 0 {
		err := c.listErrs[0]
		c.listErrs = c.listErrs[1:]
		return email.Page{}, err
	}

	idx := 0
	if pageToken != "" {
		var err error
		if idx, err = strconv.Atoi(pageToken); err != nil {
			return email.Page{}, fmt.Errorf("bad token %q", pageToken)
		}
	}
	pages := c.pages[folder]
	if idx >= len(pages) {
		return email.Page{}, nil
	}
	page := email.Page{Messages: pages[idx].Messages}
	if idx+1 < len(pages) {
		page.NextPageToken = strconv.Itoa(idx + 1)
	}
	return page, nil
}

func (c *fakeClient) FetchAttachmentContent(ctx context.Context, a models.Attachment) ([]byte, error) {
	if c.fetchHook != nil {
		if err := c.fetchHook(ctx, a); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fetchCalls[a.Handle]++
	if errs := c.fetchErrs[a.Handle]; len(errs) > 0 {
		c.fetchErrs[a.Handle] = errs[1:]
		if errs[0] != nil {
			return nil, errs[0]
		}
	}
	data, ok := c.content[a.Handle]
	if !ok {
		return nil, fmt.Errorf("unknown handle %s", a.Handle)
	}
	return data, nil
}

func (c *fakeClient) Close() error { return nil }

func (c *fakeClient) calls(handle string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchCalls[handle]
}

func (c *fakeClient) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.fetchCalls {
		n += v
	}
	return n
}

func msgWith(id string, date time.Time, files ...string) models.Message {
	m := models.Message{
		ID:      id,
		Sender:  "Alice <alice@example.com>",
		Subject: "Invoice " + id,
		Date:    date,
	}
	for i, f := range files {
		m.Attachments = append(m.Attachments, models.Attachment{
			Filename: f,
			MimeType: "application/pdf",
			Size:     int64(10 + i),
			Handle:   fmt.Sprintf("%s:%d", id, i),
		})
	}
	return m
}

// memStorage keeps saved content in memory and can fail chosen paths.
type memStorage struct {
	mu       sync.Mutex
	files    map[string][]byte
	existing map[string]bool
	failPath map[string]bool
}

func newMemStorage() *memStorage {
	return &memStorage{
		files:    map[string][]byte{},
		existing: map[string]bool{},
		failPath: map[string]bool{},
	}
}

func (s *memStorage) Save(ctx context.Context, relPath string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPath[relPath] {
		return "", &attachment.FilesystemError{Op: "write", Path: relPath, Err: fmt.Errorf("disk full")}
	}
	s.files[relPath] = content
	return "mem://" + relPath, nil
}

func (s *memStorage) Exists(ctx context.Context, relPath string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, saved := s.files[relPath]
	return saved || s.existing[relPath], nil
}

type fakeTracker struct {
	mu         sync.Mutex
	downloaded map[string]bool
	marked     []string
}

func (t *fakeTracker) IsDownloaded(ctx context.Context, a models.Attachment) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloaded[a.Handle], nil
}

func (t *fakeTracker) MarkDownloaded(ctx context.Context, a models.Attachment, location string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marked = append(t.marked, location)
	return nil
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []models.JobResult
}

func (j *fakeJournal) LogJobFailure(runID string, job models.JobResult, a models.Attachment, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, job)
	return nil
}
