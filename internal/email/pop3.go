package email

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/altafino/attachment-fetcher/internal/email/parser"
	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/knadh/go-pop3"
)

type POP3Options struct {
	Server     string
	Port       int
	TLS        bool
	VerifyCert bool
	Username   string
	Password   string
	PageSize   int
}

// POP3Client exposes the single INBOX of a POP3 maildrop. The protocol has
// no part-level fetch, so listing retrieves whole messages and parses them.
// One connection is shared and guarded by a mutex.
type POP3Client struct {
	opts   POP3Options
	logger *slog.Logger

	mu       sync.Mutex
	conn     *pop3.Conn
	messages []pop3.MessageID
	uidl     map[int]string
}

func NewPOP3Client(opts POP3Options, logger *slog.Logger) *POP3Client {
	return &POP3Client{
		opts:   opts,
		logger: logger,
	}
}

// connect must be called with mu held.
func (c *POP3Client) connect() (*pop3.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	c.logger.Debug("connecting to POP3 server",
		"server", c.opts.Server,
		"port", c.opts.Port,
		"tls_enabled", c.opts.TLS,
		"username", c.opts.Username)

	p := pop3.New(pop3.Opt{
		Host:          c.opts.Server,
		Port:          c.opts.Port,
		TLSEnabled:    c.opts.TLS,
		TLSSkipVerify: !c.opts.VerifyCert,
	})

	conn, err := p.NewConn()
	if err != nil {
		return nil, classify(ProviderPOP3, fmt.Errorf("failed to connect: %w", err))
	}

	if err := conn.Auth(c.opts.Username, c.opts.Password); err != nil {
		conn.Quit()
		classified := classify(ProviderPOP3, fmt.Errorf("authentication failed: %w", err))
		if IsRetryable(classified) {
			return nil, classified
		}
		return nil, &AuthError{Provider: ProviderPOP3, Err: err}
	}

	c.logger.Debug("connected to POP3 server")
	c.conn = conn
	return conn, nil
}

// drop discards the connection after a transport failure; must be called
// with mu held.
func (c *POP3Client) drop(err error) {
	if c.conn == nil || !IsTransient(err) {
		return
	}
	c.conn.Quit()
	c.conn = nil
	c.messages = nil
	c.uidl = nil
}

// ListMessages lists INBOX. Page tokens are decimal offsets into the
// message list taken on the first page.
func (c *POP3Client) ListMessages(ctx context.Context, folder, pageToken string) (Page, error) {
	if !isInbox(folder) {
		return Page{}, fmt.Errorf("POP3 only supports INBOX, got %q", folder)
	}
	offset, err := parseOffsetToken(pageToken)
	if err != nil {
		return Page{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect()
	if err != nil {
		return Page{}, err
	}

	if pageToken == "" || c.messages == nil {
		if err := c.refreshList(conn); err != nil {
			c.drop(err)
			return Page{}, err
		}
	}

	total := len(c.messages)
	if offset >= total {
		return Page{}, nil
	}
	end := min(offset+c.opts.PageSize, total)

	page := Page{NextPageToken: nextOffsetToken(end, total)}
	for _, id := range c.messages[offset:end] {
		if err := ctx.Err(); err != nil {
			return Page{}, err
		}

		msg, err := c.retrieve(conn, id.ID)
		if err != nil {
			if IsRetryable(err) {
				c.drop(err)
				return Page{}, err
			}
			c.logger.Warn("skipping unparsable message", "msg_no", id.ID, "error", err)
			continue
		}
		page.Messages = append(page.Messages, c.toMessage(id.ID, msg))
	}

	c.logger.Debug("listed POP3 page", "offset", offset, "messages", len(page.Messages), "total", total)
	return page, nil
}

func (c *POP3Client) refreshList(conn *pop3.Conn) error {
	count, size, err := conn.Stat()
	if err != nil {
		return classify(ProviderPOP3, fmt.Errorf("failed to get mailbox stats: %w", err))
	}
	c.logger.Debug("mailbox stats", "messages", count, "total_size", size)

	messages, err := conn.List(0)
	if err != nil {
		return classify(ProviderPOP3, fmt.Errorf("failed to list messages: %w", err))
	}
	c.messages = messages

	c.uidl = make(map[int]string, len(messages))
	uids, err := conn.Uidl(0)
	if err != nil {
		// UIDL is optional in POP3; fall back to Message-ID headers.
		c.logger.Debug("UIDL not supported", "error", err)
		return nil
	}
	for _, u := range uids {
		c.uidl[u.ID] = u.UID
	}
	return nil
}

func (c *POP3Client) retrieve(conn *pop3.Conn, msgNo int) (*parser.Message, error) {
	raw, err := conn.RetrRaw(msgNo)
	if err != nil {
		return nil, classify(ProviderPOP3, fmt.Errorf("failed to retrieve message %d: %w", msgNo, err))
	}
	msg, err := parser.ParseMessage(raw.Bytes(), c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %d: %w", msgNo, err)
	}
	return msg, nil
}

func (c *POP3Client) toMessage(msgNo int, msg *parser.Message) models.Message {
	id := c.uidl[msgNo]
	if id == "" {
		id = msg.MessageID
	}
	if id == "" {
		id = strconv.Itoa(msgNo)
	}

	m := models.Message{
		ID:      id,
		Folder:  "INBOX",
		Sender:  msg.Sender,
		Subject: msg.Subject,
		Date:    msg.Date,
	}
	for i, part := range msg.Attachments {
		m.Attachments = append(m.Attachments, models.Attachment{
			Filename: part.Filename,
			MimeType: part.ContentType,
			Size:     int64(len(part.Content)),
			Handle:   fmt.Sprintf("%d:%d", msgNo, i),
		})
	}
	return m
}

// FetchAttachmentContent retrieves the message again and returns the
// indexed attachment.
func (c *POP3Client) FetchAttachmentContent(ctx context.Context, a models.Attachment) ([]byte, error) {
	msgNo, index, err := parsePOP3Handle(a.Handle)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect()
	if err != nil {
		return nil, err
	}
	msg, err := c.retrieve(conn, msgNo)
	if err != nil {
		c.drop(err)
		return nil, err
	}
	if index >= len(msg.Attachments) {
		return nil, fmt.Errorf("message %d has no attachment %d", msgNo, index)
	}
	return msg.Attachments[index].Content, nil
}

// ListFolders reports the only folder POP3 has.
func (c *POP3Client) ListFolders(ctx context.Context) ([]string, error) {
	return []string{"INBOX"}, nil
}

func (c *POP3Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Quit()
	c.conn = nil
	return err
}

func parsePOP3Handle(handle string) (int, int, error) {
	msgPart, indexPart, ok := strings.Cut(handle, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid POP3 handle %q", handle)
	}
	msgNo, err := strconv.Atoi(msgPart)
	if err != nil || msgNo <= 0 {
		return 0, 0, fmt.Errorf("invalid POP3 handle %q", handle)
	}
	index, err := strconv.Atoi(indexPart)
	if err != nil || index < 0 {
		return 0, 0, fmt.Errorf("invalid POP3 handle %q", handle)
	}
	return msgNo, index, nil
}
