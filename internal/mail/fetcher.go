package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/metrics"
	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/pkg/config"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

// ErrNotConfigured is returned when no server or credentials are set.
var ErrNotConfigured = errors.New("mailbox is not configured")

// Fetcher pulls messages from one IMAP mailbox.
type Fetcher struct {
	cfg config.IMAPConfig
	log *zap.Logger
	now func() time.Time
}

func NewFetcher(cfg config.IMAPConfig) *Fetcher {
	return &Fetcher{cfg: cfg, log: logger.Named("mail"), now: time.Now}
}

func (f *Fetcher) Configured() bool {
	return f.cfg.Server != "" && f.cfg.Username != "" && f.cfg.Password != ""
}

// FetchEmails returns up to Limit matching messages, newest first. Marking
// and moving happen after every message has been read; a failure there is
// logged and does not discard the fetched messages.
func (f *Fetcher) FetchEmails(ctx context.Context) ([]models.Email, error) {
	if !f.Configured() {
		return nil, ErrNotConfigured
	}

	c, err := f.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.Logout(); err != nil {
			f.log.Debug("IMAP logout failed", zap.Error(err))
		}
	}()

	// Unblock any in-flight command when the caller gives up.
	stop := context.AfterFunc(ctx, func() { c.Terminate() })
	defer stop()

	if err := c.Login(f.cfg.Username, f.cfg.Password); err != nil {
		return nil, fmt.Errorf("failed to log in to %s: %w", f.cfg.Server, err)
	}

	mailbox := f.cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	readOnly := !f.cfg.MarkAsRead && f.cfg.MoveToFolder == ""
	if _, err := c.Select(mailbox, readOnly); err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", mailbox, err)
	}

	uids, err := c.UidSearch(searchCriteria(f.cfg.Criteria, sinceFor(f.now(), f.cfg.Days)))
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}
	uids = latest(uids, f.cfg.Limit)
	if len(uids) == 0 {
		f.log.Info("No matching emails", zap.String("mailbox", mailbox), zap.String("criteria", f.cfg.Criteria))
		return []models.Email{}, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	emails, err := f.fetch(c, mailbox, seqset)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	f.postProcess(c, seqset)

	// Newest first.
	sort.SliceStable(emails, func(i, j int) bool { return emails[i].Date.After(emails[j].Date) })

	metrics.EmailsFetched.Add(float64(len(emails)))
	f.log.Info("Fetched emails", zap.String("mailbox", mailbox), zap.Int("count", len(emails)))
	return emails, nil
}

func (f *Fetcher) dial(ctx context.Context) (*client.Client, error) {
	port := f.cfg.Port
	if port == 0 {
		port = 993
	}
	addr := net.JoinHostPort(f.cfg.Server, fmt.Sprint(port))

	timeout := time.Duration(f.cfg.DialTimeoutSeconds) * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout == 0 || remaining < timeout {
			timeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: timeout}

	var (
		c   *client.Client
		err error
	)
	if f.cfg.TLS {
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: f.cfg.Server})
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if timeout > 0 {
		c.Timeout = timeout
	}
	return c, nil
}

func (f *Fetcher) fetch(c *client.Client, mailbox string, seqset *imap.SeqSet) ([]models.Email, error) {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var emails []models.Email
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			f.log.Warn("Server returned message without body", zap.Uint32("uid", msg.Uid))
			continue
		}
		email, err := ParseMessage(body, fmt.Sprintf("%s:%d", mailbox, msg.Uid))
		if err != nil {
			f.log.Warn("Skipping unparseable message", zap.Uint32("uid", msg.Uid), zap.Error(err))
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return emails, nil
}

func (f *Fetcher) postProcess(c *client.Client, seqset *imap.SeqSet) {
	if f.cfg.MarkAsRead {
		op := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.UidStore(seqset, op, []interface{}{imap.SeenFlag}, nil); err != nil {
			f.log.Warn("Failed to mark emails as read", zap.Error(err))
		}
	}
	if f.cfg.MoveToFolder != "" {
		if err := c.UidMove(seqset, f.cfg.MoveToFolder); err != nil {
			f.log.Warn("Failed to move emails", zap.String("folder", f.cfg.MoveToFolder), zap.Error(err))
		}
	}
}

func searchCriteria(name string, since time.Time) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	switch strings.ToUpper(name) {
	case "SEEN":
		criteria.WithFlags = []string{imap.SeenFlag}
	case "FLAGGED":
		criteria.WithFlags = []string{imap.FlaggedFlag}
	case "ALL":
	default:
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}
	criteria.Since = since
	return criteria
}

// latest keeps the limit highest uids. A non-positive limit keeps all.
func latest(uids []uint32, limit int) []uint32 {
	sorted := make([]uint32, len(uids))
	copy(sorted, uids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted
}
