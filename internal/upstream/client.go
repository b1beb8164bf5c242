// Package upstream is the client for the practice API the console manages.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/simp-lee/practiceadmin/internal/browse"
	"github.com/simp-lee/practiceadmin/internal/config"
	"github.com/simp-lee/practiceadmin/internal/domain"
)

// Operation names reported to the Recorder and used in log records.
const (
	OpAll     = "all"
	OpSearch  = "search"
	OpGet     = "get"
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpInvite  = "invite"
	OpForward = "forward"
)

// Recorder observes completed upstream calls. status is 0 when no response
// was received.
type Recorder interface {
	ObserveUpstream(op string, status int, elapsed time.Duration)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Token is sent as a bearer token. Ignored when OAuth2 is set.
	Token string
	// OAuth2 enables the client-credentials flow; tokens are fetched and
	// refreshed by the transport.
	OAuth2 *clientcredentials.Config
	// HTTPClient replaces the default transport. Ignored when OAuth2 is set.
	HTTPClient *http.Client
	Logger     *slog.Logger
	Recorder   Recorder
}

// Client calls the practice API.
type Client struct {
	http *resty.Client
	log  *slog.Logger
	rec  Recorder
}

// Raw is an upstream response relayed without interpretation.
type Raw struct {
	Status      int
	ContentType string
	Body        []byte
}

var _ browse.Fetcher[domain.Practice] = (*Client)(nil)

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("upstream base URL is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var rc *resty.Client
	switch {
	case opts.OAuth2 != nil:
		rc = resty.NewWithClient(opts.OAuth2.Client(context.Background()))
	case opts.HTTPClient != nil:
		rc = resty.NewWithClient(opts.HTTPClient)
	default:
		rc = resty.New()
	}

	rc.SetBaseURL(base).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{log: opts.Logger})
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	if opts.OAuth2 == nil && opts.Token != "" {
		rc.SetAuthToken(opts.Token)
	}

	return &Client{http: rc, log: opts.Logger, rec: opts.Recorder}, nil
}

// NewFromConfig builds a Client from the upstream configuration section.
func NewFromConfig(cfg *config.UpstreamConfig, log *slog.Logger, rec Recorder) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("upstream config is nil")
	}
	opts := Options{
		BaseURL:  cfg.BaseURL,
		Timeout:  config.Duration(cfg.Timeout, 10*time.Second),
		Token:    cfg.Token,
		Logger:   log,
		Recorder: rec,
	}
	if o := cfg.OAuth2; o.Enabled {
		cc := &clientcredentials.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			TokenURL:     o.TokenURL,
			Scopes:       o.Scopes,
		}
		if o.Audience != "" {
			cc.EndpointParams = url.Values{"audience": {o.Audience}}
		}
		opts.OAuth2 = cc
	}
	return New(opts)
}

// All fetches one page of every practice.
func (c *Client) All(ctx context.Context, q browse.Query) (*domain.PracticePage, error) {
	q.Name = ""
	var page domain.PracticePage
	if err := c.do(ctx, OpAll, http.MethodGet, "practices?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Search fetches one page of practices whose name matches q.Name.
func (c *Client) Search(ctx context.Context, q browse.Query) (*domain.PracticePage, error) {
	var page domain.PracticePage
	if err := c.do(ctx, OpSearch, http.MethodGet, "practices/search?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get fetches a single practice.
func (c *Client) Get(ctx context.Context, id int64) (*domain.Practice, error) {
	var p domain.Practice
	if err := c.do(ctx, OpGet, http.MethodGet, managePath(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create stores a new practice and returns it as saved upstream.
func (c *Client) Create(ctx context.Context, p *domain.Practice) (*domain.Practice, error) {
	var out domain.Practice
	if err := c.do(ctx, OpCreate, http.MethodPost, "practice/create", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces the practice with the given id.
func (c *Client) Update(ctx context.Context, id int64, p *domain.Practice) (*domain.Practice, error) {
	var out domain.Practice
	if err := c.do(ctx, OpUpdate, http.MethodPut, managePath(id), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the practice with the given id.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, OpDelete, http.MethodDelete, managePath(id), nil, nil)
}

// Invite asks the practice API to invite email as a user of the practice.
func (c *Client) Invite(ctx context.Context, id int64, email string) error {
	body := map[string]string{"email": email}
	return c.do(ctx, OpInvite, http.MethodPost, "practices/"+strconv.FormatInt(id, 10)+"/invite-user", body, nil)
}

// Forward sends body to path and returns the response whatever its status.
// Only transport failures are reported as errors.
func (c *Client) Forward(ctx context.Context, method, path, rawQuery string, body []byte) (*Raw, error) {
	target := strings.TrimPrefix(path, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	req := c.http.R().SetContext(ctx)
	if len(body) > 0 {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, target)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(OpForward, 0, elapsed)
		c.logFailure(ctx, OpForward, method, target, 0, err)
		return nil, transportError(err)
	}

	c.observe(OpForward, resp.StatusCode(), elapsed)
	c.log.DebugContext(ctx, "upstream request completed",
		slog.String("op", OpForward),
		slog.String("method", method),
		slog.String("path", target),
		slog.Int("status", resp.StatusCode()),
		slog.Duration("elapsed", elapsed),
	)
	return &Raw{
		Status:      resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	req := c.http.R().SetContext(ctx)
	if in != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(in)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(op, 0, elapsed)
		c.logFailure(ctx, op, method, path, 0, err)
		return transportError(err)
	}

	status := resp.StatusCode()
	c.observe(op, status, elapsed)

	if !resp.IsSuccess() {
		upErr := &domain.UpstreamError{Status: status, Body: resp.Body()}
		c.logFailure(ctx, op, method, path, status, upErr)
		if status == http.StatusNotFound {
			return domain.NewAppError(domain.CodeNotFound, "practice not found", upErr)
		}
		return domain.NewAppError(domain.CodeUpstream, "practice api rejected the request", upErr)
	}

	c.log.DebugContext(ctx, "upstream request completed",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Duration("elapsed", elapsed),
	)

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return domain.NewAppError(domain.CodeUpstream, "practice api returned an unreadable response", err)
	}
	return nil
}

func (c *Client) observe(op string, status int, elapsed time.Duration) {
	if c.rec != nil {
		c.rec.ObserveUpstream(op, status, elapsed)
	}
}

func (c *Client) logFailure(ctx context.Context, op, method, path string, status int, err error) {
	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	c.log.Log(ctx, level, "upstream request failed",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Any("error", err),
	)
}

// transportError keeps context errors visible to errors.Is while giving
// everything else the upstream code.
func transportError(err error) error {
	return domain.NewAppError(domain.CodeUpstream, "practice api unavailable", err)
}

func managePath(id int64) string {
	return fmt.Sprintf("practice/%d/manage", id)
}

// restyLogger routes resty's internal messages to slog.
type restyLogger struct {
	log *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "resty"))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "resty"))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "resty"))
}
