package practice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/practiceadmin/internal/browse"
	"github.com/simp-lee/practiceadmin/internal/domain"
	"github.com/simp-lee/practiceadmin/internal/middleware"
	"github.com/simp-lee/practiceadmin/internal/pkg"
)

// Columns of the practice table that can be sorted, in display order.
var sortableColumns = []struct{ ID, Label string }{
	{"name", "Name"},
	{"address_line_1", "Address"},
}

var weekdayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Fragments renders a named template outside of a gin response, for
// server-sent events.
type Fragments interface {
	ExecuteTemplate(w io.Writer, name string, data any) error
}

// PageOptions configures a PageHandler. Zero values are replaced with
// defaults.
type PageOptions struct {
	// PageSize is the upstream page size, used to count pages.
	PageSize int
	// WaitTimeout bounds how long a table request waits for its fetches
	// before rendering the loading state.
	WaitTimeout time.Duration
	// Heartbeat is the interval of keep-alive events on the table stream.
	Heartbeat time.Duration
	Tracker   *browse.Tracker
	Observer  browse.Observer
	Logger    *slog.Logger
	Now       func() time.Time
}

// PageHandler serves the practice pages and the htmx endpoints of the
// practice table.
type PageHandler struct {
	api       PracticeAPI
	views     *ViewStore
	forms     *FormParser
	fragments Fragments
	opts      PageOptions
}

// NewPageHandler creates a PageHandler.
func NewPageHandler(api PracticeAPI, views *ViewStore, fragments Fragments, opts PageOptions) *PageHandler {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 10 * time.Second
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 25 * time.Second
	}
	if opts.Tracker == nil {
		opts.Tracker = browse.NewTracker()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PageHandler{
		api:       api,
		views:     views,
		forms:     NewFormParser(),
		fragments: fragments,
		opts:      opts,
	}
}

// Column is a sortable table header.
type Column struct {
	ID        string
	Label     string
	Direction browse.Direction
}

// TableData is what the practice table fragment renders. Pages is the
// window of page numbers the pager links to.
type TableData struct {
	ViewID       string
	Search       string
	Page         int
	TotalPages   int
	Pages        []int
	PreviousPage *int
	NextPage     *int
	Count        int
	Practices    []domain.Practice
	Columns      []Column
	Ordering     string
	Searching    bool
	Loading      bool
	CanEdit      bool
	CSRFToken    string
}

// ListPage renders the practice list with a fresh table view.
// GET /practice?q=&page=&ordering=
func (h *PageHandler) ListPage(c *gin.Context) {
	ctx := c.Request.Context()
	p := middleware.CurrentPrincipal(c)

	var loadErr string
	initial, err := h.api.All(ctx, browse.Query{Page: 1})
	if err != nil {
		slog.WarnContext(ctx, "practice list: initial fetch failed", slog.Any("error", err))
		loadErr = "The practice list could not be loaded. Try again shortly."
		initial = nil
	}

	spec := sortableSpec(browse.ParseOrdering(c.Query("ordering")))
	session := browse.NewSession[domain.Practice](h.api, browse.NewSortState(spec), initial, browse.Options{
		Tracker:  h.opts.Tracker,
		Logger:   h.opts.Logger,
		Observer: h.opts.Observer,
	})

	search := strings.TrimSpace(c.Query("q"))
	page, _ := strconv.Atoi(c.Query("page"))
	if search == "" && initial != nil {
		page = h.clampPage(ctx, page, initial.Count)
	}
	if search != "" || page > 1 {
		session.SetQuery(search, page)
	}

	v := h.views.Open(ownerOf(p), session)
	h.settle(ctx, v)

	c.HTML(http.StatusOK, "practice/list.html", gin.H{
		"Table":     h.table(c, v.id, v.session.Snapshot()),
		"Error":     loadErr,
		"Principal": p,
		"CSRFToken": middleware.GetCSRFToken(c),
	})
}

// Search sets the search text of a table view and returns to page 1.
// POST /practice/view/:view/search
func (h *PageHandler) Search(c *gin.Context) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}
	v.session.SetQuery(strings.TrimSpace(c.PostForm("q")), 1)
	h.renderTable(c, v)
}

// Sort advances the sort direction of a column and returns to page 1.
// POST /practice/view/:view/sort/:field
func (h *PageHandler) Sort(c *gin.Context) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}
	field := c.Param("field")
	if !isSortable(field) {
		middleware.ToastOnly(c, "This column cannot be sorted.", middleware.ToastError)
		return
	}
	v.session.SetSort(v.session.Sort().Get().Toggle(field), 1)
	h.renderTable(c, v)
}

// Page moves a table view to another page, clamped to the pages available.
// POST /practice/view/:view/page
func (h *PageHandler) Page(c *gin.Context) {
	v, ok := h.lookup(c)
	if !ok {
		return
	}
	page, err := strconv.Atoi(c.PostForm("page"))
	if err != nil {
		middleware.ToastOnly(c, "Invalid page number.", middleware.ToastError)
		return
	}
	snap := v.session.Snapshot()
	var count int
	if snap.Dataset != nil {
		count = snap.Dataset.Count
	}
	v.session.SetPage(h.clampPage(c.Request.Context(), page, count))
	h.renderTable(c, v)
}

// Events streams the table of a view as server-sent events whenever its
// dataset changes.
// GET /practice/view/:view/events
func (h *PageHandler) Events(c *gin.Context) {
	p := middleware.CurrentPrincipal(c)
	v, ok := h.views.Get(c.Param("view"), ownerOf(p))
	if !ok {
		// 204 tells EventSource not to reconnect.
		c.Status(http.StatusNoContent)
		return
	}
	ctx := c.Request.Context()
	csrf := middleware.GetCSRFToken(c)
	canEdit := p.IsAdmin()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.opts.Heartbeat)
	defer heartbeat.Stop()

	changed := v.session.Changed()
	last := v.session.Snapshot().Version
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			// Keep the view alive while someone is watching it.
			if _, ok := h.views.Get(v.id, ownerOf(p)); !ok {
				return false
			}
			c.SSEvent("ping", "")
			return true
		case <-changed:
			changed = v.session.Changed()
			if v.session.Closed() {
				return false
			}
			snap := v.session.Snapshot()
			if snap.Loading || snap.Version == last {
				return true
			}
			last = snap.Version

			data := h.tableData(ctx, v.id, snap, canEdit, csrf)
			var buf bytes.Buffer
			if err := h.fragments.ExecuteTemplate(&buf, "practice/table.html", data); err != nil {
				slog.ErrorContext(ctx, "practice table: render failed", slog.Any("error", err))
				return false
			}
			c.SSEvent("table", buf.String())
			return true
		}
	})
}

// NewPage renders the add form with its defaults. Discarding the form
// reloads this page.
// GET /practice/new
func (h *PageHandler) NewPage(c *gin.Context) {
	h.renderForm(c, http.StatusOK, DefaultForm(h.opts.Now()), nil, "")
}

// EditPage renders the edit form of a practice. Staff without the admin
// role see it read-only.
// GET /practice/:id
func (h *PageHandler) EditPage(c *gin.Context) {
	id, ok := pagePracticeID(c)
	if !ok {
		return
	}
	practice, err := h.api.Get(c.Request.Context(), id)
	if err != nil {
		h.renderFailure(c, err)
		return
	}
	h.renderForm(c, http.StatusOK, FormFromPractice(practice), nil, "")
}

// Create handles the add form.
// POST /practice
func (h *PageHandler) Create(c *gin.Context) {
	f, ok := h.parseForm(c, 0)
	if !ok {
		return
	}
	created, err := h.api.Create(c.Request.Context(), f.Practice())
	if err != nil {
		h.renderForm(c, http.StatusOK, f, nil, safeMessage(err, "The practice could not be created. Try again shortly."))
		return
	}
	slog.InfoContext(c.Request.Context(), "practice created", slog.Int64("practice_id", created.ID))
	middleware.TriggerToast(c, "Practice created.", middleware.ToastSuccess)
	middleware.Redirect(c, "/practice")
}

// Update handles the edit form.
// PUT /practice/:id
func (h *PageHandler) Update(c *gin.Context) {
	id, ok := pagePracticeID(c)
	if !ok {
		return
	}
	f, ok := h.parseForm(c, id)
	if !ok {
		return
	}
	if _, err := h.api.Update(c.Request.Context(), id, f.Practice()); err != nil {
		if domain.IsNotFound(err) {
			h.renderFailure(c, err)
			return
		}
		h.renderForm(c, http.StatusOK, f, nil, safeMessage(err, "The practice could not be saved. Try again shortly."))
		return
	}
	slog.InfoContext(c.Request.Context(), "practice updated", slog.Int64("practice_id", id))
	middleware.TriggerToast(c, "Practice saved.", middleware.ToastSuccess)
	middleware.Redirect(c, "/practice")
}

// Delete removes a practice. From the table the row is replaced by the
// empty response; with ?redirect=1 the browser returns to the list.
// DELETE /practice/:id
func (h *PageHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.ToastOnly(c, "Invalid practice id.", middleware.ToastError)
		return
	}
	if err := h.api.Delete(c.Request.Context(), id); err != nil {
		if domain.IsNotFound(err) {
			middleware.ToastOnly(c, "The practice does not exist or was already deleted.", middleware.ToastError)
			return
		}
		middleware.ToastOnly(c, "The practice could not be deleted. Try again shortly.", middleware.ToastError)
		return
	}
	slog.InfoContext(c.Request.Context(), "practice deleted", slog.Int64("practice_id", id))
	middleware.TriggerToast(c, "Practice deleted.", middleware.ToastSuccess)
	if c.Query("redirect") != "" {
		middleware.Redirect(c, "/practice")
		return
	}
	c.Status(http.StatusOK)
}

// Invite asks the practice API to invite a user to a practice.
// POST /practice/:id/invite
func (h *PageHandler) Invite(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.ToastOnly(c, "Invalid practice id.", middleware.ToastError)
		return
	}
	var req InviteRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.ToastOnly(c, "Enter a valid email address.", middleware.ToastError)
		return
	}
	if err := h.api.Invite(c.Request.Context(), id, req.Email); err != nil {
		middleware.ToastOnly(c, safeMessage(err, "The invitation could not be sent. Try again shortly."), middleware.ToastError)
		return
	}
	middleware.ToastOnly(c, "Invitation sent to "+req.Email+".", middleware.ToastSuccess)
}

// Close closes every open table view.
func (h *PageHandler) Close() {
	h.views.Close()
}

// lookup finds the table view named in the URL. A view that expired sends
// the browser back to a fresh list.
func (h *PageHandler) lookup(c *gin.Context) (*View, bool) {
	v, ok := h.views.Get(c.Param("view"), ownerOf(middleware.CurrentPrincipal(c)))
	if !ok {
		middleware.TriggerToast(c, "The table expired and was reloaded.", middleware.ToastInfo)
		middleware.Redirect(c, "/practice")
		return nil, false
	}
	return v, true
}

// settle waits for the fetches of v, up to the configured timeout.
func (h *PageHandler) settle(ctx context.Context, v *View) {
	ctx, cancel := context.WithTimeout(ctx, h.opts.WaitTimeout)
	defer cancel()
	if err := v.session.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.DebugContext(ctx, "practice table: rendering before fetches settled", slog.String("view", v.id))
	}
}

// clampPage limits page to the pages count matches fill.
func (h *PageHandler) clampPage(ctx context.Context, page, count int) int {
	pager, err := pkg.Pager[domain.Practice](ctx, nil, count, h.opts.PageSize, page)
	if err != nil {
		return 1
	}
	return pager.CurrentPage
}

func (h *PageHandler) renderTable(c *gin.Context, v *View) {
	h.settle(c.Request.Context(), v)
	c.HTML(http.StatusOK, "practice/table.html", h.table(c, v.id, v.session.Snapshot()))
}

func (h *PageHandler) table(c *gin.Context, viewID string, snap browse.Snapshot[domain.Practice]) TableData {
	return h.tableData(c.Request.Context(), viewID, snap, middleware.CurrentPrincipal(c).IsAdmin(), middleware.GetCSRFToken(c))
}

func (h *PageHandler) tableData(ctx context.Context, viewID string, snap browse.Snapshot[domain.Practice], canEdit bool, csrf string) TableData {
	data := TableData{
		ViewID:     viewID,
		Search:     snap.Search,
		Page:       snap.Page,
		TotalPages: 1,
		Pages:      []int{snap.Page},
		Ordering:   snap.Sort.Ordering(),
		Searching:  snap.Searching,
		Loading:    snap.Loading,
		CanEdit:    canEdit,
		CSRFToken:  csrf,
	}
	if snap.Dataset != nil {
		data.Count = snap.Dataset.Count
		data.Practices = snap.Dataset.Results
		if pager, err := pkg.Pager(ctx, snap.Dataset.Results, snap.Dataset.Count, h.opts.PageSize, snap.Page); err == nil {
			data.Page = pager.CurrentPage
			data.TotalPages = pager.TotalPages
			data.Pages = pager.Pages
			data.PreviousPage = pager.PreviousPage
			data.NextPage = pager.NextPage
		}
	}
	for _, col := range sortableColumns {
		data.Columns = append(data.Columns, Column{ID: col.ID, Label: col.Label, Direction: snap.Sort.DirectionOf(col.ID)})
	}
	return data
}

// parseForm decodes and validates the posted practice form. On failure it
// renders the form again and reports false.
func (h *PageHandler) parseForm(c *gin.Context, id int64) (*PracticeForm, bool) {
	if err := c.Request.ParseForm(); err != nil {
		h.renderForm(c, http.StatusOK, DefaultForm(h.opts.Now()), nil, "The form could not be read.")
		return nil, false
	}
	f, errs, err := h.forms.Parse(c.Request.PostForm)
	if err != nil {
		slog.DebugContext(c.Request.Context(), "practice form: decode error", slog.Any("error", err))
		h.renderForm(c, http.StatusOK, DefaultForm(h.opts.Now()), nil, "The form could not be read.")
		return nil, false
	}
	f.ID = id
	if errs != nil {
		h.renderForm(c, http.StatusOK, f, errs, "Check the highlighted fields.")
		return nil, false
	}
	return f, true
}

func (h *PageHandler) renderForm(c *gin.Context, status int, f *PracticeForm, errs FormErrors, msg string) {
	p := middleware.CurrentPrincipal(c)
	if f.Slug == "" && f.Name != "" {
		f.Slug = (&domain.Practice{Name: f.Name}).PublicSlug()
	}
	c.HTML(status, "practice/form.html", gin.H{
		"Form":      f,
		"IsEdit":    f.ID != 0,
		"ReadOnly":  !p.IsAdmin(),
		"Errors":    errs,
		"Error":     msg,
		"Weekdays":  weekdayNames,
		"Principal": p,
		"CSRFToken": middleware.GetCSRFToken(c),
	})
}

func (h *PageHandler) renderFailure(c *gin.Context, err error) {
	if domain.IsNotFound(err) {
		errorPage(c, http.StatusNotFound, "errors/404.html")
		return
	}
	slog.WarnContext(c.Request.Context(), "practice page: upstream failure", slog.Any("error", err))
	errorPage(c, domain.HTTPStatusCode(err), "errors/500.html")
}

func errorPage(c *gin.Context, status int, name string) {
	c.HTML(status, name, gin.H{
		"Status":    status,
		"Principal": middleware.CurrentPrincipal(c),
	})
}

// pagePracticeID parses the "id" URL parameter, rendering the 400 page when
// it is not a positive integer.
func pagePracticeID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		errorPage(c, http.StatusBadRequest, "errors/400.html")
		return 0, false
	}
	return id, true
}

// safeMessage returns a message for the user. Only messages of user-facing
// error codes pass through; upstream rejections name their status.
func safeMessage(err error, fallback string) string {
	var upErr *domain.UpstreamError
	if errors.As(err, &upErr) && upErr.Status >= 400 && upErr.Status < 500 {
		return fmt.Sprintf("The practice API rejected the request (status %d).", upErr.Status)
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		switch appErr.Code {
		case domain.CodeNotFound, domain.CodeValidation:
			return appErr.Message
		}
	}
	return fallback
}

// sortableSpec keeps only the keys of spec that name sortable columns.
func sortableSpec(spec browse.SortSpec) browse.SortSpec {
	var out browse.SortSpec
	for _, k := range spec {
		if isSortable(k.ID) {
			out = append(out, k)
		}
	}
	return out
}

func isSortable(field string) bool {
	return slices.ContainsFunc(sortableColumns, func(col struct{ ID, Label string }) bool {
		return col.ID == field
	})
}

func ownerOf(p *domain.Principal) uint {
	if p == nil {
		return 0
	}
	return p.StaffID
}
