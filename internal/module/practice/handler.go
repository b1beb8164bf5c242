package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/practiceadmin/internal/browse"
	"github.com/simp-lee/practiceadmin/internal/domain"
	"github.com/simp-lee/practiceadmin/internal/pkg"
	"github.com/simp-lee/practiceadmin/internal/upstream"
)

// PracticeAPI is the practice API client as used by this module.
type PracticeAPI interface {
	browse.Fetcher[domain.Practice]
	Get(ctx context.Context, id int64) (*domain.Practice, error)
	Create(ctx context.Context, p *domain.Practice) (*domain.Practice, error)
	Update(ctx context.Context, id int64, p *domain.Practice) (*domain.Practice, error)
	Delete(ctx context.Context, id int64) error
	Invite(ctx context.Context, id int64, email string) error
	Forward(ctx context.Context, method, path, rawQuery string, body []byte) (*upstream.Raw, error)
}

// InviteRequest is the body of an invite.
type InviteRequest struct {
	Email string `json:"email" form:"email" binding:"required,email"`
}

// ProxyHandler relays the JSON practice API to signed-in staff.
type ProxyHandler struct {
	api PracticeAPI
}

// NewProxyHandler creates a ProxyHandler over api.
func NewProxyHandler(api PracticeAPI) *ProxyHandler {
	return &ProxyHandler{api: api}
}

// All handles GET /api/practice/all.
func (h *ProxyHandler) All(c *gin.Context) {
	h.forward(c, http.MethodGet, "practices", c.Request.URL.RawQuery, nil)
}

// Search handles GET /api/practice/search.
func (h *ProxyHandler) Search(c *gin.Context) {
	h.forward(c, http.MethodGet, "practices/search", c.Request.URL.RawQuery, nil)
}

// Create handles POST /api/practice/create.
func (h *ProxyHandler) Create(c *gin.Context) {
	body, ok := jsonBody(c)
	if !ok {
		return
	}
	h.forward(c, http.MethodPost, "practice/create", "", body)
}

// Get handles GET /api/practice/:id/manage.
func (h *ProxyHandler) Get(c *gin.Context) {
	id, ok := practiceID(c)
	if !ok {
		return
	}
	h.forward(c, http.MethodGet, managePath(id), "", nil)
}

// Update handles PUT /api/practice/:id/manage.
func (h *ProxyHandler) Update(c *gin.Context) {
	id, ok := practiceID(c)
	if !ok {
		return
	}
	body, ok := jsonBody(c)
	if !ok {
		return
	}
	h.forward(c, http.MethodPut, managePath(id), "", body)
}

// Delete handles DELETE /api/practice/:id/manage. The upstream status is
// relayed with an empty JSON object.
func (h *ProxyHandler) Delete(c *gin.Context) {
	id, ok := practiceID(c)
	if !ok {
		return
	}
	raw, err := h.api.Forward(c.Request.Context(), http.MethodDelete, managePath(id), "", nil)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Relay(c, raw.Status, "application/json", nil)
}

// Invite handles POST /api/practice/:id/invite with body {"email": ...}.
func (h *ProxyHandler) Invite(c *gin.Context) {
	id, ok := practiceID(c)
	if !ok {
		return
	}
	var req InviteRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	body, _ := json.Marshal(req)
	h.forward(c, http.MethodPost, fmt.Sprintf("practices/%d/invite-user", id), "", body)
}

func (h *ProxyHandler) forward(c *gin.Context, method, path, rawQuery string, body []byte) {
	raw, err := h.api.Forward(c.Request.Context(), method, path, rawQuery, body)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Relay(c, raw.Status, raw.ContentType, raw.Body)
}

// jsonBody reads the request body and rejects anything that is not a JSON
// document.
func jsonBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, "request body must be a JSON document", err))
		return nil, false
	}
	return body, true
}

// practiceID parses the "id" URL parameter, answering 400 when it is not a
// positive integer.
func practiceID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, "invalid practice id: "+raw, nil))
		return 0, false
	}
	return id, true
}

func managePath(id int64) string {
	return fmt.Sprintf("practice/%d/manage", id)
}
