package authz

import (
	"errors"
	"net/http"

	"github.com/dhawalhost/rowguard/pkg/middleware"
	"github.com/dhawalhost/rowguard/pkg/permission"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// registryACL guards operations on the resource registry itself, where no
// per-resource ACL exists yet.
var registryACL = permission.ACL{
	{Action: permission.Allow, Principal: "role:admin", Permissions: permission.NewPermissionSet("create")},
}

// HTTPHandler handles authorization HTTP requests.
type HTTPHandler struct {
	svc         Service
	perms       *middleware.Permissions
	currentUser middleware.UserResolver
	logger      *zap.Logger
}

// NewHTTPHandler creates a new authorization HTTP handler.
func NewHTTPHandler(svc Service, perms *middleware.Permissions, currentUser middleware.UserResolver, logger *zap.Logger) *HTTPHandler {
	registerValidations()
	return &HTTPHandler{svc: svc, perms: perms, currentUser: currentUser, logger: logger}
}

func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("aclaction", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == string(permission.Allow) || s == string(permission.Deny)
		})
	}
}

// RegisterRoutes registers authorization routes.
func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	resources := rg.Group("/resources")
	{
		resources.POST("", h.perms.Require("create", middleware.StaticResource(registryACL)), h.createResource)
		resources.GET("", h.listResources)
		resources.GET("/:id", h.perms.Require("view", h.resourceByID), h.getResource)
		resources.DELETE("/:id", h.perms.Require("delete", h.resourceByID), h.deleteResource)
		resources.PUT("/:id/acl", h.perms.Require("share", h.resourceByID), h.setACL)
		resources.GET("/:id/permissions", h.listResourcePermissions)
	}

	rg.POST("/check", h.check)
}

// resourceByID loads the resource named by the path for the permission
// check. An unknown id aborts with 404 before any decision is made.
func (h *HTTPHandler) resourceByID(c *gin.Context) (any, error) {
	r, err := h.svc.GetResource(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return nil, err
	}
	if err != nil {
		h.logger.Error("Failed to load resource", zap.Error(err))
		return nil, err
	}
	return r, nil
}

type aclEntryBody struct {
	Action      string   `json:"action" binding:"required,aclaction"`
	Principal   string   `json:"principal" binding:"required"`
	Permissions []string `json:"permissions" binding:"required,min=1"`
}

func toInputs(bodies []aclEntryBody) []ACLEntryInput {
	inputs := make([]ACLEntryInput, 0, len(bodies))
	for _, b := range bodies {
		inputs = append(inputs, ACLEntryInput{
			Action:      b.Action,
			Principal:   b.Principal,
			Permissions: b.Permissions,
		})
	}
	return inputs
}

func (h *HTTPHandler) createResource(c *gin.Context) {
	var body struct {
		Type    string         `json:"type" binding:"required"`
		Name    string         `json:"name" binding:"required"`
		OwnerID string         `json:"owner_id"`
		ACL     []aclEntryBody `json:"acl" binding:"omitempty,dive"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.svc.CreateResource(c.Request.Context(), CreateResourceInput{
		Type:    body.Type,
		Name:    body.Name,
		OwnerID: body.OwnerID,
		Entries: toInputs(body.ACL),
	})
	if err != nil {
		h.logger.Error("Failed to create resource", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *HTTPHandler) listResources(c *gin.Context) {
	resources, err := h.svc.ListResources(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list resources", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resources": resources})
}

func (h *HTTPHandler) getResource(c *gin.Context) {
	// The permission check already loaded the resource into the grant.
	grant, err := middleware.GrantFromGinContext(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, grant.Resource)
}

func (h *HTTPHandler) deleteResource(c *gin.Context) {
	if err := h.svc.DeleteResource(c.Request.Context(), c.Param("id")); err != nil {
		h.logger.Error("Failed to delete resource", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) setACL(c *gin.Context) {
	var body struct {
		ACL []aclEntryBody `json:"acl" binding:"required,dive"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.SetACL(c.Request.Context(), c.Param("id"), toInputs(body.ACL)); err != nil {
		h.logger.Error("Failed to set acl", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) listResourcePermissions(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		if !c.IsAborted() {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	perms, err := h.svc.PermissionMap(c.Request.Context(), user, c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to list permissions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

func (h *HTTPHandler) check(c *gin.Context) {
	var body struct {
		ResourceID string `json:"resource_id" binding:"required,uuid"`
		Permission string `json:"permission" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.currentUser(c)
	if err != nil {
		if !c.IsAborted() {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	allowed, err := h.svc.Check(c.Request.Context(), user, body.Permission, body.ResourceID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to check permission", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}
