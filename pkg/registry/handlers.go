package registry

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Server exposes the registry over HTTP.
type Server struct {
	service     *Service
	internalKey string
	proxy       *http.Client
}

// NewServer creates the registry HTTP surface.
func NewServer(service *Service, internalKey string) *Server {
	return &Server{
		service:     service,
		internalKey: internalKey,
		proxy:       &http.Client{Timeout: 15 * time.Second},
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "apps": len(s.service.List())})
	})

	apps := r.Group("/apps")
	{
		apps.GET("", s.listApps)
		apps.GET("/:app_id", s.getApp)
		apps.POST("", s.requireInternalKey, s.registerApp)
		apps.DELETE("/:app_id", s.requireInternalKey, s.unregisterApp)
		apps.GET("/:app_id/state", s.proxyState)
		apps.POST("/:app_id/actions", s.requireInternalKey, s.proxyAction)
	}

	return r
}

func (s *Server) requireInternalKey(c *gin.Context) {
	if c.GetHeader("X-Internal-Key") != s.internalKey {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid internal API key"})
		return
	}
	c.Next()
}

type registerRequest struct {
	AppID        string         `json:"app_id" binding:"required"`
	ContainerURL string         `json:"container_url" binding:"required"`
	Manifest     map[string]any `json:"manifest"`
}

func (s *Server) registerApp(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	app := s.service.Register(req.AppID, req.ContainerURL, req.Manifest)
	c.JSON(http.StatusOK, app)
}

func (s *Server) unregisterApp(c *gin.Context) {
	if !s.service.Unregister(c.Param("app_id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not registered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) listApps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"apps": s.service.List()})
}

func (s *Server) getApp(c *gin.Context) {
	app := s.service.Get(c.Param("app_id"))
	if app == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not registered"})
		return
	}
	c.JSON(http.StatusOK, app)
}

// proxyState forwards GET /state to the app container.
func (s *Server) proxyState(c *gin.Context) {
	s.forward(c, http.MethodGet, "/state", nil)
}

// proxyAction forwards an action invocation to the app container.
func (s *Server) proxyAction(c *gin.Context) {
	s.forward(c, http.MethodPost, "/actions", c.Request.Body)
}

func (s *Server) forward(c *gin.Context, method, path string, body io.Reader) {
	base, err := s.service.ContainerURL(c.Param("app_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), method, base+path, body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build proxy request"})
		return
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.proxy.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "app unreachable"})
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read app response"})
		return
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), data)
}
