package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// backendTimeLayout matches the zone-less timestamps the real API emits.
const backendTimeLayout = "2006-01-02T15:04:05.999999"

// Backend is an in-process fake of the task API: the /auth and /api/tasks
// routes with HS256 bearer tokens, served from httptest.
type Backend struct {
	URL    string
	Secret []byte

	server *httptest.Server

	mu       sync.Mutex
	users    map[string]backendUser // by email
	tasks    []backendTask          // newest first
	nextTask int
	requests map[string]int
}

type backendUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	password string
}

type backendTask struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Completed   bool    `json:"completed"`
	UserID      string  `json:"user_id"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

type taskBody struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// NewBackend starts a fake backend that is shut down when the test ends.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		Secret:   []byte("test-secret"),
		users:    make(map[string]backendUser),
		nextTask: 1,
		requests: make(map[string]int),
	}

	r := gin.New()
	r.Use(b.count)
	r.POST("/auth/register", b.register)
	r.POST("/auth/login", b.login)

	api := r.Group("/api", b.authenticate)
	api.GET("/tasks", b.listTasks)
	api.POST("/tasks", b.createTask)
	api.PUT("/tasks/:id", b.updateTask)
	api.DELETE("/tasks/:id", b.deleteTask)

	b.server = httptest.NewServer(r)
	b.URL = b.server.URL
	t.Cleanup(b.server.Close)
	return b
}

// Close stops the server. Later requests fail with a connection error.
func (b *Backend) Close() {
	b.server.Close()
}

// AddUser creates an account and returns its id.
func (b *Backend) AddUser(email, password, name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := backendUser{ID: fmt.Sprintf("u%d", len(b.users)+1), Email: email, Name: name, password: password}
	b.users[email] = u
	return u.ID
}

// IssueToken signs a token for userID that expires at exp.
func (b *Backend) IssueToken(userID, email string, exp time.Time) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   exp.Unix(),
	})
	s, err := tok.SignedString(b.Secret)
	if err != nil {
		panic(err)
	}
	return s
}

// AddTask stores a task for userID directly.
func (b *Backend) AddTask(userID, title string, completed bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UTC().Format(backendTimeLayout)
	t := backendTask{ID: b.nextTask, Title: title, Completed: completed, UserID: userID, CreatedAt: now, UpdatedAt: now}
	b.nextTask++
	b.tasks = append([]backendTask{t}, b.tasks...)
	return t.ID
}

// Requests returns how many requests hit "METHOD /path".
func (b *Backend) Requests(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[route]
}

func (b *Backend) count(c *gin.Context) {
	b.mu.Lock()
	b.requests[c.Request.Method+" "+c.Request.URL.Path]++
	b.mu.Unlock()
	c.Next()
}

func (b *Backend) register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	b.mu.Lock()
	if _, ok := b.users[req.Email]; ok {
		b.mu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Email already registered"})
		return
	}
	u := backendUser{ID: fmt.Sprintf("u%d", len(b.users)+1), Email: req.Email, Name: req.Name, password: req.Password}
	b.users[req.Email] = u
	b.mu.Unlock()
	b.issue(c, u)
}

func (b *Backend) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	b.mu.Lock()
	u, ok := b.users[req.Email]
	b.mu.Unlock()
	if !ok || u.password != req.Password {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect email or password"})
		return
	}
	b.issue(c, u)
}

func (b *Backend) issue(c *gin.Context, u backendUser) {
	c.JSON(http.StatusOK, gin.H{
		"access_token": b.IssueToken(u.ID, u.Email, time.Now().Add(time.Hour)),
		"token_type":   "bearer",
		"user":         u,
	})
}

func (b *Backend) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Not authenticated"})
		return
	}
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return b.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
		return
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
		return
	}
	c.Set("user_id", sub)
	c.Next()
}

func (b *Backend) listTasks(c *gin.Context) {
	userID := c.GetString("user_id")
	filter := c.DefaultQuery("status_filter", "all")

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backendTask, 0)
	for _, t := range b.tasks {
		if t.UserID != userID {
			continue
		}
		if (filter == "pending" && t.Completed) || (filter == "completed" && !t.Completed) {
			continue
		}
		out = append(out, t)
	}
	c.JSON(http.StatusOK, out)
}

func (b *Backend) createTask(c *gin.Context) {
	var req taskBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	if req.Title == nil || len(*req.Title) < 1 || len(*req.Title) > 200 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": "Title must be between 1 and 200 characters"}}})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UTC().Format(backendTimeLayout)
	t := backendTask{
		ID:          b.nextTask,
		Title:       *req.Title,
		Description: req.Description,
		UserID:      c.GetString("user_id"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Completed != nil {
		t.Completed = *req.Completed
	}
	b.nextTask++
	b.tasks = append([]backendTask{t}, b.tasks...)
	c.JSON(http.StatusCreated, t)
}

func (b *Backend) updateTask(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid task id"})
		return
	}
	var req taskBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, t := range b.tasks {
		if t.ID != id || t.UserID != c.GetString("user_id") {
			continue
		}
		if req.Title != nil {
			t.Title = *req.Title
		}
		if req.Description != nil {
			t.Description = req.Description
		}
		if req.Completed != nil {
			t.Completed = *req.Completed
		}
		t.UpdatedAt = time.Now().UTC().Format(backendTimeLayout)
		b.tasks[i] = t
		c.JSON(http.StatusOK, t)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
}

func (b *Backend) deleteTask(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid task id"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, t := range b.tasks {
		if t.ID == id && t.UserID == c.GetString("user_id") {
			b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
}
