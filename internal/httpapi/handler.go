package httpapi

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classtrack/internal/auth"
	"classtrack/internal/dates"
	"classtrack/internal/directory"
	"classtrack/internal/ledger"
	"classtrack/internal/leave"
	"classtrack/internal/metrics"
	"classtrack/internal/notify"
	"classtrack/internal/roster"
	"classtrack/internal/store"
)

// TokenConfig carries what the auth endpoints need to mint JWTs.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Handler exposes the service operations over HTTP.
type Handler struct {
	dir    *directory.Service
	roster *roster.Service
	ledger *ledger.Service
	leave  *leave.Service
	notes  *notify.Notifier
	tokens TokenConfig
}

// New creates a handler. notes may be nil when notifications are disabled.
func New(dir *directory.Service, ros *roster.Service, led *ledger.Service, lv *leave.Service, notes *notify.Notifier, tokens TokenConfig) *Handler {
	return &Handler{dir: dir, roster: ros, ledger: led, leave: lv, notes: notes, tokens: tokens}
}

// ---------- Auth ----------

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates against the teacher table first, then students.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident, err := h.dir.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	pair, err := auth.Issue(ident.ID, string(ident.Role), h.tokens.Issuer, h.tokens.SigningKey, h.tokens.AccessTTL, h.tokens.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	if err := h.dir.RememberRefreshToken(c.Request.Context(), ident.ID, pair.RefreshToken, pair.RefreshExp); err != nil {
		log.Printf("save refresh token for %s: %v", ident.ID, err)
	}

	metrics.Logins.WithLabelValues(string(ident.Role)).Inc()
	c.JSON(http.StatusOK, gin.H{
		"identity":      ident,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates a refresh token and returns a fresh pair.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := auth.Parse(req.RefreshToken, h.tokens.SigningKey, h.tokens.Issuer)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if err := h.dir.RotateRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
		writeError(c, err)
		return
	}

	pair, err := auth.Issue(claims.Subject, claims.Role, h.tokens.Issuer, h.tokens.SigningKey, h.tokens.AccessTTL, h.tokens.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	if err := h.dir.RememberRefreshToken(c.Request.Context(), claims.Subject, pair.RefreshToken, pair.RefreshExp); err != nil {
		log.Printf("save refresh token for %s: %v", claims.Subject, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
	})
}

// Logout revokes the presented refresh token.
func (h *Handler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.dir.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Teacher: courses and roster ----------

// TeacherCourses lists courses owned by the authenticated teacher.
func (h *Handler) TeacherCourses(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	courses, err := h.roster.CoursesForTeacher(c.Request.Context(), claims.Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	if courses == nil {
		courses = []roster.Course{}
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

// CourseStudents lists students enrolled in a course.
func (h *Handler) CourseStudents(c *gin.Context) {
	students, err := h.roster.StudentsInCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if students == nil {
		students = []roster.Student{}
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

type enrollRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	CourseID  string `json:"course_id" binding:"required"`
}

// Enroll adds a student to a course.
func (h *Handler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, err := h.roster.Enroll(c.Request.Context(), req.StudentID, req.CourseID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// Unenroll removes a student from a course.
func (h *Handler) Unenroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.roster.Unenroll(c.Request.Context(), req.StudentID, req.CourseID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createStudentRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	Department string `json:"department"`
}

// CreateStudent registers a new student account.
func (h *Handler) CreateStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ident, err := h.dir.RegisterStudent(c.Request.Context(), req.Name, req.Email, req.Department, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ident)
}

// DeleteStudent removes a student and every dependent record.
func (h *Handler) DeleteStudent(c *gin.Context) {
	if err := h.roster.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Teacher: attendance ----------

type markRequest struct {
	Date    string            `json:"date" binding:"required"`
	Entries map[string]string `json:"entries" binding:"required"`
}

// MarkAttendance saves one attendance batch for a course and date.
func (h *Handler) MarkAttendance(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	day, err := dates.ParseDay(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	entries := make(map[string]ledger.Status, len(req.Entries))
	for studentID, raw := range req.Entries {
		status, err := ledger.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entries[studentID] = status
	}
	if err := h.ledger.Mark(c.Request.Context(), c.Param("id"), day, entries); err != nil {
		writeError(c, err)
		return
	}
	metrics.MarksSaved.Inc()
	c.Status(http.StatusCreated)
}

type amendRequest struct {
	Date      string `json:"date" binding:"required"`
	StudentID string `json:"student_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

// AmendAttendance updates one existing record's status.
func (h *Handler) AmendAttendance(c *gin.Context) {
	var req amendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	day, err := dates.ParseDay(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	status, err := ledger.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.Amend(c.Request.Context(), c.Param("id"), day, req.StudentID, status); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// CourseAttendance lists records for a course on a date.
func (h *Handler) CourseAttendance(c *gin.Context) {
	day, err := dates.ParseDay(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query must be YYYY-MM-DD"})
		return
	}
	records, err := h.ledger.ListForDate(c.Request.Context(), c.Param("id"), day)
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// RollCall returns the marking-form starting state for a course and date.
func (h *Handler) RollCall(c *gin.Context) {
	day, err := dates.ParseDay(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query must be YYYY-MM-DD"})
		return
	}
	entries, err := h.ledger.RollCall(c.Request.Context(), c.Param("id"), day)
	if err != nil {
		writeError(c, err)
		return
	}
	if entries == nil {
		entries = []ledger.RollCallEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"roll_call": entries})
}

// ---------- Teacher: leave decisions ----------

// PendingLeaveRequests lists pending requests system-wide.
func (h *Handler) PendingLeaveRequests(c *gin.Context) {
	if status := c.DefaultQuery("status", "pending"); status != "pending" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only status=pending is supported"})
		return
	}
	requests, err := h.leave.ListPending(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if requests == nil {
		requests = []leave.Request{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// ApproveLeave approves a request and upserts the ledger row to Leave.
func (h *Handler) ApproveLeave(c *gin.Context) {
	req, err := h.leave.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.LeaveDecisions.WithLabelValues(string(leave.StatusApproved)).Inc()
	c.JSON(http.StatusOK, req)
}

// RejectLeave rejects a request with no ledger effect.
func (h *Handler) RejectLeave(c *gin.Context) {
	req, err := h.leave.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.LeaveDecisions.WithLabelValues(string(leave.StatusRejected)).Inc()
	c.JSON(http.StatusOK, req)
}

// ---------- Student ----------

// MyCourses lists the authenticated student's courses.
func (h *Handler) MyCourses(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	courses, err := h.roster.CoursesForStudent(c.Request.Context(), claims.Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	if courses == nil {
		courses = []roster.Course{}
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

// MyAttendance lists the student's records for a course and date.
func (h *Handler) MyAttendance(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	courseID := c.Query("course_id")
	if courseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course_id query required"})
		return
	}
	day, err := dates.ParseDay(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query must be YYYY-MM-DD"})
		return
	}
	records, err := h.ledger.ListForStudentDate(c.Request.Context(), claims.Subject, courseID, day)
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// MySummary aggregates the student's attendance in one course.
func (h *Handler) MySummary(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	courseID := c.Query("course_id")
	if courseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course_id query required"})
		return
	}
	summary, err := h.ledger.Summarize(c.Request.Context(), claims.Subject, courseID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// MyHistory returns the student's full course history.
func (h *Handler) MyHistory(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	courseID := c.Query("course_id")
	if courseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course_id query required"})
		return
	}
	records, err := h.ledger.History(c.Request.Context(), claims.Subject, courseID)
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

type leaveRequestBody struct {
	CourseID string `json:"course_id" binding:"required"`
	Date     string `json:"date" binding:"required"`
	Reason   string `json:"reason"`
}

// SubmitLeave files a leave request for the authenticated student.
func (h *Handler) SubmitLeave(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	var body leaveRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	day, err := dates.ParseDay(body.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	req, err := h.leave.Submit(c.Request.Context(), claims.Subject, body.CourseID, day, body.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// MyLeaveRequests lists the student's requests, dismissed ones excluded.
func (h *Handler) MyLeaveRequests(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	requests, err := h.leave.ListForStudent(c.Request.Context(), claims.Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	if requests == nil {
		requests = []leave.Request{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// DismissLeave soft-deletes one of the student's own requests.
func (h *Handler) DismissLeave(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	if err := h.leave.Dismiss(c.Request.Context(), c.Param("id"), claims.Subject); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MyNotifications lists the student's notifications.
func (h *Handler) MyNotifications(c *gin.Context) {
	if h.notes == nil {
		c.JSON(http.StatusOK, gin.H{"notifications": []notify.Notification{}})
		return
	}
	claims, _ := auth.FromContext(c)
	notes, err := h.notes.ListForStudent(c.Request.Context(), claims.Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	if notes == nil {
		notes = []notify.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notes})
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, leave.ErrPastDate),
		errors.Is(err, leave.ErrMissingReason),
		errors.Is(err, directory.ErrInvalidAccount),
		errors.Is(err, ledger.ErrEmptyBatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrAlreadyMarked),
		errors.Is(err, leave.ErrAlreadyDecided),
		errors.Is(err, roster.ErrDuplicateEnrollment),
		errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, leave.ErrNotFound),
		errors.Is(err, roster.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
