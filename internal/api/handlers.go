package api

import (
	"encoding/json"
	stdErrors "errors"
	"io"
	"net/http"
	"time"

	"loan-club/internal/common/errors"
	"loan-club/internal/lifecycle"
	"loan-club/internal/models"
)

const (
	actionVerify             = "verify"
	actionUpdateStatus       = "updateStatus"
	actionCompleteWithdrawal = "completeWithdrawal"
)

type submitRequest struct {
	Application *models.Application    `json:"application"`
	User        *lifecycle.SignupInput `json:"user,omitempty"`
}

type saveRequest struct {
	Content *models.Dataset `json:"content"`
}

type adminRequest struct {
	Action       string `json:"action"`
	ID           string `json:"id"`
	Status       string `json:"status"`
	AdminComment string `json:"adminComment"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type withdrawalRequest struct {
	ID string `json:"id"`
}

type adminVerifyResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
	Error  string `json:"error,omitempty"`
}

// ==========================
// Public endpoints
// ==========================

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	ds, err := s.svc.Load(r.Context())
	if err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	errors.WriteJSON(w, http.StatusOK, ds)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}

	ds, err := s.svc.Submit(r.Context(), lifecycle.SubmitInput{
		Application: req.Application,
		Credentials: basicCredentials(r),
		User:        req.User,
	})
	if err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, ds)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.SignupInput
	if err := s.decode(w, r, &req); err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}

	user, err := s.svc.Signup(r.Context(), req)
	if err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}

	user, err := s.svc.Login(r.Context(), lifecycle.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.svc.Applications(r.Context(), basicCredentials(r))
	if err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	errors.WriteJSON(w, http.StatusOK, apps)
}

func (s *Server) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	creds := basicCredentials(r)
	if creds == nil {
		s.errors.HandleHTTPError(w, r, errors.NewUnauthorizedError("Authentication required"))
		return
	}

	var req withdrawalRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}

	ds, err := s.svc.RequestWithdrawal(r.Context(), creds, req.ID)
	if err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, ds)
}

// ==========================
// Admin endpoints
// ==========================

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.AuthorizeAdmin(adminCredential(r)); err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}

	var req saveRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}
	if req.Content == nil {
		s.errors.HandleHTTPError(w, r, errors.NewValidationError("Missing content in body"))
		return
	}

	ds, err := s.svc.Save(r.Context(), req.Content)
	if err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, ds)
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.AuthorizeAdmin(adminCredential(r)); err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}

	var req adminRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}

	var (
		ds  *models.Dataset
		err error
	)
	switch req.Action {
	case actionVerify:
		errors.WriteJSON(w, http.StatusOK, adminVerifyResponse{OK: true, Message: "admin key valid"})
		return
	case actionUpdateStatus:
		ds, err = s.svc.Decide(r.Context(), lifecycle.DecisionInput{
			ID:      req.ID,
			Status:  req.Status,
			Comment: req.AdminComment,
		})
	case actionCompleteWithdrawal:
		ds, err = s.svc.CompleteWithdrawal(r.Context(), req.ID)
	default:
		err = errors.NewValidationError(`Invalid action. Use { action: "updateStatus", id, status, adminComment }`)
	}
	if err != nil {
		s.errors.HandleHTTPError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, ds)
}

// ==========================
// Probes
// ==========================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	errors.WriteJSON(w, http.StatusOK, healthResponse{
		Status: "healthy",
		Time:   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ready", Time: s.now().UTC().Format(time.RFC3339)}
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			resp.Status = "not ready"
			resp.Error = err.Error()
			errors.WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	errors.WriteJSON(w, http.StatusOK, resp)
}

// ==========================
// Helpers
// ==========================

// decode reads a JSON body into v. An empty body leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		if stdErrors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if stdErrors.As(err, &tooLarge) {
			return errors.NewValidationError("Request body too large")
		}
		return errors.NewValidationError("Invalid JSON body: " + err.Error())
	}
	return nil
}

func basicCredentials(r *http.Request) *lifecycle.Credentials {
	email, password, ok := r.BasicAuth()
	if !ok {
		return nil
	}
	return &lifecycle.Credentials{Email: email, Password: password}
}

func adminCredential(r *http.Request) string {
	if v := r.Header.Get("x-admin-pass"); v != "" {
		return v
	}
	return r.Header.Get("x-admin-key")
}
