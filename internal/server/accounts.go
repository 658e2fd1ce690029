package web

import (
	"encoding/json"
	"net/http"

	"newsdesk/internal/apperr"
	"newsdesk/internal/services"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type tokenBody struct {
	Token string `json:"token"`
}

func decodeCredentials(r *http.Request) (credentials, error) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		return c, apperr.Validation("invalid request body")
	}
	return c, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	acc, err := s.accounts.Register(r.Context(), services.RegisterInput{Email: c.Email, Password: c.Password, Name: c.Name})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	token, err := s.accounts.Login(r.Context(), c.Email, c.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenBody{Token: token})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accounts.Current(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}
