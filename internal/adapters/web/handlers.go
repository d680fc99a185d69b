package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"telegram-sentiment/internal/domain/analysis"
	"telegram-sentiment/internal/domain/apperr"
	"telegram-sentiment/internal/domain/remote"
)

const maxRequestBody = 64 << 10

type loginRequest struct {
	APIID   int    `json:"api_id"`
	APIHash string `json:"api_hash"`
	Phone   string `json:"phone"`
}

type loginResponse struct {
	Status        string `json:"status"`
	PhoneCodeHash string `json:"phone_code_hash,omitempty"`
}

type verifyRequest struct {
	Phone         string `json:"phone"`
	Code          string `json:"code"`
	PhoneCodeHash string `json:"phone_code_hash"`
	APIID         int    `json:"api_id"`
	APIHash       string `json:"api_hash"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type chatsRequest struct {
	Phone string `json:"phone"`
}

type chatDTO struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type chatsResponse struct {
	Chats []chatDTO `json:"chats"`
}

type analyzeRequest struct {
	Phone  string `json:"phone"`
	ChatID int64  `json:"chat_id"`
	Limit  int    `json:"limit"`
}

type messageDTO struct {
	ID         int     `json:"id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	SenderID   *int64  `json:"sender_id"`
}

type analyzeResponse struct {
	AnalyzedCount    int          `json:"analyzed_count"`
	NegativeCount    int          `json:"negative_count"`
	NegativeMessages []messageDTO `json:"negative_messages"`
}

// decodeJSON читает тело запроса. Пустое тело при allowEmpty не считается ошибкой.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}

	res, err := s.handshake.Login(r.Context(), req.APIID, req.APIHash, req.Phone)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Status: res.Status, PhoneCodeHash: res.CodeHash})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}

	res, err := s.handshake.Verify(r.Context(), req.Phone, req.Code, req.PhoneCodeHash, req.APIID, req.APIHash)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: res.Status})
}

// handleChats принимает phone из query (?phone=) или из JSON-тела.
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		var req chatsRequest
		if err := decodeJSON(r, &req, true); err != nil {
			writeError(w, r, err, http.StatusInternalServerError)
			return
		}
		phone = strings.TrimSpace(req.Phone)
	}
	if phone == "" {
		writeError(w, r, apperr.Validation("phone is required"), http.StatusInternalServerError)
		return
	}

	chats, err := s.analyzer.Chats(r.Context(), phone)
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, chatsResponse{Chats: toChatDTOs(chats)})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req := analyzeRequest{Limit: analysis.DefaultLimit}
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		writeError(w, r, apperr.Validation("phone is required"), http.StatusInternalServerError)
		return
	}

	rep, err := s.analyzer.Analyze(r.Context(), strings.TrimSpace(req.Phone), req.ChatID, req.Limit)
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toAnalyzeResponse(rep))
}

func toChatDTOs(chats []remote.Chat) []chatDTO {
	out := make([]chatDTO, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatDTO{ID: c.ID, Title: c.Title, Type: string(c.Type)})
	}
	return out
}

func toAnalyzeResponse(rep analysis.Report) analyzeResponse {
	out := analyzeResponse{
		AnalyzedCount:    rep.AnalyzedCount,
		NegativeCount:    rep.NegativeCount,
		NegativeMessages: make([]messageDTO, 0, len(rep.NegativeMessages)),
	}
	for _, m := range rep.NegativeMessages {
		out.NegativeMessages = append(out.NegativeMessages, messageDTO{
			ID:         m.ID,
			Text:       m.Text,
			Confidence: m.Confidence,
			SenderID:   m.SenderID,
		})
	}
	return out
}
