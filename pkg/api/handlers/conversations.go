package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"relaydesk/pkg/apperr"
	"relaydesk/pkg/logger"
	"relaydesk/pkg/models"
	"relaydesk/pkg/store"
)

const maxListLimit = 100

// RegisterConversations registers conversation ingestion and listing.
// Ingestion upserts by (tenant, external id): a repeat delivery
// refreshes metadata instead of duplicating the thread.
func RegisterConversations(r *mux.Router) {
	r.HandleFunc("/conversations", upsertConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations", listConversations).Methods(http.MethodGet)
}

func upsertConversation(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var body struct {
		InboxID       int64  `json:"inbox_id"`
		ExternalID    string `json:"external_id"`
		CustomerPhone string `json:"customer_phone_number"`
		LastMessageTS int64  `json:"last_message_ts"`
		MessageCount  int    `json:"message_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.BadRequest("invalid json"))
		return
	}
	if body.ExternalID == "" {
		writeError(w, apperr.BadRequest("external_id is required"))
		return
	}
	inbox, err := store.GetInbox(caller.TenantID, body.InboxID)
	if err != nil {
		writeError(w, err)
		return
	}
	if inbox == nil {
		writeError(w, apperr.NotFound("inbox not found"))
		return
	}

	now := time.Now().UTC().UnixNano()
	existing, err := store.GetConversationByExternal(caller.TenantID, body.ExternalID)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		updated, err := store.UpdateConversationMeta(caller.TenantID, existing.ID, func(c *models.Conversation) {
			c.InboxID = body.InboxID
			if body.CustomerPhone != "" {
				c.CustomerPhone = body.CustomerPhone
			}
			if body.LastMessageTS != 0 {
				c.LastMessageTS = body.LastMessageTS
			}
			if body.MessageCount != 0 {
				c.MessageCount = body.MessageCount
			}
			c.UpdatedTS = now
		})
		if err != nil {
			if errors.Is(err, store.ErrConversationMissing) {
				writeError(w, apperr.NotFound("conversation not found"))
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
		return
	}

	id, err := store.NextID("conversation")
	if err != nil {
		writeError(w, err)
		return
	}
	conv := &models.Conversation{
		ID:            id,
		TenantID:      caller.TenantID,
		InboxID:       body.InboxID,
		ExternalID:    body.ExternalID,
		CustomerPhone: body.CustomerPhone,
		State:         models.StateQueued,
		LastMessageTS: body.LastMessageTS,
		MessageCount:  body.MessageCount,
		CreatedTS:     now,
		UpdatedTS:     now,
	}
	if err := store.SaveConversation(conv); err != nil {
		writeError(w, err)
		return
	}
	logger.Info("conversation_ingested", "tenant", caller.TenantID, "conversation", conv.ID, "inbox", conv.InboxID)
	writeJSON(w, http.StatusCreated, conv)
}

func listConversations(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := store.ConversationFilter{Sort: q.Get("sort"), Limit: 20}
	if v := q.Get("inbox_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.InboxID = id
		}
	}
	if v := q.Get("state"); v != "" {
		st := models.ConversationState(v)
		if !st.Valid() {
			writeError(w, apperr.BadRequest("unknown state"))
			return
		}
		f.State = st
	}
	if v := q.Get("assigned_operator_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.AssignedOperatorID = id
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	out, err := store.ListConversations(caller.TenantID, f)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []*models.Conversation{}
	}
	writeJSON(w, http.StatusOK, out)
}
