package server

import (
	"net/http"
	"strconv"

	"agri-price-notify/internal/notify"
	"agri-price-notify/internal/storage"
)

type smsRequest struct {
	Action       string            `json:"action"`
	Message      string            `json:"message"`
	Recipients   []string          `json:"recipients"`
	Provider     string            `json:"provider"`
	ScheduleTime string            `json:"schedule_time"`
	TemplateID   int64             `json:"template_id"`
	Variables    map[string]string `json:"variables"`
	Crop         string            `json:"crop"`
	Product      string            `json:"product"`
	Market       string            `json:"market"`
	Name         string            `json:"name"`
}

func (s *Server) handleSMSPost(w http.ResponseWriter, r *http.Request) {
	var req smsRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	switch req.Action {
	case "", "send":
		s.smsSend(w, r, req)
	case "send_template":
		s.smsSendTemplate(w, r, req)
	case "bulk_farmers":
		s.smsBulkFarmers(w, r, req)
	case "price_alert":
		s.smsPriceAlert(w, r, req)
	default:
		s.fail(w, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}

func (s *Server) smsSend(w http.ResponseWriter, r *http.Request, req smsRequest) {
	scheduleAt, err := parseScheduleTime(req.ScheduleTime)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.notify.Send(r.Context(), notify.SendRequest{
		Message:      req.Message,
		Recipients:   req.Recipients,
		Provider:     req.Provider,
		ScheduleTime: scheduleAt,
	})
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.respond(w, result, nil)
}

func (s *Server) smsSendTemplate(w http.ResponseWriter, r *http.Request, req smsRequest) {
	result, body, err := s.notify.SendTemplate(r.Context(), notify.TemplateRequest{
		TemplateID: req.TemplateID,
		Variables:  req.Variables,
		Recipients: req.Recipients,
		Provider:   req.Provider,
	})
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.respond(w, result, map[string]any{"message": body})
}

func (s *Server) smsBulkFarmers(w http.ResponseWriter, r *http.Request, req smsRequest) {
	result, err := s.notify.BulkFarmers(r.Context(), notify.BulkRequest{
		Crop:     req.Crop,
		Message:  req.Message,
		Provider: req.Provider,
	})
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.respond(w, result, nil)
}

func (s *Server) smsPriceAlert(w http.ResponseWriter, r *http.Request, req smsRequest) {
	result, body, err := s.notify.PriceAlert(r.Context(), notify.AlertRequest{
		Product:    req.Product,
		Market:     req.Market,
		Name:       req.Name,
		Recipients: req.Recipients,
		Provider:   req.Provider,
	})
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.respond(w, result, map[string]any{"message": body})
}

func (s *Server) handleSMSGet(w http.ResponseWriter, r *http.Request) {
	switch action := r.URL.Query().Get("action"); action {
	case "", "history":
		s.smsHistory(w, r)
	case "recipients":
		s.smsRecipients(w, r)
	case "stats":
		s.smsStats(w, r)
	case "templates":
		s.smsTemplates(w, r)
	case "template":
		s.smsTemplate(w, r)
	default:
		s.fail(w, http.StatusBadRequest, "unknown action: "+action)
	}
}

func (s *Server) smsHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.failErr(w, storage.ErrNotConfigured)
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)
	status := r.URL.Query().Get("status")

	records, total, err := s.history.ListDispatches(r.Context(), page, limit, status)
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"history": records,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

func (s *Server) smsRecipients(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.failErr(w, storage.ErrNotConfigured)
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("sms_id"), 10, 64)
	if err != nil {
		s.fail(w, http.StatusBadRequest, "sms_id must be an integer")
		return
	}

	recipients, err := s.history.ListDispatchRecipients(r.Context(), id)
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "recipients": recipients})
}

func (s *Server) smsStats(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.failErr(w, storage.ErrNotConfigured)
		return
	}

	stats, err := s.history.DispatchStats(r.Context())
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (s *Server) smsTemplates(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.failErr(w, storage.ErrNotConfigured)
		return
	}

	templates, err := s.templates.ListTemplates(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "templates": templates})
}

func (s *Server) smsTemplate(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.failErr(w, storage.ErrNotConfigured)
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		s.fail(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	tpl, err := s.templates.GetTemplate(r.Context(), id)
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "template": tpl})
}

type trendsRequest struct {
	Action       string   `json:"action"`
	Recipients   []string `json:"recipients"`
	FarmerNames  []string `json:"farmer_names"`
	Provider     string   `json:"provider"`
	ScheduleTime string   `json:"schedule_time"`
}

func (s *Server) handleTrendsPost(w http.ResponseWriter, r *http.Request) {
	var req trendsRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	switch req.Action {
	case "", "send_price_trends":
		s.trendsSend(w, r, req)
	case "preview_message":
		s.trendsPreview(w, r, req)
	default:
		s.fail(w, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}

func (s *Server) trendsSend(w http.ResponseWriter, r *http.Request, req trendsRequest) {
	scheduleAt, err := parseScheduleTime(req.ScheduleTime)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.notify.SendPriceTrends(r.Context(), notify.TrendsRequest{
		Recipients:   req.Recipients,
		Names:        req.FarmerNames,
		Provider:     req.Provider,
		ScheduleTime: scheduleAt,
	})
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.respond(w, result.Dispatch, map[string]any{
		"message":     result.Message,
		"trends":      result.Trends,
		"sample_data": result.Sample,
	})
}

func (s *Server) trendsPreview(w http.ResponseWriter, r *http.Request, req trendsRequest) {
	preview, err := s.notify.PreviewTrends(r.Context(), req.FarmerNames)
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.respond(w, nil, map[string]any{
		"message":     preview.Message,
		"trends":      preview.Trends,
		"sample_data": preview.Sample,
	})
}

func (s *Server) handleTrendsGet(w http.ResponseWriter, r *http.Request) {
	entries, sample, err := s.notify.CurrentTrends(r.Context())
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"trends":      entries,
		"sample_data": sample,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
