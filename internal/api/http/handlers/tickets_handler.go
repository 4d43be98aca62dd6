package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketsla/sla-engine/internal/api/dto"
	"github.com/ticketsla/sla-engine/internal/auth"
	"github.com/ticketsla/sla-engine/internal/domain"
	"github.com/ticketsla/sla-engine/internal/service"
	apperrors "github.com/ticketsla/sla-engine/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle. End users only see tickets they
// requested; staff see everything and may triage.
type TicketsHandler struct {
	service   *service.TicketService
	validator *dto.Validator
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, validator *dto.Validator) *TicketsHandler {
	return &TicketsHandler{service: ticketService, validator: validator}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}

	input := service.TicketCreateInput{
		RequesterID: principal.SubjectID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Tags:        req.Tags,
	}
	if req.RequesterID != nil {
		if !principal.IsStaff() {
			return apperrors.NewForbidden("only staff may file tickets on behalf of another requester")
		}
		input.RequesterID = *req.RequesterID
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), principal.Actor(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	query, err := parseTicketListQuery(c)
	if err != nil {
		return err
	}
	if err := h.validator.Struct(query); err != nil {
		return err
	}

	filter := service.TicketListFilter{
		AssigneeID:  query.AssigneeID,
		Statuses:    query.Statuses,
		Priorities:  query.Priorities,
		SLABreach:   query.SLABreach,
		CreatedFrom: query.CreatedFrom,
		CreatedTo:   query.CreatedTo,
		Limit:       query.PageSize,
		Offset:      (query.Page - 1) * query.PageSize,
	}
	if !principal.IsStaff() {
		filter.RequesterID = &principal.SubjectID
	}
	tickets, total, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{
		Items:    items,
		Total:    total,
		Page:     query.Page,
		PageSize: query.PageSize,
	}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.visibleTicket(c, principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	patch := service.TicketPatch{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Tags:        req.Tags,
		AddTags:     req.AddTags,
	}
	ticket, err := h.service.UpdateTicket(c.UserContext(), principal.Actor(), c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.AssignTicket(c.UserContext(), principal.Actor(), c.Params("id"), req.AgentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// CloseTicket POST /tickets/:id/close. Requesters may close their own tickets.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if _, err := h.visibleTicket(c, principal); err != nil {
		return err
	}
	ticket, err := h.service.CloseTicket(c.UserContext(), principal.Actor(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	if req.IsInternal && !principal.IsStaff() {
		return apperrors.NewForbidden("internal notes are staff only")
	}
	if _, err := h.visibleTicket(c, principal); err != nil {
		return err
	}
	comment, err := h.service.AddComment(c.UserContext(), principal.Actor(), c.Params("id"), req.Content, req.IsInternal)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(comment)})
}

// ListComments GET /tickets/:id/comments.
func (h *TicketsHandler) ListComments(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if _, err := h.visibleTicket(c, principal); err != nil {
		return err
	}
	comments, err := h.service.ListComments(c.UserContext(), c.Params("id"), principal.IsStaff())
	if err != nil {
		return err
	}
	items := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		items = append(items, dto.NewCommentResponse(&comments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListHistory GET /tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if _, err := h.visibleTicket(c, principal); err != nil {
		return err
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	entries, err := h.service.ListHistory(c.UserContext(), c.Params("id"), pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponses(entries)})
}

// BulkOperation POST /tickets/bulk.
func (h *TicketsHandler) BulkOperation(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.BulkRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	result, err := h.service.BulkOperation(c.UserContext(), principal.Actor(), service.BulkRequest{
		TicketIDs: req.TicketIDs,
		Operation: service.BulkOperationKind(req.Operation),
		AgentID:   req.AgentID,
		Priority:  req.Priority,
		Tags:      req.Tags,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.BulkResponse{
		Success: result.Success,
		Failed:  result.Failed,
		Errors:  result.Errors,
	}})
}

// visibleTicket loads the :id ticket, hiding tickets the caller did not request
// unless the caller is staff.
func (h *TicketsHandler) visibleTicket(c *fiber.Ctx, principal *auth.Principal) (*domain.Ticket, error) {
	id := c.Params("id")
	ticket, err := h.service.GetTicket(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if !principal.IsStaff() && ticket.RequesterID != principal.SubjectID {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return ticket, nil
}

func (h *TicketsHandler) parse(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return h.validator.Struct(out)
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parseTicketListQuery(c *fiber.Ctx) (dto.TicketListQuery, error) {
	query := dto.TicketListQuery{
		Page:     parseInt(c.Query("page"), 1),
		PageSize: parseInt(c.Query("page_size"), 20),
	}
	for _, part := range splitList(c.Query("status")) {
		query.Statuses = append(query.Statuses, domain.TicketStatus(strings.ToUpper(part)))
	}
	for _, part := range splitList(c.Query("priority")) {
		query.Priorities = append(query.Priorities, domain.TicketPriority(strings.ToUpper(part)))
	}
	if assignee := strings.TrimSpace(c.Query("assignee_id")); assignee != "" {
		query.AssigneeID = &assignee
	}
	if raw := c.Query("sla_breach"); raw != "" {
		breached, err := strconv.ParseBool(raw)
		if err != nil {
			return query, apperrors.NewValidationError("invalid sla_breach", map[string]any{"sla_breach": raw})
		}
		query.SLABreach = &breached
	}
	var err error
	if query.CreatedFrom, err = parseTime("created_from", c.Query("created_from")); err != nil {
		return query, err
	}
	if query.CreatedTo, err = parseTime("created_to", c.Query("created_to")); err != nil {
		return query, err
	}
	return query, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTime(field, val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, apperrors.NewValidationError("timestamps must be RFC3339", map[string]any{field: val})
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
