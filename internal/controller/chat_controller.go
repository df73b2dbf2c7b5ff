package controller

import (
	"encoding/json"
	"strconv"

	"docqa-be/internal/dto"
	"docqa-be/internal/pkg/serverutils"
	"docqa-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

const (
	HeaderConversationID  = "Conversation-Id"
	HeaderContextResults  = "Context-Results"
	HeaderContextUsed     = "Context-Used"
	HeaderSearchTime      = "Search-Time"
	HeaderTokenUsage      = "Token-Usage"
	HeaderSources         = "Sources"
	HeaderContextDegraded = "Context-Degraded"
)

// ExposedHeaders lists the context headers browsers must be allowed to read.
var ExposedHeaders = []string{
	HeaderConversationID,
	HeaderContextResults,
	HeaderContextUsed,
	HeaderSearchTime,
	HeaderTokenUsage,
	HeaderSources,
	HeaderContextDegraded,
}

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Send(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{chatService: chatService}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("send", c.Send)
	h.Get(":id/history", c.History)
}

func (c *chatController) Send(ctx *fiber.Ctx) error {
	var req dto.SendChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.SendChat(ctx.UserContext(), serverutils.UserID(ctx), &req)
	if err != nil {
		return err
	}

	if err := setContextHeaders(ctx, res); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success send chat", res))
}

func (c *chatController) History(ctx *fiber.Ctx) error {
	res, err := c.chatService.GetHistory(ctx.UserContext(), serverutils.UserID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get chat history", res))
}

func setContextHeaders(ctx *fiber.Ctx, res *dto.SendChatResponse) error {
	sources, err := json.Marshal(res.Context.Sources)
	if err != nil {
		return err
	}

	ctx.Set(HeaderConversationID, res.ConversationId)
	ctx.Set(HeaderContextResults, strconv.Itoa(res.Context.Results))
	ctx.Set(HeaderContextUsed, strconv.Itoa(res.Context.Used))
	ctx.Set(HeaderSearchTime, strconv.FormatInt(res.Context.SearchTimeMs, 10))
	ctx.Set(HeaderTokenUsage, strconv.Itoa(res.Context.TokenUsage))
	ctx.Set(HeaderSources, string(sources))
	if res.Context.Degraded {
		ctx.Set(HeaderContextDegraded, "true")
	}
	return nil
}
