package telegram

import (
	"context"
	"fmt"
)

// CommandHandler представляет обработчик команды
type CommandHandler func(ctx context.Context, caller string, args *CommandArgs) (string, error)

// Router маршрутизирует команды к обработчикам
type Router struct {
	handlers      map[string]CommandHandler
	authManager   *AuthManager
	formatter     *Formatter
	adminCommands map[string]bool
}

// NewRouter создает новый роутер
func NewRouter(authManager *AuthManager, formatter *Formatter) *Router {
	return &Router{
		handlers:      make(map[string]CommandHandler),
		authManager:   authManager,
		formatter:     formatter,
		adminCommands: make(map[string]bool),
	}
}

// registerHandlers регистрирует все обработчики команд
func registerHandlers(router *Router, h *Handlers) {
	router.RegisterHandler(CmdStart, h.HandleHelp)
	router.RegisterHandler(CmdHelp, h.HandleHelp)
	router.RegisterHandler(CmdStatus, h.HandleStatus)
	router.RegisterHandler(CmdHistory, h.HandleHistory)
	router.RegisterHandler(CmdPortfolio, h.HandlePortfolio)
	router.RegisterHandler(CmdGains, h.HandleGains)
	router.RegisterHandler(CmdUnrealized, h.HandleUnrealized)
	router.RegisterHandler(CmdAlerts, h.HandleAlerts)

	// Торговые и аварийные команды только для админов
	router.RegisterAdminHandler(CmdBuy, h.HandleBuy)
	router.RegisterAdminHandler(CmdSell, h.HandleSell)
	router.RegisterAdminHandler(CmdRebalance, h.HandleRebalance)
	router.RegisterAdminHandler(CmdKill, h.HandleKill)
	router.RegisterAdminHandler(CmdResume, h.HandleResume)
}

// RegisterHandler регистрирует обработчик команды
func (r *Router) RegisterHandler(command string, handler CommandHandler) {
	r.handlers[command] = handler
}

// RegisterAdminHandler регистрирует обработчик с требованием админских прав
func (r *Router) RegisterAdminHandler(command string, handler CommandHandler) {
	r.adminCommands[command] = true
	r.handlers[command] = handler
}

// HandleCommand обрабатывает команду и всегда возвращает текст ответа
func (r *Router) HandleCommand(ctx context.Context, userID int64, text string) string {
	if err := r.authManager.CheckRateLimit(userID); err != nil {
		return r.formatter.FormatError(err)
	}

	if !r.authManager.IsAllowed(userID) {
		return r.formatter.T("access_denied")
	}

	args, err := ParseCommand(text)
	if err != nil {
		return r.formatter.FormatError(err)
	}

	if r.adminCommands[args.Command] {
		if err := r.authManager.RequireAdmin(userID); err != nil {
			return r.formatter.T("admin_required")
		}
	}

	handler, exists := r.handlers[args.Command]
	if !exists {
		return r.formatter.FormatError(fmt.Errorf("unknown command: %s", args.Command))
	}

	response, err := handler(ctx, Caller(userID), args)
	if err != nil {
		return r.formatter.FormatError(err)
	}
	return response
}

// IsAdminCommand проверяет, является ли команда админской
func (r *Router) IsAdminCommand(command string) bool {
	return r.adminCommands[command]
}
