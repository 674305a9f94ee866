package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rahul/stride/internal/engine"
)

// TelegramGateway drives the engine from a Telegram chat. Plain messages
// become goals; /mode switches the execution mode; /approve and /deny
// resolve a pending guarded batch. It doubles as the engine's Authorizer
// so gate suspensions surface in the same chat that started the task.
type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Engine *engine.Engine

	mu      sync.Mutex
	state   *engine.GlobalState // state of the running task, if any
	pending map[string]chan engine.Decision
	order   []string // batch IDs in arrival order
	chatID  int64    // chat that started the running task
}

func NewTelegramGateway(token string, eng *engine.Engine) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	tg := &TelegramGateway{
		Bot:     bot,
		Engine:  eng,
		pending: make(map[string]chan engine.Decision),
	}
	tg.hookTaskStart()
	return tg, nil
}

// hookTaskStart wraps the engine's OnTaskStart exactly once, at
// construction, so the gateway can apply /mode to the running task. The
// Callbacks field is never written again after this; RunTask may be started
// from other goroutines (the scheduler) concurrently with goal handling.
func (tg *TelegramGateway) hookTaskStart() {
	prev := tg.Engine.Callbacks.OnTaskStart
	tg.Engine.Callbacks.OnTaskStart = func(state *engine.GlobalState) {
		tg.mu.Lock()
		tg.state = state
		tg.mu.Unlock()
		if prev != nil {
			prev(state)
		}
	}
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)
		tg.handle(update.Message.Chat.ID, update.Message.Text)
	}
	return nil
}

func (tg *TelegramGateway) handle(chatID int64, text string) {
	cmd, ok := engine.ParseCommand(text)
	if !ok {
		tg.runGoal(chatID, text)
		return
	}

	switch c := cmd.(type) {
	case engine.ModeCommand:
		tg.mu.Lock()
		tg.Engine.Options.Mode = c.Mode
		if tg.state != nil {
			tg.state.SetMode(c.Mode)
		}
		tg.mu.Unlock()
		tg.reply(chatID, fmt.Sprintf("Execution mode set to %s.", c.Mode))
	case engine.GoalCommand:
		tg.runGoal(chatID, c.Goal)
	case engine.QuitCommand:
		tg.reply(chatID, "The bot keeps running; use /mode or send a goal.")
	default:
		switch strings.Fields(text)[0] {
		case "/approve":
			tg.resolve(chatID, engine.DecisionApprove)
		case "/deny":
			tg.resolve(chatID, engine.DecisionDeny)
		default:
			tg.reply(chatID, "Commands: /mode guarded|autonomous, /goal <text>, /approve, /deny. Anything else runs as a goal.")
		}
	}
}

func (tg *TelegramGateway) runGoal(chatID int64, goal string) {
	tg.mu.Lock()
	if tg.state != nil && tg.state.Phase != engine.PhaseDone {
		tg.mu.Unlock()
		tg.reply(chatID, "A task is already running. Wait for it to finish.")
		return
	}
	tg.chatID = chatID
	tg.mu.Unlock()

	go func() {
		state, err := tg.Engine.RunTask(context.Background(), goal)
		tg.mu.Lock()
		tg.state = nil
		tg.mu.Unlock()

		if err != nil {
			tg.reply(chatID, fmt.Sprintf("Task failed: %v", err))
			return
		}
		if last, ok := state.History.Last(engine.RoleAssistant); ok {
			tg.reply(chatID, last.Content)
		} else {
			tg.reply(chatID, "Task finished.")
		}
	}()
}

// RequestAuthorization implements engine.Authorizer. The decision channel
// is resolved by a later /approve or /deny from the operator.
func (tg *TelegramGateway) RequestAuthorization(ctx context.Context, batch engine.CallBatch) (<-chan engine.Decision, error) {
	ch := make(chan engine.Decision, 1)

	tg.mu.Lock()
	tg.pending[batch.ID] = ch
	tg.order = append(tg.order, batch.ID)
	chatID := tg.chatID
	tg.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "⏸️ Step %d wants to run %d tool call(s):\n", batch.StepID, len(batch.Calls))
	for i, call := range batch.Calls {
		args := call.Arguments
		if len(args) > 200 {
			args = args[:200] + "..."
		}
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, call.Name, args)
	}
	b.WriteString("\nReply /approve or /deny.")

	if err := tg.Send(fmt.Sprintf("%d", chatID), b.String()); err != nil {
		return nil, err
	}
	return ch, nil
}

// resolve answers the oldest pending batch. Approval and denial are
// all-or-nothing for the batch.
func (tg *TelegramGateway) resolve(chatID int64, decision engine.Decision) {
	tg.mu.Lock()
	if len(tg.order) == 0 {
		tg.mu.Unlock()
		tg.reply(chatID, "Nothing is waiting for authorization.")
		return
	}
	id := tg.order[0]
	tg.order = tg.order[1:]
	ch := tg.pending[id]
	delete(tg.pending, id)
	tg.mu.Unlock()

	ch <- decision
	tg.reply(chatID, fmt.Sprintf("Recorded: %s.", decision))
}

// Notify delivers a message to the chat that most recently ran a task.
// Used for scheduled-goal outcomes.
func (tg *TelegramGateway) Notify(text string) {
	tg.mu.Lock()
	chatID := tg.chatID
	tg.mu.Unlock()
	if chatID == 0 {
		log.Printf("No chat to notify: %s", text)
		return
	}
	tg.reply(chatID, text)
}

func (tg *TelegramGateway) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := tg.Bot.Send(msg); err != nil {
		log.Printf("Error sending telegram reply: %v", err)
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id := 0
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(int64(id), text)
	msg.ParseMode = "Markdown" // Enable markdown for better alerts
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
