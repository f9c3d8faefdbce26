package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sonic-city-git/quincy-project-sub001/internal/engine"
)

// Watcher polls the engine for upcoming critical conflicts and pushes alerts
// to the planning chat. Each (equipment, day) cell is alerted at most once.
type Watcher struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	eng      *engine.Engine
	interval time.Duration
	horizon  int
	log      *slog.Logger

	alerted map[string]struct{}
}

func NewWatcher(token string, chatID int64, eng *engine.Engine, interval time.Duration, horizonDays int, log *slog.Logger) (*Watcher, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &Watcher{
		bot:      bot,
		chatID:   chatID,
		eng:      eng,
		interval: interval,
		horizon:  horizonDays,
		log:      log,
		alerted:  make(map[string]struct{}),
	}, nil
}

func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	today := engine.DayOf(time.Now())
	w.prune(today)
	r := engine.DateRange{From: today, To: engine.DayOf(time.Now().AddDate(0, 0, w.horizon))}

	res, err := w.eng.Query(ctx, engine.ScopeAll(), r, engine.StrategyDashboard)
	if err != nil {
		w.log.Warn("conflict watch query failed", "err", err)
		return
	}
	if res.Stale {
		// wait for fresh data rather than alerting on an old picture
		return
	}

	for _, c := range res.Conflicts {
		if c.Severity != engine.SeverityCritical {
			continue
		}
		key := fmt.Sprintf("%d|%s", c.EquipmentID, c.Date)
		if _, ok := w.alerted[key]; ok {
			continue
		}
		w.alerted[key] = struct{}{}

		if err := w.send(formatAlert(c)); err != nil {
			w.log.Warn("conflict alert send failed", "equipment", c.EquipmentID, "err", err)
			delete(w.alerted, key)
		}
	}
}

// prune drops alert keys for days already past, keeping the dedupe map
// bounded over a long-lived watcher.
func (w *Watcher) prune(today engine.Day) {
	for key := range w.alerted {
		if i := strings.IndexByte(key, '|'); i >= 0 && engine.Day(key[i+1:]).Before(today) {
			delete(w.alerted, key)
		}
	}
}

func (w *Watcher) send(text string) error {
	_, err := w.bot.Send(tgbotapi.NewMessage(w.chatID, text))
	return err
}

func formatAlert(c engine.ConflictAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 Overbooked: %s on %s\n", c.EquipmentName, c.Date)
	fmt.Fprintf(&b, "Booked %d of %d available (short %d).\n", c.Breakdown.TotalUsed, c.Breakdown.Effective, c.Deficit)
	for _, ev := range c.AffectedEvents {
		fmt.Fprintf(&b, "— %s / %s: %d\n", ev.ProjectName, ev.EventName, ev.Quantity)
	}
	return b.String()
}
