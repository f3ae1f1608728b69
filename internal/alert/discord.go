package alert

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/your-org/signal-sim-bot/internal/config"
)

// discordSession is the slice of discordgo.Session the notifier needs,
// extracted so tests can substitute a mock.
type discordSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// DiscordNotifier sends position lifecycle alerts to a user DM. Messages are
// buffered and flushed on an interval so a burst of closes becomes one
// message instead of a flood.
type DiscordNotifier struct {
	session        discordSession
	userID         string
	logger         *zap.Logger
	bufferInterval time.Duration

	mu     sync.Mutex
	buffer []string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDiscordNotifier creates a notifier and starts its flush loop.
func NewDiscordNotifier(cfg config.DiscordConfig, logger *zap.Logger) (*DiscordNotifier, error) {
	if cfg.BotToken == "" || cfg.UserID == "" {
		return nil, fmt.Errorf("discord bot token and user ID must be configured")
	}
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	interval := time.Duration(cfg.BufferIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Minute
	}

	n := &DiscordNotifier{
		session:        session,
		userID:         cfg.UserID,
		logger:         logger,
		bufferInterval: interval,
		stopCh:         make(chan struct{}),
	}
	n.wg.Add(1)
	go n.flushLoop()
	return n, nil
}

// Send queues a message for the next flush. It never blocks on the network.
func (n *DiscordNotifier) Send(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.buffer = append(n.buffer, message)
	return nil
}

func (n *DiscordNotifier) flushLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.bufferInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.flush()
		case <-n.stopCh:
			n.flush()
			return
		}
	}
}

func (n *DiscordNotifier) flush() {
	n.mu.Lock()
	if len(n.buffer) == 0 {
		n.mu.Unlock()
		return
	}
	batch := n.buffer
	n.buffer = nil
	n.mu.Unlock()

	content := fmt.Sprintf("--- **Position Report (%d event(s))** ---\n%s",
		len(batch), strings.Join(batch, "\n"))

	channel, err := n.session.UserChannelCreate(n.userID)
	if err != nil {
		n.logger.Error("Failed to create discord DM channel", zap.Error(err))
		return
	}
	if _, err := n.session.ChannelMessageSend(channel.ID, content); err != nil {
		n.logger.Error("Failed to send discord alert", zap.Error(err))
	}
}

// Close flushes pending messages and closes the session.
func (n *DiscordNotifier) Close() error {
	close(n.stopCh)
	n.wg.Wait()
	return n.session.Close()
}
