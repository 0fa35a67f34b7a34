package channel

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/driftlock/symbiont/internal/bus"
	"github.com/driftlock/symbiont/internal/config"
)

// mockBot implements TelegramBot without touching the network.
type mockBot struct {
	updates chan tgbotapi.Update
	sent    []tgbotapi.Chattable
}

func newMockBot() *mockBot {
	return &mockBot{updates: make(chan tgbotapi.Update, 10)}
}

func (m *mockBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockBot) StopReceivingUpdates() {}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, nil
}

func (m *mockBot) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "symbiont_test_bot"}
}

func mockFactory(bot *mockBot) BotFactory {
	return func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
		return bot, nil
	}
}

func testUpdate(userID, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: userID, UserName: "tester"},
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: text,
			Date: int(time.Now().Unix()),
		},
	}
}

func TestTelegramChannelRequiresToken(t *testing.T) {
	b := bus.NewMessageBus(10)
	if _, err := NewTelegramChannel(config.TelegramConfig{}, b); err == nil {
		t.Fatal("expected error without a token")
	}
}

func TestTelegramChannelPublishesInbound(t *testing.T) {
	b := bus.NewMessageBus(10)
	bot := newMockBot()
	ch, err := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "test-token"}, b, mockFactory(bot))
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ch.Start(ctx); err != nil {
		t.Fatalf("start channel: %v", err)
	}
	defer func() { _ = ch.Stop() }()

	bot.updates <- testUpdate(100, 200, "hello")

	select {
	case msg := <-b.Inbound:
		if msg.Channel != "telegram" || msg.SenderID != "100" || msg.ChatID != "200" || msg.Content != "hello" {
			t.Errorf("unexpected inbound message: %#v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message published")
	}
}

func TestTelegramChannelAllowlist(t *testing.T) {
	b := bus.NewMessageBus(10)
	bot := newMockBot()
	cfg := config.TelegramConfig{Token: "test-token", AllowFrom: []string{"100"}}
	ch, err := NewTelegramChannelWithFactory(cfg, b, mockFactory(bot))
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ch.Start(ctx); err != nil {
		t.Fatalf("start channel: %v", err)
	}
	defer func() { _ = ch.Stop() }()

	bot.updates <- testUpdate(999, 200, "blocked")
	bot.updates <- testUpdate(100, 200, "allowed")

	select {
	case msg := <-b.Inbound:
		if msg.SenderID != "100" {
			t.Errorf("allowlist leak: %#v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("allowed message never arrived")
	}
}

func TestTelegramChannelSend(t *testing.T) {
	b := bus.NewMessageBus(10)
	bot := newMockBot()
	ch, err := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "test-token"}, b, mockFactory(bot))
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	ch.bot = bot

	if err := ch.Send(bus.OutboundMessage{ChatID: "200", Content: "reply"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(bot.sent))
	}

	if err := ch.Send(bus.OutboundMessage{ChatID: "not-a-number", Content: "reply"}); err == nil {
		t.Error("expected error for non-numeric chat id")
	}
}

func TestTelegramChannelSendBeforeStart(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, err := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "test-token"}, b, mockFactory(newMockBot()))
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	if err := ch.Send(bus.OutboundMessage{ChatID: "200", Content: "early"}); err == nil {
		t.Fatal("send before start must return an error, not panic")
	}
}

func TestTelegramChannelSendChunksLongReply(t *testing.T) {
	b := bus.NewMessageBus(10)
	bot := newMockBot()
	ch, err := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "test-token"}, b, mockFactory(bot))
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	ch.bot = bot

	long := strings.Repeat("a", telegramMaxMessageLen+100)
	if err := ch.Send(bus.OutboundMessage{ChatID: "200", Content: long}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(bot.sent))
	}
	first := bot.sent[0].(tgbotapi.MessageConfig)
	second := bot.sent[1].(tgbotapi.MessageConfig)
	if len(first.Text) != telegramMaxMessageLen || len(second.Text) != 100 {
		t.Errorf("unexpected chunk sizes: %d, %d", len(first.Text), len(second.Text))
	}
	if first.Text+second.Text != long {
		t.Error("chunks must reassemble to the original reply")
	}
}

func TestSplitMessageRuneBoundary(t *testing.T) {
	text := strings.Repeat("ü", 10)
	parts := splitMessage(text, 5)
	var rebuilt strings.Builder
	for _, part := range parts {
		if len(part) > 5 {
			t.Errorf("chunk exceeds limit: %d bytes", len(part))
		}
		if !utf8.ValidString(part) {
			t.Errorf("chunk is not valid UTF-8: %q", part)
		}
		rebuilt.WriteString(part)
	}
	if rebuilt.String() != text {
		t.Error("chunks must reassemble to the original text")
	}
}

func TestBaseChannelAllowlist(t *testing.T) {
	b := bus.NewMessageBus(1)

	open := NewBaseChannel("test", b, nil)
	if !open.IsAllowed("anyone") {
		t.Error("empty allowlist must admit everyone")
	}

	restricted := NewBaseChannel("test", b, []string{"alice"})
	if !restricted.IsAllowed("alice") {
		t.Error("listed sender must be admitted")
	}
	if restricted.IsAllowed("bob") {
		t.Error("unlisted sender must be rejected")
	}
}
