package chat_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/mriia-ai/tutor/internal/ai"
	"github.com/mriia-ai/tutor/internal/chat"
	"github.com/mriia-ai/tutor/internal/curriculum"
	"github.com/mriia-ai/tutor/internal/index"
	"github.com/mriia-ai/tutor/internal/profile"
	"github.com/mriia-ai/tutor/internal/records"
	"github.com/mriia-ai/tutor/internal/session"
	"github.com/mriia-ai/tutor/internal/tutor"
)

const testLecture = `## Вступ
Вступ.

## Основний матеріал
Матеріал.

## Контрольні питання
1. Питання?`

func practiceJSON(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(
			`{"question": "Питання %d?", "options": ["перший", "другий", "третій", "четвертий"], "correct_index": 0, "explanation": "пояснення", "topic": "Складні речення"}`,
			i+1)
	}
	return "[" + strings.Join(items, ",") + "]"
}

type botHarness struct {
	bot      *chat.Bot
	channel  *chat.MockChannel
	sessions *session.MemoryStore
	events   *session.MemoryEventLogger
}

// newBotHarness wires the bot over memory stores and a mock provider. A
// query triggers one lecture and one practice call, in that order; grading
// letter answers makes no model calls.
func newBotHarness(t *testing.T, provider ai.Provider, embedVec []float32) *botHarness {
	t.Helper()

	catalog, err := curriculum.NewLoader("")
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	topics := &index.MemoryTopicIndex{}
	topics.Add(index.TopicRecord{
		ID: "t1", Title: "Складні речення", BookTopicID: "bt1",
		Grade: 9, DisciplineID: 131, StartPage: 10, EndPage: 14,
		BookName: "Українська мова. 9 клас",
	}, []float32{1, 0})

	pages := &index.MemoryPageIndex{}
	pages.Add(index.PageRecord{
		ID: "p1", Text: "Текст сторінки.", Page: 10, Grade: 9,
		BookName: "Українська мова. 9 клас",
	}, "bt1", 131, []float32{1, 0})

	store := records.NewMemoryStore()
	llm := ai.NewRouter(provider, "lapa", "mamay")
	builder := profile.NewBuilder(store)

	gen := tutor.NewPracticeGenerator(llm, 8, 6)
	pipeline := tutor.NewPipeline(
		tutor.NewTopicRouter(ai.NewMockEmbedder(embedVec), topics, 0.30, 3),
		tutor.NewContextRetriever(pages, 10),
		builder,
		tutor.NewContentGenerator(llm),
		tutor.NewValidationLoop(gen, tutor.NewValidator(llm), 3),
		tutor.NewEvaluator(llm),
		tutor.NewRecommender(llm),
		nil,
	)
	svc := tutor.NewService(pipeline, tutor.NewValidator(llm), store, builder, catalog)

	gateway := chat.NewGateway()
	channel := &chat.MockChannel{}
	gateway.Register("telegram", channel)

	sessions := session.NewMemoryStore()
	events := session.NewMemoryEventLogger()

	return &botHarness{
		bot:      chat.NewBot(svc, sessions, events, gateway),
		channel:  channel,
		sessions: sessions,
		events:   events,
	}
}

func inbound(text string) chat.InboundMessage {
	return chat.InboundMessage{
		Channel:   "telegram",
		UserID:    "100",
		Text:      text,
		FirstName: "Оля",
	}
}

func allText(msgs []chat.OutboundMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func TestBot_StartCommand(t *testing.T) {
	h := newBotHarness(t, ai.NewMockProvider(""), []float32{1, 0})

	h.bot.Handle(inbound("/start"))

	sent := h.channel.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if !strings.Contains(sent[0].Text, "Оля") || !strings.Contains(sent[0].Text, "Наприклад") {
		t.Errorf("greeting = %q, want name and usage example", sent[0].Text)
	}
}

func TestBot_UnknownCommand(t *testing.T) {
	h := newBotHarness(t, ai.NewMockProvider(""), []float32{1, 0})

	h.bot.Handle(inbound("/weather"))

	sent := h.channel.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "Невідома команда") {
		t.Fatalf("sent = %+v, want unknown command reply", sent)
	}
}

func TestBot_QuerySendsLectureAndQuestions(t *testing.T) {
	provider := &ai.MockProvider{Responses: []string{testLecture, practiceJSON(8)}}
	h := newBotHarness(t, provider, []float32{1, 0})

	h.bot.Handle(inbound("Українська мова, 9 клас: складні речення"))

	text := allText(h.channel.Sent())
	if !strings.Contains(text, "Основний матеріал") {
		t.Error("lecture missing from replies")
	}
	if !strings.Contains(text, "Українська мова. 9 клас, стор. 10") {
		t.Error("citations missing from replies")
	}
	if !strings.Contains(text, "Питання 8?") || !strings.Contains(text, "А)") {
		t.Error("question list missing from replies")
	}

	active, ok := h.sessions.Active(context.Background(), "telegram:100")
	if !ok || len(active.Questions) != 8 {
		t.Fatalf("active session = %+v, %v, want 8 stored questions", active, ok)
	}

	events := h.events.Events()
	if len(events) != 1 || events[0].Type != "questions_sent" {
		t.Errorf("events = %+v, want one questions_sent", events)
	}
}

func TestBot_MalformedQueryGetsUsage(t *testing.T) {
	h := newBotHarness(t, ai.NewMockProvider(""), []float32{1, 0})

	h.bot.Handle(inbound("розкажи про рівняння"))

	sent := h.channel.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "Надішли запит у форматі") {
		t.Fatalf("sent = %+v, want usage reply", sent)
	}
}

func TestBot_UnknownSubjectReported(t *testing.T) {
	h := newBotHarness(t, ai.NewMockProvider(""), []float32{1, 0})

	h.bot.Handle(inbound("Фізика, 9 клас: оптика"))

	sent := h.channel.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "Не можу опрацювати запит") {
		t.Fatalf("sent = %+v, want input rejection", sent)
	}
}

func TestBot_GradesAnswersAgainstStoredQuestions(t *testing.T) {
	provider := &ai.MockProvider{Responses: []string{testLecture, practiceJSON(8)}}
	h := newBotHarness(t, provider, []float32{1, 0})

	h.bot.Handle(inbound("Українська мова, 9 клас: складні речення"))
	queryCalls := provider.CallCount
	h.bot.Handle(inbound("А, А, А, Б, А, А, А, А"))

	text := allText(h.channel.Sent())
	if !strings.Contains(text, "Добрий результат: 7/8") {
		t.Errorf("replies = %q, want 7/8 score summary", text)
	}
	if !strings.Contains(text, "Правильна відповідь: А. пояснення") {
		t.Errorf("replies = %q, want explanation for the wrong answer", text)
	}
	// Letter answers grade without model calls.
	if provider.CallCount != queryCalls {
		t.Errorf("CallCount = %d, want %d (no grading calls)", provider.CallCount, queryCalls)
	}

	if _, ok := h.sessions.Active(context.Background(), "telegram:100"); ok {
		t.Error("session still active after grading")
	}

	events := h.events.Events()
	if len(events) != 2 || events[1].Type != "answers_graded" {
		t.Fatalf("events = %+v, want answers_graded second", events)
	}
	if events[1].Data["correct"] != 7 {
		t.Errorf("graded correct = %v, want 7", events[1].Data["correct"])
	}
}

func TestBot_AnswerCountMismatch(t *testing.T) {
	provider := &ai.MockProvider{Responses: []string{testLecture, practiceJSON(8)}}
	h := newBotHarness(t, provider, []float32{1, 0})

	h.bot.Handle(inbound("Українська мова, 9 клас: складні речення"))
	before := len(h.channel.Sent())
	h.bot.Handle(inbound("А, Б"))

	sent := h.channel.Sent()
	if len(sent) != before+1 || !strings.Contains(sent[before].Text, "Потрібно 8") {
		t.Fatalf("reply = %+v, want answer count complaint", sent[before:])
	}

	// The session survives so the student can retry.
	if _, ok := h.sessions.Active(context.Background(), "telegram:100"); !ok {
		t.Error("session ended on a count mismatch")
	}
}

func TestBot_NewQueryReplacesActiveSession(t *testing.T) {
	provider := &ai.MockProvider{Responses: []string{
		testLecture, practiceJSON(8),
		testLecture, practiceJSON(8),
	}}
	h := newBotHarness(t, provider, []float32{1, 0})

	h.bot.Handle(inbound("Українська мова, 9 клас: складні речення"))
	first, _ := h.sessions.Active(context.Background(), "telegram:100")

	h.bot.Handle(inbound("Українська мова, 9 клас: складнопідрядні речення"))
	second, ok := h.sessions.Active(context.Background(), "telegram:100")
	if !ok {
		t.Fatal("no active session after second query")
	}
	if first != nil && second.ID == first.ID {
		t.Error("second query did not start a new session")
	}
}

func TestBot_StopEndsSession(t *testing.T) {
	provider := &ai.MockProvider{Responses: []string{testLecture, practiceJSON(8)}}
	h := newBotHarness(t, provider, []float32{1, 0})

	h.bot.Handle(inbound("Українська мова, 9 клас: складні речення"))
	h.bot.Handle(inbound("/stop"))

	if _, ok := h.sessions.Active(context.Background(), "telegram:100"); ok {
		t.Error("session still active after /stop")
	}
}

func TestBot_NoContentReply(t *testing.T) {
	h := newBotHarness(t, ai.NewMockProvider(""), []float32{0, 1})

	// Embedder points away from the only topic, so routing finds nothing.
	h.bot.Handle(inbound("Українська мова, 9 клас: квантова механіка"))

	sent := h.channel.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "Не знайшов навчальних матеріалів") {
		t.Fatalf("sent = %+v, want no-content reply", sent)
	}
}
