package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mriia-ai/tutor/internal/session"
	"github.com/mriia-ai/tutor/internal/tutor"
)

const handleTimeout = 3 * time.Minute

const usageText = `Надішли запит у форматі:
<предмет>, <клас> клас: <тема>

Наприклад:
Алгебра, 9 клас: квадратні рівняння`

var optionLetters = []string{"А", "Б", "В", "Г"}

// Bot drives the tutoring pipeline from chat messages. A query produces a
// lecture and a question set; the set is kept in a session so the student's
// next message with answer letters is graded against it.
type Bot struct {
	svc      *tutor.Service
	sessions session.Store
	events   session.EventLogger
	gateway  *Gateway
}

// NewBot wires the chat front-end. events may be nil.
func NewBot(svc *tutor.Service, sessions session.Store, events session.EventLogger, gateway *Gateway) *Bot {
	if events == nil {
		events = session.NopEventLogger{}
	}
	return &Bot{
		svc:      svc,
		sessions: sessions,
		events:   events,
		gateway:  gateway,
	}
}

// Handle processes one inbound message. Channels call it from their own
// goroutines, one per message.
func (b *Bot) Handle(msg InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	slog.Info("chat message received",
		"channel", msg.Channel,
		"user_id", msg.UserID,
		"text_len", len(msg.Text),
	)

	if strings.HasPrefix(msg.Text, "/") {
		b.reply(ctx, msg, b.handleCommand(ctx, msg))
		return
	}

	key := studentKey(msg)
	if active, ok := b.sessions.Active(ctx, key); ok && len(active.Questions) > 0 {
		if answers, isAnswers := parseAnswerList(msg.Text); isAnswers {
			b.handleAnswers(ctx, msg, active, answers)
			return
		}
		// Not an answer list, treat it as a fresh query.
		if err := b.sessions.End(ctx, active.ID); err != nil {
			slog.Warn("ending stale session failed", "session_id", active.ID, "error", err)
		}
	}

	b.handleQuery(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg InboundMessage) string {
	cmd := strings.Split(msg.Text, " ")[0]

	switch cmd {
	case "/start":
		b.endActive(ctx, studentKey(msg))
		name := msg.FirstName
		if name == "" {
			name = msg.Username
		}
		if name == "" {
			name = "друже"
		}
		return fmt.Sprintf("Привіт, %s! Я твій репетитор.\n\n%s", name, usageText)

	case "/stop":
		b.endActive(ctx, studentKey(msg))
		return "Сесію завершено. Надішли новий запит, коли будеш готовий."

	default:
		return fmt.Sprintf("Невідома команда: %s\n\n%s", cmd, usageText)
	}
}

func (b *Bot) handleQuery(ctx context.Context, msg InboundMessage) {
	subject, grade, query, ok := parseQuery(msg.Text)
	if !ok {
		b.reply(ctx, msg, usageText)
		return
	}

	// The pipeline takes a while; keep the typing indicator alive per stage.
	progress := func(stage tutor.Stage, _ string) {
		if err := b.gateway.SendTyping(ctx, msg.Channel, msg.UserID); err != nil {
			slog.Debug("typing indicator failed", "stage", stage, "error", err)
		}
	}

	resp, questions, err := b.svc.AskQuestions(ctx, tutor.QueryRequest{
		Query:   query,
		Grade:   grade,
		Subject: subject,
	}, progress)
	if err != nil {
		var shapeErr *tutor.InputShapeError
		if errors.As(err, &shapeErr) {
			b.reply(ctx, msg, fmt.Sprintf("Не можу опрацювати запит: %s\n\n%s", shapeErr.Msg, usageText))
			return
		}
		slog.Error("chat query failed", "error", err)
		b.reply(ctx, msg, "Вибач, сталася технічна помилка. Спробуй ще раз трохи пізніше.")
		return
	}

	if resp.Error != nil {
		if strings.HasPrefix(*resp.Error, "no matching content") {
			b.reply(ctx, msg, "Не знайшов навчальних матеріалів за цим запитом. Спробуй сформулювати тему інакше.")
		} else {
			slog.Error("chat pipeline failed", "error", *resp.Error)
			b.reply(ctx, msg, "Вибач, сталася технічна помилка. Спробуй ще раз трохи пізніше.")
		}
		return
	}

	if resp.Lecture != nil {
		b.replyMarkdown(ctx, msg, *resp.Lecture)
	}
	if len(resp.Citations) > 0 {
		b.reply(ctx, msg, "Джерела: "+strings.Join(resp.Citations, "; "))
	}

	if len(questions) == 0 {
		return
	}
	b.reply(ctx, msg, formatQuestions(questions))

	id, err := b.sessions.Create(ctx, session.Session{
		StudentKey: studentKey(msg),
		Subject:    subject,
		Grade:      grade,
		Query:      query,
		Questions:  questions,
	})
	if err != nil {
		slog.Error("creating session failed", "error", err)
		return
	}

	b.logEvent(ctx, session.Event{
		SessionID:  id,
		StudentKey: studentKey(msg),
		Type:       "questions_sent",
		Data: map[string]any{
			"subject":   subject,
			"grade":     grade,
			"questions": len(questions),
			"validated": resp.ValidationPassed,
		},
	})
}

func (b *Bot) handleAnswers(ctx context.Context, msg InboundMessage, active *session.Session, answers []string) {
	if len(answers) != len(active.Questions) {
		b.reply(ctx, msg, fmt.Sprintf(
			"Потрібно %d відповідей, а отримав %d. Надішли відповіді літерами А-Г через кому.",
			len(active.Questions), len(answers)))
		return
	}

	results, summary, err := b.svc.GradeAnswers(ctx, active.Questions, answers)
	if err != nil {
		slog.Error("grading failed", "session_id", active.ID, "error", err)
		b.reply(ctx, msg, "Вибач, не вдалося перевірити відповіді. Спробуй ще раз.")
		return
	}

	b.reply(ctx, msg, formatEvaluation(results, summary))

	if err := b.sessions.End(ctx, active.ID); err != nil {
		slog.Warn("ending session failed", "session_id", active.ID, "error", err)
	}

	correct := 0
	for _, r := range results {
		if r.IsCorrect {
			correct++
		}
	}
	b.logEvent(ctx, session.Event{
		SessionID:  active.ID,
		StudentKey: studentKey(msg),
		Type:       "answers_graded",
		Data: map[string]any{
			"correct": correct,
			"total":   len(results),
		},
	})
}

func (b *Bot) endActive(ctx context.Context, key string) {
	if active, ok := b.sessions.Active(ctx, key); ok {
		if err := b.sessions.End(ctx, active.ID); err != nil {
			slog.Warn("ending session failed", "session_id", active.ID, "error", err)
		}
	}
}

func (b *Bot) reply(ctx context.Context, msg InboundMessage, text string) {
	if text == "" {
		return
	}
	err := b.gateway.Send(ctx, OutboundMessage{
		Channel: msg.Channel,
		UserID:  msg.UserID,
		Text:    text,
	})
	if err != nil {
		slog.Error("sending reply failed", "channel", msg.Channel, "error", err)
	}
}

func (b *Bot) replyMarkdown(ctx context.Context, msg InboundMessage, text string) {
	err := b.gateway.Send(ctx, OutboundMessage{
		Channel:   msg.Channel,
		UserID:    msg.UserID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		slog.Error("sending reply failed", "channel", msg.Channel, "error", err)
	}
}

func (b *Bot) logEvent(ctx context.Context, event session.Event) {
	if err := b.events.Log(ctx, event); err != nil {
		slog.Warn("logging event failed", "type", event.Type, "error", err)
	}
}

func studentKey(msg InboundMessage) string {
	return msg.Channel + ":" + msg.UserID
}

// parseQuery extracts subject, grade and topic from a message shaped like
// "Алгебра, 9 клас: квадратні рівняння".
func parseQuery(text string) (subject string, grade int, query string, ok bool) {
	head, tail, found := strings.Cut(text, ":")
	if !found {
		return "", 0, "", false
	}
	query = strings.TrimSpace(tail)
	if query == "" {
		return "", 0, "", false
	}

	subjectPart, gradePart, found := strings.Cut(head, ",")
	if !found {
		return "", 0, "", false
	}
	subject = strings.TrimSpace(subjectPart)

	for _, field := range strings.Fields(gradePart) {
		if n, err := strconv.Atoi(field); err == nil {
			grade = n
			break
		}
	}
	if subject == "" || grade == 0 {
		return "", 0, "", false
	}
	return subject, grade, query, true
}

// parseAnswerList accepts a message consisting only of answer letters,
// Cyrillic А-Г or Latin A-D, separated by commas or whitespace.
func parseAnswerList(text string) ([]string, bool) {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '\n' || r == '\t' || r == '.'
	})
	if len(tokens) == 0 {
		return nil, false
	}

	answers := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		switch strings.ToLower(tok) {
		case "а", "б", "в", "г", "a", "b", "c", "d":
			answers = append(answers, tok)
		default:
			return nil, false
		}
	}
	return answers, true
}

func formatQuestions(questions []tutor.PracticeQuestion) string {
	var b strings.Builder
	b.WriteString("Перевір себе:\n\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Question)
		for j, opt := range q.Options {
			if j < len(optionLetters) {
				fmt.Fprintf(&b, "   %s) %s\n", optionLetters[j], opt)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("Надішли відповіді літерами А-Г через кому, наприклад: А, Б, В, Г")
	return b.String()
}

func formatEvaluation(results []tutor.EvaluationResult, summary string) string {
	var b strings.Builder
	for _, r := range results {
		if r.IsCorrect {
			fmt.Fprintf(&b, "%d. Правильно!\n", r.QuestionIndex+1)
			continue
		}
		fmt.Fprintf(&b, "%d. Неправильно. Правильна відповідь: %s.", r.QuestionIndex+1, r.CorrectAnswer)
		if r.Feedback != "" {
			fmt.Fprintf(&b, " %s", r.Feedback)
		}
		b.WriteString("\n")
	}
	if summary != "" {
		b.WriteString("\n")
		b.WriteString(summary)
	}
	return b.String()
}
