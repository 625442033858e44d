// Package profile builds the personalization profile: score analytics,
// attendance gaps and the teaching-strategy text injected into generation
// prompts.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mriia-ai/tutor/internal/records"
)

// Scope describes which slice of the journal the profile was built from.
type Scope string

const (
	ScopeSpecificTopic   Scope = "specific_topic"
	ScopeSubjectFallback Scope = "subject_fallback"
	ScopeNewStudent      Scope = "new_student"
)

// Archetype is the student's performance band on the 12-point scale.
type Archetype string

const (
	ArchetypeWeak    Archetype = "weak"
	ArchetypeAverage Archetype = "average"
	ArchetypeStrong  Archetype = "strong"
)

// Score bands on the 12-point scale.
const (
	weakTopicBelow   = 6.0  // per-topic mean below this is a weak topic
	strongTopicAbove = 9.0  // per-topic mean above this is a strong topic
	weakAvgBelow     = 5.0  // overall mean below this marks a weak student
	strongAvgFrom    = 10.0 // overall mean at or above this marks a strong student

	// defaultMatchThreshold is the TF-IDF cosine floor for relating the
	// routed topic to journal topic names.
	defaultMatchThreshold = 0.45
)

// TopicScore is a per-topic mean from the journal.
type TopicScore struct {
	Topic string  `json:"topic"`
	Mean  float64 `json:"mean"`
}

// StudentProfile is the personalization context for one query.
type StudentProfile struct {
	StudentID int    `json:"student_id"`
	Subject   string `json:"subject"`
	Scope     Scope  `json:"scope"`

	AverageScore float64 `json:"average_score"`
	MinScore     float64 `json:"min_score"`
	MaxScore     float64 `json:"max_score"`
	ScoreCount   int     `json:"score_count"`

	TopicBreakdown []TopicScore `json:"topic_breakdown"`
	WeakTopics     []string     `json:"weak_topics"`
	StrongTopics   []string     `json:"strong_topics"`

	MissedCount    int      `json:"missed_count"`
	LastMissedDate string   `json:"last_missed_date,omitempty"`
	MissedLessons  []string `json:"missed_lessons,omitempty"`

	Archetype       Archetype `json:"archetype"`
	PromptInjection string    `json:"prompt_injection"`
}

// Builder builds student profiles from the journal store.
type Builder struct {
	store     records.Store
	threshold float64
}

// NewBuilder creates a profile builder over the journal store.
func NewBuilder(store records.Store) *Builder {
	return &Builder{store: store, threshold: defaultMatchThreshold}
}

// Build assembles a profile for the student scoped to the routed topic.
// When the journal has no entries related to the topic, it falls back to
// full subject history; a student with no history at all gets a minimal
// new-student profile.
func (b *Builder) Build(ctx context.Context, studentID int, subject, topic string) (*StudentProfile, error) {
	journalTopics, err := b.store.SubjectTopics(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("journal topics: %w", err)
	}

	relevant := MatchTopics(topic, journalTopics, b.threshold)
	relevantSet := make(map[string]bool, len(relevant))
	for _, t := range relevant {
		relevantSet[t] = true
	}

	allScores, err := b.store.Scores(ctx, studentID, subject)
	if err != nil {
		return nil, fmt.Errorf("scores: %w", err)
	}
	allAbsences, err := b.store.Absences(ctx, studentID, subject)
	if err != nil {
		return nil, fmt.Errorf("absences: %w", err)
	}

	var scores []records.Score
	var absences []records.Absence
	for _, s := range allScores {
		if relevantSet[s.Topic] {
			scores = append(scores, s)
		}
	}
	for _, a := range allAbsences {
		if relevantSet[a.Topic] {
			absences = append(absences, a)
		}
	}

	scope := ScopeSpecificTopic
	if len(scores) == 0 && len(absences) == 0 {
		// Nothing topic-specific: use full subject history, ignore absences.
		scope = ScopeSubjectFallback
		scores = allScores
		absences = nil

		if len(scores) == 0 {
			slog.Info("building new-student profile", "student_id", studentID, "subject", subject)
			return &StudentProfile{
				StudentID:       studentID,
				Subject:         subject,
				Scope:           ScopeNewStudent,
				Archetype:       ArchetypeAverage,
				PromptInjection: "Новий учень. Пояснюй з нуля.",
			}, nil
		}
	}

	p := &StudentProfile{
		StudentID: studentID,
		Subject:   subject,
		Scope:     scope,
	}
	b.fillScoreAnalytics(p, scores)
	b.fillAttendance(p, absences)
	p.Archetype = archetypeFor(p.AverageScore)
	p.PromptInjection = buildPromptInjection(p, topic)

	slog.Debug("profile built",
		"student_id", studentID,
		"subject", subject,
		"scope", string(p.Scope),
		"avg", p.AverageScore,
		"missed", p.MissedCount,
	)
	return p, nil
}

func (b *Builder) fillScoreAnalytics(p *StudentProfile, scores []records.Score) {
	p.ScoreCount = len(scores)

	var sum float64
	p.MinScore = scores[0].Value
	p.MaxScore = scores[0].Value
	byTopic := make(map[string][]float64)
	for _, s := range scores {
		sum += s.Value
		if s.Value < p.MinScore {
			p.MinScore = s.Value
		}
		if s.Value > p.MaxScore {
			p.MaxScore = s.Value
		}
		byTopic[s.Topic] = append(byTopic[s.Topic], s.Value)
	}
	p.AverageScore = sum / float64(len(scores))

	for topic, vals := range byTopic {
		var tSum float64
		for _, v := range vals {
			tSum += v
		}
		p.TopicBreakdown = append(p.TopicBreakdown, TopicScore{
			Topic: topic,
			Mean:  tSum / float64(len(vals)),
		})
	}
	sort.Slice(p.TopicBreakdown, func(i, j int) bool {
		if p.TopicBreakdown[i].Mean != p.TopicBreakdown[j].Mean {
			return p.TopicBreakdown[i].Mean < p.TopicBreakdown[j].Mean
		}
		return p.TopicBreakdown[i].Topic < p.TopicBreakdown[j].Topic
	})

	for _, ts := range p.TopicBreakdown {
		if ts.Mean < weakTopicBelow {
			p.WeakTopics = append(p.WeakTopics, ts.Topic)
		}
		if ts.Mean > strongTopicAbove {
			p.StrongTopics = append(p.StrongTopics, ts.Topic)
		}
	}
}

func (b *Builder) fillAttendance(p *StudentProfile, absences []records.Absence) {
	p.MissedCount = len(absences)
	for _, a := range absences {
		p.MissedLessons = append(p.MissedLessons,
			fmt.Sprintf("%s: %s", a.LessonDate.Format("2006-01-02"), a.Topic))
	}
	if len(absences) > 0 {
		// Absences arrive sorted ascending.
		p.LastMissedDate = absences[len(absences)-1].LessonDate.Format("2006-01-02")
	}
}

func archetypeFor(avg float64) Archetype {
	switch {
	case avg < weakAvgBelow:
		return ArchetypeWeak
	case avg >= strongAvgFrom:
		return ArchetypeStrong
	default:
		return ArchetypeAverage
	}
}

// buildPromptInjection renders the teaching-strategy text handed to the
// generation prompts.
func buildPromptInjection(p *StudentProfile, topic string) string {
	var lines []string

	scopeLabel := "КОНКРЕТНА ТЕМА"
	if p.Scope == ScopeSubjectFallback {
		scopeLabel = "ЗАГАЛЬНА СТАТИСТИКА ПО ПРЕДМЕТУ"
	}
	lines = append(lines, fmt.Sprintf("КОНТЕКСТ: %s (%s).", scopeLabel, topic))

	var status, baseStrategy string
	switch p.Archetype {
	case ArchetypeWeak:
		status = "СТАТУС: Учень СЛАБКИЙ. Йому важко дається матеріал."
		baseStrategy = "Пояснюй максимально просто, крок за кроком. Використовуй аналогії. Не давай складних термінів одразу."
	case ArchetypeStrong:
		status = "СТАТУС: Учень СИЛЬНИЙ."
		baseStrategy = "Можна тримати високий темп. Пропускай очевидні речі."
	default:
		status = "СТАТУС: Учень СЕРЕДНЬОГО рівня."
		baseStrategy = "Використовуй збалансований підхід."
	}
	lines = append(lines, fmt.Sprintf("%s Рівень: %.1f/12.", status, p.AverageScore))

	if len(p.TopicBreakdown) > 5 {
		worst := formatTopicScores(p.TopicBreakdown[:3])
		best := formatTopicScores(p.TopicBreakdown[len(p.TopicBreakdown)-2:])
		lines = append(lines, fmt.Sprintf("ОЦІНКИ: Слабкі місця: [%s] ... Сильні: [%s].", worst, best))
	} else if len(p.TopicBreakdown) > 0 {
		lines = append(lines, fmt.Sprintf("ОЦІНКИ: %s.", formatTopicScores(p.TopicBreakdown)))
	}

	strategy := []string{baseStrategy}
	if p.MissedCount > 0 {
		lines = append(lines, fmt.Sprintf("ПРОПУЩЕНІ УРОКИ (%d): [%s].", p.MissedCount, strings.Join(p.MissedLessons, "; ")))
		strategy = append(strategy, "КРІМ ТОГО: Учень не був на цих уроках. Почни з ТЕОРІЇ саме по пропущених темах, перш ніж переходити до практики.")
	} else if len(p.WeakTopics) > 0 {
		focus := p.WeakTopics
		if len(focus) > 2 {
			focus = focus[:2]
		}
		strategy = append(strategy, fmt.Sprintf("ФОКУС: Є конкретні прогалини (%s). Дай додаткові тести на це.", strings.Join(focus, ", ")))
	}
	lines = append(lines, fmt.Sprintf("ІНСТРУКЦІЯ ДЛЯ ВЧИТЕЛЯ: %s", strings.Join(strategy, " ")))

	return strings.Join(lines, " ")
}

func formatTopicScores(scores []TopicScore) string {
	parts := make([]string, len(scores))
	for i, ts := range scores {
		parts[i] = fmt.Sprintf("%s(%.1f)", ts.Topic, ts.Mean)
	}
	return strings.Join(parts, ", ")
}
