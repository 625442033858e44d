// Package curriculum holds the subject/book catalog: which disciplines the
// tutor serves, the grades it covers, and the textbooks it cites.
package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader loads and serves the curriculum catalog.
type Loader struct {
	catalog Catalog
	mu      sync.RWMutex
}

// NewLoader loads the catalog from a YAML file. An empty path loads the
// built-in default catalog.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{}

	if path == "" {
		l.catalog = DefaultCatalog()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading curriculum: %w", err)
		}
		var cat Catalog
		if err := yaml.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("parsing curriculum: %w", err)
		}
		if len(cat.Subjects) == 0 {
			return nil, fmt.Errorf("curriculum %s defines no subjects", path)
		}
		l.catalog = cat
	}

	slog.Info("curriculum loaded",
		"subjects", len(l.catalog.Subjects),
		"grades", l.catalog.Grades,
	)
	return l, nil
}

// DefaultCatalog returns the built-in catalog covering the three pilot
// disciplines for grades 8 and 9.
func DefaultCatalog() Catalog {
	return Catalog{
		Grades: []int{8, 9},
		Subjects: []Subject{
			{
				Name:         "Українська мова",
				DisciplineID: 131,
				Aliases:      []string{"українська", "мова", "укр мова"},
				Books: []Book{
					{Name: "Українська мова. 8 клас", Grade: 8},
					{Name: "Українська мова. 9 клас", Grade: 9},
				},
			},
			{
				Name:         "Алгебра",
				DisciplineID: 72,
				Aliases:      []string{"математика", "algebra"},
				Books: []Book{
					{Name: "Алгебра. 8 клас", Grade: 8},
					{Name: "Алгебра. 9 клас", Grade: 9},
				},
			},
			{
				Name:         "Історія України",
				DisciplineID: 107,
				Aliases:      []string{"історія"},
				Books: []Book{
					{Name: "Історія України. 8 клас", Grade: 8},
					{Name: "Історія України. 9 клас", Grade: 9},
				},
			},
		},
	}
}

// Subjects returns all subjects in the catalog.
func (l *Loader) Subjects() []Subject {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Subject, len(l.catalog.Subjects))
	copy(out, l.catalog.Subjects)
	return out
}

// SubjectByName finds a subject by name or alias, case-insensitively.
func (l *Loader) SubjectByName(name string) (Subject, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(name))
	for _, s := range l.catalog.Subjects {
		if strings.ToLower(s.Name) == needle {
			return s, true
		}
		for _, a := range s.Aliases {
			if strings.ToLower(a) == needle {
				return s, true
			}
		}
	}
	return Subject{}, false
}

// SubjectByID finds a subject by its discipline id.
func (l *Loader) SubjectByID(disciplineID int) (Subject, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, s := range l.catalog.Subjects {
		if s.DisciplineID == disciplineID {
			return s, true
		}
	}
	return Subject{}, false
}

// ValidGrade reports whether the catalog covers the given grade.
func (l *Loader) ValidGrade(grade int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, g := range l.catalog.Grades {
		if g == grade {
			return true
		}
	}
	return false
}

// BookFor returns the textbook name for a subject and grade, or an empty
// string when the catalog has none.
func (l *Loader) BookFor(disciplineID, grade int) string {
	s, ok := l.SubjectByID(disciplineID)
	if !ok {
		return ""
	}
	for _, b := range s.Books {
		if b.Grade == grade {
			return b.Name
		}
	}
	return ""
}
