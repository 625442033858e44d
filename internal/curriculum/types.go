package curriculum

// Catalog is the subject/book catalog loaded from YAML.
type Catalog struct {
	Grades   []int     `yaml:"grades"`
	Subjects []Subject `yaml:"subjects"`
}

// Subject is a school discipline with its gateway discipline id and the
// textbooks that back it.
type Subject struct {
	Name         string   `yaml:"name"`
	DisciplineID int      `yaml:"discipline_id"`
	Aliases      []string `yaml:"aliases"`
	Books        []Book   `yaml:"books"`
}

// Book is a textbook used for citations.
type Book struct {
	Name  string `yaml:"name"`
	Grade int    `yaml:"grade"`
}
