package content

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/xhad/booksage/internal/models"
)

// BookFile is the YAML layout accepted by LoadFile. Units without an id get
// one derived from their position, so re-loading the same file re-indexes
// the same chunk ids.
type BookFile struct {
	ID          string       `yaml:"id"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Modules     []ModuleFile `yaml:"modules"`
}

type ModuleFile struct {
	ID       string        `yaml:"id"`
	Title    string        `yaml:"title"`
	Number   int           `yaml:"number"`
	Chapters []ChapterFile `yaml:"chapters"`
}

type ChapterFile struct {
	ID       string        `yaml:"id"`
	Title    string        `yaml:"title"`
	Number   int           `yaml:"number"`
	Content  string        `yaml:"content"`
	Sections []SectionFile `yaml:"sections"`
}

type SectionFile struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Number  int    `yaml:"number"`
	Type    string `yaml:"type"`
	Content string `yaml:"content"`
}

var fileNamespace = uuid.MustParse("b7d0b0a2-2f6e-4c1d-8f3a-1f4e5d6c7b8a")

// LoadFile reads a YAML book into a new Memory hierarchy and returns the
// book id.
func LoadFile(path string) (*Memory, models.ContentID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.ContentID{}, fmt.Errorf("read book file: %w", err)
	}
	var book BookFile
	if err := yaml.Unmarshal(data, &book); err != nil {
		return nil, models.ContentID{}, fmt.Errorf("%w: parse book file %s: %v", models.ErrInvalidArgument, path, err)
	}

	m := NewMemory()
	bookID, err := m.AddBook(book)
	if err != nil {
		return nil, models.ContentID{}, err
	}
	return m, bookID, nil
}

// AddBook inserts a whole book tree.
func (m *Memory) AddBook(book BookFile) (models.ContentID, error) {
	bookID, err := fileID(book.ID, "book/"+book.Title)
	if err != nil {
		return models.ContentID{}, err
	}
	if err := m.Add(models.ContentUnit{ID: bookID, Type: models.Book, Title: book.Title}); err != nil {
		return models.ContentID{}, err
	}

	for mi, mod := range book.Modules {
		modKey := fmt.Sprintf("%s/module/%d", bookID, mi)
		modID, err := fileID(mod.ID, modKey)
		if err != nil {
			return models.ContentID{}, err
		}
		err = m.Add(models.ContentUnit{ID: modID, Type: models.Module, ParentID: bookID, Title: mod.Title, Number: numberOr(mod.Number, mi)})
		if err != nil {
			return models.ContentID{}, err
		}

		for ci, ch := range mod.Chapters {
			chKey := fmt.Sprintf("%s/chapter/%d", modKey, ci)
			chID, err := fileID(ch.ID, chKey)
			if err != nil {
				return models.ContentID{}, err
			}
			err = m.Add(models.ContentUnit{ID: chID, Type: models.Chapter, ParentID: modID, Title: ch.Title, Number: numberOr(ch.Number, ci), Text: ch.Content})
			if err != nil {
				return models.ContentID{}, err
			}

			for si, sec := range ch.Sections {
				secID, err := fileID(sec.ID, fmt.Sprintf("%s/section/%d", chKey, si))
				if err != nil {
					return models.ContentID{}, err
				}
				kind := sec.Type
				if kind == "" {
					kind = "text"
				}
				err = m.Add(models.ContentUnit{ID: secID, Type: models.Section, ParentID: chID, Title: sec.Title, Number: numberOr(sec.Number, si), Kind: kind, Text: sec.Content})
				if err != nil {
					return models.ContentID{}, err
				}
			}
		}
	}
	return bookID, nil
}

func fileID(explicit, key string) (models.ContentID, error) {
	if explicit != "" {
		return models.ParseContentID(explicit)
	}
	return models.ContentID(uuid.NewSHA1(fileNamespace, []byte(key))), nil
}

func numberOr(n, index int) int {
	if n != 0 {
		return n
	}
	return index + 1
}

// Reload replaces the whole hierarchy with the book in path. Readers see
// either the old or the new book, never a mix.
func (m *Memory) Reload(path string) (models.ContentID, error) {
	fresh, bookID, err := LoadFile(path)
	if err != nil {
		return models.ContentID{}, err
	}

	m.mu.Lock()
	m.units, m.children, m.books = fresh.units, fresh.children, fresh.books
	m.mu.Unlock()
	return bookID, nil
}
