package bible

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	errNotObject = errors.New("expected a json object")
	errNotArray  = errors.New("expected a json array")
)

// Verse is a single verse.
type Verse struct {
	Number int            `json:"number"`
	Text   string         `json:"text"`
	Raw    map[string]any `json:"raw"`
}

// Chapter is a chapter with its verses in response order.
type Chapter struct {
	Book   BookInfo       `json:"book"`
	Number int            `json:"number"`
	Verses []Verse        `json:"verses"`
	Raw    map[string]any `json:"raw"`
}

// Verse returns the verse numbered n.
func (c Chapter) Verse(n int) (Verse, bool) {
	for _, v := range c.Verses {
		if v.Number == n {
			return v, true
		}
	}
	return Verse{}, false
}

// VerseCount returns the number of verses in the chapter.
func (c Chapter) VerseCount() int {
	return len(c.Verses)
}

// BookInfo describes a book as listed by the API.
type BookInfo struct {
	Abbreviation string         `json:"abbreviation"`
	Name         string         `json:"name"`
	ChapterCount int            `json:"chapter_count"`
	Testament    string         `json:"testament"`
	Author       string         `json:"author"`
	Group        string         `json:"group"`
	Raw          map[string]any `json:"raw"`
}

// Key returns the abbreviation as a Book key.
func (b BookInfo) Key() Book {
	return Book(b.Abbreviation)
}

// Version is a translation offered by the API.
type Version struct {
	Code       string         `json:"code"`
	Name       string         `json:"name"`
	VerseCount int            `json:"verse_count"`
	Raw        map[string]any `json:"raw"`
}

type verseWire struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

type bookWire struct {
	Abbrev    abbreviation `json:"abbrev"`
	Name      string       `json:"name"`
	Chapters  int          `json:"chapters"`
	Testament string       `json:"testament"`
	Author    string       `json:"author"`
	Group     string       `json:"group"`
}

type chapterWire struct {
	Book    json.RawMessage   `json:"book"`
	Chapter chapterNumber     `json:"chapter"`
	Verses  []json.RawMessage `json:"verses"`
}

type versionWire struct {
	Version string `json:"version"`
	Name    string `json:"name"`
	Verses  int    `json:"verses"`
}

// abbreviation accepts "gn" or {"pt": "gn", "en": "gn"}, preferring pt.
type abbreviation string

func (a *abbreviation) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = abbreviation(s)
		return nil
	}
	var localized struct {
		PT string `json:"pt"`
		EN string `json:"en"`
	}
	if err := json.Unmarshal(data, &localized); err != nil {
		return fmt.Errorf("abbrev: %w", err)
	}
	if localized.PT != "" {
		*a = abbreviation(localized.PT)
	} else {
		*a = abbreviation(localized.EN)
	}
	return nil
}

// chapterNumber accepts 3 or {"number": 3, "verses": 31}.
type chapterNumber int

func (n *chapterNumber) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Number int `json:"number"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("chapter: %w", err)
		}
		*n = chapterNumber(obj.Number)
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("chapter: %w", err)
	}
	*n = chapterNumber(i)
	return nil
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// decodeObject decodes data into wire and also returns it as a generic map.
func decodeObject(data []byte, wire any) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}
	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(trimmed, wire); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeArray(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errNotArray
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// NewVerse builds a Verse from a JSON object.
func NewVerse(data []byte) (Verse, error) {
	var w verseWire
	raw, err := decodeObject(data, &w)
	if err != nil {
		return Verse{}, fmt.Errorf("verse: %w", err)
	}
	return Verse{Number: w.Number, Text: w.Text, Raw: raw}, nil
}

// NewBookInfo builds a BookInfo from a JSON object.
func NewBookInfo(data []byte) (BookInfo, error) {
	var w bookWire
	raw, err := decodeObject(data, &w)
	if err != nil {
		return BookInfo{}, fmt.Errorf("book: %w", err)
	}
	return BookInfo{
		Abbreviation: string(w.Abbrev),
		Name:         w.Name,
		ChapterCount: w.Chapters,
		Testament:    w.Testament,
		Author:       w.Author,
		Group:        w.Group,
		Raw:          raw,
	}, nil
}

// NewChapter builds a Chapter from a JSON object. Each verse is built
// independently; a missing book yields an empty BookInfo.
func NewChapter(data []byte) (Chapter, error) {
	var w chapterWire
	raw, err := decodeObject(data, &w)
	if err != nil {
		return Chapter{}, fmt.Errorf("chapter: %w", err)
	}

	var book BookInfo
	if len(w.Book) > 0 && !isNull(w.Book) {
		if book, err = NewBookInfo(w.Book); err != nil {
			return Chapter{}, fmt.Errorf("chapter: %w", err)
		}
	}

	verses := make([]Verse, 0, len(w.Verses))
	for i, item := range w.Verses {
		v, err := NewVerse(item)
		if err != nil {
			return Chapter{}, fmt.Errorf("chapter: verses[%d]: %w", i, err)
		}
		verses = append(verses, v)
	}

	return Chapter{
		Book:   book,
		Number: int(w.Chapter),
		Verses: verses,
		Raw:    raw,
	}, nil
}

// NewVersion builds a Version from a JSON object.
func NewVersion(data []byte) (Version, error) {
	var w versionWire
	raw, err := decodeObject(data, &w)
	if err != nil {
		return Version{}, fmt.Errorf("version: %w", err)
	}
	return Version{Code: w.Version, Name: w.Name, VerseCount: w.Verses, Raw: raw}, nil
}

// NewBookList builds the book list from a JSON array.
func NewBookList(data []byte) ([]BookInfo, error) {
	return decodeList(data, NewBookInfo)
}

// NewVersionList builds the version list from a JSON array.
func NewVersionList(data []byte) ([]Version, error) {
	return decodeList(data, NewVersion)
}

func decodeList[T any](data []byte, build func([]byte) (T, error)) ([]T, error) {
	items, err := decodeArray(data)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		v, err := build(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
