package bible

import (
	"strings"
)

// Book is a book key as the API expects it in request paths.
type Book string

// Canonical book keys.
const (
	Genesis             Book = "gn"
	Exodus              Book = "ex"
	Leviticus           Book = "lv"
	Numbers             Book = "nm"
	Deuteronomy         Book = "dt"
	Joshua              Book = "js"
	Judges              Book = "jz"
	Ruth                Book = "rt"
	FirstSamuel         Book = "1sm"
	SecondSamuel        Book = "2sm"
	FirstKings          Book = "1rs"
	SecondKings         Book = "2rs"
	FirstChronicles     Book = "1cr"
	SecondChronicles    Book = "2cr"
	Ezra                Book = "ed"
	Nehemiah            Book = "ne"
	Esther              Book = "et"
	Job                 Book = "jó"
	Psalms              Book = "sl"
	Proverbs            Book = "pv"
	Ecclesiastes        Book = "ec"
	SongOfSongs         Book = "ct"
	Isaiah              Book = "is"
	Jeremiah            Book = "jr"
	Lamentations        Book = "lm"
	Ezekiel             Book = "ez"
	Daniel              Book = "dn"
	Hosea               Book = "os"
	Joel                Book = "jl"
	Amos                Book = "am"
	Obadiah             Book = "ob"
	Jonah               Book = "jn"
	Micah               Book = "mq"
	Nahum               Book = "na"
	Habakkuk            Book = "hc"
	Zephaniah           Book = "sf"
	Haggai              Book = "ag"
	Zechariah           Book = "zc"
	Malachi             Book = "ml"
	Matthew             Book = "mt"
	Mark                Book = "mc"
	Luke                Book = "lc"
	John                Book = "jo"
	Acts                Book = "at"
	Romans              Book = "rm"
	FirstCorinthians    Book = "1co"
	SecondCorinthians   Book = "2co"
	Galatians           Book = "gl"
	Ephesians           Book = "ef"
	Philippians         Book = "fp"
	Colossians          Book = "cl"
	FirstThessalonians  Book = "1ts"
	SecondThessalonians Book = "2ts"
	FirstTimothy        Book = "1tm"
	SecondTimothy       Book = "2tm"
	Titus               Book = "tt"
	Philemon            Book = "fm"
	Hebrews             Book = "hb"
	James               Book = "tg"
	FirstPeter          Book = "1pe"
	SecondPeter         Book = "2pe"
	FirstJohn           Book = "1jo"
	SecondJohn          Book = "2jo"
	ThirdJohn           Book = "3jo"
	Jude                Book = "jd"
	Revelation          Book = "ap"
)

// canon lists the books in canonical order.
var canon = []Book{
	Genesis, Exodus, Leviticus, Numbers, Deuteronomy, Joshua, Judges, Ruth,
	FirstSamuel, SecondSamuel, FirstKings, SecondKings, FirstChronicles,
	SecondChronicles, Ezra, Nehemiah, Esther, Job, Psalms, Proverbs,
	Ecclesiastes, SongOfSongs, Isaiah, Jeremiah, Lamentations, Ezekiel,
	Daniel, Hosea, Joel, Amos, Obadiah, Jonah, Micah, Nahum, Habakkuk,
	Zephaniah, Haggai, Zechariah, Malachi,
	Matthew, Mark, Luke, John, Acts, Romans, FirstCorinthians,
	SecondCorinthians, Galatians, Ephesians, Philippians, Colossians,
	FirstThessalonians, SecondThessalonians, FirstTimothy, SecondTimothy,
	Titus, Philemon, Hebrews, James, FirstPeter, SecondPeter, FirstJohn,
	SecondJohn, ThirdJohn, Jude, Revelation,
}

var knownBooks = func() map[Book]struct{} {
	m := make(map[Book]struct{}, len(canon))
	for _, b := range canon {
		m[b] = struct{}{}
	}
	return m
}()

// "jó" is awkward to type on most keyboards.
var bookAliases = map[string]Book{
	"job": Job,
}

// AllBooks returns the 66 book keys in canonical order.
func AllBooks() []Book {
	books := make([]Book, len(canon))
	copy(books, canon)
	return books
}

// ParseBook normalises s and returns the matching book key.
func ParseBook(s string) (Book, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := bookAliases[key]; ok {
		return alias, nil
	}
	b := Book(key)
	if err := b.Validate(); err != nil {
		return "", &InvalidBookError{Book: s}
	}
	return b, nil
}

// Validate returns *InvalidBookError unless b is a canonical key.
func (b Book) Validate() error {
	if _, ok := knownBooks[b]; !ok {
		return &InvalidBookError{Book: string(b)}
	}
	return nil
}

// OldTestament reports whether b precedes Matthew in the canon.
func (b Book) OldTestament() bool {
	for i, c := range canon {
		if c == b {
			return i < 39
		}
	}
	return false
}

func (b Book) String() string {
	return string(b)
}
