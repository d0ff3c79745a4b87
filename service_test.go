package bible_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	bible "github.com/JohnPlummer/jp-go-bible"
	"github.com/JohnPlummer/jp-go-bible/cache"
)

const (
	chapterBody = `{
		"book": {"abbrev": {"pt": "jo", "en": "jn"}, "name": "João", "author": "João", "group": "Evangelhos", "version": "nvi"},
		"chapter": {"number": 3, "verses": 36},
		"verses": [
			{"number": 16, "text": "Porque Deus tanto amou o mundo"},
			{"number": 17, "text": "Pois Deus enviou o seu Filho ao mundo"}
		]
	}`
	verseBody    = `{"book": {"abbrev": {"pt": "gn"}, "name": "Gênesis"}, "chapter": 1, "number": 1, "text": "No princípio Deus criou os céus e a terra."}`
	booksBody    = `[{"abbrev": {"pt": "gn", "en": "gn"}, "name": "Gênesis", "chapters": 50, "testament": "VT", "author": "Moisés", "group": "Pentateuco"}]`
	versionsBody = `[{"version": "nvi", "verses": 31105}, {"version": "acf", "verses": 31106}]`
)

// stubFetcher serves canned bodies by path and records every call.
type stubFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	err    error
	paths  []string
}

func (f *stubFetcher) Get(_ context.Context, path string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.bodies[path]
	if !ok {
		return nil, &bible.NetworkError{Path: path, StatusCode: 404, Attempts: 1, Err: errors.New("not found")}
	}
	return json.RawMessage(body), nil
}

func (f *stubFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

// failingStore wraps a store and fails reads or writes on demand.
type failingStore struct {
	cache.Store
	failGet bool
	failSet bool
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.failGet {
		return nil, false, errors.New("store unavailable")
	}
	return s.Store.Get(ctx, key)
}

func (s *failingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.failSet {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, key, value, ttl)
}

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		fetcher *stubFetcher
		store   *cache.MemoryStore
		service *bible.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		fetcher = &stubFetcher{bodies: map[string]string{
			"verses/nvi/jo/3":   chapterBody,
			"verses/acf/jo/3":   chapterBody,
			"verses/nvi/gn/1/1": verseBody,
			"books":             booksBody,
			"versions":          versionsBody,
		}}
		store = cache.NewMemoryStore()
		service = bible.NewService(fetcher,
			bible.WithStore(store),
			bible.WithServiceLogger(quietLogger()),
		)
	})

	It("starts with the default translation and an hour of caching", func() {
		Expect(service.Version()).To(Equal("nvi"))
		Expect(bible.DefaultCacheTTL).To(Equal(time.Hour))
		Expect(service.Store()).To(BeIdenticalTo(store))
	})

	It("caches nothing without a store", func() {
		plain := bible.NewService(fetcher, bible.WithServiceLogger(quietLogger()))
		_, err := plain.Books(ctx)
		Expect(err).NotTo(HaveOccurred())
		_, err = plain.Books(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(fetcher.calls()).To(HaveLen(2))
		Expect(plain.Store()).To(Equal(cache.NewNullStore()))
	})

	Describe("Chapter", func() {
		It("fetches and builds the chapter", func() {
			chapter, err := service.Chapter(ctx, bible.John, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetcher.calls()).To(Equal([]string{"verses/nvi/jo/3"}))

			Expect(chapter.Number).To(Equal(3))
			Expect(chapter.Book.Abbreviation).To(Equal("jo"))
			Expect(chapter.Book.Name).To(Equal("João"))
			Expect(chapter.VerseCount()).To(Equal(2))

			verse, ok := chapter.Verse(16)
			Expect(ok).To(BeTrue())
			Expect(verse.Text).To(HavePrefix("Porque Deus"))
		})

		It("serves the second call from the cache", func() {
			first, err := service.Chapter(ctx, bible.John, 3)
			Expect(err).NotTo(HaveOccurred())
			second, err := service.Chapter(ctx, bible.John, 3)
			Expect(err).NotTo(HaveOccurred())

			Expect(fetcher.calls()).To(HaveLen(1))
			Expect(second).To(Equal(first))

			ok, err := store.Has(ctx, "chapter:nvi:jo:3")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		DescribeTable("rejects chapters below one before any I/O",
			func(chapter int) {
				_, err := service.Chapter(ctx, bible.John, chapter)
				Expect(err).To(MatchError(bible.ErrInvalidChapter))

				var chErr *bible.InvalidChapterError
				Expect(errors.As(err, &chErr)).To(BeTrue())
				Expect(chErr.Chapter).To(Equal(chapter))

				Expect(fetcher.calls()).To(BeEmpty())
				Expect(store.Len()).To(BeZero())
			},
			Entry("zero", 0),
			Entry("negative", -1),
		)

		It("rejects unknown books before any I/O", func() {
			_, err := service.Chapter(ctx, bible.Book("xx"), 1)
			Expect(err).To(MatchError(bible.ErrInvalidBook))
			Expect(fetcher.calls()).To(BeEmpty())
		})

		It("reports a chapter error before a book error", func() {
			_, err := service.Chapter(ctx, bible.Book("xx"), 0)
			Expect(err).To(MatchError(bible.ErrInvalidChapter))
		})

		It("passes network errors through without caching", func() {
			_, err := service.Chapter(ctx, bible.Genesis, 99)
			Expect(err).To(MatchError(bible.ErrNetwork))
			Expect(store.Len()).To(BeZero())
		})
	})

	Describe("Verse", func() {
		It("fetches and builds the verse", func() {
			verse, err := service.Verse(ctx, bible.Genesis, 1, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetcher.calls()).To(Equal([]string{"verses/nvi/gn/1/1"}))
			Expect(verse.Number).To(Equal(1))
			Expect(verse.Text).To(HavePrefix("No princípio"))
			Expect(verse.Raw).To(HaveKeyWithValue("chapter", 1.0))
		})

		It("serves the second call from the cache", func() {
			first, err := service.Verse(ctx, bible.Genesis, 1, 1)
			Expect(err).NotTo(HaveOccurred())
			second, err := service.Verse(ctx, bible.Genesis, 1, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetcher.calls()).To(HaveLen(1))
			Expect(second).To(Equal(first))
		})

		DescribeTable("validates references before any I/O",
			func(chapter, verse int, expected error) {
				_, err := service.Verse(ctx, bible.Genesis, chapter, verse)
				Expect(err).To(MatchError(expected))
				Expect(fetcher.calls()).To(BeEmpty())
				Expect(store.Len()).To(BeZero())
			},
			Entry("zero verse", 1, 0, bible.ErrInvalidVerse),
			Entry("negative verse", 1, -3, bible.ErrInvalidVerse),
			Entry("zero chapter", 0, 1, bible.ErrInvalidChapter),
			Entry("chapter wins over verse", 0, 0, bible.ErrInvalidChapter),
			Entry("negative both", -1, -1, bible.ErrInvalidChapter),
		)

		It("rejects unknown books", func() {
			_, err := service.Verse(ctx, bible.Book("zz"), 1, 1)
			Expect(err).To(MatchError(bible.ErrInvalidBook))
			Expect(fetcher.calls()).To(BeEmpty())
		})
	})

	Describe("versions", func() {
		It("keys the cache by translation", func() {
			_, err := service.Chapter(ctx, bible.John, 3)
			Expect(err).NotTo(HaveOccurred())

			service.SetVersion("acf")
			Expect(service.Version()).To(Equal("acf"))
			_, err = service.Chapter(ctx, bible.John, 3)
			Expect(err).NotTo(HaveOccurred())

			Expect(fetcher.calls()).To(Equal([]string{"verses/nvi/jo/3", "verses/acf/jo/3"}))
			Expect(store.Len()).To(Equal(2))

			service.SetVersion("nvi")
			_, err = service.Chapter(ctx, bible.John, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetcher.calls()).To(HaveLen(2))
		})

		It("starts from a configured translation", func() {
			svc := bible.NewService(fetcher, bible.WithVersion("acf"), bible.WithServiceLogger(quietLogger()))
			_, err := svc.Chapter(ctx, bible.John, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetcher.calls()).To(Equal([]string{"verses/acf/jo/3"}))
		})
	})

	Describe("lists", func() {
		It("builds the book list", func() {
			books, err := service.Books(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(books).To(HaveLen(1))
			Expect(books[0].Abbreviation).To(Equal("gn"))
			Expect(books[0].ChapterCount).To(Equal(50))
			Expect(books[0].Testament).To(Equal("VT"))
			Expect(books[0].Key()).To(Equal(bible.Genesis))
		})

		It("builds the version list", func() {
			versions, err := service.Versions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(versions).To(HaveLen(2))
			Expect(versions[0].Code).To(Equal("nvi"))
			Expect(versions[1].VerseCount).To(Equal(31106))

			_, err = service.Versions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetcher.calls()).To(Equal([]string{"versions"}))
		})

		It("rejects a list that is an object", func() {
			fetcher.bodies["books"] = `{"msg": "unexpected"}`
			_, err := service.Books(ctx)
			Expect(err).To(MatchError(bible.ErrAPIResponse))

			var apiErr *bible.APIResponseError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Path).To(Equal("books"))
			Expect(store.Len()).To(BeZero())
		})

		It("rejects a list with a non-object element", func() {
			fetcher.bodies["versions"] = `[{"version": "nvi"}, "acf"]`
			_, err := service.Versions(ctx)
			Expect(err).To(MatchError(bible.ErrAPIResponse))
		})

		It("rejects a chapter that is not an object", func() {
			fetcher.bodies["verses/nvi/jo/3"] = `[1, 2, 3]`
			_, err := service.Chapter(ctx, bible.John, 3)
			Expect(err).To(MatchError(bible.ErrAPIResponse))
		})
	})

	Describe("cache failures", func() {
		It("still returns the value when the write fails", func() {
			svc := bible.NewService(fetcher,
				bible.WithStore(&failingStore{Store: store, failSet: true}),
				bible.WithServiceLogger(quietLogger()),
			)
			verse, err := svc.Verse(ctx, bible.Genesis, 1, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(verse.Number).To(Equal(1))
			Expect(store.Len()).To(BeZero())
		})

		It("falls back to the API when the read fails", func() {
			reg := prometheus.NewRegistry()
			metrics := bible.NewMetrics(reg)
			svc := bible.NewService(fetcher,
				bible.WithStore(&failingStore{Store: store, failGet: true}),
				bible.WithServiceLogger(quietLogger()),
				bible.WithServiceMetrics(metrics),
			)

			_, err := svc.Books(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetcher.calls()).To(HaveLen(1))
			Expect(testutil.ToFloat64(metrics.CacheLookups.WithLabelValues(bible.CacheError))).To(Equal(1.0))
		})

		It("treats an undecodable entry as a miss", func() {
			Expect(store.Set(ctx, "books", []byte("{corrupt"), time.Hour)).To(Succeed())

			books, err := service.Books(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(books).To(HaveLen(1))
			Expect(fetcher.calls()).To(HaveLen(1))

			_, err = service.Books(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetcher.calls()).To(HaveLen(1))
		})

		It("refetches once the entry expires", func() {
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			clock := func() time.Time { return now }
			svc := bible.NewService(fetcher,
				bible.WithStore(cache.NewMemoryStore(cache.WithNow(clock))),
				bible.WithCacheTTL(time.Minute),
				bible.WithServiceLogger(quietLogger()),
			)

			_, err := svc.Books(ctx)
			Expect(err).NotTo(HaveOccurred())
			now = now.Add(2 * time.Minute)
			_, err = svc.Books(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetcher.calls()).To(HaveLen(2))
		})
	})

	It("counts hits and misses", func() {
		reg := prometheus.NewRegistry()
		metrics := bible.NewMetrics(reg)
		svc := bible.NewService(fetcher,
			bible.WithStore(store),
			bible.WithServiceLogger(quietLogger()),
			bible.WithServiceMetrics(metrics),
		)

		_, _ = svc.Versions(ctx)
		_, _ = svc.Versions(ctx)
		_, _ = svc.Versions(ctx)

		Expect(testutil.ToFloat64(metrics.CacheLookups.WithLabelValues(bible.CacheMiss))).To(Equal(1.0))
		Expect(testutil.ToFloat64(metrics.CacheLookups.WithLabelValues(bible.CacheHit))).To(Equal(2.0))
	})

	It("clears the cache", func() {
		_, err := service.Books(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Len()).To(Equal(1))

		Expect(service.ClearCache(ctx)).To(Succeed())
		Expect(store.Len()).To(BeZero())

		_, err = service.Books(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(fetcher.calls()).To(HaveLen(2))
	})

	It("propagates network errors from the client", func() {
		fetcher.err = &bible.NetworkError{Path: "books", Attempts: 4, Err: errors.New("connection refused")}
		_, err := service.Books(ctx)
		Expect(err).To(MatchError(bible.ErrNetwork))
	})
})
