package bible_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	bible "github.com/JohnPlummer/jp-go-bible"
)

var _ = Describe("Book", func() {
	It("lists the 66 books in canonical order", func() {
		books := bible.AllBooks()
		Expect(books).To(HaveLen(66))
		Expect(books[0]).To(Equal(bible.Genesis))
		Expect(books[38]).To(Equal(bible.Malachi))
		Expect(books[39]).To(Equal(bible.Matthew))
		Expect(books[65]).To(Equal(bible.Revelation))

		seen := map[bible.Book]bool{}
		for _, b := range books {
			Expect(seen).NotTo(HaveKey(b))
			seen[b] = true
		}
	})

	It("returns a copy of the canon", func() {
		books := bible.AllBooks()
		books[0] = "zz"
		Expect(bible.AllBooks()[0]).To(Equal(bible.Genesis))
	})

	DescribeTable("ParseBook",
		func(input string, expected bible.Book) {
			b, err := bible.ParseBook(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(expected))
		},
		Entry("lower case", "gn", bible.Genesis),
		Entry("upper case", "GN", bible.Genesis),
		Entry("padded", "  jo ", bible.John),
		Entry("numbered", "1JO", bible.FirstJohn),
		Entry("accented key", "jó", bible.Job),
		Entry("ascii alias", "job", bible.Job),
		Entry("alias upper case", "JOB", bible.Job),
	)

	DescribeTable("ParseBook rejects unknown keys",
		func(input string) {
			_, err := bible.ParseBook(input)
			Expect(err).To(MatchError(bible.ErrInvalidBook))

			var bookErr *bible.InvalidBookError
			Expect(errors.As(err, &bookErr)).To(BeTrue())
			Expect(bookErr.Book).To(Equal(input))
		},
		Entry("empty", ""),
		Entry("unknown", "xx"),
		Entry("english name", "genesis"),
	)

	It("validates keys exactly", func() {
		Expect(bible.John.Validate()).To(Succeed())
		Expect(bible.Book("JO").Validate()).To(MatchError(bible.ErrInvalidBook))
	})

	It("splits the testaments", func() {
		Expect(bible.Genesis.OldTestament()).To(BeTrue())
		Expect(bible.Malachi.OldTestament()).To(BeTrue())
		Expect(bible.Matthew.OldTestament()).To(BeFalse())
		Expect(bible.Revelation.OldTestament()).To(BeFalse())
		Expect(bible.Book("xx").OldTestament()).To(BeFalse())
	})

	It("prints as its key", func() {
		Expect(bible.Psalms.String()).To(Equal("sl"))
	})
})
