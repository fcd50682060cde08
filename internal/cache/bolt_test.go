package cache_test

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rezonia/nfce-processor/internal/cache"
	"github.com/rezonia/nfce-processor/internal/model"
)

const testKey = "35240112345678000190650010000123451234567890"

type countingFetcher struct {
	doc   *model.RawDocument
	err   error
	calls int
}

func (f *countingFetcher) Fetch(ctx context.Context, key model.AccessKey, uf model.UF) (*model.RawDocument, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

var _ = Describe("BoltStore", func() {
	var (
		store *cache.BoltStore
		key   model.AccessKey
		doc   *model.RawDocument
	)

	BeforeEach(func() {
		var err error
		store, err = cache.NewBoltStore(filepath.Join(GinkgoT().TempDir(), "cache.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		key = model.MustAccessKey(testKey)
		doc = &model.RawDocument{
			Kind: model.DocumentXML,
			Body: "<nfeProc/>",
			URL:  "https://www.nfce.fazenda.sp.gov.br/qrcode?p=" + testKey,
			Key:  key,
			UF:   "SP",
		}
	})

	It("should round-trip a document", func() {
		Expect(store.Put(doc)).To(Succeed())

		got, err := store.Get(key)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(doc))
	})

	It("should report a miss", func() {
		_, err := store.Get(key)
		Expect(err).To(MatchError(cache.ErrNotFound))
	})

	It("should not store unrecognized bodies", func() {
		doc.Kind = model.DocumentUnrecognized
		Expect(store.Put(doc)).To(Succeed())

		_, err := store.Get(key)
		Expect(err).To(MatchError(cache.ErrNotFound))
	})

	It("should list and delete keys", func() {
		Expect(store.Put(doc)).To(Succeed())
		Expect(store.Keys()).To(ConsistOf(testKey))

		Expect(store.Delete(key)).To(Succeed())
		Expect(store.Keys()).To(BeEmpty())
	})

	It("should survive reopening", func() {
		path := filepath.Join(GinkgoT().TempDir(), "reopen.db")
		first, err := cache.NewBoltStore(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Put(doc)).To(Succeed())
		Expect(first.Close()).To(Succeed())

		second, err := cache.NewBoltStore(path)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(second.Close)

		got, err := second.Get(key)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Body).To(Equal(doc.Body))
	})

	When("a TTL is set", func() {
		var now time.Time

		BeforeEach(func() {
			path := filepath.Join(GinkgoT().TempDir(), "ttl.db")
			var err error
			store, err = cache.NewBoltStore(path, cache.WithTTL(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(store.Close)

			now = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
			cache.SetClock(store, func() time.Time { return now })
			Expect(store.Put(doc)).To(Succeed())
		})

		It("should serve fresh entries", func() {
			now = now.Add(30 * time.Minute)
			_, err := store.Get(key)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should expire old entries", func() {
			now = now.Add(2 * time.Hour)
			_, err := store.Get(key)
			Expect(err).To(MatchError(cache.ErrNotFound))
		})
	})
})

var _ = Describe("CachingFetcher", func() {
	var (
		store *cache.BoltStore
		next  *countingFetcher
		f     *cache.CachingFetcher
		key   model.AccessKey
	)

	BeforeEach(func() {
		var err error
		store, err = cache.NewBoltStore(filepath.Join(GinkgoT().TempDir(), "cache.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		key = model.MustAccessKey(testKey)
		next = &countingFetcher{doc: &model.RawDocument{Kind: model.DocumentHTML, Body: "<html></html>", Key: key, UF: "SP"}}
		f = cache.NewCachingFetcher(store, next)
	})

	It("should fetch once and then serve from the store", func() {
		first, err := f.Fetch(context.Background(), key, "SP")
		Expect(err).NotTo(HaveOccurred())
		second, err := f.Fetch(context.Background(), key, "SP")
		Expect(err).NotTo(HaveOccurred())

		Expect(next.calls).To(Equal(1))
		Expect(second.Body).To(Equal(first.Body))
		Expect(second.Kind).To(Equal(model.DocumentHTML))
	})

	It("should not cache unrecognized bodies", func() {
		next.doc = &model.RawDocument{Kind: model.DocumentUnrecognized, Body: "maintenance", Key: key, UF: "SP"}

		for i := 0; i < 2; i++ {
			_, err := f.Fetch(context.Background(), key, "SP")
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(next.calls).To(Equal(2))
	})

	It("should pass fetch errors through", func() {
		next.err = &model.NetworkError{URL: "https://example", StatusCode: 502}

		_, err := f.Fetch(context.Background(), key, "SP")
		Expect(errors.Is(err, model.ErrNetwork)).To(BeTrue())
		Expect(store.Keys()).To(BeEmpty())
	})
})
