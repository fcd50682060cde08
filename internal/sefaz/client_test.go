package sefaz_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/text/encoding/charmap"

	"github.com/rezonia/nfce-processor/internal/model"
	"github.com/rezonia/nfce-processor/internal/sefaz"
)

const testKey = "35240112345678000190650010000123451234567890"

const xmlBody = `<?xml version="1.0" encoding="UTF-8"?><nfeProc versao="4.00"><NFe><infNFe Id="NFe` + testKey + `"></infNFe></NFe></nfeProc>`

const htmlBody = `<!DOCTYPE html><html><body><table id="tabResult"></table></body></html>`

var _ = Describe("Client", func() {
	var (
		directHandler  http.HandlerFunc
		consultHandler http.HandlerFunc
		directHits     atomic.Int32
		consultHits    atomic.Int32
		server         *httptest.Server
		client         *sefaz.Client
		opts           []sefaz.Option
		ctx            context.Context
		doc            *model.RawDocument
		err            error
		key            model.AccessKey
	)

	BeforeEach(func() {
		directHits.Store(0)
		consultHits.Store(0)
		ctx = context.Background()
		opts = nil
		key = model.MustAccessKey(testKey)
		directHandler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(xmlBody))
		}
		consultHandler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(htmlBody))
		}
	})

	JustBeforeEach(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/direct", func(w http.ResponseWriter, r *http.Request) {
			directHits.Add(1)
			directHandler(w, r)
		})
		mux.HandleFunc("/consult", func(w http.ResponseWriter, r *http.Request) {
			consultHits.Add(1)
			consultHandler(w, r)
		})
		server = httptest.NewServer(mux)
		DeferCleanup(server.Close)

		table := sefaz.Table{"SP": {Direct: server.URL + "/direct", Consult: server.URL + "/consult"}}
		client = sefaz.NewClient(append([]sefaz.Option{sefaz.WithEndpoints(table)}, opts...)...)
		doc, err = client.Fetch(ctx, key, "SP")
	})

	When("the direct endpoint answers", func() {
		It("should return the classified document", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Kind).To(Equal(model.DocumentXML))
			Expect(doc.Body).To(Equal(xmlBody))
			Expect(doc.Key).To(Equal(key))
			Expect(doc.UF).To(Equal(model.UF("SP")))
		})

		It("should not call the consult endpoint", func() {
			Expect(directHits.Load()).To(Equal(int32(1)))
			Expect(consultHits.Load()).To(Equal(int32(0)))
		})
	})

	When("checking the request", func() {
		var seen *http.Request

		BeforeEach(func() {
			directHandler = func(w http.ResponseWriter, r *http.Request) {
				seen = r.Clone(context.Background())
				_, _ = w.Write([]byte(xmlBody))
			}
		})

		It("should send the key and content negotiation headers", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(seen.URL.Query().Get("p")).To(Equal(testKey))
			Expect(seen.Header.Get("Accept")).To(ContainSubstring("application/xml"))
			Expect(seen.Header.Get("Accept")).To(ContainSubstring("text/html"))
			Expect(seen.Header.Get("User-Agent")).To(ContainSubstring("Mozilla"))
		})
	})

	When("a custom user agent is configured", func() {
		var ua string

		BeforeEach(func() {
			opts = []sefaz.Option{sefaz.WithUserAgent("nfce-test/1.0")}
			directHandler = func(w http.ResponseWriter, r *http.Request) {
				ua = r.UserAgent()
				_, _ = w.Write([]byte(xmlBody))
			}
		})

		It("should send it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(ua).To(Equal("nfce-test/1.0"))
		})
	})

	When("the direct endpoint returns a server error", func() {
		BeforeEach(func() {
			directHandler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		})

		It("should fall back to the consult endpoint once", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Kind).To(Equal(model.DocumentHTML))
			Expect(doc.URL).To(ContainSubstring("/consult"))
			Expect(directHits.Load()).To(Equal(int32(1)))
			Expect(consultHits.Load()).To(Equal(int32(1)))
		})
	})

	When("the direct endpoint times out", func() {
		BeforeEach(func() {
			opts = []sefaz.Option{sefaz.WithTimeout(100 * time.Millisecond)}
			directHandler = func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			}
		})

		It("should fall back to the consult endpoint", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Kind).To(Equal(model.DocumentHTML))
			Expect(consultHits.Load()).To(Equal(int32(1)))
		})
	})

	When("both endpoints fail", func() {
		BeforeEach(func() {
			directHandler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}
			consultHandler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}
		})

		It("should return a network error carrying both causes", func() {
			Expect(err).To(MatchError(model.ErrNetwork))
			Expect(err.Error()).To(ContainSubstring("500"))
			Expect(err.Error()).To(ContainSubstring("404"))
			Expect(doc).To(BeNil())
		})

		It("should not retry", func() {
			Expect(directHits.Load()).To(Equal(int32(1)))
			Expect(consultHits.Load()).To(Equal(int32(1)))
		})
	})

	When("the caller cancels", func() {
		BeforeEach(func() {
			c, cancel := context.WithCancel(context.Background())
			cancel()
			ctx = c
		})

		It("should return a network error without falling back", func() {
			Expect(err).To(MatchError(model.ErrNetwork))
			Expect(consultHits.Load()).To(Equal(int32(0)))
		})
	})

	When("the body exceeds the size limit", func() {
		BeforeEach(func() {
			opts = []sefaz.Option{sefaz.WithMaxBodyBytes(16)}
		})

		It("should reject both responses", func() {
			Expect(err).To(MatchError(model.ErrNetwork))
		})
	})

	When("the body is ISO-8859-1", func() {
		BeforeEach(func() {
			directHandler = func(w http.ResponseWriter, r *http.Request) {
				latin, encErr := charmap.ISO8859_1.NewEncoder().String(`<html><body><span class="txtTit">PÃO FRANCÊS</span></body></html>`)
				Expect(encErr).NotTo(HaveOccurred())
				w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
				_, _ = w.Write([]byte(latin))
			}
		})

		It("should transcode to UTF-8", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Body).To(ContainSubstring("PÃO FRANCÊS"))
		})
	})

	When("the content type disagrees with the body", func() {
		BeforeEach(func() {
			directHandler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/xml")
				_, _ = w.Write([]byte(htmlBody))
			}
		})

		It("should classify by the body", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Kind).To(Equal(model.DocumentHTML))
		})
	})

	When("XML is served as text/html", func() {
		BeforeEach(func() {
			directHandler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				_, _ = w.Write([]byte(xmlBody))
			}
		})

		It("should classify by the body", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Kind).To(Equal(model.DocumentXML))
		})
	})

	When("the body is neither XML nor HTML", func() {
		BeforeEach(func() {
			directHandler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/xml")
				_, _ = w.Write([]byte(`{"error":"maintenance"}`))
			}
		})

		It("should return it as unrecognized", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Kind).To(Equal(model.DocumentUnrecognized))
		})
	})
})

var _ = Describe("Client without a table entry", func() {
	It("should report an unknown issuing state", func() {
		client := sefaz.NewClient(sefaz.WithEndpoints(sefaz.Table{}))
		_, err := client.Fetch(context.Background(), model.MustAccessKey(testKey), "SP")
		Expect(err).To(MatchError(model.ErrUnknownIssuingState))
	})
})
