package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgecomet/distill/internal/scrape/browser/browsertest"
	"github.com/edgecomet/distill/pkg/types"
)

var errNavigation = errors.New("net::ERR_NAME_NOT_RESOLVED")

var _ = Describe("Scraping", Serial, func() {
	Context("when the page renders", func() {
		It("should return markdown with metadata by default", func() {
			url := pageURL("article")
			testEnv.Launcher.SetPage(url, browsertest.Page{
				Title:    "Quarterly Report",
				OGTags:   map[string]string{"og:title": "Q3", "og:type": "article"},
				BodyHTML: "<body><h1>Results</h1><p>Revenue grew.</p><script>track()</script></body>",
			})

			By("Posting a scrape request without an output format")
			response := testEnv.Scrape(url, "")
			Expect(response.Error).To(BeNil())
			Expect(response.StatusCode).To(Equal(200))
			Expect(response.Header("Content-Type")).To(HavePrefix("application/json"))

			By("Verifying the envelope")
			env := response.Envelope()
			Expect(env.Success).To(BeTrue())
			Expect(env.Error).To(BeNil())
			Expect(env.Data).NotTo(BeNil())
			Expect(env.Data.Metadata.Title).To(Equal("Quarterly Report"))
			Expect(env.Data.Metadata.OGTags).To(HaveKeyWithValue("og:type", "article"))
			Expect(env.Data.Content).To(ContainSubstring("# Results"))
			Expect(env.Data.Content).To(ContainSubstring("Revenue grew"))
			Expect(env.Data.Content).NotTo(ContainSubstring("track()"))
		})

		It("should return the body verbatim for html output", func() {
			url := pageURL("raw")
			testEnv.Launcher.SetPage(url, browsertest.Page{
				Title:    "Raw",
				BodyHTML: "<body><div id=\"app\">Hi</div></body>",
			})

			response := testEnv.Scrape(url, "html")
			Expect(response.StatusCode).To(Equal(200))
			Expect(response.Envelope().Data.Content).To(Equal("<body><div id=\"app\">Hi</div></body>"))

			var navigated []string
			for _, tab := range testEnv.Launcher.Current().Tabs() {
				navigated = append(navigated, tab.Navigated()...)
			}
			Expect(navigated).To(ContainElement(url))
		})

		It("should echo a caller supplied request id", func() {
			response := testEnv.Request("POST", "/scrape", suiteAPIKey,
				`{"url":"`+pageURL("traced")+`"}`, map[string]string{"X-Request-ID": "trace-abc.1"})

			Expect(response.StatusCode).To(Equal(200))
			Expect(response.Header("X-Request-ID")).To(Equal("trace-abc.1"))
		})
	})

	Context("when the request is rejected", func() {
		It("should require the API key", func() {
			By("Omitting the key")
			response := testEnv.Request("POST", "/scrape", "", `{"url":"https://example.com/"}`, nil)
			Expect(response.StatusCode).To(Equal(401))
			Expect(response.Envelope().Error.Code).To(Equal(types.ErrorCodeUnauthorized))

			By("Sending a wrong key")
			response = testEnv.Request("POST", "/scrape", "wrong", `{"url":"https://example.com/"}`, nil)
			Expect(response.StatusCode).To(Equal(401))
		})

		DescribeTable("should answer 400 for invalid input",
			func(body string) {
				response := testEnv.Request("POST", "/scrape", suiteAPIKey, body, nil)
				Expect(response.StatusCode).To(Equal(400))

				env := response.Envelope()
				Expect(env.Success).To(BeFalse())
				Expect(env.Data).To(BeNil())
				Expect(env.Error.Code).To(Equal(types.ErrorCodeInvalidRequest))
				Expect(env.Error.Message).To(HavePrefix("Invalid request: "))
			},
			Entry("malformed JSON", `{"url":`),
			Entry("missing url", `{}`),
			Entry("ftp scheme", `{"url":"ftp://example.com/file"}`),
			Entry("loopback address", `{"url":"http://127.0.0.1/admin"}`),
			Entry("localhost", `{"url":"http://localhost:8080/"}`),
			Entry("unknown format", `{"url":"https://example.com/","output_format":"pdf"}`),
		)
	})

	Context("when the browser fails", func() {
		It("should report navigation failures as browser errors", func() {
			url := pageURL("unreachable")
			testEnv.Launcher.SetPage(url, browsertest.Page{NavigateErr: errNavigation})

			response := testEnv.Scrape(url, "")
			Expect(response.StatusCode).To(Equal(500))

			env := response.Envelope()
			Expect(env.Error.Code).To(Equal(types.ErrorCodeBrowser))
			Expect(env.Error.Message).To(HavePrefix("Browser error: "))
		})

		It("should give the slot back after a failure", func() {
			Eventually(func() int {
				return testEnv.Pool.Stats().Available
			}, 2*time.Second, 20*time.Millisecond).Should(Equal(suiteCapacity))
		})
	})

	Context("when more requests arrive than there are tabs", func() {
		It("should queue them and serve every request", func() {
			url := pageURL("slow")
			testEnv.Launcher.SetPage(url, browsertest.Page{
				Title:    "Slow",
				BodyHTML: "<body><p>eventually</p></body>",
				Delay:    50 * time.Millisecond,
			})

			const requests = 3 * suiteCapacity
			var wg sync.WaitGroup
			codes := make(chan int, requests)

			for i := 0; i < requests; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					codes <- testEnv.Scrape(url, "").StatusCode
				}()
			}
			wg.Wait()
			close(codes)

			for code := range codes {
				Expect(code).To(Equal(200))
			}

			By("Verifying the pool returned to rest")
			Eventually(func() int {
				return testEnv.Pool.Stats().Active
			}, 2*time.Second, 20*time.Millisecond).Should(BeZero())
			Expect(testEnv.Pool.Stats().Available).To(Equal(suiteCapacity))
			Expect(testEnv.Pool.Stats().Idle).To(BeNumerically("<=", suiteCapacity))
		})
	})
})

var _ = Describe("Health", Serial, func() {
	It("should report pool occupancy without authentication", func() {
		response := testEnv.Request("GET", "/health", "", "", nil)
		Expect(response.StatusCode).To(Equal(200))

		var health map[string]interface{}
		Expect(json.Unmarshal(response.Body, &health)).To(Succeed())
		Expect(health).To(HaveKeyWithValue("status", "healthy"))

		browser, ok := health["browser"].(map[string]interface{})
		Expect(ok).To(BeTrue())
		Expect(browser).To(HaveKeyWithValue("max_concurrent", BeNumerically("==", suiteCapacity)))
		Expect(browser).To(HaveKey("available_slots"))
		Expect(browser).To(HaveKey("idle_tabs"))
		Expect(browser).To(HaveKey("active_tabs"))
	})

	It("should answer preflight requests", func() {
		response := testEnv.Request("OPTIONS", "/scrape", "", "", map[string]string{"Origin": "https://app.example.com"})
		Expect(response.StatusCode).To(Equal(204))
		Expect(response.Header("Access-Control-Allow-Origin")).To(Equal("*"))
	})

	It("should return 404 for unknown routes", func() {
		response := testEnv.Request("GET", "/nope", "", "", nil)
		Expect(response.StatusCode).To(Equal(404))
		Expect(response.Envelope().Error.Code).To(Equal(types.ErrorCodeNotFound))
	})
})

var _ = Describe("Service registry", Serial, func() {
	It("should advertise the instance in Redis", func() {
		info, err := testEnv.Registry.Get(context.Background(), suiteServiceID)
		Expect(err).NotTo(HaveOccurred())
		Expect(info).NotTo(BeNil())

		Expect(info.Capacity).To(Equal(suiteCapacity))
		Expect(info.Metadata).To(HaveKeyWithValue("hostname", "acceptance-host"))
		Expect(info.Metadata).To(HaveKeyWithValue("browser", "FakeChrome/1.0"))
		Expect(testEnv.Registry.IsHealthy(info)).To(BeTrue())
	})

	It("should keep the entry alive across heartbeats", func() {
		testEnv.MiniRedis.FastForward(2 * time.Second)

		Eventually(func() time.Duration {
			return testEnv.MiniRedis.TTL("service:scrape:" + suiteServiceID)
		}, 2*time.Second, 50*time.Millisecond).Should(BeNumerically(">", 2*time.Second))
	})

	It("should list the instance", func() {
		services, err := testEnv.Registry.List(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(services).To(HaveLen(1))
		Expect(services[0].ID).To(Equal(suiteServiceID))
	})
})
