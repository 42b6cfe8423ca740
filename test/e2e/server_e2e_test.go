package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/solvo-project/solvo/pkg/compile"
	"github.com/solvo-project/solvo/pkg/server"
	"github.com/solvo-project/solvo/pkg/store"
)

func startServer(mutate func(*server.Config)) *httptest.Server {
	GinkgoHelper()
	cfg := &server.Config{
		Address:        "127.0.0.1:0",
		ModelsDir:      modelsDir(),
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		MaxConcurrent:  2,
		RequestTimeout: 10 * time.Second,
		DrainTimeout:   time.Second,
	}
	if mutate != nil {
		mutate(cfg)
	}
	logger := logrus.New()
	logger.SetOutput(GinkgoWriter)
	s, err := server.New(cfg, logger)
	Expect(err).ToNot(HaveOccurred())
	ts := httptest.NewServer(s.Handler())
	DeferCleanup(ts.Close)
	return ts
}

func decodeResult(resp *http.Response) *compile.Result {
	GinkgoHelper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).ToNot(HaveOccurred())
	result := &compile.Result{}
	Expect(json.Unmarshal(body, result)).To(Succeed())
	return result
}

var _ = Describe("The solve API", func() {
	It("serves the model catalog", func() {
		ts := startServer(nil)

		resp, err := http.Get(ts.URL + "/v1/models")
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var payload struct {
			Models []string `json:"models"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
		Expect(payload.Models).To(Equal([]string{"clash", "decay", "diet", "stack"}))
	})

	It("solves documents posted to /v1/solve", func() {
		ts := startServer(nil)
		raw, err := os.ReadFile(filepath.Join(modelsDir(), "stack.yaml"))
		Expect(err).ToNot(HaveOccurred())

		resp, err := http.Post(ts.URL+"/v1/solve", "application/yaml", bytes.NewReader(raw))
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		result := decodeResult(resp)
		Expect(result.Status).To(Equal(compile.StatusOptimal))
		Expect(result.Selected).To(Equal([]string{"app", "postgres", "redis"}))
	})

	It("solves catalog models with merge patches", func() {
		ts := startServer(nil)

		resp, err := http.Post(ts.URL+"/v1/models/diet/solve", "application/json", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(*decodeResult(resp).Objective).To(BeNumerically("~", 36.0, 1e-6))

		patch := []byte(`{"spec":{"objective":{"sense":"minimize"}}}`)
		resp, err = http.Post(ts.URL+"/v1/models/diet/solve", "application/json", bytes.NewReader(patch))
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(*decodeResult(resp).Objective).To(BeNumerically("~", 0.0, 1e-6))
	})

	It("rejects malformed documents", func() {
		ts := startServer(nil)

		resp, err := http.Post(ts.URL+"/v1/solve", "application/json", bytes.NewReader([]byte("{{{")))
		Expect(err).ToNot(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("flags unsatisfiable documents", func() {
		ts := startServer(nil)
		raw, err := os.ReadFile(filepath.Join(modelsDir(), "clash.yaml"))
		Expect(err).ToNot(HaveOccurred())

		resp, err := http.Post(ts.URL+"/v1/solve", "application/yaml", bytes.NewReader(raw))
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

		result := decodeResult(resp)
		Expect(result.Status).To(Equal(compile.StatusInfeasible))
		Expect(result.Conflicts).To(ContainElement("legacy conflicts with core"))
	})

	It("records runs in the store", func() {
		dbPath := filepath.Join(scratch, "e2e-runs.db")
		ts := startServer(func(c *server.Config) { c.StorePath = dbPath })

		for _, name := range []string{"diet", "stack"} {
			resp, err := http.Post(ts.URL+"/v1/models/"+name+"/solve", "application/json", nil)
			Expect(err).ToNot(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		}

		resp, err := http.Get(ts.URL + "/v1/runs")
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var payload struct {
			Runs []store.Run `json:"runs"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
		Expect(payload.Runs).To(HaveLen(2))
		Expect(payload.Runs[0].Name).To(Equal("stack"))
		Expect(payload.Runs[1].Name).To(Equal("diet"))
	})

	It("throttles when the rate limit is exhausted", func() {
		ts := startServer(func(c *server.Config) {
			c.RateLimitRPS = 0
			c.RateLimitBurst = 0
		})

		resp, err := http.Get(ts.URL + "/v1/models")
		Expect(err).ToNot(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))

		resp, err = http.Get(ts.URL + "/healthz")
		Expect(err).ToNot(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})
})
