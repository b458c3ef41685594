package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

const billJSON = `{"accountNumber": "123-456", "totalCurrentCharges": "$84.12", "confidenceScore": 0.5, "usageCharts": [], "lineItems": []}`

type fakeGenerator struct {
	parts []genai.Part
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

type nopCloser struct{ closed bool }

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}},
		}},
	}
}

var _ = Describe("Gemini", func() {
	var (
		gen     *fakeGenerator
		closer  *nopCloser
		scanner *Gemini
		uri     string
		data    map[string]any
		err     error
	)

	BeforeEach(func() {
		gen = &fakeGenerator{resp: textResponse(billJSON)}
		closer = &nopCloser{}
		scanner = &Gemini{client: closer, model: gen}
		uri = "data:image/jpeg;base64,aGVsbG8="
	})

	JustBeforeEach(func() {
		data, err = scanner.Scan(context.Background(), uri)
	})

	It("sends the prompt with the decoded image", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(gen.parts).To(HaveLen(2))
		Expect(gen.parts[0]).To(Equal(genai.Text(billPrompt)))
		Expect(gen.parts[1]).To(Equal(genai.Blob{MIMEType: "image/jpeg", Data: []byte("hello")}))
	})

	It("returns the raw object", func() {
		Expect(data).To(HaveKeyWithValue("accountNumber", "123-456"))
		Expect(data).To(HaveKeyWithValue("totalCurrentCharges", "$84.12"))
	})

	It("closes the client", func() {
		Expect(scanner.Close()).To(Succeed())
		Expect(closer.closed).To(BeTrue())
	})

	When("the model call fails", func() {
		BeforeEach(func() {
			gen.err = errors.New("googleapi: Error 400: API key not valid")
		})

		It("returns an opaque analysis failure", func() {
			Expect(err).To(MatchError(ErrAnalysisFailed))
			Expect(err.Error()).NotTo(ContainSubstring("API key not valid"))

			var respErr *ResponseError
			Expect(errors.As(err, &respErr)).To(BeTrue())
			Expect(respErr.Unwrap()).To(MatchError(ContainSubstring("API key not valid")))
		})
	})

	When("there are no candidates", func() {
		BeforeEach(func() {
			gen.resp = &genai.GenerateContentResponse{}
		})

		It("returns an analysis failure", func() {
			Expect(err).To(MatchError(ErrAnalysisFailed))
		})
	})

	When("the model returns prose", func() {
		BeforeEach(func() {
			gen.resp = textResponse("Sorry, I can't read that.")
		})

		It("returns an analysis failure", func() {
			Expect(err).To(MatchError(ErrAnalysisFailed))
		})
	})

	When("the image is not a data URI", func() {
		BeforeEach(func() {
			uri = "aGVsbG8="
		})

		It("does not call the model", func() {
			Expect(err).To(HaveOccurred())
			Expect(gen.parts).To(BeNil())
		})
	})
})

var _ = Describe("NewGemini", func() {
	It("requires an API key", func() {
		_, err := NewGemini("", "")
		var cfgErr *ConfigError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
	})
})

var _ = Describe("NewOllama", func() {
	DescribeTable("requires a URL and model",
		func(baseURL, model string) {
			_, err := NewOllama(baseURL, model)
			var cfgErr *ConfigError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
		},
		Entry("no url", "", "llava"),
		Entry("no model", "http://localhost:11434", ""),
		Entry("no scheme", "localhost:11434", "llava"),
	)
})

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "llava",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		baseURL string
		scanner *Ollama
		uri     string
		data    map[string]any
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		baseURL = server.URL()
		uri = "data:image/png;base64,aGVsbG8="
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		var newErr error
		scanner, newErr = NewOllama(baseURL, "llava")
		Expect(newErr).NotTo(HaveOccurred())
		data, err = scanner.Scan(context.Background(), uri)
	})

	When("the server returns a bill", func() {
		var body map[string]any

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
				func(w http.ResponseWriter, r *http.Request) {
					raw, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					Expect(json.Unmarshal(raw, &body)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion(billJSON)),
			))
		})

		It("returns the raw object", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(HaveKeyWithValue("accountNumber", "123-456"))
			Expect(data).To(HaveKeyWithValue("confidenceScore", 0.5))
		})

		It("asks for a JSON object with the schema in the system message", func() {
			Expect(body).To(HaveKeyWithValue("model", "llava"))
			Expect(body).To(HaveKeyWithValue("response_format", map[string]any{"type": "json_object"}))

			messages := body["messages"].([]any)
			Expect(messages).To(HaveLen(2))
			system := messages[0].(map[string]any)
			Expect(system).To(HaveKeyWithValue("role", "system"))
			Expect(system["content"]).To(ContainSubstring("JSON Schema: "))
		})

		It("sends the image as a data URI", func() {
			user := body["messages"].([]any)[1].(map[string]any)
			content := user["content"].([]any)
			Expect(content[0]).To(HaveKeyWithValue("text", userInstruction))
			Expect(content[1]).To(HaveKeyWithValue("image_url", HaveKeyWithValue("url", uri)))
		})
	})

	When("the server returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":{"message":"model \"llava\" not found"}}`))
		})

		It("returns a response error with the status", func() {
			var respErr *ResponseError
			Expect(errors.As(err, &respErr)).To(BeTrue())
			Expect(respErr.StatusCode).To(Equal(http.StatusNotFound))
			Expect(err).To(MatchError(ErrAnalysisFailed))
		})

		It("does not retry", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the body is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>proxy error</html>",
				http.Header{"Content-Type": []string{"application/json"}}))
		})

		It("returns a response error without a status", func() {
			var respErr *ResponseError
			Expect(errors.As(err, &respErr)).To(BeTrue())
			Expect(respErr.StatusCode).To(BeZero())
		})
	})

	When("the message content is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion("I can't read this image.")))
		})

		It("returns a response error", func() {
			var respErr *ResponseError
			Expect(errors.As(err, &respErr)).To(BeTrue())
		})
	})

	When("the server is unreachable", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("returns a transport error", func() {
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(err).To(MatchError(ErrAnalysisFailed))
			Expect(err.Error()).To(ContainSubstring("Could not connect to the Ollama server"))
		})
	})
})

var _ = Describe("ProbeOllama", func() {
	var server *ghttp.Server

	BeforeEach(func() {
		server = ghttp.NewServer()
	})

	AfterEach(func() {
		server.Close()
	})

	It("lists the installed models", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, "/api/tags"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"models": []map[string]any{{"name": "llava:latest"}, {"name": "qwen2-vl:7b"}},
			}),
		))

		models, err := ProbeOllama(context.Background(), server.URL()+"/some/path")
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(Equal([]string{"llava:latest", "qwen2-vl:7b"}))
	})

	It("reports an error status", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "boom"))

		_, err := ProbeOllama(context.Background(), server.URL())
		var respErr *ResponseError
		Expect(errors.As(err, &respErr)).To(BeTrue())
		Expect(respErr.StatusCode).To(Equal(http.StatusInternalServerError))
	})

	It("reports an unreachable server", func() {
		url := server.URL()
		server.Close()

		_, err := ProbeOllama(context.Background(), url)
		var transportErr *TransportError
		Expect(errors.As(err, &transportErr)).To(BeTrue())
	})
})
