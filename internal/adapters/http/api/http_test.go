package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/founderbleed/bleed/internal/adapters/http/api"
	service "github.com/founderbleed/bleed/internal/app"
	"github.com/founderbleed/bleed/internal/domain/leave"
	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/pkg/logger"
	"github.com/founderbleed/bleed/pkg/token"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const ratesJSON = `{"senior_engineering_rate":100000,"senior_business_rate":80000,"junior_engineering_rate":40000,"junior_business_rate":50000,"ea_rate":25000}`

const eventsJSON = `[
	{"id":"a","title":"Hiring loop","duration_minutes":120,"final_tier":"senior","vertical":"business"},
	{"id":"b","title":"Fundraising","duration_minutes":480,"final_tier":"unique","vertical":"universal"}
]`

type harness struct {
	mux    *http.ServeMux
	tokens *token.Manager
}

func newHarness(t *testing.T, opts ...api.Option) *harness {
	t.Helper()
	svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(16))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	tokens, err := token.NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, append([]api.Option{api.WithTokens(tokens)}, opts...)...).Register(context.Background(), mux)
	return &harness{mux: mux, tokens: tokens}
}

func (h *harness) do(method, path, user, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		tok, _ := h.tokens.Issue(user)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func auditBody(async bool) string {
	b, _ := json.Marshal(map[string]any{
		"period_start": "2025-03-03T00:00:00Z",
		"period_end":   "2025-03-10T00:00:00Z",
		"events":       json.RawMessage(eventsJSON),
		"rates":        json.RawMessage(ratesJSON),
		"async":        async,
	})
	return string(b)
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given a registered server", t, func() {
		h := newHarness(t)

		Convey("Then /healthz reports ok", func() {
			w := h.do("GET", "/healthz", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then /metrics serves Prometheus text", func() {
			h.do("GET", "/healthz", "", "")
			w := h.do("GET", "/metrics", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("Then /stats reports the service", func() {
			w := h.do("GET", "/stats", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then unknown methods are rejected by the mux", func() {
			w := h.do("DELETE", "/v1/classify", "", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestStatelessRoutes(t *testing.T) {
	Convey("Given the public compute routes", t, func() {
		h := newHarness(t)

		Convey("When classifying an out-of-office event", func() {
			w := h.do("POST", "/v1/classify", "", `{"title":"Focus","event_type":"outOfOffice"}`)

			Convey("Then the provider signal wins", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res leave.Result
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.IsLeave, ShouldBeTrue)
				So(res.Confidence, ShouldEqual, leave.ConfidenceHigh)
				So(res.Method, ShouldEqual, leave.MethodProviderEventType)
			})
		})

		Convey("When computing metrics", func() {
			w := h.do("POST", "/v1/metrics", "", `{"events":`+eventsJSON+`,"rates":`+ratesJSON+`,"audit_days":7}`)

			Convey("Then the engine result is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var m model.AuditMetrics
				So(json.Unmarshal(w.Body.Bytes(), &m), ShouldBeNil)
				So(m.TotalHours, ShouldEqual, 10)
				So(m.DelegatedCostTotal.StringFixed(2), ShouldEqual, "86.54")
				So(m.FounderCostTotal.Valid, ShouldBeFalse)
				So(m.EfficiencyScore, ShouldEqual, 80)
			})
		})

		Convey("When the rates omit the EA rate", func() {
			partial := strings.Replace(ratesJSON, `,"ea_rate":25000`, "", 1)
			w := h.do("POST", "/v1/metrics", "", `{"events":`+eventsJSON+`,"rates":`+partial+`,"audit_days":7}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "bad_request")
		})

		Convey("When no rates are sent", func() {
			w := h.do("POST", "/v1/metrics", "", `{"events":`+eventsJSON+`,"audit_days":7}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "bad_request")
		})

		Convey("When an event has an unknown tier", func() {
			w := h.do("POST", "/v1/metrics", "", `{"events":[{"duration_minutes":30,"final_tier":"intern"}],"rates":`+ratesJSON+`,"audit_days":7}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "bad_request")
		})

		Convey("When the body is not JSON", func() {
			w := h.do("POST", "/v1/classify", "", `{`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestAuthenticatedRoutes(t *testing.T) {
	Convey("Given the authenticated routes", t, func() {
		h := newHarness(t)

		Convey("When no token is sent", func() {
			w := h.do("GET", "/v1/rates", "", "")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(errorCode(w), ShouldEqual, "unauthorized")
		})

		Convey("When the token is forged", func() {
			w := h.do("GET", "/v1/rates", "", "", "Authorization", "Bearer nope")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When rates are saved", func() {
			So(h.do("GET", "/v1/rates", "u1", "").Code, ShouldEqual, http.StatusNotFound)
			w := h.do("PUT", "/v1/rates", "u1", ratesJSON)
			So(w.Code, ShouldEqual, http.StatusOK)

			Convey("Then they are read back", func() {
				w := h.do("GET", "/v1/rates", "u1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var r model.RateConfig
				So(json.Unmarshal(w.Body.Bytes(), &r), ShouldBeNil)
				So(r.EARate.IntPart(), ShouldEqual, 25000)
			})

			Convey("Then negative rates are rejected", func() {
				w := h.do("PUT", "/v1/rates", "u1", strings.Replace(ratesJSON, `"ea_rate":25000`, `"ea_rate":-1`, 1))
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then rates without an EA rate are rejected", func() {
				w := h.do("PUT", "/v1/rates", "u1", strings.Replace(ratesJSON, `,"ea_rate":25000`, "", 1))
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "bad_request")

				w = h.do("GET", "/v1/rates", "u1", "")
				var r model.RateConfig
				So(json.Unmarshal(w.Body.Bytes(), &r), ShouldBeNil)
				So(r.EARate.IntPart(), ShouldEqual, 25000)
			})
		})

		Convey("When an audit is run synchronously", func() {
			w := h.do("POST", "/v1/audits", "u1", auditBody(false))
			So(w.Code, ShouldEqual, http.StatusCreated)
			var a model.Audit
			So(json.Unmarshal(w.Body.Bytes(), &a), ShouldBeNil)
			So(a.Status, ShouldEqual, model.AuditCompleted)
			So(w.Header().Get("Location"), ShouldEqual, "/v1/audits/"+a.ID)

			Convey("Then its owner can read and list it", func() {
				So(h.do("GET", "/v1/audits/"+a.ID, "u1", "").Code, ShouldEqual, http.StatusOK)
				w := h.do("GET", "/v1/audits?limit=5", "u1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, a.ID)
			})

			Convey("Then other users get 404", func() {
				w := h.do("GET", "/v1/audits/"+a.ID, "u2", "")
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(errorCode(w), ShouldEqual, "not_found")
			})

			Convey("Then overrides recompute it", func() {
				w := h.do("PATCH", "/v1/audits/"+a.ID+"/events", "u1", `[{"event_id":"a","is_leave":true}]`)
				So(w.Code, ShouldEqual, http.StatusOK)
				var res struct {
					Audit   model.Audit `json:"audit"`
					Matched int         `json:"matched"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.Matched, ShouldEqual, 1)
				So(res.Audit.Metrics.TotalHours, ShouldEqual, 8)
				So(res.Audit.Metrics.EfficiencyScore, ShouldEqual, 100)
			})

			Convey("Then a bad list limit is rejected", func() {
				So(h.do("GET", "/v1/audits?limit=0", "u1", "").Code, ShouldEqual, http.StatusBadRequest)
				So(h.do("GET", "/v1/audits?limit=x", "u1", "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an audit is submitted twice with one idempotency key", func() {
			first := h.do("POST", "/v1/audits", "u1", auditBody(true), "Idempotency-Key", "k1")
			second := h.do("POST", "/v1/audits", "u1", auditBody(true), "Idempotency-Key", "k1")

			Convey("Then the second call returns the first audit", func() {
				So(first.Code, ShouldEqual, http.StatusAccepted)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(second.Header().Get("Location"), ShouldEqual, first.Header().Get("Location"))
			})
		})

		Convey("When importing an ICS feed", func() {
			feed := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//bleed//test//EN\r\n" +
				"BEGIN:VEVENT\r\nUID:x1\r\nDTSTART:20250303T090000Z\r\nDTEND:20250303T100000Z\r\nSUMMARY:Sick day\r\nEND:VEVENT\r\n" +
				"END:VCALENDAR\r\n"
			w := h.do("POST", "/v1/calendar/ics?start=2025-03-03&end=2025-03-10", "u1", feed)

			Convey("Then classified events are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res service.ImportResult
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.Events, ShouldHaveLength, 1)
				So(res.Events[0].IsLeave, ShouldBeTrue)
				So(res.Days, ShouldEqual, 7)
			})

			Convey("Then a missing window is rejected", func() {
				So(h.do("POST", "/v1/calendar/ics", "u1", feed).Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When Google is not configured", func() {
			w := h.do("GET", "/v1/connect/google", "u1", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)

			w = h.do("GET", "/v1/connect/google/callback?error=access_denied", "", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRateLimit(t *testing.T) {
	Convey("Given a limit of two requests per minute", t, func() {
		limiter := api.NewMemoryRateLimiter()
		defer limiter.Close()
		h := newHarness(t, api.WithRateLimiter(limiter, 2, time.Minute))

		Convey("Then the third request from one user is rejected", func() {
			So(h.do("GET", "/v1/audits", "u1", "").Code, ShouldEqual, http.StatusOK)
			second := h.do("GET", "/v1/audits", "u1", "")
			So(second.Code, ShouldEqual, http.StatusOK)
			So(second.Header().Get("X-RateLimit-Remaining"), ShouldEqual, "0")

			w := h.do("GET", "/v1/audits", "u1", "")
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(errorCode(w), ShouldEqual, "rate_limited")
			So(w.Header().Get("Retry-After"), ShouldNotBeEmpty)

			Convey("And other users keep their own budget", func() {
				So(h.do("GET", "/v1/audits", "u2", "").Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}
