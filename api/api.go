package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	raven "github.com/getsentry/raven-go"

	"github.com/kaanmetep/deepintodev/db"
	"github.com/kaanmetep/deepintodev/email"
	"github.com/kaanmetep/deepintodev/ratelimit"
	"github.com/kaanmetep/deepintodev/token"
)

////////////////////////////////
//  *****   REST API   *****  //
////////////////////////////////

// API is the HTTP API that this service provides.
// JSON endpoints respond with an envelope, with fields:
// {
//     status_code // HTTP status code of request
//     status      // "success", "error" or "rate_limited" - the signal the UI reads
//     message     // User-facing message accompanying the status
// }
// The verification endpoint renders full HTML documents instead.
type API struct {
	Store        db.SubscriberStore
	Suppressions db.SuppressionStore
	KV           ratelimit.Store
	Tokens       *token.Service
	Emailer      EmailSender
	// EnforceRateLimits fails subscription attempts closed when the
	// rate-limit store itself errors. The default (false) treats rate
	// limiting as advisory: an unreachable store is logged and skipped.
	EnforceRateLimits bool
	Templates         map[string]*template.Template
}

// EmailSender interface wraps a back-end that can send e-mails.
type EmailSender interface {
	// SendVerification sends a double opt-in e-mail for a particular
	// address, with a particular verification token.
	SendVerification(ctx context.Context, address string, token string) error
}

// Values for the status field of the JSON envelope.
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusRateLimited = "rate_limited"
)

type response struct {
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	page       *page
}

// page holds the fields rendered into the verification result template.
type page struct {
	Title       string
	Description string
	IsError     bool
}

type apiHandler func(r *http.Request) response

func (api *API) wrapper(handler apiHandler) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		response := handler(r)
		if response.StatusCode == http.StatusInternalServerError {
			packet := raven.NewPacket(response.Message, raven.NewHttp(r))
			raven.Capture(packet, nil)
		}
		if response.page != nil {
			api.writeHTML(w, response)
		} else {
			api.writeJSON(w, response)
		}
	}
}

func pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
}

// RegisterHandlers binds API functions to the given http server,
// and returns the resulting handler.
func (api *API) RegisterHandlers(mux *http.ServeMux) http.Handler {
	mux.HandleFunc("/sns", HandleSNSNotification(api.Suppressions))
	mux.Handle("/api/subscribe",
		throttleHandler(time.Hour, 20, http.HandlerFunc(api.wrapper(api.subscribe))))
	mux.HandleFunc("/api/verify", api.wrapper(api.verify))
	mux.HandleFunc("/api/ping", pingHandler)
	return middleware(mux)
}

// checkRateLimit applies the fixed-window limiter for key, honoring the
// advisory vs enforced policy for store failures. A nil KV store (advisory
// mode with the store down at startup) skips limiting entirely.
func (api *API) checkRateLimit(ctx context.Context, key string, p ratelimit.Policy) error {
	if api.KV == nil {
		log.Printf("Rate limit store not configured, skipping rate limit for %s", key)
		return nil
	}
	err := ratelimit.Check(ctx, api.KV, key, p)
	if err == nil || errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		return err
	}
	raven.CaptureError(err, nil)
	if api.EnforceRateLimits {
		return err
	}
	log.Printf("Rate limit store unavailable, continuing without limiting: %v", err)
	return nil
}

// Writes the response envelope as a JSON object to http.ResponseWriter `w`.
// If an error occurs, writes `http.StatusInternalServerError` to `w`.
func (api *API) writeJSON(w http.ResponseWriter, apiResponse response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(apiResponse.StatusCode)
	b, err := json.MarshalIndent(apiResponse, "", "  ")
	if err != nil {
		msg := fmt.Sprintf("Internal error: could not format JSON. (%s)\n", err)
		http.Error(w, msg, http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "%s\n", b)
}

// ParseTemplates initializes our HTML template data from dir.
func (api *API) ParseTemplates(dir string) {
	names := []string{"verify"}
	api.Templates = make(map[string]*template.Template)
	for _, name := range names {
		path := fmt.Sprintf("%s/%s.html.tmpl", dir, name)
		tmpl, err := template.ParseFiles(path)
		if err != nil {
			raven.CaptureError(err, nil)
			log.Fatal(err)
		}
		api.Templates[name] = tmpl
	}
}

func (api *API) writeHTML(w http.ResponseWriter, apiResponse response) {
	// The base URL gives error pages somewhere to send the user for a
	// fresh verification link.
	data := struct {
		Title       string
		Description string
		IsError     bool
		BaseURL     string
	}{
		Title:       apiResponse.page.Title,
		Description: apiResponse.page.Description,
		IsError:     apiResponse.page.IsError,
		BaseURL:     strings.TrimSuffix(os.Getenv("BASE_URL"), "/"),
	}
	tmpl, ok := api.Templates["verify"]
	if !ok {
		err := fmt.Errorf("Template not found: verify")
		raven.CaptureError(err, nil)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(apiResponse.StatusCode)
	err := tmpl.Execute(w, data)
	if err != nil {
		log.Println(err)
		raven.CaptureError(err, nil)
	}
}

func serverError() response {
	return response{
		StatusCode: http.StatusInternalServerError,
		Status:     StatusError,
		Message:    "Something went wrong. Please try again later.",
	}
}

type ravenExtraContent string

// Class satisfies raven's Interface interface so we can send this as extra context.
// https://github.com/getsentry/raven-go/issues/125
func (r ravenExtraContent) Class() string {
	return "extra"
}

func (r ravenExtraContent) MarshalJSON() ([]byte, error) {
	return []byte(r), nil
}

// HandleSNSNotification handles AWS SES bounces and complaints submitted to a webhook
// via AWS SNS (Simple Notification Service).
// The SNS webhook is configured to include a secret API key stored in the environment.
func HandleSNSNotification(database db.SuppressionStore) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		keyParam := r.URL.Query()["amazon_authorize_key"]
		if len(keyParam) == 0 || keyParam[0] != os.Getenv("AMAZON_AUTHORIZE_KEY") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			raven.CaptureError(err, nil)
			return
		}

		data := &email.SuppressionRequest{}
		err = json.Unmarshal(body, data)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			raven.CaptureError(err, nil, ravenExtraContent(body))
			return
		}

		tags := map[string]string{"notification_type": data.Reason}
		raven.CaptureMessage("Received SES notification", tags, ravenExtraContent(data.Raw))

		for _, recipient := range data.Recipients {
			err = database.PutSuppressedEmail(r.Context(), recipient.EmailAddress, data.Reason, data.Timestamp)
			if err != nil {
				raven.CaptureError(err, nil)
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}
