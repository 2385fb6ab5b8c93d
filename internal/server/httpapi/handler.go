package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/logging"
	"github.com/jeremy-quicklearner/clautod/internal/netx"
	"github.com/jeremy-quicklearner/clautod/internal/server/dispatch"
)

const maxBodyBytes = 64 << 10

type apiHandler struct {
	dispatcher Dispatcher
	limiter    *LoginLimiter
	logger     logging.Logger
}

type envelope struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (h *apiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := readParams(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	peer := clientAddr(r)
	if r.Method == http.MethodPost && r.URL.Path == "/api/session" && !h.limiter.Allow(peer) {
		h.logger.Warn(ctx, "login rate limited", "peer", peer)
		writeError(w, common.ErrRateLimited)
		return
	}

	resp, err := h.dispatcher.Dispatch(ctx, dispatch.Request{
		Method: r.Method,
		Path:   strings.TrimSuffix(r.URL.Path, "/"),
		Params: params,
		Token:  sessionToken(r),
		Peer:   peer,
	})
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error(ctx, "request failed", "error", err, "request_id", middleware.GetReqID(ctx))
		} else {
			h.logger.Debug(ctx, "request refused", "error", err, "request_id", middleware.GetReqID(ctx))
		}
		if errors.Is(err, common.ErrorUnauthorized) {
			clearCookie(w, r)
		}
		writeError(w, err)
		return
	}

	switch {
	case resp.ClearToken:
		clearCookie(w, r)
	case resp.Token != "":
		setCookie(w, r, resp.Token)
		w.Header().Set("X-Session-Token", resp.Token)
	}
	writeJSON(w, http.StatusOK, envelope{Result: resp.Payload})
}

// readParams merges the query string with a form or flat JSON body. A key
// given twice is refused.
func readParams(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	params := map[string]string{}
	add := func(k, v string) error {
		if _, dup := params[k]; dup {
			return fmt.Errorf("%w: parameter %q given more than once", common.ErrValidation, k)
		}
		params[k] = v
		return nil
	}

	for k, vs := range r.URL.Query() {
		for _, v := range vs {
			if err := add(k, v); err != nil {
				return nil, err
			}
		}
	}

	if r.Body == nil || r.ContentLength == 0 {
		return params, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		body, err := decodeJSONBody(r.Body)
		if err != nil {
			return nil, err
		}
		for k, v := range body {
			if err := add(k, v); err != nil {
				return nil, err
			}
		}
	case "application/x-www-form-urlencoded":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: malformed form body: %v", common.ErrValidation, err)
		}
		for k, vs := range form {
			for _, v := range vs {
				if err := add(k, v); err != nil {
					return nil, err
				}
			}
		}
	case "":
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", common.ErrValidation, mediaType)
	}
	return params, nil
}

// decodeJSONBody accepts one flat object of strings, numbers and booleans.
func decodeJSONBody(body io.Reader) (map[string]string, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON body: %v", common.ErrValidation, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch value := v.(type) {
		case string:
			out[k] = value
		case json.Number:
			out[k] = value.String()
		case bool:
			if value {
				out[k] = "true"
			} else {
				out[k] = "false"
			}
		default:
			return nil, fmt.Errorf("%w: parameter %q must be a string, number or boolean", common.ErrValidation, k)
		}
	}
	return out, nil
}

func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(common.SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

func clientAddr(r *http.Request) string {
	return netx.Host(r.RemoteAddr)
}

func setCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearCookie(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(common.SessionCookieName); err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), envelope{Error: common.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
