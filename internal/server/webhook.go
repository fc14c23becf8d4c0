// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/tombee/ironflow/internal/log"
	"github.com/tombee/ironflow/internal/server/httputil"
	"github.com/tombee/ironflow/pkg/flow"
)

// handleWebhook dispatches POST /webhooks/{name}: route lookup, optional
// signature verification and rate limiting, then a synchronous run of the
// mapped flow with _webhook and _headers injected.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	logger := s.logger.With(slog.String(log.WebhookKey, name))

	route, ok := s.cfg.Webhooks[name]
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("unknown webhook %q", name))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	if route.Secret != "" {
		secret, err := s.resolveSecret(route.Secret)
		if err != nil {
			logger.Error("cannot resolve webhook secret", slog.Any("error", err))
			httputil.WriteError(w, http.StatusInternalServerError, "webhook secret unavailable")
			return
		}
		if err := verifySignature(r, body, secret); err != nil {
			logger.Warn("webhook signature rejected", slog.Any("error", err))
			httputil.WriteError(w, http.StatusUnauthorized, "signature verification failed")
			return
		}
	}

	if route.RatePerMinute > 0 && !s.limiter(name, route.RatePerMinute).Allow() {
		webhookRateLimited.WithLabelValues(name).Inc()
		w.Header().Set("Retry-After", "60")
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	path, err := s.index.Resolve(route.Flow)
	if err != nil {
		logger.Error("webhook flow unavailable", slog.Any("error", err))
		httputil.WriteError(w, httputil.StatusFor(err), err.Error())
		return
	}
	f, err := flow.ParseFile(path)
	if err != nil {
		httputil.WriteError(w, httputil.StatusFor(err), err.Error())
		return
	}
	if errs := validateAll(f, s.registry); len(errs) > 0 {
		httputil.WriteErrorDetails(w, http.StatusInternalServerError, "webhook flow is invalid", errs[0])
		return
	}

	initial := map[string]any{}
	if len(body) > 0 && isJSONRequest(r) {
		if err := json.Unmarshal(body, &initial); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	headers := make(map[string]any, len(r.Header))
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[strings.ToLower(key)] = values[0]
		}
	}
	initial[flow.KeyWebhook] = name
	initial[flow.KeyHeaders] = headers
	if dir, err := filepath.Abs(filepath.Dir(path)); err == nil {
		initial[flow.KeyFlowDir] = dir
	}

	info, err := s.execute(r.Context(), f, initial)
	if err != nil {
		httputil.WriteError(w, httputil.StatusFor(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, runResponse{
		RunID:    info.ID,
		FlowName: info.FlowName,
		Status:   string(info.Status),
	})
}

// isJSONRequest reports whether the request declares a JSON body. An absent
// Content-Type is treated as JSON for curl-friendliness.
func isJSONRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return true
	}
	return strings.HasPrefix(ct, "application/json")
}

// verifySignature checks an HMAC-SHA256 signature over the raw body.
// Accepted headers: X-Webhook-Signature (sha256=<hex>) and X-Signature
// (bare hex).
func verifySignature(r *http.Request, body []byte, secret string) error {
	sig := r.Header.Get("X-Webhook-Signature")
	if sig == "" {
		if sig = r.Header.Get("X-Signature"); sig != "" {
			sig = "sha256=" + sig
		}
	}
	if sig == "" {
		return errors.New("no signature header")
	}

	algo, hexSig, found := strings.Cut(sig, "=")
	if !found {
		algo, hexSig = "sha256", sig
	}
	if algo != "sha256" {
		return fmt.Errorf("unsupported algorithm %q", algo)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(hexSig), []byte(expected)) {
		return errors.New("signature mismatch")
	}
	return nil
}
