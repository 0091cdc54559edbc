package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sjawhar/exam-runner/internal/audio"
	"github.com/sjawhar/exam-runner/internal/clock"
	"github.com/sjawhar/exam-runner/internal/session"
	"github.com/sjawhar/exam-runner/internal/submission"
)

// Caller runs fn on the session's scheduler thread and returns its error.
type Caller interface {
	Call(fn func() error) error
}

// Session is the engine surface the HTTP API drives. Every method is
// invoked through Caller.
type Session interface {
	View() session.SessionView
	AcceptRecovery() error
	DeclineRecovery() error
	Next() error
	Back() error
	GoTo(index int) error
	Begin() error
	SkipPreparation() error
	StartRecording() error
	StopRecording() error
	Replay() error
	Pause() error
	Seek(offset time.Duration) error
	RetryDeviceAccess() error
	SetText(questionID int, text string) error
	SelectOption(questionID int, code string) error
	ToggleMark(questionID int) (bool, error)
	AnswerAudio(questionID int) ([]byte, error)
	SaveProgress() error
	AuthExpired() error
	Reauthenticated() error
	Submit(done func(submission.Result)) error
}

// Authenticator installs a bearer token obtained by logging in again.
type Authenticator interface {
	SetToken(accessToken string, expiry time.Time)
}

type recoveryRequest struct {
	Accept *bool `json:"accept"`
}

type seekRequest struct {
	Seconds float64 `json:"seconds"`
}

type answerRequest struct {
	Text   *string `json:"text"`
	Option *string `json:"option"`
}

type tokenRequest struct {
	AccessToken string     `json:"access_token"`
	Expiry      *time.Time `json:"expiry"`
}

type submitResponse struct {
	Outcome   string `json:"outcome"`
	AttemptID int64  `json:"attempt_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func registerAPIRoutes(mux *http.ServeMux, caller Caller, sess Session, auth Authenticator, logger *zap.Logger) {
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		var view session.SessionView
		err := caller.Call(func() error {
			view = sess.View()
			return nil
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	})

	mux.HandleFunc("POST /api/session/recovery", func(w http.ResponseWriter, r *http.Request) {
		var req recoveryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Accept == nil {
			writeJSONError(w, http.StatusBadRequest, "accept is required")
			return
		}
		op := sess.DeclineRecovery
		if *req.Accept {
			op = sess.AcceptRecovery
		}
		respondView(w, caller, sess, logger, op)
	})

	action := func(pattern string, op func() error) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			respondView(w, caller, sess, logger, op)
		})
	}
	action("POST /api/session/next", sess.Next)
	action("POST /api/session/back", sess.Back)
	action("POST /api/task/begin", sess.Begin)
	action("POST /api/task/skip", sess.SkipPreparation)
	action("POST /api/task/recording/start", sess.StartRecording)
	action("POST /api/task/recording/stop", sess.StopRecording)
	action("POST /api/task/playback/replay", sess.Replay)
	action("POST /api/task/playback/pause", sess.Pause)
	action("POST /api/device/access", sess.RetryDeviceAccess)
	action("POST /api/progress/save", sess.SaveProgress)
	action("POST /api/auth/expired", sess.AuthExpired)

	if auth != nil {
		mux.HandleFunc("POST /api/auth/token", func(w http.ResponseWriter, r *http.Request) {
			var req tokenRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
				writeJSONError(w, http.StatusBadRequest, "access_token is required")
				return
			}
			var expiry time.Time
			if req.Expiry != nil {
				if !req.Expiry.After(time.Now()) {
					writeJSONError(w, http.StatusBadRequest, "expiry is in the past")
					return
				}
				expiry = *req.Expiry
			}
			auth.SetToken(req.AccessToken, expiry)
			respondView(w, caller, sess, logger, sess.Reauthenticated)
		})
	}

	mux.HandleFunc("POST /api/session/goto/{index}", func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(r.PathValue("index"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid task index")
			return
		}
		respondView(w, caller, sess, logger, func() error { return sess.GoTo(index) })
	})

	mux.HandleFunc("POST /api/task/playback/seek", func(w http.ResponseWriter, r *http.Request) {
		var req seekRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Seconds < 0 {
			writeJSONError(w, http.StatusBadRequest, "seconds must be a non-negative number")
			return
		}
		offset := time.Duration(req.Seconds * float64(time.Second))
		respondView(w, caller, sess, logger, func() error { return sess.Seek(offset) })
	})

	mux.HandleFunc("PUT /api/answers/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := questionID(w, r)
		if !ok {
			return
		}
		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid answer body")
			return
		}
		switch {
		case req.Text != nil && req.Option == nil:
			respondView(w, caller, sess, logger, func() error { return sess.SetText(id, *req.Text) })
		case req.Option != nil && req.Text == nil:
			respondView(w, caller, sess, logger, func() error { return sess.SelectOption(id, *req.Option) })
		default:
			writeJSONError(w, http.StatusBadRequest, "exactly one of text or option is required")
		}
	})

	mux.HandleFunc("POST /api/answers/{id}/mark", func(w http.ResponseWriter, r *http.Request) {
		id, ok := questionID(w, r)
		if !ok {
			return
		}
		var marked bool
		err := caller.Call(func() error {
			var err error
			marked, err = sess.ToggleMark(id)
			return err
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"question_id": id, "marked": marked})
	})

	mux.HandleFunc("GET /api/answers/{id}/audio", func(w http.ResponseWriter, r *http.Request) {
		id, ok := questionID(w, r)
		if !ok {
			return
		}
		var wav []byte
		err := caller.Call(func() error {
			var err error
			wav, err = sess.AnswerAudio(id)
			return err
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(wav)
	})

	mux.HandleFunc("POST /api/submit", func(w http.ResponseWriter, r *http.Request) {
		results := make(chan submission.Result, 1)
		err := caller.Call(func() error {
			return sess.Submit(func(res submission.Result) { results <- res })
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}

		select {
		case res := <-results:
			resp := submitResponse{Outcome: string(res.Outcome), AttemptID: res.AttemptID}
			if res.Err != nil {
				resp.Error = res.Err.Error()
			}
			writeJSON(w, submitStatus(res.Outcome), resp)
		case <-r.Context().Done():
			// The result still reaches WebSocket clients as submission_result.
			writeJSONError(w, http.StatusGatewayTimeout, "submission still in progress")
		}
	})
}

func respondView(w http.ResponseWriter, caller Caller, sess Session, logger *zap.Logger, op func() error) {
	var view session.SessionView
	err := caller.Call(func() error {
		if err := op(); err != nil {
			return err
		}
		view = sess.View()
		return nil
	})
	if err != nil {
		writeError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func questionID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid question id")
		return 0, false
	}
	return id, true
}

func submitStatus(outcome submission.Outcome) int {
	switch outcome {
	case submission.OutcomeSuccess:
		return http.StatusOK
	case submission.OutcomeNeedsReauth:
		return http.StatusUnauthorized
	case submission.OutcomeRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

// statusFor maps engine errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownQuestion),
		errors.Is(err, session.ErrNoAudio),
		errors.Is(err, session.ErrNoRecovery):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidOption):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrDevicePermissionDenied),
		errors.Is(err, audio.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNotStarted),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrNavigationBlocked),
		errors.Is(err, session.ErrInputDisabled),
		errors.Is(err, session.ErrNotComplete),
		errors.Is(err, session.ErrSubmissionInFlight),
		errors.Is(err, session.ErrRecoveryPending),
		errors.Is(err, session.ErrSessionOver),
		errors.Is(err, session.ErrDeviceUnavailable),
		errors.Is(err, submission.ErrAlreadySubmitted),
		errors.Is(err, submission.ErrSessionBusy),
		errors.Is(err, submission.ErrInFlight),
		errors.Is(err, audio.ErrAlreadyRecording),
		errors.Is(err, audio.ErrDeviceUnavailable):
		return http.StatusConflict
	case errors.Is(err, clock.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("api request failed", zap.Error(err))
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
