package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"test-session-service/internal/app"
	"test-session-service/internal/domain"
)

// closeTimeout bounds the final flush after the client goes away.
const closeTimeout = 5 * time.Second

type WSHandler struct {
	service  *app.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.Service) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type profilePayload struct {
	FieldID string `json:"fieldId"`
	Value   string `json:"value"`
}

type selectPayload struct {
	BlockID  string `json:"blockId"`
	ItemID   string `json:"itemId"`
	Selected bool   `json:"selected"`
}

type scorePayload struct {
	BlockID string `json:"blockId"`
	ItemID  string `json:"itemId"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

type responsePayload struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type visibilityPayload struct {
	Visible bool `json:"visible"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	StepIndex *int   `json:"stepIndex,omitempty"`
	Target    string `json:"target,omitempty"`
}

// ServeWS upgrades HTTP requests to websockets. One connection hosts one page
// life of an attempt: access, navigation, edits and submission.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	testID := r.URL.Query().Get("testId")
	token := r.URL.Query().Get("token")
	if testID == "" {
		http.Error(w, "missing testId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	attempt, access, err := h.service.Open(ctx, testID, token)
	if err != nil {
		log.Printf("open test %s: %v", testID, err)
	}
	if err := conn.WriteJSON(outboundMessage[app.Access]{Type: "access", Payload: access}); err != nil {
		log.Printf("ws write error: %v", err)
		return
	}
	if attempt == nil {
		return
	}
	if err := attempt.Start(ctx); err != nil {
		log.Printf("attempt %s: start timer: %v", attempt.ID(), err)
		return
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		attempt.Close(flushCtx)
	}()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "state", Payload: attempt.View()}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		for _, msg := range h.dispatch(ctx, attempt, inbound) {
			select {
			case send <- msg:
			case <-writerDone:
			}
		}
	}

	close(send)
	<-writerDone
}

// dispatch applies one inbound message and returns the replies. A panic in a
// handler is reported to the client instead of tearing down the connection.
func (h *WSHandler) dispatch(ctx context.Context, attempt *app.Attempt, inbound inboundMessage) (out []outboundMessage[any]) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("attempt %s: panic handling %q: %v", attempt.ID(), inbound.Type, rec)
			out = []outboundMessage[any]{errorMessage("internal", domain.AccessError.Message())}
		}
	}()

	if inbound.Type != "visibility" {
		attempt.MarkActivity()
	}

	var err error
	switch inbound.Type {
	case "profile":
		var p profilePayload
		if err = decodePayload(inbound, &p); err == nil {
			err = attempt.SetProfileField(ctx, p.FieldID, p.Value)
		}
	case "select":
		var p selectPayload
		if err = decodePayload(inbound, &p); err == nil {
			err = attempt.SetSelected(ctx, p.BlockID, p.ItemID, p.Selected)
		}
	case "increment":
		var p scorePayload
		if err = decodePayload(inbound, &p); err == nil {
			err = attempt.Increment(ctx, p.BlockID, p.ItemID)
		}
	case "decrement":
		var p scorePayload
		if err = decodePayload(inbound, &p); err == nil {
			err = attempt.Decrement(ctx, p.BlockID, p.ItemID)
		}
	case "answer":
		var p answerPayload
		if err = decodePayload(inbound, &p); err == nil {
			err = attempt.ChooseOption(ctx, p.QuestionID, p.OptionID)
		}
	case "response":
		var p responsePayload
		if err = decodePayload(inbound, &p); err == nil {
			err = attempt.SetResponse(ctx, p.Key, p.Value)
		}
	case "next":
		err = attempt.Next(ctx)
	case "prev":
		err = attempt.Prev(ctx)
	case "activity":
		return nil
	case "visibility":
		var p visibilityPayload
		if err = decodePayload(inbound, &p); err == nil {
			attempt.SetVisible(ctx, p.Visible)
		}
	case "submit":
		return h.submit(ctx, attempt)
	case "state":
	default:
		return []outboundMessage[any]{errorMessage("unsupported", "unsupported message type")}
	}

	state := outboundMessage[any]{Type: "state", Payload: attempt.View()}
	if err != nil {
		return []outboundMessage[any]{errorFor(err), state}
	}
	return []outboundMessage[any]{state}
}

func (h *WSHandler) submit(ctx context.Context, attempt *app.Attempt) []outboundMessage[any] {
	result, err := attempt.Submit(ctx)
	state := outboundMessage[any]{Type: "state", Payload: attempt.View()}
	if err != nil {
		return []outboundMessage[any]{errorFor(err), state}
	}
	return []outboundMessage[any]{{Type: "submitted", Payload: result}, state}
}

func decodePayload(inbound inboundMessage, v any) error {
	if len(inbound.Payload) == 0 {
		return fmt.Errorf("missing %s payload", inbound.Type)
	}
	if err := json.Unmarshal(inbound.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", inbound.Type, err)
	}
	return nil
}

func errorMessage(code, message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}

// errorFor maps use-case errors to client error codes.
func errorFor(err error) outboundMessage[any] {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		idx := validation.StepIndex
		return outboundMessage[any]{Type: "error", Payload: errorPayload{
			Code:      "validation_" + string(validation.Kind),
			Message:   err.Error(),
			StepIndex: &idx,
			Target:    validation.Target,
		}}
	}
	var submitErr *app.SubmitError
	if errors.As(err, &submitErr) {
		return errorMessage("submit_failed", submitErr.Message)
	}
	switch {
	case errors.Is(err, domain.ErrSubmissionInFlight):
		return errorMessage("submitting", err.Error())
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return errorMessage("submitted", err.Error())
	default:
		return errorMessage("rejected", err.Error())
	}
}
