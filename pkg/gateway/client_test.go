package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/sony/gobreaker/v2"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

var testCard = CardData{Number: "4111111111111111", Holder: "ANA SILVA", Month: 12, Year: 2030, CVV: "123"}

func TestTokenizeSendsPublicKeyAndCard(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != "http://gateway.test/v1/tokens" {
			t.Fatalf("unexpected url %s", req.URL)
		}
		if req.Header.Get("X-Public-Key") != "pk_test" {
			t.Fatalf("missing public key header")
		}
		var payload map[string]any
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if payload["card_number"] != "4111111111111111" || payload["expiration_year"].(float64) != 2030 {
			t.Fatalf("unexpected payload %+v", payload)
		}
		return respond(http.StatusCreated, `{"token":"tok_abc"}`), nil
	})

	client, err := NewClient("http://gateway.test/", "pk_test", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	token, err := client.Tokenize(context.Background(), testCard)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if token != "tok_abc" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestTokenizeRejectionIsTokenizationError(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return respond(http.StatusUnprocessableEntity, `{"message":"invalid card number","field":"card_number"}`), nil
	})
	client, err := NewClient("http://gateway.test", "pk_test", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Tokenize(context.Background(), testCard)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeTokenization {
		t.Fatalf("expected tokenization error, got %v", err)
	}
	if typed.Message() != "invalid card number" {
		t.Fatalf("unexpected message %q", typed.Message())
	}
}

func TestRejectionsDoNotTripBreaker(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return respond(http.StatusBadRequest, `{"message":"expired card"}`), nil
	})
	client, err := NewClient("http://gateway.test", "pk_test", WithHTTPClient(&http.Client{Transport: rt}), WithBreaker(2, time.Minute))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	for i := 0; i < 5; i++ {
		_, _ = client.Tokenize(context.Background(), testCard)
	}
	if client.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed breaker, got %s", client.State())
	}
}

func TestOutagesOpenBreaker(t *testing.T) {
	var calls int32
	var transitions []gobreaker.State
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection refused")
	})
	client, err := NewClient("http://gateway.test", "pk_test",
		WithHTTPClient(&http.Client{Transport: rt}),
		WithBreaker(2, time.Minute),
		WithStateListener(func(_, to gobreaker.State) { transitions = append(transitions, to) }),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	for i := 0; i < 2; i++ {
		_, err := client.Tokenize(context.Background(), testCard)
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
			t.Fatalf("expected dependency error, got %v", err)
		}
	}
	if client.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", client.State())
	}

	_, err = client.Tokenize(context.Background(), testCard)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("open breaker must not reach the gateway, calls=%d", calls)
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Fatalf("unexpected transitions %v", transitions)
	}
}

func TestNewClientValidatesInput(t *testing.T) {
	if _, err := NewClient("", "pk"); err == nil {
		t.Fatal("expected base url error")
	}
	if _, err := NewClient("http://gateway.test", " "); err == nil {
		t.Fatal("expected public key error")
	}
}
