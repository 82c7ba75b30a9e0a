package postalcode

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestLookupRequest(t *testing.T) {
	const expectedURL = "http://cep.test/ws/01310100/json/"
	respBody := `{"cep":"01310-100","logradouro":"Avenida Paulista","complemento":"de 612 a 1510 - lado par","bairro":"Bela Vista","localidade":"São Paulo","uf":"SP"}`

	var capturedURL string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client := NewClient(WithBaseURL("http://cep.test/ws/"), WithHTTPClient(&http.Client{Transport: rt}))
	addr, err := client.Lookup(context.Background(), "01310-100")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if addr.Street != "Avenida Paulista" || addr.City != "São Paulo" || addr.State != "SP" || addr.Neighborhood != "Bela Vista" {
		t.Fatalf("unexpected address %+v", addr)
	}
	if addr.PostalCode != "01310100" {
		t.Fatalf("expected normalized postal code, got %q", addr.PostalCode)
	}
}

func TestLookupUnknownCode(t *testing.T) {
	for _, body := range []string{`{"erro": true}`, `{"erro": "true"}`} {
		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}, nil
		})
		client := NewClient(WithBaseURL("http://cep.test/ws"), WithHTTPClient(&http.Client{Transport: rt}))
		_, err := client.Lookup(context.Background(), "99999999")
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
			t.Fatalf("body %s: expected not found, got %v", body, err)
		}
	}
}

func TestLookupRejectsShortCodeWithoutCall(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	client := NewClient(WithHTTPClient(&http.Client{Transport: rt}))
	_, err := client.Lookup(context.Background(), "0131")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(" 01.310-100 "); got != "01310100" {
		t.Fatalf("unexpected normalized value %q", got)
	}
}
