package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daqol/information-retrieval/internal/searcher/executor"
	"github.com/daqol/information-retrieval/internal/searcher/ranker"
	apperrors "github.com/daqol/information-retrieval/pkg/errors"
)

type stubExecutor struct {
	last executor.Request
	err  error
}

func (s *stubExecutor) Execute(_ context.Context, req executor.Request) (*executor.SearchResult, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &executor.SearchResult{
		Query:     req.Query,
		Model:     req.Model,
		TotalHits: 1,
		Results:   []ranker.ScoredDoc{{Location: "d1", Score: 0.75}},
	}, nil
}

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSearchAppliesDefaultsAndOverrides(t *testing.T) {
	stub := &stubExecutor{}
	h := New(stub, nil, nil, ranker.DefaultOptions())

	rec := serve(h, "/search?q=cat")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, executor.Request{Query: "cat", Model: executor.ModelVector, Options: ranker.DefaultOptions()}, stub.last)

	var body executor.SearchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "d1", body.Results[0].Location)

	serve(h, "/search?q=cat+dog&model=vector&above=0.5&top=2")
	assert.Equal(t, ranker.Options{Above: 0.5, Top: 2}, stub.last.Options)

	serve(h, "/search?q=cat+AND+dog&model=boolean")
	assert.Equal(t, executor.ModelBoolean, stub.last.Model)
	assert.Equal(t, "cat AND dog", stub.last.Query)
}

func TestSearchRejectsBadParameters(t *testing.T) {
	h := New(&stubExecutor{}, nil, nil, ranker.DefaultOptions())
	for _, target := range []string{
		"/search?q=cat&model=fuzzy",
		"/search?q=cat&above=high",
		"/search?q=cat&top=1.5",
	} {
		assert.Equal(t, http.StatusBadRequest, serve(h, target).Code, target)
	}
}

func TestSearchMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&apperrors.ParseError{Query: "cat AND", Pos: 7, Msg: "missing operand at end of query"}, http.StatusBadRequest},
		{errors.Join(apperrors.ErrStore, errors.New("connection reset")), http.StatusServiceUnavailable},
		{apperrors.ErrTimeout, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		h := New(&stubExecutor{err: tc.err}, nil, nil, ranker.DefaultOptions())
		rec := serve(h, "/search?q=cat")
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.Contains(t, rec.Body.String(), "error")
	}
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	h := New(&stubExecutor{}, nil, nil, ranker.DefaultOptions())
	assert.Contains(t, serve(h, "/cache/stats").Body.String(), "disabled")

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
