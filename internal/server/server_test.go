package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diet-tracker/billsync/internal/audit"
	"github.com/diet-tracker/billsync/internal/config"
	"github.com/diet-tracker/billsync/internal/model"
	"github.com/diet-tracker/billsync/internal/store/storetest"
)

func strPtr(s string) *string { return &s }

func newTestServer(st *storetest.Fake) *Server {
	auditor := audit.New(st, config.AuditConfig{StaleDays: 14, QualityScoreThreshold: 0.6})
	return New(st, auditor, config.ServerConfig{Port: 0})
}

func seedBill(st *storetest.Fake, num string, session int) *model.CanonicalBill {
	b := &model.CanonicalBill{
		BillNumber:    num,
		DietSession:   session,
		HouseOfOrigin: model.HouseRepresentatives,
		Title:         strPtr("環境基本法の一部を改正する法律案"),
		CurrentStage:  model.StageCommitteeReferral,
	}
	st.Seed(b)
	return b
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&storetest.Fake{})
	rec := doGet(t, srv, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListBills_SessionFilter(t *testing.T) {
	st := &storetest.Fake{}
	seedBill(st, "1", 217)
	seedBill(st, "2", 217)
	seedBill(st, "3", 216)
	srv := newTestServer(st)

	rec := doGet(t, srv, "/bills?session=217")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int                   `json:"count"`
		Bills []model.CanonicalBill `json:"bills"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	for _, b := range body.Bills {
		assert.Equal(t, 217, b.DietSession)
	}
}

func TestListBills_DraftFilter(t *testing.T) {
	st := &storetest.Fake{}
	seedBill(st, "1", 217)
	draft := seedBill(st, "2", 217)
	draft.Draft = true
	st.Seed(draft)
	srv := newTestServer(st)

	rec := doGet(t, srv, "/bills?draft=true")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestGetBill(t *testing.T) {
	st := &storetest.Fake{}
	b := seedBill(st, "15", 217)
	srv := newTestServer(st)

	rec := doGet(t, srv, "/bills/"+b.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.CanonicalBill
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "15", got.BillNumber)
}

func TestGetBill_NotFound(t *testing.T) {
	srv := newTestServer(&storetest.Fake{})
	rec := doGet(t, srv, "/bills/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBillHistory(t *testing.T) {
	st := &storetest.Fake{}
	b := seedBill(st, "15", 217)
	require.NoError(t, st.AppendHistory(context.Background(), &model.ProcessHistoryEntry{
		BillID:     b.ID,
		Stage:      model.StageCommitteeDeliberation,
		House:      model.HouseRepresentatives,
		ActionType: model.ActionStageChange,
	}))
	srv := newTestServer(st)

	rec := doGet(t, srv, "/bills/"+b.ID+"/history")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		BillID  string                      `json:"bill_id"`
		History []model.ProcessHistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, b.ID, body.BillID)
	require.Len(t, body.History, 1)
	assert.Equal(t, model.ActionStageChange, body.History[0].ActionType)
}

func TestStats(t *testing.T) {
	st := &storetest.Fake{}
	seedBill(st, "1", 217)
	seedBill(st, "2", 217)
	srv := newTestServer(st)

	rec := doGet(t, srv, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ByStage map[string]int `json:"by_stage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.ByStage[string(model.StageCommitteeReferral)])
}

func TestAuditEndpoint(t *testing.T) {
	st := &storetest.Fake{}
	seedBill(st, "1", 217) // no outline, no category → issues reported
	srv := newTestServer(st)

	rec := doGet(t, srv, "/audit")
	require.Equal(t, http.StatusOK, rec.Code)

	var report model.AuditReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.NotEmpty(t, report.Issues)
}

func TestListBills_StoreError(t *testing.T) {
	st := &storetest.Fake{}
	srv := newTestServer(st)
	st.ListErr = assert.AnError

	rec := doGet(t, srv, "/bills")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
