package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/ieltsprep/internal/i18n"
	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/repository"
	"github.com/pavelanni/ieltsprep/internal/session"
	"github.com/pavelanni/ieltsprep/internal/store"
)

type stubGrader struct{}

func (stubGrader) GradeWriting(context.Context, string, string, model.TaskType) (model.WritingFeedback, error) {
	return model.WritingFeedback{OverallBand: 6.5, Feedback: "Clear position."}, nil
}

type stubExaminer struct{}

func (stubExaminer) Reply(_ context.Context, transcript []model.SpeakingMessage, _ string, _ *model.SpeakingModule) (string, error) {
	return fmt.Sprintf("Question %d", len(transcript)), nil
}

type stubImporter struct {
	got model.TestModule
}

func (s *stubImporter) Import(_ context.Context, file []byte, fileName string, module model.TestModule) (model.QuestionBank, error) {
	s.got = module
	if len(file) == 0 {
		return model.QuestionBank{}, model.Invalid("empty")
	}
	return model.QuestionBank{ID: "imported", Name: fileName, Tests: []model.PracticeTest{{ID: "t1"}, {ID: "t2"}}}, nil
}

type testServer struct {
	*httptest.Server
	content  *repository.ContentRepository
	results  *repository.ResultRepository
	importer *stubImporter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	down := func(context.Context, model.DBConfig) (store.Backend, error) {
		return nil, errors.New("connection refused")
	}
	return newTestServerWith(t, down)
}

// keepOpen lets one remote database outlive reconfigurations.
type keepOpen struct{ store.Backend }

func (keepOpen) Close() error { return nil }

// sqliteRemote returns a connector to a reachable remote store backed by
// SQLite, and the store itself.
func sqliteRemote(t *testing.T) (repository.Connector, store.Backend) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "remote.db"))
	if err != nil {
		t.Fatalf("open remote: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	rs, err := store.NewRemoteStore(context.Background(), db, store.DriverSQLite)
	if err != nil {
		t.Fatalf("NewRemoteStore: %v", err)
	}
	remote := keepOpen{rs}
	return func(context.Context, model.DBConfig) (store.Backend, error) { return remote, nil }, remote
}

func newTestServerWith(t *testing.T, connect repository.Connector) *testServer {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	ctx := context.Background()
	local, err := store.OpenLocal(filepath.Join(t.TempDir(), "ielts.db"))
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	backends, err := repository.NewBackends(ctx, local, local, connect)
	if err != nil {
		t.Fatalf("NewBackends: %v", err)
	}
	ts := &testServer{
		content:  repository.NewContentRepository(backends),
		results:  repository.NewResultRepository(backends),
		importer: &stubImporter{},
	}
	users := repository.NewUserRepository(backends)
	if err := users.SeedDefaults(ctx); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}

	h, err := New(Deps{
		Sessions: local,
		Backends: backends,
		Content:  ts.content,
		Results:  ts.results,
		Users:    users,
		Importer: ts.importer,
		Grader:   stubGrader{},
		Examiner: stubExaminer{},
	}, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	h.Routes(r)
	ts.Server = httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, token, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) login(t *testing.T, email string) string {
	t.Helper()
	resp := ts.do(t, "", http.MethodPost, "/api/login", loginRequest{Email: email})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	var out loginResponse
	decode(t, resp, &out)
	return out.Token
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, want, body)
	}
}

func fullReading() *model.ReadingModule {
	r := &model.ReadingModule{}
	id := 1
	for i, n := range []int{13, 13, 14} {
		p := model.ReadingPassage{Title: fmt.Sprintf("Passage %d", i+1)}
		for iter := 0; iter < n; iter++ {
			p.Questions = append(p.Questions, model.ReadingQuestion{
				ID: id, Type: model.QuestionFillGap, CorrectAnswer: fmt.Sprintf("answer %d", id), Evidence: "line",
			})
			id++
		}
		r.Passages = append(r.Passages, p)
	}
	return r
}

func (ts *testServer) seedBank(t *testing.T) {
	t.Helper()
	bank := model.QuestionBank{
		ID:         "bank1",
		Name:       "Cambridge 18 (Reading)",
		UploadedAt: time.Now(),
		Tests: []model.PracticeTest{
			{ID: "r1", Name: "Test 1", Reading: fullReading()},
			{ID: "w1", Name: "Test 2", Writing: &model.WritingModule{Task1Prompt: "Describe", Task2Prompt: "Discuss"}},
			{ID: "s1", Name: "Test 3", Speaking: &model.SpeakingModule{Part2CueCard: "Describe a place"}},
		},
	}
	if err := ts.content.SaveBank(context.Background(), bank); err != nil {
		t.Fatalf("SaveBank: %v", err)
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "", http.MethodPost, "/api/login", loginRequest{Email: "nobody@example.com"})
	expectStatus(t, resp, http.StatusUnauthorized)
	var e errorResponse
	decode(t, resp, &e)
	if e.Kind != "ErrUnknownEmail" {
		t.Errorf("kind = %q, want ErrUnknownEmail", e.Kind)
	}

	resp = ts.do(t, "", http.MethodPost, "/api/login", loginRequest{Email: "ARIN@arinsielts.com"})
	expectStatus(t, resp, http.StatusOK)
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("session cookie = %+v, want HttpOnly cookie", cookie)
	}

	resp = ts.do(t, cookie.Value, http.MethodGet, "/api/me", nil)
	expectStatus(t, resp, http.StatusOK)
	var me model.User
	decode(t, resp, &me)
	if me.ID != "student_arin" {
		t.Errorf("me = %q, want student_arin", me.ID)
	}

	ts.do(t, cookie.Value, http.MethodPost, "/api/logout", nil)
	resp = ts.do(t, cookie.Value, http.MethodGet, "/api/me", nil)
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestLoginAfterSwitchingToLiveRemote(t *testing.T) {
	connect, remote := sqliteRemote(t)
	ts := newTestServerWith(t, connect)
	admin := ts.login(t, "admin@arinsielts.com")

	resp := ts.do(t, admin, http.MethodPut, "/api/storage", storageRequest{URL: "abcd1234", Key: "service-key"})
	expectStatus(t, resp, http.StatusOK)

	resp = ts.do(t, admin, http.MethodGet, "/api/me", nil)
	expectStatus(t, resp, http.StatusOK)
	var me model.User
	decode(t, resp, &me)
	if me.ID != "admin_01" {
		t.Errorf("me = %q, want admin_01", me.ID)
	}

	student := ts.login(t, "arin@arinsielts.com")
	resp = ts.do(t, student, http.MethodGet, "/api/results", nil)
	expectStatus(t, resp, http.StatusOK)

	users, err := remote.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("remote ListUsers: %v", err)
	}
	var found bool
	for _, u := range users {
		if u.ID == "student_arin" {
			found = true
		}
	}
	if !found {
		t.Errorf("remote users = %+v, want student_arin written at login", users)
	}
}

func TestAccessControl(t *testing.T) {
	ts := newTestServer(t)
	student := ts.login(t, "arin@arinsielts.com")

	tests := []struct {
		name   string
		token  string
		method string
		path   string
		want   int
	}{
		{"anonymous banks", "", http.MethodGet, "/api/banks", http.StatusUnauthorized},
		{"bad token", "nope", http.MethodGet, "/api/me", http.StatusUnauthorized},
		{"student banks", student, http.MethodGet, "/api/banks", http.StatusOK},
		{"student storage", student, http.MethodGet, "/api/storage", http.StatusForbidden},
		{"student all results", student, http.MethodGet, "/api/admin/results", http.StatusForbidden},
		{"student delete test", student, http.MethodDelete, "/api/banks/b/tests/t", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, tt.token, tt.method, tt.path, nil)
			expectStatus(t, resp, tt.want)
		})
	}
}

func TestListTestsHidesAnswers(t *testing.T) {
	ts := newTestServer(t)
	ts.seedBank(t)
	token := ts.login(t, "arin@arinsielts.com")

	resp := ts.do(t, token, http.MethodGet, "/api/tests?module=reading", nil)
	expectStatus(t, resp, http.StatusOK)
	var refs []model.TestRef
	decode(t, resp, &refs)
	if len(refs) != 1 || refs[0].Test.ID != "r1" {
		t.Fatalf("refs = %+v, want r1 only", refs)
	}
	q := refs[0].Test.Reading.Passages[0].Questions[0]
	if q.CorrectAnswer != "" || q.Evidence != "" {
		t.Errorf("question leaked key: %+v", q)
	}

	resp = ts.do(t, token, http.MethodGet, "/api/tests?module=listening", nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestReadingFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedBank(t)
	token := ts.login(t, "arin@arinsielts.com")

	resp := ts.do(t, token, http.MethodPost, "/api/reading/answer", answerRequest{QuestionID: 1, Value: "x"})
	expectStatus(t, resp, http.StatusConflict)

	resp = ts.do(t, token, http.MethodPost, "/api/reading/select", selectRequest{TestID: "r1"})
	expectStatus(t, resp, http.StatusOK)
	var view session.ReadingView
	decode(t, resp, &view)
	if view.State != session.ReadingInProgress {
		t.Fatalf("state = %s, want in_progress", view.State)
	}
	if view.Test.Reading.Passages[2].Questions[0].CorrectAnswer != "" {
		t.Error("answer key visible before submit")
	}

	for id := 1; id <= 37; id++ {
		resp = ts.do(t, token, http.MethodPost, "/api/reading/answer", answerRequest{QuestionID: id, Value: fmt.Sprintf(" ANSWER %d ", id)})
		expectStatus(t, resp, http.StatusOK)
	}
	resp = ts.do(t, token, http.MethodPost, "/api/reading/submit", nil)
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &view)
	if view.State != session.ReadingSubmitted || view.Result == nil || view.Result.Score != 8.5 {
		t.Fatalf("view = %+v, want submitted with band 8.5", view)
	}

	resp = ts.do(t, token, http.MethodGet, "/api/results", nil)
	expectStatus(t, resp, http.StatusOK)
	var results []model.TestResult
	decode(t, resp, &results)
	if len(results) != 1 || results[0].UserID != "student_arin" {
		t.Fatalf("results = %+v, want one result for student_arin", results)
	}
}

func TestWritingFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedBank(t)
	token := ts.login(t, "arin@arinsielts.com")

	steps := []struct {
		method string
		path   string
		body   any
		want   int
	}{
		{http.MethodPost, "/api/writing/select", selectRequest{TestID: "w1", TaskType: "Task 3"}, http.StatusBadRequest},
		{http.MethodPost, "/api/writing/select", selectRequest{TestID: "w1", TaskType: model.Task2}, http.StatusOK},
		{http.MethodPost, "/api/writing/submit", nil, http.StatusConflict},
		{http.MethodPost, "/api/writing/start", nil, http.StatusOK},
		{http.MethodPut, "/api/writing/essay", essayRequest{Text: "Some people argue that cities grow too fast."}, http.StatusOK},
		{http.MethodPost, "/api/writing/submit", nil, http.StatusOK},
	}
	for _, s := range steps {
		resp := ts.do(t, token, s.method, s.path, s.body)
		expectStatus(t, resp, s.want)
	}

	resp := ts.do(t, token, http.MethodGet, "/api/writing", nil)
	var view session.WritingView
	decode(t, resp, &view)
	if view.State != session.WritingGraded || view.Feedback == nil || view.Feedback.OverallBand != 6.5 {
		t.Fatalf("view = %+v, want graded 6.5", view)
	}
}

func TestSpeakingTurn(t *testing.T) {
	ts := newTestServer(t)
	ts.seedBank(t)
	token := ts.login(t, "arin@arinsielts.com")

	resp := ts.do(t, token, http.MethodPost, "/api/speaking/select", selectRequest{TestID: "s1"})
	expectStatus(t, resp, http.StatusOK)

	resp = ts.do(t, token, http.MethodPost, "/api/speaking/turn", turnRequest{Text: "  "})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = ts.do(t, token, http.MethodPost, "/api/speaking/turn", turnRequest{Text: "My name is Arin."})
	expectStatus(t, resp, http.StatusOK)
	var out turnResponse
	decode(t, resp, &out)
	if out.Reply != "Question 1" || len(out.Transcript) != 3 {
		t.Fatalf("turn = %+v, want reply to the opening line and three entries", out)
	}

	resp = ts.do(t, token, http.MethodPost, "/api/speaking/reset", nil)
	var view session.SpeakingView
	decode(t, resp, &view)
	if len(view.Transcript) != 1 || view.Transcript[0].Text != session.OpeningLine {
		t.Errorf("transcript after reset = %+v", view.Transcript)
	}
}

func TestAdminStorage(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin@arinsielts.com")

	resp := ts.do(t, admin, http.MethodGet, "/api/storage", nil)
	var st storageResponse
	decode(t, resp, &st)
	if st.Mode != model.StorageLocal || st.Label != "This device" {
		t.Fatalf("storage = %+v, want local", st)
	}

	resp = ts.do(t, admin, http.MethodPut, "/api/storage", storageRequest{URL: "abcd1234"})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = ts.do(t, admin, http.MethodPut, "/api/storage", storageRequest{URL: "abcd1234", Key: "service-key"})
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &st)
	if st.Mode != model.StorageRemote || st.URL != "https://abcd1234.supabase.co" {
		t.Fatalf("storage = %+v, want remote with normalized url", st)
	}

	// The remote is unreachable, so reads fall back to this device.
	resp = ts.do(t, admin, http.MethodGet, "/api/banks", nil)
	expectStatus(t, resp, http.StatusOK)

	resp = ts.do(t, admin, http.MethodDelete, "/api/storage", nil)
	decode(t, resp, &st)
	if st.Mode != model.StorageLocal {
		t.Errorf("mode after clear = %s, want local", st.Mode)
	}
}

func TestAdminUploadAndDelete(t *testing.T) {
	ts := newTestServer(t)
	ts.seedBank(t)
	admin := ts.login(t, "admin@arinsielts.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("module", "writing"); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", "cambridge.pdf")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("%PDF-1.4"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/banks", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)
	var up uploadResponse
	decode(t, resp, &up)
	if ts.importer.got != model.ModuleWriting {
		t.Errorf("imported module = %s, want Writing", ts.importer.got)
	}
	if !strings.Contains(up.Message, "2 tests") {
		t.Errorf("message = %q, want plural count", up.Message)
	}

	resp = ts.do(t, admin, http.MethodDelete, "/api/banks/bank1/tests/r1", nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = ts.do(t, admin, http.MethodGet, "/api/tests?module=Reading", nil)
	var refs []model.TestRef
	decode(t, resp, &refs)
	if len(refs) != 0 {
		t.Errorf("reading tests after delete = %d, want 0", len(refs))
	}
}

func TestAdminExport(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin@arinsielts.com")
	err := ts.results.SaveResult(context.Background(), model.TestResult{
		ID: "res1", UserID: "student_arin", Date: time.Now(), Module: model.ModuleReading, Score: 7,
		Details: model.ReadingDetails{RawScore: 30, TotalQuestions: 40},
	})
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	resp := ts.do(t, admin, http.MethodGet, "/api/admin/export", nil)
	expectStatus(t, resp, http.StatusOK)
	var export model.ResultsExport
	decode(t, resp, &export)
	var found bool
	for _, u := range export.Users {
		if u.UserID == "student_arin" {
			found = len(u.Results) == 1 && u.Latest[model.ModuleReading] == 7
		}
	}
	if !found {
		t.Errorf("export = %+v, want arin's reading result", export.Users)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
		kind string
	}{
		{model.Invalid("bad"), http.StatusBadRequest, "ErrValidation"},
		{fmt.Errorf("find: %w", model.ErrNotFound), http.StatusNotFound, "ErrNotFound"},
		{fmt.Errorf("%w: timeout", model.ErrGradingFailed), http.StatusBadGateway, "ErrGradingFailed"},
		{fmt.Errorf("%w: no tests", model.ErrExtractionFailed), http.StatusUnprocessableEntity, "ErrExtractionFailed"},
		{fmt.Errorf("save: %w: disk full", model.ErrFatalStorage), http.StatusInternalServerError, "ErrFatalStorage"},
		{errors.New("boom"), http.StatusInternalServerError, "ErrInternal"},
	}
	if err := appI18n.Init("en"); err != nil {
		t.Fatal(err)
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var e errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
				t.Fatal(err)
			}
			if e.Kind != tt.kind || e.Error == "" {
				t.Errorf("body = %+v, want kind %s", e, tt.kind)
			}
		})
	}
}
