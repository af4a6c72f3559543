package httpserver

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Bache94/ListeByBache/internal/cloudsync"
	"github.com/Bache94/ListeByBache/internal/config"
	"github.com/Bache94/ListeByBache/internal/handlers"
	apihttp "github.com/Bache94/ListeByBache/internal/http"
	"github.com/Bache94/ListeByBache/internal/repos"
	"github.com/Bache94/ListeByBache/internal/services"
	"github.com/Bache94/ListeByBache/internal/shoppinglist"
	"github.com/Bache94/ListeByBache/migrations"
	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"
)

func startRecordStore(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	if err := migrations.Apply(db); err != nil {
		t.Fatal(err)
	}
	svc := services.NewRecordService(repos.NewRecordRepo(db), nil, nil)
	srv := httptest.NewServer(apihttp.NewRouter(config.ServerConfig{}, nil, handlers.NewRecordHandler(svc), handlers.NewEventsHandler(svc, nil)))
	t.Cleanup(func() {
		srv.Close()
		_ = db.Close()
	})
	return srv
}

func setupDevice(t *testing.T) (*gin.Engine, *cloudsync.Manager) {
	t.Helper()
	store := startRecordStore(t)
	list, err := shoppinglist.NewStore("", nil)
	if err != nil {
		t.Fatal(err)
	}
	client := cloudsync.NewClient(store.Client(), store.URL, "", "device-user")
	m := cloudsync.NewManager(client, config.CloudSyncConfig{DeviceName: "Kitchen"}, nil)
	m.Bind(list)
	t.Cleanup(func() {
		m.Leave()
		m.Wait()
	})
	return NewRouter(m, list, nil), m
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListEndpoints(t *testing.T) {
	r, _ := setupDevice(t)

	rec := do(t, r, http.MethodPost, "/list", `{"name":"Milch","quantity":2,"unit":"l"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status=%d body=%s", rec.Code, rec.Body.String())
	}
	var it shoppinglist.Item
	_ = json.Unmarshal(rec.Body.Bytes(), &it)
	if it.Name != "Milch" || it.Quantity != 2 || it.Unit != "l" || it.Category != shoppinglist.DefaultCategory {
		t.Fatalf("unexpected item %+v", it)
	}

	if rec := do(t, r, http.MethodPost, "/list", `{"name":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/list/"+it.ID.String()+"/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status=%d", rec.Code)
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &it)
	if !it.Checked {
		t.Fatal("expected item checked")
	}
	if rec := do(t, r, http.MethodPost, "/list/not-an-id/toggle", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/list/00000000-0000-0000-0000-000000000001/toggle", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/list/clear-checked", "")
	var body struct {
		Items []shoppinglist.Item `json:"items"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusOK || len(body.Items) != 0 {
		t.Fatalf("clear-checked status=%d body=%s", rec.Code, rec.Body.String())
	}

	do(t, r, http.MethodPost, "/list", `{"name":"Brot"}`)
	rec = do(t, r, http.MethodGet, "/list", "")
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Items) != 1 || body.Items[0].Name != "Brot" {
		t.Fatalf("unexpected list %s", rec.Body.String())
	}
	if rec := do(t, r, http.MethodDelete, "/list/"+body.Items[0].ID.String(), ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rec.Code)
	}
}

func TestSyncEndpoints(t *testing.T) {
	r, m := setupDevice(t)

	rec := do(t, r, http.MethodGet, "/sync/status", "")
	var st cloudsync.State
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if rec.Code != http.StatusOK || st.Connection != cloudsync.Disconnected {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	if rec := do(t, r, http.MethodPost, "/chat", `{"text":"hi"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while disconnected, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/sync/join", `{"code":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank code, got %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/sync/host", "")
	var hosted struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &hosted)
	if rec.Code != http.StatusAccepted || len(hosted.Code) != 6 {
		t.Fatalf("host status=%d body=%s", rec.Code, rec.Body.String())
	}
	m.Wait()

	rec = do(t, r, http.MethodGet, "/sync/status", "")
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Connection != cloudsync.Connected || st.Code != hosted.Code || st.Role != cloudsync.RoleHost {
		t.Fatalf("unexpected status %s", rec.Body.String())
	}

	if rec := do(t, r, http.MethodPost, "/chat", `{"text":"   "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/chat", `{"text":"Einkauf um 5?"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("chat status=%d body=%s", rec.Code, rec.Body.String())
	}
	m.Wait()
	if rec := do(t, r, http.MethodPost, "/sync/refresh", ""); rec.Code != http.StatusOK {
		t.Fatalf("refresh status=%d", rec.Code)
	}

	rec = do(t, r, http.MethodGet, "/chat", "")
	var chat struct {
		Messages []cloudsync.ChatMessage `json:"messages"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &chat)
	if len(chat.Messages) != 1 || chat.Messages[0].Sender != "Kitchen" {
		t.Fatalf("unexpected chat %s", rec.Body.String())
	}

	rec = do(t, r, http.MethodPost, "/sync/leave", "")
	st = cloudsync.State{}
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Connection != cloudsync.Disconnected || st.Code != "" {
		t.Fatalf("unexpected status after leave %s", rec.Body.String())
	}
}
