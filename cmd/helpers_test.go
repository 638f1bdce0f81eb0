package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/habedi/gigsync/client"
	"github.com/habedi/gigsync/db"
	"github.com/stretchr/testify/require"
)

const (
	testPassword = "secret"
	testCookie   = "refresh-1"
)

var testSigningKey = []byte("cmd-test-key")

func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString(testSigningKey)
	require.NoError(t, err)
	return signed
}

// boardAPI is an in-memory stand-in for the board service.
type boardAPI struct {
	mu            sync.Mutex
	token         string // bearer the API accepts
	next          string // token issued by the next refresh
	refreshStatus int    // non-zero makes refresh fail with this status
	refreshes     int
	boards        map[int64]*client.Board
	comments      map[int64][]client.Comment
	nextID        int64
	attachments   []string
	readRooms     []string
	verifyEmails  []string
	signups       []client.SignupRequest
	adminSignups  []client.SignupRequest
	resets        []client.ResetPasswordRequest
	unread        map[string][]string // room ID to member IDs bumped
	profiles      map[int64]client.ProfileUpdate
	profileImages []string
	loggedOut     bool
}

func newBoardAPI(token string) *boardAPI {
	a := &boardAPI{
		token:    token,
		boards:   map[int64]*client.Board{},
		comments: map[int64][]client.Comment{},
		unread:   map[string][]string{},
		profiles: map[int64]client.ProfileUpdate{},
	}
	for _, b := range []client.Board{
		{ID: 1, UserName: "drummer", Title: "Looking for a bassist", Text: "Rehearsals on Fridays", BoardType: client.BoardMemberRecruitment, ViewCount: 12, CreatedAt: "2024-05-01T10:00:00"},
		{ID: 2, UserName: "singer", Title: "Gig at the Blue Room", Text: "Doors at 8pm", BoardType: client.BoardPerformanceInfo, ViewCount: 40, CreatedAt: "2024-05-02T10:00:00"},
	} {
		b := b
		a.boards[b.ID] = &b
	}
	a.comments[1] = []client.Comment{{ID: 1, BoardID: 1, UserName: "singer", Text: "I know someone", CreatedAt: "2024-05-01T11:00:00"}}
	a.nextID = 3
	return a
}

func (a *boardAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", a.login)
	mux.HandleFunc("POST /api/logout", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.loggedOut = true
		a.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/verifyEmail", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.mu.Lock()
		a.verifyEmails = append(a.verifyEmails, body["email"])
		a.mu.Unlock()
	})
	mux.HandleFunc("POST /api/signup", func(w http.ResponseWriter, r *http.Request) {
		var req client.SignupRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		a.mu.Lock()
		a.signups = append(a.signups, req)
		a.mu.Unlock()
	})
	mux.HandleFunc("POST /api/signup/admin", func(w http.ResponseWriter, r *http.Request) {
		var req client.SignupRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		a.mu.Lock()
		a.adminSignups = append(a.adminSignups, req)
		a.mu.Unlock()
	})
	mux.HandleFunc("POST /api/auth/findEmail", func(w http.ResponseWriter, r *http.Request) {
		var req client.FindEmailRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.PhoneNumber != "010-1234-5678" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "User not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"email": "band@example.com"})
	})
	mux.HandleFunc("POST /api/auth/resetPassword", func(w http.ResponseWriter, r *http.Request) {
		var req client.ResetPasswordRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.VerificationCode != "123456" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid verification code"})
			return
		}
		a.mu.Lock()
		a.resets = append(a.resets, req)
		a.mu.Unlock()
	})
	mux.HandleFunc("POST /api/auth/refresh", a.refresh)

	mux.HandleFunc("GET /api/boards", a.authed(a.listBoards))
	mux.HandleFunc("POST /api/boards", a.authed(a.saveBoard))
	mux.HandleFunc("GET /api/boards/{id}", a.authed(a.getBoard))
	mux.HandleFunc("PATCH /api/boards/{id}", a.authed(a.saveBoard))
	mux.HandleFunc("DELETE /api/boards/{id}", a.authed(a.deleteBoard))
	mux.HandleFunc("GET /api/boards/{id}/comments", a.authed(a.listComments))
	mux.HandleFunc("POST /api/boards/{id}/comments", a.authed(a.saveComment))
	mux.HandleFunc("PUT /api/boards/{id}/comments/{cid}", a.authed(a.saveComment))
	mux.HandleFunc("DELETE /api/boards/{id}/comments/{cid}", a.authed(a.deleteComment))

	mux.HandleFunc("GET /api/chat/rooms", a.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []client.ChatRoom{{RoomID: "room-1", OtherUserID: 2, OtherUserNickName: "singer", LastMessage: "see you", UnreadCount: 3}})
	}))
	mux.HandleFunc("GET /api/chat/rooms/{room}/messages", a.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []client.ChatMessage{{RoomID: r.PathValue("room"), SenderNickName: "singer", Content: "see you", CreatedAt: "2024-05-02T21:00:00"}})
	}))
	mux.HandleFunc("PUT /api/chat/rooms/{room}/read", a.authed(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.readRooms = append(a.readRooms, r.PathValue("room"))
		a.mu.Unlock()
	}))

	mux.HandleFunc("PUT /api/chat/rooms/{room}/unread", a.authed(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.mu.Lock()
		a.unread[r.PathValue("room")] = append(a.unread[r.PathValue("room")], body["userId"])
		a.mu.Unlock()
	}))

	mux.HandleFunc("PATCH /api/users/{id}/profile", a.authed(a.updateProfile))
	mux.HandleFunc("GET /api/users/{id}", a.authed(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		writeJSON(w, http.StatusOK, client.UserProfile{ID: id, NickName: "singer", Email: "singer@example.com", Instruments: []string{"vocals", "guitar"}, CreatedAt: "2024-01-01"})
	}))
	mux.HandleFunc("PUT /api/admin/users/{id}/admin_registration", a.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "Admin only"})
	}))

	mux.HandleFunc("/ws/chat", a.chat)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *boardAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+a.token
		a.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (a *boardAPI) login(w http.ResponseWriter, r *http.Request) {
	var req client.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != testPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
		return
	}
	a.mu.Lock()
	tok := a.token
	a.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: client.DefaultRefreshCookieName, Value: testCookie, HttpOnly: true})
	writeJSON(w, http.StatusOK, client.User{ID: 7, Email: req.Email, NickName: "drummer", Role: "USER", AccessToken: tok})
}

func (a *boardAPI) refresh(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes++
	if a.refreshStatus != 0 {
		writeJSON(w, a.refreshStatus, map[string]string{"message": "Refresh token expired"})
		return
	}
	if c, err := r.Cookie(client.DefaultRefreshCookieName); err != nil || c.Value != testCookie {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Missing refresh cookie"})
		return
	}
	a.token = a.next
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": a.token})
}

func (a *boardAPI) listBoards(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 {
		size = 20
	}

	a.mu.Lock()
	all := make([]client.Board, 0, len(a.boards))
	for _, b := range a.boards {
		all = append(all, *b)
	}
	a.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	start := page * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	writeJSON(w, http.StatusOK, client.BoardPage{
		Content:       all[start:end],
		TotalElements: int64(len(all)),
		TotalPages:    (len(all) + size - 1) / size,
		Size:          size,
		Number:        page,
	})
}

func (a *boardAPI) getBoard(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	a.mu.Lock()
	b, ok := a.boards[id]
	var out client.Board
	if ok {
		out = *b
	}
	a.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Board not found"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// saveBoard handles both create (POST) and update (PATCH) multipart forms.
func (a *boardAPI) saveBoard(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	part, _, err := r.FormFile("board")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "missing board part"})
		return
	}
	var req client.BoardRequest
	err = json.NewDecoder(part).Decode(&req)
	_ = part.Close()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad board part"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, fh := range r.MultipartForm.File["files"] {
		a.attachments = append(a.attachments, fh.Filename)
	}

	var b *client.Board
	if r.Method == http.MethodPost {
		b = &client.Board{ID: a.nextID, UserName: "drummer", CreatedAt: "2024-05-03T10:00:00"}
		a.nextID++
		a.boards[b.ID] = b
	} else {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		var ok bool
		if b, ok = a.boards[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Board not found"})
			return
		}
	}
	b.Title, b.Text, b.BoardType = req.Title, req.Text, req.BoardType
	writeJSON(w, http.StatusOK, *b)
}

func (a *boardAPI) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	part, _, err := r.FormFile("profile")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "missing profile part"})
		return
	}
	var update client.ProfileUpdate
	err = json.NewDecoder(part).Decode(&update)
	_ = part.Close()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad profile part"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.profiles[id] = update
	for _, fh := range r.MultipartForm.File["files"] {
		a.profileImages = append(a.profileImages, fh.Filename)
	}
	writeJSON(w, http.StatusOK, client.UserProfile{ID: id, NickName: update.NickName, Bio: update.Bio, Instruments: update.Instruments})
}

func (a *boardAPI) deleteBoard(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.boards[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Board not found"})
		return
	}
	delete(a.boards, id)
}

func (a *boardAPI) listComments(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	a.mu.Lock()
	out := append([]client.Comment{}, a.comments[id]...)
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (a *boardAPI) saveComment(w http.ResponseWriter, r *http.Request) {
	boardID, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	var body struct {
		Text string `json:"text"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	a.mu.Lock()
	defer a.mu.Unlock()
	if r.Method == http.MethodPost {
		c := client.Comment{ID: int64(len(a.comments[boardID]) + 10), BoardID: boardID, UserName: "drummer", Text: body.Text}
		a.comments[boardID] = append(a.comments[boardID], c)
		writeJSON(w, http.StatusOK, c)
		return
	}
	cid, _ := strconv.ParseInt(r.PathValue("cid"), 10, 64)
	for i := range a.comments[boardID] {
		if a.comments[boardID][i].ID == cid {
			a.comments[boardID][i].Text = body.Text
			writeJSON(w, http.StatusOK, a.comments[boardID][i])
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Comment not found"})
}

func (a *boardAPI) deleteComment(w http.ResponseWriter, r *http.Request) {
	boardID, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	cid, _ := strconv.ParseInt(r.PathValue("cid"), 10, 64)
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.comments[boardID][:0]
	for _, c := range a.comments[boardID] {
		if c.ID != cid {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(a.comments[boardID]) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Comment not found"})
		return
	}
	a.comments[boardID] = kept
}

// chat echoes every text frame back from the receiver.
func (a *boardAPI) chat(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	ok := r.URL.Query().Get("token") == a.token
	a.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, _ := json.Marshal(client.ChatMessage{SenderID: r.URL.Query().Get("receiverId"), SenderNickName: "singer", Content: "echo: " + string(data)})
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// testEnv points the CLI at api through GIGSYNC_* variables and a throwaway home directory.
type testEnv struct {
	api    *boardAPI
	srv    *httptest.Server
	dbPath string
}

func newTestEnv(t *testing.T, api *boardAPI) *testEnv {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{"GIGSYNC_CHAT_URL", "GIGSYNC_REDIS_URL", "GIGSYNC_REDIS_KEY", "GIGSYNC_AUTH_ENDPOINTS", "GIGSYNC_COOKIE_NAME"} {
		t.Setenv(name, "")
	}
	t.Setenv("GIGSYNC_BASE_URL", srv.URL+"/api")
	t.Setenv("GIGSYNC_STORE", "sqlite")
	t.Setenv("GIGSYNC_DB_PATH", filepath.Join(home, "credentials.db"))
	t.Setenv("GIGSYNC_RATE_LIMIT", "0")

	return &testEnv{api: api, srv: srv, dbPath: filepath.Join(home, "credentials.db")}
}

// withStore opens the sqlite store the CLI uses, outside of any command.
func (e *testEnv) withStore(t *testing.T, fn func(repo db.CredentialRepository)) {
	t.Helper()
	db.Path = e.dbPath
	require.NoError(t, db.InitDB())
	defer func() { require.NoError(t, db.CloseDB()) }()
	fn(db.NewCredentialRepository(db.Db))
}

func (e *testEnv) seed(t *testing.T, cred *db.Credential) {
	t.Helper()
	e.withStore(t, func(repo db.CredentialRepository) {
		require.NoError(t, repo.Upsert(context.Background(), cred))
	})
}

func (e *testEnv) stored(t *testing.T) *db.Credential {
	t.Helper()
	var cred *db.Credential
	e.withStore(t, func(repo db.CredentialRepository) {
		var err error
		cred, err = repo.Get(context.Background())
		require.NoError(t, err)
	})
	return cred
}

// loggedIn stores a session whose access token the API accepts.
func (e *testEnv) loggedIn(t *testing.T) {
	t.Helper()
	e.api.mu.Lock()
	tok := e.api.token
	e.api.mu.Unlock()
	e.seed(t, &db.Credential{AccessToken: tok, SessionCookie: testCookie, UserID: 7, Email: "band@example.com", NickName: "drummer", Role: "USER"})
}

// syncBuffer is a bytes.Buffer safe for the chat reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runCLI executes the root command with args and stdin and returns everything it printed.
func runCLI(t *testing.T, stdin io.Reader, args ...string) string {
	t.Helper()
	out := &syncBuffer{}
	root := createRootCmd()
	root.SetOut(out)
	root.SetErr(out)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	root.SetIn(stdin)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}
