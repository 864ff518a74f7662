package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/axiomchronicles/drevoid-server/internal/config"
	"github.com/axiomchronicles/drevoid-server/internal/core"
	"github.com/axiomchronicles/drevoid-server/internal/ctf"
	"github.com/axiomchronicles/drevoid-server/internal/proto"
)

type testFixture struct {
	server     *stdhttp.Server
	dispatcher *core.Dispatcher
	detector   *ctf.Detector
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	logger := zerolog.Nop()

	sessions := core.NewSessions(256, nil, &logger)
	rooms := core.NewRooms("general", 100, 50, 200)
	detector, err := ctf.NewDetector(nil, nil, &logger)
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	dispatcher := core.NewDispatcher(sessions, rooms, detector, nil, nil, core.Policy{HistoryReplay: 20}, &logger)
	return &testFixture{
		server:     NewServer(dispatcher, detector, config.Default(), &logger),
		dispatcher: dispatcher,
		detector:   detector,
	}
}

func (f *testFixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(stdhttp.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	f.server.Handler.ServeHTTP(rr, req)
	if out != nil && rr.Code == stdhttp.StatusOK {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return rr.Code
}

func TestHealthz(t *testing.T) {
	f := newTestFixture(t)
	req := httptest.NewRequest(stdhttp.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	f.server.Handler.ServeHTTP(rr, req)
	if rr.Code != stdhttp.StatusOK || strings.TrimSpace(rr.Body.String()) != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
}

func TestStatsEndpoint(t *testing.T) {
	f := newTestFixture(t)
	var stats proto.ServerStats
	if code := f.get(t, "/api/stats", &stats); code != stdhttp.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if stats.ConnectedUsers != 0 {
		t.Fatalf("connected_users = %d, want 0", stats.ConnectedUsers)
	}
}

func TestRoomsEndpoint(t *testing.T) {
	f := newTestFixture(t)
	var body struct {
		Rooms []proto.RoomSummary `json:"rooms"`
	}
	if code := f.get(t, "/api/rooms", &body); code != stdhttp.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Rooms) != 1 || body.Rooms[0].Name != "general" {
		t.Fatalf("rooms = %+v", body.Rooms)
	}
}

func TestFlagsAndLeaderboardEndpoints(t *testing.T) {
	f := newTestFixture(t)
	f.detector.Record("flag{http}", "alice", "general")

	var flags struct {
		Flags []proto.FlagCapture `json:"flags"`
		Total int                 `json:"total"`
	}
	if code := f.get(t, "/api/flags", &flags); code != stdhttp.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if flags.Total != 1 || len(flags.Flags) != 1 || flags.Flags[0].Finder != "alice" {
		t.Fatalf("flags = %+v", flags)
	}

	var board struct {
		Leaderboard []proto.LeaderboardEntry `json:"leaderboard"`
	}
	if code := f.get(t, "/api/leaderboard", &board); code != stdhttp.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(board.Leaderboard) != 1 || board.Leaderboard[0].Username != "alice" || board.Leaderboard[0].Captures != 1 {
		t.Fatalf("leaderboard = %+v", board.Leaderboard)
	}
}

// wsRecv reads records until one of the wanted type arrives, skipping
// incidental notifications.
func wsRecv(ctx context.Context, t *testing.T, conn *websocket.Conn, recType string) *proto.Record {
	t.Helper()
	for {
		var rec proto.Record
		if err := wsjson.Read(ctx, conn, &rec); err != nil {
			t.Fatalf("ws read: %v", err)
		}
		if rec.Type == recType {
			return &rec
		}
	}
}

func wsSend(ctx context.Context, t *testing.T, conn *websocket.Conn, recType string, payload any) {
	t.Helper()
	rec, err := proto.NewRecord(recType, payload)
	if err != nil {
		t.Fatalf("build %s record: %v", recType, err)
	}
	if err := wsjson.Write(ctx, conn, rec); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

func TestWebSocketBridge(t *testing.T) {
	f := newTestFixture(t)
	ts := httptest.NewServer(f.server.Handler)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dial := func(username string) *websocket.Conn {
		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
		wsSend(ctx, t, conn, proto.TypeConnect, proto.ConnectData{Username: username})
		wsRecv(ctx, t, conn, proto.TypeSuccess) // welcome
		return conn
	}

	alice := dial("alice")
	wsSend(ctx, t, alice, proto.TypeJoinRoom, proto.JoinRoomData{Room: "general"})
	wsRecv(ctx, t, alice, proto.TypeSuccess)

	bob := dial("bob")
	wsSend(ctx, t, bob, proto.TypeJoinRoom, proto.JoinRoomData{Room: "general"})
	wsRecv(ctx, t, bob, proto.TypeSuccess)

	wsSend(ctx, t, bob, proto.TypeMessage, proto.MessageData{Content: "hello over ws"})
	rec := wsRecv(ctx, t, alice, proto.TypeMessage)
	var msg proto.BroadcastMessage
	if err := rec.DecodeData(&msg); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if msg.From != "bob" || msg.Content != "hello over ws" {
		t.Fatalf("broadcast = %+v", msg)
	}
}

func TestWebSocketRejectsBadHandshake(t *testing.T) {
	f := newTestFixture(t)
	ts := httptest.NewServer(f.server.Handler)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Rejected connects get an error record and the handshake continues.
	wsSend(ctx, t, conn, proto.TypeConnect, proto.ConnectData{Username: "   "})
	rec := wsRecv(ctx, t, conn, proto.TypeError)
	var errData proto.ErrorData
	if err := rec.DecodeData(&errData); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errData.Code != "bad_request" {
		t.Fatalf("code = %s", errData.Code)
	}

	wsSend(ctx, t, conn, proto.TypeConnect, proto.ConnectData{Username: "carol"})
	wsRecv(ctx, t, conn, proto.TypeSuccess)
}
