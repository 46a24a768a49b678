package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"geo-dash/internal/drilldown"
	"geo-dash/internal/session"

	"github.com/gorilla/websocket"
)

const (
	wsReadLimit = 64 << 10
	wsIdle      = 10 * time.Minute
	wsWrite     = 10 * time.Second
)

// checkOrigin：未配置允许来源时放行；否则 Origin 的 scheme://host 必须在列表中
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.AllowedOrigins) == 0 {
		return true
	}
	o := r.Header.Get("Origin")
	if o == "" {
		return true
	}
	u, err := url.Parse(o)
	if err != nil {
		return false
	}
	for _, a := range s.AllowedOrigins {
		if a == "*" || strings.EqualFold(a, u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}

// 文档注释：WebSocket 会话通道
// 背景：连接建立后先发送 {id, view}；之后每收到一个动作 JSON 回复 {id, view, notice}。
// 约束：?session= 指定已有会话时复用，否则按 POST /sessions 的规则新建；无法解析的消息回复 bad_action 提示，不断开连接。
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 16384, CheckOrigin: s.checkOrigin}
	ctx := r.Context()

	var sess *session.Session
	var first viewResponse
	if id := r.URL.Query().Get("session"); id != "" {
		got, err := s.Sessions.Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		sess = got
		first = viewResponse{ID: sess.ID, View: sess.View()}
	} else {
		created, v, status, err := s.createSession(ctx, r)
		if err != nil {
			writeJSON(w, status, viewResponse{View: v, Notice: noticeOf(err)})
			return
		}
		sess = created
		first = viewResponse{ID: sess.ID, View: v}
	}

	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("ws_upgrade_error", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)
	s.log.Debug("ws_open", "session", sess.ID)

	send := func(v viewResponse) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWrite))
		return conn.WriteJSON(v)
	}
	if err := send(first); err != nil {
		return
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdle))
		var a drilldown.Action
		if err := conn.ReadJSON(&a); err != nil {
			if !isDecodeErr(err) {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Debug("ws_read_error", "session", sess.ID, "err", err)
				}
				return
			}
			if err := send(viewResponse{ID: sess.ID, View: sess.View(), Notice: &Notice{Kind: drilldown.NoticeBadAction, Message: "invalid action message"}}); err != nil {
				return
			}
			continue
		}
		v, derr := s.dispatch(ctx, r, sess, a)
		if err := send(viewResponse{ID: sess.ID, View: v, Notice: noticeOf(derr)}); err != nil {
			return
		}
	}
}

// isDecodeErr：消息本身不是合法 JSON 动作，连接仍可用
func isDecodeErr(err error) bool {
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError
	return errors.As(err, &se) || errors.As(err, &te)
}
