package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sync"

	"tank-gateway/protocol"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// link is one observer websocket. Reads happen in tea commands, one frame
// per command, so the program loop never blocks on the socket.
type link struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	once sync.Once
}

func dial(url string) tea.Cmd {
	return func() tea.Msg {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return errMsg{fmt.Errorf("dial %s: %w", url, err)}
		}
		l := &link{conn: conn}
		if err := l.write(protocol.TypeRegister, struct{}{}); err != nil {
			l.close()
			return errMsg{err}
		}
		return connectedMsg{link: l}
	}
}

func (l *link) next() tea.Cmd {
	return func() tea.Msg {
		var f frame
		if err := l.conn.ReadJSON(&f); err != nil {
			return errMsg{fmt.Errorf("connection lost: %w", err)}
		}
		return frameMsg(f)
	}
}

func (l *link) write(msgType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return l.conn.WriteJSON(protocol.Envelope{Type: msgType, Payload: body})
}

func (l *link) close() {
	l.once.Do(func() { _ = l.conn.Close() })
}

func main() {
	url := flag.String("url", "ws://localhost:3536/ws", "gateway websocket url")
	flag.Parse()

	p := tea.NewProgram(initialModel(*url))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
