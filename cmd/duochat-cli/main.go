// Interactive terminal client. Connects to a server's websocket endpoint,
// keeps an optimistic local timeline for one conversation and reconciles it
// against the server's confirmations.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"duochat/pkg/auth"
	"duochat/pkg/models"
	"duochat/pkg/timeline"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	user := flag.String("user", "", "user id to announce as")
	peer := flag.String("peer", "", "user id to chat with")
	key := flag.String("key", "", "signing key (optional; required when the server verifies identities)")
	flag.Parse()

	if *user == "" || *peer == "" {
		fmt.Fprintln(os.Stderr, "usage: duochat-cli -user <id> -peer <id> [-url ws://...] [-key <signing-key>]")
		os.Exit(1)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *url, err)
		os.Exit(1)
	}
	defer conn.Close()

	announce := models.AnnounceData{User: *user}
	if *key != "" {
		announce.Signature = auth.SignUser(*user, *key)
	}
	if err := conn.WriteJSON(models.NewEnvelope(models.EventAnnounce, announce)); err != nil {
		fmt.Fprintf(os.Stderr, "announce: %v\n", err)
		os.Exit(1)
	}

	tl := timeline.New(*user)
	done := make(chan struct{})

	go readLoop(conn, tl, *user, *peer, done)

	fmt.Printf("connected as %s, chatting with %s\n", *user, *peer)
	fmt.Println("commands: /delete <msg-id> [everyone], /read <conversation-id>, /quit; anything else is sent as a message")

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}
		if strings.HasPrefix(line, "/delete ") {
			parts := strings.Fields(line)
			scope := models.ScopeMe
			if len(parts) >= 3 && parts[2] == models.ScopeEveryone {
				scope = models.ScopeEveryone
			}
			send(conn, models.EventDelete, models.DeleteData{Message: parts[1], Scope: scope})
			continue
		}
		if strings.HasPrefix(line, "/read ") {
			send(conn, models.EventMarkRead, models.MarkReadData{Conversation: strings.TrimSpace(line[6:])})
			continue
		}

		localID := uuid.NewString()
		now := time.Now().UTC().UnixNano()
		tl.AppendPending(models.Message{
			Sender: *user,
			Kind:   models.KindText,
			Text:   line,
			TS:     now,
			ReadBy: []string{*user},
		}, localID)
		send(conn, models.EventSend, models.SendData{
			Recipient: *peer,
			Kind:      models.KindText,
			Text:      line,
			ClientTS:  now,
			LocalID:   localID,
		})
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func send(conn *websocket.Conn, event string, payload any) {
	if err := conn.WriteJSON(models.NewEnvelope(event, payload)); err != nil {
		fmt.Fprintf(os.Stderr, "send %s: %v\n", event, err)
	}
}

func readLoop(conn *websocket.Conn, tl *timeline.Timeline, user, peer string, done chan struct{}) {
	defer close(done)
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			fmt.Fprintf(os.Stderr, "\nconnection closed: %v\n", err)
			return
		}
		switch env.Event {
		case models.EventMessage:
			var d models.MessageData
			if json.Unmarshal(env.Data, &d) != nil {
				continue
			}
			if d.Message.Sender == user {
				tl.Confirm(d.Message, d.LocalID)
			} else if tl.Append(d.Message) {
				render(d.Message)
			}
		case models.EventPresence:
			var d models.PresenceData
			if json.Unmarshal(env.Data, &d) != nil {
				continue
			}
			fmt.Printf("* online: %s\n", strings.Join(d.Users, ", "))
		case models.EventTyping:
			var d models.TypingData
			if json.Unmarshal(env.Data, &d) == nil && d.Active {
				fmt.Printf("* %s is typing...\n", d.Sender)
			}
		case models.EventUnread:
			var d models.UnreadData
			if json.Unmarshal(env.Data, &d) == nil {
				fmt.Printf("* new message from %s (conversation %s)\n", d.Sender, d.Conversation)
			}
		case models.EventMessageDeleted:
			var d models.DeletionData
			if json.Unmarshal(env.Data, &d) == nil {
				tl.ApplyDeletion(d.Message)
				fmt.Printf("* message %s was deleted\n", d.Message)
			}
		case models.EventError:
			var d models.ErrorData
			if json.Unmarshal(env.Data, &d) == nil {
				fmt.Printf("! %s: %s\n", d.Kind, d.Message)
			}
		}
	}
}

func render(m models.Message) {
	ts := time.Unix(0, m.TS).Local().Format("15:04:05")
	fmt.Printf("[%s] %s: %s\n", ts, m.Sender, m.Text)
}
