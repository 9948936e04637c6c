package main

import (
	"bufio"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/network"
)

const usage = `commands:
  create                  create a room and become host
  join <code>             join or rejoin a room
  start                   start the game (host)
  act <playerId>          night action for your role
  skip                    skip the day (host)
  kick <playerId>         vote a player out (host)
  eject <playerId>        remove a player from the room (host)
  quit`

// seat 记录当前所在房间，用于补全请求里的 roomId
type seat struct {
	mu    sync.Mutex
	room  string
	token string
}

func (s *seat) set(room, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room, s.token = room, token
}

func (s *seat) get() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room, s.token
}

func send(c *websocket.Conn, event string, payload any) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}

func main() {
	host := flag.String("addr", "localhost:8080", "server address")
	name := flag.String("name", "player", "display name")
	playerID := flag.String("id", uuid.New().String(), "stable player id")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	log.Printf("Connecting to %s as %s (%s)", u.String(), *name, *playerID)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	var current seat
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			env, err := network.Decode(message)
			if err != nil {
				log.Printf("Received invalid frame: %v", err)
				continue
			}
			if env.Event == models.EventRoomJoined {
				var joined models.RoomJoinedPayload
				if err := env.Bind(&joined); err == nil {
					current.set(joined.RoomID, joined.Token)
				}
			}
			log.Printf("<- %s %s", env.Event, string(env.Data))
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	log.Println(usage)
	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			if err := send(c, models.EventHeartbeat, nil); err != nil {
				log.Println("Write error:", err)
				return
			}
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text, ok := <-lines:
			if !ok || text == "quit" {
				return
			}
			if err := handleCommand(c, &current, *name, *playerID, text); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}

func handleCommand(c *websocket.Conn, current *seat, name, playerID, text string) error {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	roomID, token := current.get()

	switch fields[0] {
	case "create":
		return send(c, models.EventCreateRoom, models.CreateRoomRequest{PlayerName: name, PlayerID: playerID})
	case "join":
		event := models.EventJoinRoom
		if strings.EqualFold(arg, roomID) {
			event = models.EventReconnectUser
		} else {
			token = ""
		}
		return send(c, event, models.JoinRoomRequest{RoomID: arg, PlayerName: name, PlayerID: playerID, Token: token})
	case "start":
		return send(c, models.EventStartGame, models.RoomRequest{RoomID: roomID})
	case "act":
		return send(c, models.EventPlayerAction, models.PlayerActionRequest{RoomID: roomID, TargetID: arg})
	case "skip":
		return send(c, models.EventHostActionDay, models.HostDayRequest{RoomID: roomID, Action: models.DaySkip})
	case "kick":
		return send(c, models.EventHostActionDay, models.HostDayRequest{RoomID: roomID, Action: models.DayKick, TargetID: arg})
	case "eject":
		return send(c, models.EventAdminKickPlayer, models.AdminKickRequest{RoomID: roomID, TargetID: arg})
	default:
		log.Println(usage)
		return nil
	}
}
