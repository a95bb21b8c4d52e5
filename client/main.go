// Command client is a terminal stand-in for a display or phone controller.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/wfunc/crosskey/network"
)

const usage = `commands:
  create                      create a room (display)
  join <code> [pc|mobile]     join a room
  select <problem>            choose a puzzle (1-6)
  back                        return to puzzle selection
  move <up|down|left|right>   maze step
  light <level>               ambient light 0..1
  heading <deg> [direction]   compass heading, optional north|east|south|west
  audio <level> [peak]        microphone level 0..1
  shake <magnitude>           one accelerometer sample
  pointer <x> <y>             relay a pointer vector
  solved                      announce a solved puzzle
  quit`

func main() {
	addr := pflag.String("addr", "localhost:3001", "server host:port")
	prefix := pflag.String("prefix", "", "URL prefix the server is mounted under")
	role := pflag.String("role", "mobile", "role used by join when none is given")
	pflag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: *addr, Path: *prefix + "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	var room string

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			var msg struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(message, &msg); err != nil {
				log.Printf("<- RECV (unparsed): %s", message)
				continue
			}
			log.Printf("<- %s %s", msg.Event, msg.Data)
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println(usage)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			closeConn(c, done)
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "quit" {
				closeConn(c, done)
				return
			}
			msg, err := parseCommand(line, &room, *role)
			if err != nil {
				log.Println(err)
				continue
			}
			if msg.Event == "" {
				continue
			}
			if err := c.WriteJSON(msg); err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> SENT: %s", msg.Event)
		}
	}
}

func closeConn(c *websocket.Conn, done <-chan struct{}) {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Println("Write close error:", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

// parseCommand turns one stdin line into an outbound event. join remembers
// the code so later commands address the same room.
func parseCommand(line string, room *string, defaultRole string) (network.Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return network.Message{}, nil
	}
	args := fields[1:]
	num := func(i int) (float64, error) {
		if i >= len(args) {
			return 0, fmt.Errorf("%s: missing argument %d", fields[0], i+1)
		}
		return strconv.ParseFloat(args[i], 64)
	}
	ref := network.RefTo(*room)

	switch fields[0] {
	case "create":
		return network.NewMessage(network.EventCreate, nil), nil
	case "join":
		if len(args) == 0 {
			return network.Message{}, fmt.Errorf("join: missing code")
		}
		*room = strings.ToUpper(args[0])
		role := defaultRole
		if len(args) > 1 {
			role = args[1]
		}
		return network.NewMessage(network.EventJoin, network.JoinPayload{RoomRef: network.RefTo(*room), Role: role}), nil
	case "select":
		if len(args) == 0 {
			return network.Message{}, fmt.Errorf("select: missing problem")
		}
		return network.NewMessage(network.EventProblemSelected, map[string]any{"room": *room, "problem": args[0]}), nil
	case "back":
		return network.NewMessage(network.EventNavigateBack, network.NavigateBackPayload{RoomRef: ref, Role: defaultRole}), nil
	case "move":
		if len(args) == 0 {
			return network.Message{}, fmt.Errorf("move: missing direction")
		}
		return network.NewMessage(network.EventMoveDirection, map[string]any{"room": *room, "direction": args[0], "t": now()}), nil
	case "light":
		level, err := num(0)
		if err != nil {
			return network.Message{}, err
		}
		return network.NewMessage(network.EventLightLevel, map[string]any{"room": *room, "level": level, "t": now()}), nil
	case "heading":
		heading, err := num(0)
		if err != nil {
			return network.Message{}, err
		}
		data := map[string]any{"room": *room, "heading": heading, "t": now()}
		if len(args) > 1 {
			data["direction"] = args[1]
		}
		return network.NewMessage(network.EventHeading, data), nil
	case "audio":
		level, err := num(0)
		if err != nil {
			return network.Message{}, err
		}
		data := map[string]any{"room": *room, "level": level, "t": now()}
		if peak, err := num(1); err == nil {
			data["peak"] = peak
		}
		return network.NewMessage(network.EventAudioLevel, data), nil
	case "shake":
		magnitude, err := num(0)
		if err != nil {
			return network.Message{}, err
		}
		return network.NewMessage(network.EventShake, map[string]any{"room": *room, "magnitude": magnitude, "t": now()}), nil
	case "pointer":
		x, err := num(0)
		if err != nil {
			return network.Message{}, err
		}
		y, err := num(1)
		if err != nil {
			return network.Message{}, err
		}
		return network.NewMessage(network.EventMove, map[string]any{
			"room":    *room,
			"payload": map[string]any{"x": x, "y": y, "t": now()},
		}), nil
	case "solved":
		return network.NewMessage(network.EventProblemSolved, network.ProblemSolvedPayload{RoomRef: ref, Role: defaultRole}), nil
	}
	return network.Message{}, fmt.Errorf("unknown command %q\n%s", fields[0], usage)
}

func now() int64 {
	return time.Now().UnixMilli()
}
