// network/messages.go
package network

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Text accepts either a JSON string or a JSON number and keeps its textual
// form, so {"problem":1} and {"problem":"1"} mean the same thing.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = Text(n.String())
	return nil
}

// Number accepts a JSON number or a numeric string.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Ptr returns the value as *float64, nil-safe.
func (n *Number) Ptr() *float64 {
	if n == nil {
		return nil
	}
	f := float64(*n)
	return &f
}

// RoomRef is the room addressing shared by every room-scoped event.
// Clients send either field; outbound payloads carry both.
type RoomRef struct {
	Room string `json:"room"`
	Code string `json:"code"`
}

// Target returns the raw room code the sender addressed.
func (r RoomRef) Target() string {
	if r.Room != "" {
		return r.Room
	}
	return r.Code
}

// RefTo builds the outbound addressing for code.
func RefTo(code string) RoomRef {
	return RoomRef{Room: code, Code: code}
}

// Point 网格坐标
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Visited tracks which compass directions have been faced.
type Visited struct {
	North bool `json:"north"`
	East  bool `json:"east"`
	South bool `json:"south"`
	West  bool `json:"west"`
}

// Or merges two visited sets; a flag once true stays true.
func (v Visited) Or(o Visited) Visited {
	return Visited{
		North: v.North || o.North,
		East:  v.East || o.East,
		South: v.South || o.South,
		West:  v.West || o.West,
	}
}

// All reports whether every direction has been visited.
func (v Visited) All() bool {
	return v.North && v.East && v.South && v.West
}

// Destinations names the page each device should show after selection.
type Destinations struct {
	PC     string `json:"pc,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

// --- 上行 payload ---

type JoinPayload struct {
	RoomRef
	Role string `json:"role"`
}

type ProblemSelectedPayload struct {
	RoomRef
	Problem      Text `json:"problem"`
	Destinations *struct {
		PC     Text `json:"pc"`
		Mobile Text `json:"mobile"`
	} `json:"destinations"`
}

type NavigateBackPayload struct {
	RoomRef
	Role string `json:"role"`
}

type MoveDirectionPayload struct {
	RoomRef
	Direction string  `json:"direction"`
	T         *Number `json:"t"`
}

type LightLevelPayload struct {
	RoomRef
	Level *Number `json:"level"`
	T     *Number `json:"t"`
}

type HeadingPayload struct {
	RoomRef
	Heading   *Number  `json:"heading"`
	Direction string   `json:"direction"`
	Visited   *Visited `json:"visited"`
	T         *Number  `json:"t"`
}

type AudioLevelPayload struct {
	RoomRef
	Level *Number `json:"level"`
	Peak  *Number `json:"peak"`
	T     *Number `json:"t"`
}

type ShakePayload struct {
	RoomRef
	Magnitude *Number `json:"magnitude"`
	T         *Number `json:"t"`
}

type MovePayload struct {
	RoomRef
	Payload *struct {
		X *Number `json:"x"`
		Y *Number `json:"y"`
		T *Number `json:"t"`
	} `json:"payload"`
}

type ProblemSolvedPayload struct {
	RoomRef
	Role string `json:"role"`
}

// --- 下行 payload ---

type CodeData struct {
	Code string `json:"code"`
}

// StatusData is the room snapshot. Puzzle fields are present only for the
// active puzzle kind.
type StatusData struct {
	RoomRef
	Role         string        `json:"role,omitempty"`
	Step         string        `json:"step,omitempty"`
	Count        int           `json:"count"`
	Problem      string        `json:"problem,omitempty"`
	Destinations *Destinations `json:"destinations,omitempty"`

	Player           *Point   `json:"player,omitempty"`
	Goal             *Point   `json:"goal,omitempty"`
	LightLevel       *float64 `json:"lightLevel,omitempty"`
	Heading          *float64 `json:"heading,omitempty"`
	Direction        string   `json:"direction,omitempty"`
	Visited          *Visited `json:"visited,omitempty"`
	Level            *float64 `json:"level,omitempty"`
	Peak             *float64 `json:"peak,omitempty"`
	Threshold        *float64 `json:"threshold,omitempty"`
	ThresholdReached *bool    `json:"thresholdReached,omitempty"`
	ShakeCount       *int     `json:"shakeCount,omitempty"`
	Completed        *bool    `json:"completed,omitempty"`
	Required         *int     `json:"required,omitempty"`
}

type MemberUpdateData struct {
	Type  string `json:"type"`
	Role  string `json:"role,omitempty"`
	Count int    `json:"count"`
}

type PairedData struct {
	Code string `json:"code"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ProblemSelectedData struct {
	RoomRef
	Problem      string        `json:"problem"`
	Destinations *Destinations `json:"destinations,omitempty"`
	From         string        `json:"from,omitempty"`
}

type NavigateBackData struct {
	RoomRef
	From string `json:"from"`
}

type MazeStateData struct {
	RoomRef
	Player      Point    `json:"player"`
	Goal        Point    `json:"goal"`
	Moved       bool     `json:"moved"`
	Direction   string   `json:"direction,omitempty"`
	GoalReached *bool    `json:"goalReached,omitempty"`
	From        string   `json:"from,omitempty"`
	T           *float64 `json:"t,omitempty"`
}

type LightLevelData struct {
	RoomRef
	Level float64  `json:"level"`
	From  string   `json:"from,omitempty"`
	T     *float64 `json:"t,omitempty"`
}

type HeadingData struct {
	RoomRef
	Heading   float64  `json:"heading"`
	Direction string   `json:"direction,omitempty"`
	Visited   Visited  `json:"visited"`
	From      string   `json:"from,omitempty"`
	T         *float64 `json:"t,omitempty"`
}

type AudioLevelData struct {
	RoomRef
	Level            float64  `json:"level"`
	Peak             float64  `json:"peak"`
	Threshold        float64  `json:"threshold"`
	ThresholdReached bool     `json:"thresholdReached"`
	From             string   `json:"from,omitempty"`
	T                *float64 `json:"t,omitempty"`
}

type ShakeData struct {
	RoomRef
	Magnitude float64  `json:"magnitude"`
	Count     int      `json:"count"`
	Completed bool     `json:"completed"`
	Required  int      `json:"required"`
	From      string   `json:"from,omitempty"`
	T         *float64 `json:"t,omitempty"`
}

type MoveData struct {
	X    float64  `json:"x"`
	Y    float64  `json:"y"`
	T    *float64 `json:"t,omitempty"`
	From string   `json:"from"`
}

type ProblemSolvedData struct {
	RoomRef
	From string `json:"from"`
}
