package puzzle

import "github.com/wfunc/crosskey/network"

// MazeConfig is a grid where 0 is open floor and 1 is wall. Walls[y][x].
type MazeConfig struct {
	Width  int
	Height int
	Start  network.Point
	Goal   network.Point
	Walls  [][]int
}

var mazeConfigs = map[string]MazeConfig{
	ProblemMazeEasy: {
		Width:  5,
		Height: 5,
		Start:  network.Point{X: 0, Y: 0},
		Goal:   network.Point{X: 4, Y: 4},
		Walls: [][]int{
			{0, 1, 0, 0, 0},
			{0, 1, 0, 1, 0},
			{0, 0, 0, 1, 0},
			{1, 1, 0, 1, 0},
			{0, 0, 0, 0, 0},
		},
	},
	ProblemMazeHard: {
		Width:  6,
		Height: 6,
		Start:  network.Point{X: 0, Y: 0},
		Goal:   network.Point{X: 5, Y: 5},
		Walls: [][]int{
			{0, 0, 0, 1, 0, 0},
			{1, 1, 0, 1, 0, 1},
			{0, 0, 0, 0, 0, 0},
			{0, 1, 1, 1, 1, 0},
			{0, 0, 0, 0, 1, 0},
			{1, 1, 1, 0, 0, 0},
		},
	},
}

// MazeConfigFor looks a layout up by problem id, falling back to the easy one.
func MazeConfigFor(key string) MazeConfig {
	if cfg, ok := mazeConfigs[key]; ok {
		return cfg
	}
	return mazeConfigs[ProblemMazeEasy]
}

// MazeKeys lists the known layouts.
func MazeKeys() []string {
	return []string{ProblemMazeEasy, ProblemMazeHard}
}

// Open reports whether (x, y) is inside the grid and not a wall.
func (c MazeConfig) Open(x, y int) bool {
	if x < 0 || y < 0 || x >= c.Width || y >= c.Height {
		return false
	}
	if y >= len(c.Walls) || x >= len(c.Walls[y]) {
		return false
	}
	return c.Walls[y][x] == 0
}

var mazeDeltas = map[string]network.Point{
	"up":    {X: 0, Y: -1},
	"down":  {X: 0, Y: 1},
	"left":  {X: -1, Y: 0},
	"right": {X: 1, Y: 0},
}

type Maze struct {
	Key    string
	Config MazeConfig
	Player network.Point
}

func NewMaze(key string) Maze {
	return NewMazeWithConfig(key, MazeConfigFor(key))
}

func NewMazeWithConfig(key string, cfg MazeConfig) Maze {
	return Maze{Key: key, Config: cfg, Player: cfg.Start}
}

func (Maze) Kind() Kind { return KindMaze }

// Apply moves the player one cell. A blocked move is answered to the sender
// only; a legal move is announced to the whole room.
func (m Maze) Apply(in Input) (State, Outcome) {
	mv, ok := in.(MoveInput)
	if !ok {
		return m, Outcome{}
	}
	delta, ok := mazeDeltas[mv.Direction]
	if !ok {
		return m, Outcome{}
	}

	next := network.Point{X: m.Player.X + delta.X, Y: m.Player.Y + delta.Y}
	if !m.Config.Open(next.X, next.Y) {
		data := network.MazeStateData{
			RoomRef:   network.RefTo(mv.Room),
			Player:    m.Player,
			Goal:      m.Config.Goal,
			Moved:     false,
			Direction: mv.Direction,
			From:      mv.From,
			T:         mv.T,
		}
		return m, Outcome{Replies: []Reply{{Scope: ToSender, Message: network.NewMessage(network.EventMazeState, data)}}}
	}

	wasAtGoal := m.Player == m.Config.Goal
	m.Player = next
	reached := next == m.Config.Goal
	data := network.MazeStateData{
		RoomRef:     network.RefTo(mv.Room),
		Player:      next,
		Goal:        m.Config.Goal,
		Moved:       true,
		Direction:   mv.Direction,
		GoalReached: ptr(reached),
		From:        mv.From,
		T:           mv.T,
	}
	return m, Outcome{
		Replies: broadcast(network.EventMazeState, data),
		Solved:  reached && !wasAtGoal,
	}
}

func (m Maze) Fill(st *network.StatusData) {
	st.Player = ptr(m.Player)
	st.Goal = ptr(m.Config.Goal)
}
