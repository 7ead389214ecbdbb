// Package seed loads game sessions and their players from YAML fixtures.
package seed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/tepache/internal/game/session"
)

// yamlFixture is the top-level YAML structure for fixture files.
type yamlFixture struct {
	Games []yamlGame `yaml:"games"`
}

type yamlGame struct {
	GameURN string       `yaml:"game_urn"`
	Ended   bool         `yaml:"ended"`
	Players []yamlPlayer `yaml:"players"`
}

type yamlPlayer struct {
	UID  string `yaml:"uid"`
	Name string `yaml:"name"`
}

// Fixture is a parsed fixture file.
type Fixture struct {
	Games []Game
}

// Game is one game session to start.
type Game struct {
	GameURN string
	Ended   bool
	Players []Player
}

// Player joins the enclosing game. An empty Name gets an anonymous one.
type Player struct {
	UID  string
	Name string
}

// LoadFile reads and parses a fixture file.
func LoadFile(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	return Load(data)
}

// Load parses a fixture from YAML bytes.
//
// Postcondition: Every player has a non-empty uid.
func Load(data []byte) (Fixture, error) {
	var raw yamlFixture
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Fixture{}, fmt.Errorf("parsing fixture: %w", err)
	}
	f := Fixture{Games: make([]Game, 0, len(raw.Games))}
	for i, g := range raw.Games {
		game := Game{GameURN: g.GameURN, Ended: g.Ended}
		for j, p := range g.Players {
			if p.UID == "" {
				return Fixture{}, fmt.Errorf("games[%d].players[%d]: uid is required", i, j)
			}
			game.Players = append(game.Players, Player(p))
		}
		f.Games = append(f.Games, game)
	}
	return f, nil
}

// GameStarter starts and ends game sessions.
type GameStarter interface {
	Start(ctx context.Context, gameURN string) (session.GameSession, error)
	End(ctx context.Context, gameSessionURN string) (session.GameSession, error)
}

// Joiner joins players to game sessions.
type Joiner interface {
	Join(ctx context.Context, gameSessionURN, uid, name string) (session.PlayerSession, error)
}

// Result lists what Apply created.
type Result struct {
	Games   []session.GameSession
	Players []session.PlayerSession
}

// Apply starts every game in f, joins its players, then ends it if requested.
//
// Postcondition: Stops at the first failure; Result holds what was created before it.
func Apply(ctx context.Context, f Fixture, games GameStarter, players Joiner) (Result, error) {
	var res Result
	for i, g := range f.Games {
		gs, err := games.Start(ctx, g.GameURN)
		if err != nil {
			return res, fmt.Errorf("starting games[%d]: %w", i, err)
		}
		for _, p := range g.Players {
			ps, err := players.Join(ctx, gs.URN, p.UID, p.Name)
			if err != nil {
				return res, fmt.Errorf("joining %s to %s: %w", p.UID, gs.URN, err)
			}
			res.Players = append(res.Players, ps)
		}
		if g.Ended {
			ended, err := games.End(ctx, gs.URN)
			if err != nil {
				return res, fmt.Errorf("ending %s: %w", gs.URN, err)
			}
			gs = ended
		}
		res.Games = append(res.Games, gs)
	}
	return res, nil
}
