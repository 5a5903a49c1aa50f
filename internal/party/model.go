package party

import (
	"strconv"
	"time"
)

// ClientID identifies one game client instance for the life of the process.
// The launcher hands out window handles, which are plain integers.
type ClientID int64

func (id ClientID) String() string { return strconv.FormatInt(int64(id), 10) }

type State string

const (
	StateUnknown  State = "UNKNOWN"
	StateLogin    State = "LOGIN"
	StateLobby    State = "LOBBY"
	StateRoom     State = "ROOM"
	StateInGame   State = "INGAME"
	StateClaiming State = "CLAIMING"
	StateFinished State = "FINISHED"
)

// States lists every state in lifecycle order.
var States = []State{StateUnknown, StateLogin, StateLobby, StateRoom, StateInGame, StateClaiming, StateFinished}

// Account is handed to the credential routine untouched.
type Account struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a Account) Empty() bool { return a.Username == "" && a.Password == "" }

type Client struct {
	ID      ClientID
	Index   int
	Account Account

	State     State
	LoginStep int
	Retries   int

	MatchStartedAt time.Time
	CooldownUntil  time.Time
}

// SetState moves the client to s and reports whether anything changed.
func (c *Client) SetState(s State) (prev State, changed bool) {
	prev = c.State
	if prev == s {
		return prev, false
	}
	c.State = s
	return prev, true
}

func (c *Client) Cooldown(now time.Time, d time.Duration) {
	c.CooldownUntil = now.Add(d)
}

func (c *Client) Ready(now time.Time) bool {
	return !now.Before(c.CooldownUntil)
}

func (c *Client) InMatch() bool { return !c.MatchStartedAt.IsZero() }

func (c *Client) reset() {
	c.State = StateUnknown
	c.LoginStep = 0
	c.Retries = 0
	c.MatchStartedAt = time.Time{}
	c.CooldownUntil = time.Time{}
}
