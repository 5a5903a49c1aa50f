package party

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// rosterEntry is one line of the launcher's window report.
type rosterEntry struct {
	Index    int    `json:"index"`
	Handle   int64  `json:"hwnd"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoadRoster reads the launcher's client list. Comments and trailing commas
// are tolerated.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}
	return ParseRoster(data)
}

func ParseRoster(data []byte) (*Roster, error) {
	var entries []rosterEntry
	if err := json.Unmarshal(jsonc.ToJSON(data), &entries); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}
	r := NewRoster()
	for _, e := range entries {
		if e.Handle == 0 {
			return nil, fmt.Errorf("roster entry %d has no hwnd", e.Index)
		}
		if _, err := r.Add(ClientID(e.Handle), e.Index, Account{Username: e.Username, Password: e.Password}); err != nil {
			return nil, err
		}
	}
	return r, nil
}
