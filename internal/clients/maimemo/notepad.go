package maimemo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"dictsync/lib/htmlutil"
)

// Notepad is a free-text word list, Contents is only filled in by the detail page.
type Notepad struct {
	IsPrivate   bool   `json:"is_private"`
	NotepadId   string `json:"notepad_id"`
	Title       string `json:"title"`
	Brief       string `json:"brief"`
	CreatedTime string `json:"created_time,omitempty"`
	UpdatedTime string `json:"updated_time,omitempty"`
	Contents    string `json:"contents"`
}

// UnmarshalJSON accepts is_private as a boolean, a 0/1 number or a string of either, the
// server and older snapshots do not agree on one.
func (n *Notepad) UnmarshalJSON(data []byte) error {
	type plain Notepad
	var aux struct {
		plain
		IsPrivate json.RawMessage `json:"is_private"`
	}
	err := json.Unmarshal(data, &aux)
	if err != nil {
		return err
	}
	*n = Notepad(aux.plain)
	n.IsPrivate, err = parseFlag(aux.IsPrivate)
	if err != nil {
		return fmt.Errorf("notepad %s: is_private: %w", n.NotepadId, err)
	}
	return nil
}

func parseFlag(raw json.RawMessage) (bool, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return false, nil
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}
	switch strings.ToLower(text) {
	case "", "0", "false":
		return false, nil
	case "1", "true":
		return true, nil
	}
	return false, fmt.Errorf("unrecognized flag %s", raw)
}

// Summary is the notepad with its contents cut down to the first line and the total length
// appended, it is what gets listed.
func (n Notepad) Summary() Notepad {
	total := len(n.Contents)
	n.Contents = fmt.Sprintf("%s... total length: %d", htmlutil.FirstLine(n.Contents), total)
	return n
}

func (n Notepad) String() string {
	encoded, err := json.MarshalIndent(n.Summary(), "", "  ")
	if err != nil {
		return n.NotepadId
	}
	return string(encoded)
}
