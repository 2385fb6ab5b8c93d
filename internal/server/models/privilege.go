package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jeremy-quicklearner/clautod/internal/common"
)

// Level ranks a user's authority. LevelAdmin is reserved for the admin account.
type Level int

const (
	LevelPublic Level = iota
	LevelRead
	LevelWrite
	LevelAdmin
)

var levelNames = [...]string{"public", "read", "write", "admin"}

func (l Level) Valid() bool {
	return l >= LevelPublic && l <= LevelAdmin
}

func (l Level) String() string {
	if !l.Valid() {
		return "level(" + strconv.Itoa(int(l)) + ")"
	}
	return levelNames[l]
}

// ParseLevel accepts either the numeric form ("2") or a level name ("write").
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		l := Level(n)
		if !l.Valid() {
			return 0, fmt.Errorf("%w: privilege level %d out of range", common.ErrValidation, n)
		}
		return l, nil
	}
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown privilege level %q", common.ErrValidation, s)
}
