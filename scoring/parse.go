package scoring

import (
	"strconv"
	"strings"

	"github.com/Dosada05/padel-system/models"
)

// RawSet - счёт сета как его ввёл пользователь.
type RawSet struct {
	Side1 string `json:"side1"`
	Side2 string `json:"side2"`
}

// ParseRawSets converts free-text scores into set results. Fully blank pairs
// are skipped; a pair with only one side filled is rejected. Indexes in the
// returned *SetError refer to the position in raw, starting at 1.
func ParseRawSets(raw []RawSet) ([]models.SetResult, error) {
	sets := make([]models.SetResult, 0, len(raw))
	for i, pair := range raw {
		s1 := strings.TrimSpace(pair.Side1)
		s2 := strings.TrimSpace(pair.Side2)
		if s1 == "" && s2 == "" {
			continue
		}
		if s1 == "" || s2 == "" {
			return nil, &SetError{Index: i + 1, Err: ErrIncompleteSet}
		}

		g1, err1 := strconv.Atoi(s1)
		g2, err2 := strconv.Atoi(s2)
		if err1 != nil || err2 != nil || g1 < 0 || g2 < 0 {
			return nil, &SetError{Index: i + 1, Err: ErrNonNumericSet}
		}
		sets = append(sets, models.SetResult{GamesSide1: g1, GamesSide2: g2})
	}
	return sets, nil
}
