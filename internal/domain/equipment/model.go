package equipment

import "time"

type Item struct {
	ID        int64
	Name      string
	Category  string
	Active    bool
	CreatedAt time.Time
}
