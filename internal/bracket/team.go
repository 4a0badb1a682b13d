package bracket

import (
	"time"

	"github.com/google/uuid"
)

// Team is an entrant. Rosters are owned elsewhere, the engine only references it.
type Team struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "pending"
	ParticipantApproved ParticipantStatus = "approved"
	ParticipantRejected ParticipantStatus = "rejected"
)

// Participant is a team's registration in one tournament.
type Participant struct {
	TournamentID uuid.UUID         `db:"tournament_id"`
	TeamID       uuid.UUID         `db:"team_id"`
	Status       ParticipantStatus `db:"status"`
	Seed         *int              `db:"seed"`
	GroupName    *string           `db:"group_name"`
	TeamName     string            `db:"team_name"`
}

func (p Participant) Team() Team {
	return Team{ID: p.TeamID, Name: p.TeamName}
}
