package models

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleBoth    Role = "both"
)

func (r Role) CanTutor() bool {
	return r == RoleTutor || r == RoleBoth
}

func (r Role) CanLearn() bool {
	return r == RoleStudent || r == RoleBoth
}

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AvailabilitySlot struct {
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type TutorAvailability struct {
	TutorID   int64              `json:"tutor_id"`
	Timezone  string             `json:"timezone"`
	Slots     []AvailabilitySlot `json:"slots"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// StatsDelta is applied to a participant after a completed session. Role
// selects whether the hours count as taught or learned.
type StatsDelta struct {
	Role     Role
	Sessions int
	Hours    float64
}

type UserStats struct {
	UserID            int64   `json:"user_id"`
	SessionsAsStudent int     `json:"sessions_as_student"`
	HoursLearned      float64 `json:"hours_learned"`
	SessionsAsTutor   int     `json:"sessions_as_tutor"`
	HoursTaught       float64 `json:"hours_taught"`
}
