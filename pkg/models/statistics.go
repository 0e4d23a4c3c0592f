package models

import "time"

// OverviewStatistics is one periodic usage snapshot row written by the
// scheduler's overview_statistics event.
type OverviewStatistics struct {
	ID           string         `json:"id" db:"id"`
	Users        int            `json:"users" db:"users"`
	Instructors  int            `json:"instructors" db:"instructors"`
	Lessons      int            `json:"lessons" db:"lessons"`
	Cohorts      int            `json:"cohorts" db:"cohorts"`
	Namespaces   int            `json:"namespaces" db:"namespaces"`
	Events       int            `json:"events" db:"events"`
	Files        int            `json:"files" db:"files"`
	Tickets      int            `json:"tickets" db:"tickets"`
	SessionData  int            `json:"session_data" db:"session_data"`
	ActiveHour   int            `json:"active_hour" db:"active_hour"`
	ActiveDay    int            `json:"active_day" db:"active_day"`
	ActiveWeek   int            `json:"active_week" db:"active_week"`
	ActiveMonth  int            `json:"active_month" db:"active_month"`
	ActionCounts map[string]int `json:"action_counts" db:"action_counts"`
	SpentTime    int64          `json:"spent_time" db:"spent_time"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// MaxNumActions bounds a single user-action retrieval.
const MaxNumActions = 50000
