package task

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Job is the execution record of one scheduled sweep for one day.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey;size:32"`
	Type        string         `gorm:"column:type;size:64;index;not null"`
	Day         string         `gorm:"column:day;size:10;index;not null"`
	Status      JobStatus      `gorm:"column:status;size:20;not null"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
}

func (Job) TableName() string { return "sweep_jobs" }

type materializePayload struct {
	JobID string `json:"job_id"`
	Day   string `json:"day"`
}
