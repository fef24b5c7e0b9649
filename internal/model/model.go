package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&ThrowRecord{},
	&TrainingSample{},
}

// Session is one run of the AI process, from ai_started to ai_closed.
type Session struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt"`
	FieldID   string     `json:"fieldID" gorm:"size:16"`
	RobotID   string     `json:"robotID" gorm:"size:16"`
}

func (*Session) TableName() string {
	return "sessions"
}

// ThrowRecord is the telemetry captured when the thrower commits a throw.
type ThrowRecord struct {
	gorm.Model
	SessionID    string         `json:"sessionId" gorm:"size:36;index:idx_throw_session"`
	Time         time.Time      `json:"time" gorm:"index:idx_throw_time"`
	Technique    string         `json:"technique" gorm:"size:32"`
	Speed        float64        `json:"speed"`
	Distance     float64        `json:"distance"`
	Angle        float64        `json:"angle"`
	CenterOffset float64        `json:"centerOffset"`
	BasketColour string         `json:"basketColour" gorm:"size:16"`
	Snapshot     datatypes.JSON `json:"snapshot"`
}

func (*ThrowRecord) TableName() string {
	return "throw_records"
}

// TrainingSample is one labelled throw fed back by the training tools.
type TrainingSample struct {
	gorm.Model
	SessionID     string  `json:"sessionId" gorm:"size:36;index:idx_training_session"`
	Technique     string  `json:"technique" gorm:"size:32;index:idx_training_technique"`
	Distance      float64 `json:"distance"`
	Speed         float64 `json:"speed"`
	CenterOffset  float64 `json:"centerOffset"`
	Angle         float64 `json:"angle"`
	IsPredictable bool    `json:"isPredictable"`
}

func (*TrainingSample) TableName() string {
	return "training_samples"
}
