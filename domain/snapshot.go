package domain

import "time"

// ArmSnapshot is the persisted form of one arm. AInv is not stored; it is
// recomputed from A on restore.
type ArmSnapshot struct {
	Arm         string      `json:"arm"`
	A           [][]float64 `json:"A"`
	B           []float64   `json:"b"`
	Count       int         `json:"count"`
	LastUpdated time.Time   `json:"last_updated"`
}

type StoreSnapshot struct {
	VersionID string        `json:"version_id"`
	ParentID  string        `json:"parent_id,omitempty"`
	Dim       int           `json:"dim"`
	Lambda    float64       `json:"lambda"`
	Arms      []ArmSnapshot `json:"arms"`
	Updates   int64         `json:"updates"`
	CreatedAt time.Time     `json:"created_at"`
}
