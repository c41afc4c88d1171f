package model

// CarSpawn is a start position with the heading in degrees.
type CarSpawn struct {
	Position Vec3    `json:"position"`
	Heading  float64 `json:"heading"`
}

// StartingSlot holds the spawn points for one race start.
type StartingSlot struct {
	Leader   CarSpawn `json:"leader"`
	Follower CarSpawn `json:"follower"`
}

// FinishLine is a segment on the ground plane.
type FinishLine [2]Vec2

// Course is immutable after loading and shared by all races.
type Course struct {
	Name          string
	StartingSlots []StartingSlot
	FinishLine    *FinishLine // optional
}
