package domain

type DebugCandidate struct {
	Index       int                `json:"index"`
	Arm         string             `json:"arm"`
	ArmIndex    int                `json:"arm_index"`
	Features    map[string]float64 `json:"features"`
	Mean        float64            `json:"mean"`        // θᵀx
	Uncertainty float64            `json:"uncertainty"` // sqrt(xᵀA⁻¹x)
	UCB         float64            `json:"ucb"`         // mean + α·uncertainty
	ArmCount    int                `json:"arm_count"`
}
